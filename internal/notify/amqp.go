package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// AMQPTransport publishes messages to a topic exchange with the recipient as routing key.
type AMQPTransport struct {
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPTransport connects to the broker and declares the exchange.
func NewAMQPTransport(uri, exchange string) (*AMQPTransport, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", exchange, err)
	}
	return &AMQPTransport{exchange: exchange, conn: conn, ch: ch}, nil
}

func (t *AMQPTransport) Deliver(_ context.Context, recipient, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ch == nil {
		ch, err := t.conn.Channel()
		if err != nil {
			return fmt.Errorf("amqp: open channel: %w", err)
		}
		t.ch = ch
	}

	msg := amqp.Publishing{
		Headers:     amqp.Table{"x-recipient": recipient},
		ContentType: "text/plain",
		Timestamp:   time.Now().UTC(),
		Body:        []byte(message),
	}
	if err := t.ch.Publish(t.exchange, recipient, false, false, msg); err != nil {
		// the channel is unusable after a publish error
		t.ch = nil
		return fmt.Errorf("amqp: publish: %w", err)
	}
	return nil
}

func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ch != nil {
		_ = t.ch.Close()
		t.ch = nil
	}
	return t.conn.Close()
}
