package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaNotification struct {
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
}

// KafkaTransport publishes one message per recipient, keyed by recipient.
type KafkaTransport struct {
	writer *kafka.Writer
	mu     sync.Mutex
}

func NewKafkaTransport(brokers []string, topic string) *KafkaTransport {
	return &KafkaTransport{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (k *KafkaTransport) Deliver(ctx context.Context, recipient, message string) error {
	value, err := json.Marshal(kafkaNotification{Recipient: recipient, Message: message, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("kafka: marshal notification: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer == nil {
		return fmt.Errorf("kafka: transport closed")
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(recipient), Value: value}); err != nil {
		return fmt.Errorf("kafka: write message: %w", err)
	}
	return nil
}

func (k *KafkaTransport) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}
