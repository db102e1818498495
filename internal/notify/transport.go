// Package notify renders merged transactions and delivers them to recipients.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Transport delivers one message to one recipient.
type Transport interface {
	Deliver(ctx context.Context, recipient, message string) error
}

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Deliver(_ context.Context, recipient, message string) error {
	t.logger.Info("notification", zap.String("recipient", recipient), zap.String("message", message))
	return nil
}
