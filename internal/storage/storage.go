package storage

import (
	"context"

	"walletTracker/internal/model"
)

// Sink records one ledger entry per settled notification.
type Sink interface {
	PutNotification(ctx context.Context, record model.NotificationRecord) error
}

// Discard is a Sink that drops every record.
type Discard struct{}

func (Discard) PutNotification(context.Context, model.NotificationRecord) error { return nil }
