package notify

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"walletTracker/internal/metrics"
	"walletTracker/internal/model"
	"walletTracker/internal/storage"
)

// Dispatcher composes one message per settled group and fans it out to every recipient.
type Dispatcher struct {
	transport Transport
	sink      storage.Sink
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatcher(transport Transport, sink storage.Sink, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = storage.Discard{}
	}
	return &Dispatcher{transport: transport, sink: sink, metrics: m, logger: logger, now: time.Now}
}

// Dispatch delivers tx to the group's recipients in sorted order. Delivery failures are
// logged and counted, never retried. The ledger record is returned after it is written.
func (d *Dispatcher) Dispatch(ctx context.Context, group model.CorrelationGroup, tx model.MergedTransaction) model.NotificationRecord {
	text := Compose(tx)

	recipients := append([]string(nil), group.Recipients...)
	sort.Strings(recipients)

	record := model.NotificationRecord{
		GroupID:      group.ID,
		TxHash:       group.TxHash,
		Network:      group.Network,
		Target:       group.TargetAddress,
		Category:     tx.Category,
		KindsPresent: tx.KindsPresent.Kinds(),
		Recipients:   recipients,
		Message:      text,
	}
	if !tx.KindsMissing.Empty() {
		record.KindsMissing = tx.KindsMissing.Kinds()
	}

	for _, recipient := range recipients {
		if err := d.transport.Deliver(ctx, recipient, text); err != nil {
			record.Failed++
			d.logger.Warn("delivery failed",
				zap.String("group", group.ID),
				zap.String("tx_hash", group.TxHash),
				zap.String("recipient", recipient),
				zap.Error(err),
			)
			continue
		}
		record.Delivered++
	}
	record.SettledAt = d.now().UTC()

	d.metrics.Notified(tx.Category.String(), record.Delivered, record.Failed)
	if err := d.sink.PutNotification(ctx, record); err != nil {
		d.logger.Error("ledger write failed", zap.String("tx_hash", group.TxHash), zap.Error(err))
	}
	return record
}
