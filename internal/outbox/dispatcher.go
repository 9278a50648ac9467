package outbox

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/broker"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/logger"
)

// Dispatcher publishes committed outbox rows. Rows are marked only after the
// broker accepted them, and the row id is sent as the message id so a row
// published twice is deduplicated by the stream.
type Dispatcher struct {
	Store        domain.OutboxStore
	Sender       broker.Sender
	PollInterval time.Duration
	BatchSize    int
}

func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchOnce(ctx)
		}
	}
}

// DispatchOnce publishes one batch and returns how many rows were marked.
func (d *Dispatcher) DispatchOnce(ctx context.Context) int {
	batch := d.BatchSize
	if batch <= 0 {
		batch = 50
	}

	messages, err := d.Store.PendingOutbox(ctx, batch)
	if err != nil {
		logger.Error("failed to load kitchen outbox", zap.Error(err))
		return 0
	}

	published := 0
	for _, msg := range messages {
		err := d.Sender.SendToQueue(ctx, msg.QueueName, msg.QueueName, msg.Payload, jetstream.WithMsgID(msg.ID))
		if err != nil {
			logger.Warn("failed to publish outbox message",
				zap.String("id", msg.ID),
				zap.String("queue", msg.QueueName),
				zap.Error(err),
			)
			continue
		}

		if err := d.Store.MarkOutboxPublished(ctx, msg.ID); err != nil {
			logger.Error("failed to mark outbox message", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		published++
	}

	if published > 0 {
		logger.Debug("kitchen outbox dispatched", zap.Int("count", published))
	}
	return published
}
