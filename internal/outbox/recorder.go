// Package outbox stages kitchen messages in the payment transaction and
// publishes them once committed.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/broker"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

var ErrOutboxUnsupported = errors.New("transaction cannot record outbox messages")

// Recorder is a domain.KitchenPublisher that writes the message into the
// outbox table of the open transaction instead of the queue.
type Recorder struct {
	Now func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{Now: time.Now}
}

func (r *Recorder) PublishStatus(ctx context.Context, tx domain.Transaction, update domain.StatusUpdate) error {
	writer, ok := tx.(domain.OutboxWriter)
	if !ok {
		return ErrOutboxUnsupported
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}

	return writer.RecordOutbox(ctx, domain.OutboxMessage{
		ID:        uuid.NewString(),
		QueueName: broker.QueueKitchen,
		Payload:   payload,
		CreatedAt: r.Now().UTC(),
	})
}
