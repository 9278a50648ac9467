package domain

import (
	"context"
	"time"
)

// PaymentStore owns persisted payments. Writes happen only through a Transaction.
type PaymentStore interface {
	PrepareTransaction(ctx context.Context) (Transaction, error)
	FindPayment(ctx context.Context, lookup PaymentLookup) (*Payment, error)
}

// Transaction is a scoped unit of work: prepared, opened, committed or rolled
// back, and always closed. Close releases anything still held and is safe to
// call more than once.
type Transaction interface {
	Open(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error

	// SavePayment upserts by OrderID, keeping the identity of an existing record.
	SavePayment(ctx context.Context, payment *Payment) (*SavedPayment, error)
	// UpdateStatusByOrderID returns ErrPaymentNotFound when no record matches.
	UpdateStatusByOrderID(ctx context.Context, orderID string, status PaymentStatus) (*StatusUpdate, error)
	// FindPayment returns nil, nil on a clean miss.
	FindPayment(ctx context.Context, lookup PaymentLookup) (*Payment, error)
}

type OutboxMessage struct {
	ID        string
	QueueName string
	Payload   []byte
	CreatedAt time.Time
}

// OutboxWriter is implemented by transactions that can stage queue messages.
type OutboxWriter interface {
	RecordOutbox(ctx context.Context, msg OutboxMessage) error
}

type OutboxStore interface {
	PendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id string) error
}

// PixGateway returns nil, nil when the gateway declines to issue an instrument.
type PixGateway interface {
	GeneratePix(ctx context.Context, order Order) (*PixInstrument, error)
}

// KitchenPublisher hands a committed-to-be status update to the kitchen queue.
type KitchenPublisher interface {
	PublishStatus(ctx context.Context, tx Transaction, update StatusUpdate) error
}

type PaymentEventPublisher interface {
	PublishPaymentStatusChanged(ctx context.Context, event PaymentStatusChangedEvent) error
}

// OrderLocker serialises work on one order id. The returned func releases it.
type OrderLocker interface {
	Acquire(ctx context.Context, orderID string) (func(context.Context) error, error)
}
