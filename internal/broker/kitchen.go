package broker

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

type Sender interface {
	SendToQueue(ctx context.Context, channel, queueName string, message any, opts ...jetstream.PublishOpt) error
}

// KitchenPublisher sends status updates straight to the kitchen queue while
// the transaction is still open; a failed send rolls the update back.
type KitchenPublisher struct {
	sender Sender
}

func NewKitchenPublisher(sender Sender) *KitchenPublisher {
	return &KitchenPublisher{sender: sender}
}

func (p *KitchenPublisher) PublishStatus(ctx context.Context, _ domain.Transaction, update domain.StatusUpdate) error {
	return p.sender.SendToQueue(ctx, QueueKitchen, QueueKitchen, update)
}
