// Package consumer feeds queued checkout and webhook work into the payment
// service and settles every delivery from the outcome.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/broker"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/logger"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/telemetry"
)

type Action string

const (
	// ActionAck removes the message for good.
	ActionAck Action = "ack"
	// ActionReject drops the message without redelivery.
	ActionReject Action = "reject"
	// ActionNack asks the broker to redeliver.
	ActionNack Action = "nack"
)

type PaymentService interface {
	CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error)
	ApplyWebhookUpdate(ctx context.Context, event domain.WebhookEvent) (*domain.StatusUpdate, error)
}

type Queue interface {
	ConsumeQueue(ctx context.Context, opts broker.ConsumeOptions, handler broker.Handler) error
}

// Decide maps an operation outcome to a settlement: success is acked, client
// faults are rejected and everything else is redelivered. A fault caused by a
// cancelled or expired context is always redelivered.
func Decide(err error) Action {
	if err == nil {
		return ActionAck
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionNack
	}
	if domain.AsFault(err).Retryable() {
		return ActionNack
	}
	return ActionReject
}

// Settle applies Decide to the delivery.
func Settle(d broker.Delivery, err error) (Action, error) {
	action := Decide(err)
	var settleErr error
	switch action {
	case ActionAck:
		settleErr = d.Ack()
	case ActionReject:
		settleErr = d.Term()
	case ActionNack:
		settleErr = d.Nak()
	}
	return action, settleErr
}

type Subscriber struct {
	queue      Queue
	service    PaymentService
	prefetch   int
	deliveries metric.Int64Counter
}

func NewSubscriber(queue Queue, service PaymentService, prefetch int) *Subscriber {
	if prefetch < 1 {
		prefetch = 1
	}
	s := &Subscriber{queue: queue, service: service, prefetch: prefetch}

	counter, err := otel.Meter(telemetry.InstrumentationName).Int64Counter("queue.deliveries",
		metric.WithDescription("Queue deliveries by settlement"),
	)
	if err != nil {
		logger.Warn("failed to create queue.deliveries counter", zap.Error(err))
	}
	s.deliveries = counter
	return s
}

// Start runs the payment and webhook-status loops until ctx is done.
func (s *Subscriber) Start(ctx context.Context) error {
	loops := []struct {
		queue   string
		handler broker.Handler
	}{
		{queue: broker.QueuePayment, handler: s.handlePayment},
		{queue: broker.QueueWebhookStatus, handler: s.handleWebhook},
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, loop := range loops {
		wg.Add(1)
		go func(queue string, handler broker.Handler) {
			defer wg.Done()
			opts := broker.ConsumeOptions{Channel: queue, QueueName: queue, Prefetch: s.prefetch}
			if err := s.queue.ConsumeQueue(ctx, opts, handler); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("consume %s: %w", queue, err))
				mu.Unlock()
			}
		}(loop.queue, loop.handler)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Fetched deliveries run to completion on a context detached from ctx; ctx
// only stops the fetch loop.
func (s *Subscriber) handlePayment(ctx context.Context, deliveries []broker.Delivery) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range deliveries {
		var req domain.CheckoutRequest
		err := decode(d, &req)
		if err == nil {
			var result *domain.CheckoutResult
			result, err = s.service.CreateCheckout(ctx, req)
			if err == nil {
				logger.Info("checkout created",
					zap.String("order_id", result.OrderID),
					zap.String("payment_id", result.PaymentID),
				)
			}
		}
		s.settle(broker.QueuePayment, d, err)
	}
}

func (s *Subscriber) handleWebhook(ctx context.Context, deliveries []broker.Delivery) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range deliveries {
		var event domain.WebhookEvent
		err := decode(d, &event)
		if err == nil {
			var update *domain.StatusUpdate
			update, err = s.service.ApplyWebhookUpdate(ctx, event)
			if err == nil {
				logger.Info("checkout updated",
					zap.String("payment_id", update.PaymentID),
					zap.String("status", string(update.Status)),
				)
			}
		}
		s.settle(broker.QueueWebhookStatus, d, err)
	}
}

func decode(d broker.Delivery, v any) error {
	if err := json.Unmarshal(d.Data(), v); err != nil {
		return domain.NewFault(domain.FaultValidation, "decode message", "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err))
	}
	return nil
}

func (s *Subscriber) settle(queue string, d broker.Delivery, err error) {
	action, settleErr := Settle(d, err)
	if err != nil {
		logger.Error("queue message failed",
			zap.String("queue", queue),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
	if settleErr != nil {
		logger.Error("failed to settle queue message",
			zap.String("queue", queue),
			zap.String("action", string(action)),
			zap.Error(settleErr),
		)
	}
	if s.deliveries != nil {
		s.deliveries.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("queue", queue),
			attribute.String("action", string(action)),
		))
	}
}
