package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/logger"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/telemetry"
)

const (
	opCreateCheckout = "checkout.create"
	opApplyWebhook   = "checkout.webhook"
	opGetCheckout    = "checkout.get"

	defaultGatewayTimeout = 10 * time.Second
)

// PaymentService runs checkout creation and webhook updates as scoped
// transactions. It keeps no state between calls.
type PaymentService struct {
	store          domain.PaymentStore
	gateway        domain.PixGateway
	kitchen        domain.KitchenPublisher
	eventPublisher domain.PaymentEventPublisher
	locker         domain.OrderLocker
	gatewayTimeout time.Duration
	now            func() time.Time

	tracer     trace.Tracer
	operations metric.Int64Counter
}

type Option func(*PaymentService)

func WithEventPublisher(p domain.PaymentEventPublisher) Option {
	return func(s *PaymentService) { s.eventPublisher = p }
}

func WithOrderLocker(l domain.OrderLocker) Option {
	return func(s *PaymentService) { s.locker = l }
}

func WithGatewayTimeout(d time.Duration) Option {
	return func(s *PaymentService) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *PaymentService) { s.now = now }
}

func NewPaymentService(store domain.PaymentStore, gateway domain.PixGateway, kitchen domain.KitchenPublisher, opts ...Option) *PaymentService {
	s := &PaymentService{
		store:          store,
		gateway:        gateway,
		kitchen:        kitchen,
		gatewayTimeout: defaultGatewayTimeout,
		now:            time.Now,
		tracer:         otel.Tracer(telemetry.InstrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := otel.Meter(telemetry.InstrumentationName).Int64Counter("checkout.operations",
		metric.WithDescription("Checkout operations by outcome"),
	)
	if err != nil {
		logger.Warn("failed to create checkout.operations counter", zap.Error(err))
	}
	s.operations = counter
	return s
}

func validPaymentMethod(method string) bool {
	return strings.EqualFold(method, domain.PaymentMethodPix)
}

func eligibleOrder(order domain.Order) bool {
	return order.Status == domain.OrderStatusReceived
}

// CreateCheckout validates the request, asks the gateway for a PIX instrument
// and upserts the payment for the order.
func (s *PaymentService) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	order := req.Order
	ctx, span := s.tracer.Start(ctx, opCreateCheckout, trace.WithAttributes(attribute.String("order.id", order.OrderID)))
	defer span.End()

	logger.Info("creating checkout",
		zap.String("order_id", order.OrderID),
		zap.String("payment_method", req.PaymentMethod),
		zap.String("total_value", order.TotalValue.String()),
	)

	tx, err := s.store.PrepareTransaction(ctx)
	if err != nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultUnexpected, opCreateCheckout, order.OrderID, err))
	}
	// the scope is closed before the order lock is given back
	var release func(context.Context) error
	defer func() {
		s.closeTransaction(ctx, tx, opCreateCheckout)
		s.release(ctx, release, order.OrderID)
	}()

	if !validPaymentMethod(req.PaymentMethod) {
		return nil, s.fail(span, domain.NewFault(domain.FaultValidation, opCreateCheckout, order.OrderID,
			fmt.Errorf("%w: cannot create payment with payment method %s", domain.ErrInvalidPaymentMethod, req.PaymentMethod)))
	}
	if !eligibleOrder(order) {
		return nil, s.fail(span, domain.NewFault(domain.FaultValidation, opCreateCheckout, order.OrderID,
			fmt.Errorf("%w: cannot create payment with order status %s", domain.ErrInvalidOrderStatus, order.Status)))
	}

	release, err = s.acquire(ctx, order.OrderID)
	if err != nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultUnexpected, opCreateCheckout, order.OrderID, err))
	}

	if err := tx.Open(ctx); err != nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultUnexpected, opCreateCheckout, order.OrderID, err))
	}

	payment := &domain.Payment{
		OrderID:    order.OrderID,
		TotalValue: order.TotalValue,
		ClientID:   order.ClientID,
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	instrument, err := s.gateway.GeneratePix(gatewayCtx, order)
	cancel()
	if err != nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultUnexpected, opCreateCheckout, order.OrderID,
			fmt.Errorf("pix generation for order %s: %w", order.OrderID, err)))
	}
	if instrument == nil {
		return nil, s.rollback(ctx, tx, span, domain.NewFault(domain.FaultTransaction, opCreateCheckout, order.OrderID,
			fmt.Errorf("%w: payment with order ID %s did not perform a successful transaction", domain.ErrGatewayFailure, order.OrderID)))
	}

	applyInstrument(payment, instrument)
	if payment.PaymentID == "" {
		payment.PaymentID = uuid.NewString()
	}

	saved, err := tx.SavePayment(ctx, payment)
	if err == nil && saved == nil {
		err = errors.New("store returned no payment")
	}
	if err != nil {
		return nil, s.rollback(ctx, tx, span, domain.NewFault(domain.FaultTransaction, opCreateCheckout, order.OrderID,
			fmt.Errorf("%w: payment with order ID %s did not perform a successful transaction: %w", domain.ErrTransactionFailure, order.OrderID, err)))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.rollback(ctx, tx, span, domain.NewFault(domain.FaultTransaction, opCreateCheckout, order.OrderID,
			fmt.Errorf("%w: commit checkout for order %s: %w", domain.ErrTransactionFailure, order.OrderID, err)))
	}

	s.record(opCreateCheckout, "success")
	logger.Info("checkout created",
		zap.String("order_id", order.OrderID),
		zap.String("payment_id", saved.PaymentID),
		zap.String("status", string(saved.Status)),
	)

	return &domain.CheckoutResult{
		OrderID:   order.OrderID,
		Status:    saved.Status,
		PaymentID: saved.PaymentID,
	}, nil
}

func applyInstrument(p *domain.Payment, in *domain.PixInstrument) {
	p.PaymentMethod = in.PaymentMethod
	if p.PaymentMethod == "" {
		p.PaymentMethod = "Pix"
	}
	p.Status = in.Status
	if p.Status == "" {
		p.Status = domain.StatusPending
	}
	p.PixURL = in.PixURL
	p.PixCode = in.PixCode
	p.ExpirationDate = in.ExpirationDate
	if !in.TotalValue.IsZero() {
		p.TotalValue = in.TotalValue
	}
	if in.ClientID != "" {
		p.ClientID = in.ClientID
	}
}

// ApplyWebhookUpdate moves the payment of the event's order to the status the
// event implies and hands the result to the kitchen queue before committing.
func (s *PaymentService) ApplyWebhookUpdate(ctx context.Context, event domain.WebhookEvent) (*domain.StatusUpdate, error) {
	ctx, span := s.tracer.Start(ctx, opApplyWebhook, trace.WithAttributes(
		attribute.String("webhook.type", event.Type),
		attribute.String("order.id", event.Data.Code),
	))
	defer span.End()

	logger.Info("received webhook notification",
		zap.String("id", event.ID),
		zap.String("type", event.Type),
		zap.String("order_id", event.Data.Code),
	)

	tx, err := s.store.PrepareTransaction(ctx)
	if err != nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultUnexpected, opApplyWebhook, event.Data.Code, err))
	}
	var (
		release     func(context.Context) error
		lockedOrder string
	)
	defer func() {
		s.closeTransaction(ctx, tx, opApplyWebhook)
		s.release(ctx, release, lockedOrder)
	}()

	if err := tx.Open(ctx); err != nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultUnexpected, opApplyWebhook, event.Data.Code, err))
	}

	classification, err := ClassifyWebhook(event)
	if err != nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultValidation, opApplyWebhook, event.Data.Code, err))
	}
	orderID := classification.OrderID
	if orderID == "" {
		return nil, s.fail(span, domain.NewFault(domain.FaultValidation, opApplyWebhook, "", domain.ErrMissingOrderID))
	}
	if classification.Status == "" {
		return nil, s.fail(span, domain.NewFault(domain.FaultValidation, opApplyWebhook, orderID, domain.ErrMissingStatus))
	}

	release, err = s.acquire(ctx, orderID)
	if err != nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultUnexpected, opApplyWebhook, orderID, err))
	}
	lockedOrder = orderID

	existing, err := tx.FindPayment(ctx, domain.PaymentLookup{OrderID: orderID})
	if err != nil {
		// the store failed, not just missed: undo whatever the scope holds
		return nil, s.rollback(ctx, tx, span, domain.NewFault(domain.FaultNotFound, opApplyWebhook, orderID,
			fmt.Errorf("lookup of payment with orderId %s failed: %w", orderID, err)))
	}
	if existing == nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultNotFound, opApplyWebhook, orderID,
			fmt.Errorf("%w: payment with orderId %s", domain.ErrPaymentNotFound, orderID)))
	}

	update, err := tx.UpdateStatusByOrderID(ctx, orderID, classification.Status)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		return nil, s.fail(span, domain.NewFault(domain.FaultNotFound, opApplyWebhook, orderID,
			fmt.Errorf("payment with orderId %s: %w", orderID, err)))
	case err != nil:
		return nil, s.rollback(ctx, tx, span, domain.NewFault(domain.FaultTransaction, opApplyWebhook, orderID,
			fmt.Errorf("%w: update status of order %s: %w", domain.ErrTransactionFailure, orderID, err)))
	case update == nil:
		return nil, s.rollback(ctx, tx, span, domain.NewFault(domain.FaultTransaction, opApplyWebhook, orderID,
			fmt.Errorf("%w: cannot save payment with orderId %s", domain.ErrTransactionFailure, orderID)))
	}

	if err := s.kitchen.PublishStatus(ctx, tx, *update); err != nil {
		return nil, s.rollback(ctx, tx, span, domain.NewFault(domain.FaultTransaction, opApplyWebhook, orderID,
			fmt.Errorf("%w: publish payment %s to kitchen: %w", domain.ErrTransactionFailure, update.PaymentID, err)))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.rollback(ctx, tx, span, domain.NewFault(domain.FaultTransaction, opApplyWebhook, orderID,
			fmt.Errorf("%w: commit status of order %s: %w", domain.ErrTransactionFailure, orderID, err)))
	}

	s.record(opApplyWebhook, "success")
	logger.Info("payment status updated via webhook",
		zap.String("order_id", orderID),
		zap.String("payment_id", update.PaymentID),
		zap.String("new_status", string(update.Status)),
	)

	s.notify(ctx, orderID, *update)
	return update, nil
}

// notify is best-effort: the status change is already committed.
func (s *PaymentService) notify(ctx context.Context, orderID string, update domain.StatusUpdate) {
	if s.eventPublisher == nil {
		return
	}
	err := s.eventPublisher.PublishPaymentStatusChanged(ctx, domain.PaymentStatusChangedEvent{
		PaymentID:   update.PaymentID,
		OrderID:     orderID,
		Status:      update.Status,
		ProcessedAt: s.now(),
	})
	if err != nil {
		logger.Error("failed to publish payment status changed event",
			zap.Error(err),
			zap.String("payment_id", update.PaymentID),
		)
	}
}

// GetCheckout returns the payment matching every field set in lookup.
func (s *PaymentService) GetCheckout(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, opGetCheckout)
	defer span.End()

	if lookup.Empty() {
		return nil, s.fail(span, domain.NewFault(domain.FaultValidation, opGetCheckout, "", domain.ErrEmptyLookup))
	}

	payment, err := s.store.FindPayment(ctx, lookup)
	if err != nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultUnexpected, opGetCheckout, lookup.OrderID, err))
	}
	if payment == nil {
		return nil, s.fail(span, domain.NewFault(domain.FaultNotFound, opGetCheckout, lookup.OrderID, domain.ErrPaymentNotFound))
	}

	s.record(opGetCheckout, "success")
	return payment, nil
}

func (s *PaymentService) acquire(ctx context.Context, orderID string) (func(context.Context) error, error) {
	if s.locker == nil {
		return nil, nil
	}
	return s.locker.Acquire(ctx, orderID)
}

func (s *PaymentService) release(ctx context.Context, release func(context.Context) error, orderID string) {
	if release == nil {
		return
	}
	if err := release(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("failed to release order lock", zap.Error(err), zap.String("order_id", orderID))
	}
}

func (s *PaymentService) rollback(ctx context.Context, tx domain.Transaction, span trace.Span, fault *domain.Fault) error {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		logger.Error("failed to rollback transaction",
			zap.Error(err),
			zap.String("op", fault.Op),
			zap.String("order_id", fault.OrderID),
		)
	}
	return s.fail(span, fault)
}

func (s *PaymentService) closeTransaction(ctx context.Context, tx domain.Transaction, op string) {
	if err := tx.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("failed to close transaction", zap.Error(err), zap.String("op", op))
	}
}

func (s *PaymentService) fail(span trace.Span, fault *domain.Fault) error {
	span.RecordError(fault)
	span.SetStatus(codes.Error, fault.Kind.String())
	s.record(fault.Op, fault.Kind.String())

	fields := []zap.Field{
		zap.Error(fault),
		zap.String("op", fault.Op),
		zap.String("order_id", fault.OrderID),
		zap.String("fault_kind", fault.Kind.String()),
	}
	if fault.Retryable() {
		logger.Error("checkout operation failed", fields...)
	} else {
		logger.Warn("checkout operation rejected", fields...)
	}
	return fault
}

func (s *PaymentService) record(op, outcome string) {
	if s.operations == nil {
		return
	}
	s.operations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}
