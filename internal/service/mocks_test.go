package service

import (
	"context"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

// MockStore hands out MockTx and records how many transactions were prepared.
type MockStore struct {
	Tx                   *MockTx
	PrepareErr           error
	FindPaymentFunc      func(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error)
	PreparedTransactions int
}

func (m *MockStore) PrepareTransaction(ctx context.Context) (domain.Transaction, error) {
	if m.PrepareErr != nil {
		return nil, m.PrepareErr
	}
	m.PreparedTransactions++
	if m.Tx == nil {
		m.Tx = &MockTx{}
	}
	return m.Tx, nil
}

func (m *MockStore) FindPayment(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error) {
	return m.FindPaymentFunc(ctx, lookup)
}

// MockTx records the lifecycle calls in order.
type MockTx struct {
	Calls []string

	OpenErr   error
	CommitErr error

	SavePaymentFunc  func(ctx context.Context, payment *domain.Payment) (*domain.SavedPayment, error)
	UpdateStatusFunc func(ctx context.Context, orderID string, status domain.PaymentStatus) (*domain.StatusUpdate, error)
	FindPaymentFunc  func(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error)
}

func (m *MockTx) Open(ctx context.Context) error {
	m.Calls = append(m.Calls, "open")
	return m.OpenErr
}

func (m *MockTx) Commit(ctx context.Context) error {
	m.Calls = append(m.Calls, "commit")
	return m.CommitErr
}

func (m *MockTx) Rollback(ctx context.Context) error {
	m.Calls = append(m.Calls, "rollback")
	return nil
}

func (m *MockTx) Close(ctx context.Context) error {
	m.Calls = append(m.Calls, "close")
	return nil
}

func (m *MockTx) SavePayment(ctx context.Context, payment *domain.Payment) (*domain.SavedPayment, error) {
	m.Calls = append(m.Calls, "save")
	return m.SavePaymentFunc(ctx, payment)
}

func (m *MockTx) UpdateStatusByOrderID(ctx context.Context, orderID string, status domain.PaymentStatus) (*domain.StatusUpdate, error) {
	m.Calls = append(m.Calls, "update")
	return m.UpdateStatusFunc(ctx, orderID, status)
}

func (m *MockTx) FindPayment(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error) {
	m.Calls = append(m.Calls, "find")
	return m.FindPaymentFunc(ctx, lookup)
}

func (m *MockTx) called(name string) bool {
	for _, c := range m.Calls {
		if c == name {
			return true
		}
	}
	return false
}

type MockGateway struct {
	GeneratePixFunc func(ctx context.Context, order domain.Order) (*domain.PixInstrument, error)
	Calls           int
}

func (m *MockGateway) GeneratePix(ctx context.Context, order domain.Order) (*domain.PixInstrument, error) {
	m.Calls++
	return m.GeneratePixFunc(ctx, order)
}

type MockKitchen struct {
	PublishFunc func(ctx context.Context, update domain.StatusUpdate) error
	Published   []domain.StatusUpdate
}

func (m *MockKitchen) PublishStatus(ctx context.Context, tx domain.Transaction, update domain.StatusUpdate) error {
	if mt, ok := tx.(*MockTx); ok {
		mt.Calls = append(mt.Calls, "publish")
	}
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, update); err != nil {
			return err
		}
	}
	m.Published = append(m.Published, update)
	return nil
}

type MockEventPublisher struct {
	PublishFunc func(ctx context.Context, event domain.PaymentStatusChangedEvent) error
	Events      []domain.PaymentStatusChangedEvent
}

func (m *MockEventPublisher) PublishPaymentStatusChanged(ctx context.Context, event domain.PaymentStatusChangedEvent) error {
	m.Events = append(m.Events, event)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

type MockLocker struct {
	AcquireErr error
	Acquired   []string
	Released   []string
}

func (m *MockLocker) Acquire(ctx context.Context, orderID string) (func(context.Context) error, error) {
	if m.AcquireErr != nil {
		return nil, m.AcquireErr
	}
	m.Acquired = append(m.Acquired, orderID)
	return func(context.Context) error {
		m.Released = append(m.Released, orderID)
		return nil
	}, nil
}
