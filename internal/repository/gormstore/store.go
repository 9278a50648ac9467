package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// PrepareTransaction hands out a transaction scope bound to this store. Nothing
// is reserved until Open.
func (s *Store) PrepareTransaction(ctx context.Context) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewEntityError("prepare transaction", err)
	}
	return &transaction{db: s.db}, nil
}

func (s *Store) FindPayment(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error) {
	return findPayment(ctx, s.db, lookup)
}

func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var records []outboxRecord
	err := s.db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, domain.NewEntityError("pending outbox", err)
	}

	messages := make([]domain.OutboxMessage, 0, len(records))
	for _, r := range records {
		messages = append(messages, domain.OutboxMessage{
			ID:        r.ID,
			QueueName: r.QueueName,
			Payload:   r.Payload,
			CreatedAt: r.CreatedAt,
		})
	}
	return messages, nil
}

func (s *Store) MarkOutboxPublished(ctx context.Context, id string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&outboxRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"published": true, "published_at": &now}).Error
	if err != nil {
		return domain.NewEntityError("mark outbox published", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func findPayment(ctx context.Context, db *gorm.DB, lookup domain.PaymentLookup) (*domain.Payment, error) {
	if lookup.Empty() {
		return nil, domain.NewEntityError("find payment", domain.ErrEmptyLookup)
	}

	query := db.WithContext(ctx).Model(&paymentRecord{})
	if lookup.PaymentID != "" {
		query = query.Where("id_pagamento = ?", lookup.PaymentID)
	}
	if lookup.OrderID != "" {
		query = query.Where("id_pedido = ?", lookup.OrderID)
	}

	var record paymentRecord
	if err := query.Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domain.NewEntityError("find payment", err)
	}
	return record.toDomain(), nil
}

type txState int

const (
	statePrepared txState = iota
	stateOpen
	stateFinished
	stateClosed
)

type transaction struct {
	db    *gorm.DB
	tx    *gorm.DB
	state txState
}

func (t *transaction) Open(ctx context.Context) error {
	if t.state != statePrepared {
		return domain.NewEntityError("open transaction", fmt.Errorf("transaction already used"))
	}
	tx := t.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return domain.NewEntityError("open transaction", tx.Error)
	}
	t.tx = tx
	t.state = stateOpen
	return nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.state != stateOpen {
		return domain.NewEntityError("commit", domain.ErrTransactionNotOpen)
	}
	t.state = stateFinished
	if err := t.tx.Commit().Error; err != nil {
		return domain.NewEntityError("commit", err)
	}
	return nil
}

// Rollback is a no-op unless the transaction is open.
func (t *transaction) Rollback(ctx context.Context) error {
	if t.state != stateOpen {
		return nil
	}
	t.state = stateFinished
	if err := t.tx.Rollback().Error; err != nil {
		return domain.NewEntityError("rollback", err)
	}
	return nil
}

// Close releases the connection, discarding uncommitted writes.
func (t *transaction) Close(ctx context.Context) error {
	if t.state == stateClosed {
		return nil
	}
	var err error
	if t.state == stateOpen {
		if rbErr := t.tx.Rollback().Error; rbErr != nil {
			err = domain.NewEntityError("close transaction", rbErr)
		}
	}
	t.state = stateClosed
	return err
}

func (t *transaction) active(op string) (*gorm.DB, error) {
	if t.state != stateOpen {
		return nil, domain.NewEntityError(op, domain.ErrTransactionNotOpen)
	}
	return t.tx, nil
}

// SavePayment is a single INSERT .. ON CONFLICT (id_pedido) DO UPDATE, so two
// checkouts for one order cannot both insert.
func (t *transaction) SavePayment(ctx context.Context, payment *domain.Payment) (*domain.SavedPayment, error) {
	tx, err := t.active("save payment")
	if err != nil {
		return nil, err
	}

	record := newPaymentRecord(payment)
	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id_pedido"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(&record).Error
	if err != nil {
		return nil, domain.NewEntityError("save payment", err)
	}

	var stored paymentRecord
	if err := tx.WithContext(ctx).Where("id_pedido = ?", payment.OrderID).Take(&stored).Error; err != nil {
		return nil, domain.NewEntityError("save payment", err)
	}

	return &domain.SavedPayment{
		ID:         stored.ID,
		Status:     domain.PaymentStatus(stored.Status),
		PaymentID:  stored.PaymentID,
		TotalValue: stored.TotalValue,
	}, nil
}

func (t *transaction) UpdateStatusByOrderID(ctx context.Context, orderID string, status domain.PaymentStatus) (*domain.StatusUpdate, error) {
	tx, err := t.active("update payment status")
	if err != nil {
		return nil, err
	}

	res := tx.WithContext(ctx).
		Model(&paymentRecord{}).
		Where("id_pedido = ?", orderID).
		Update("status", string(status))
	if res.Error != nil {
		return nil, domain.NewEntityError("update payment status", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: orderId %s", domain.ErrPaymentNotFound, orderID)
	}

	var stored paymentRecord
	if err := tx.WithContext(ctx).Where("id_pedido = ?", orderID).Take(&stored).Error; err != nil {
		return nil, domain.NewEntityError("update payment status", err)
	}

	return &domain.StatusUpdate{
		PaymentID: stored.PaymentID,
		Status:    domain.PaymentStatus(stored.Status),
	}, nil
}

func (t *transaction) FindPayment(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error) {
	tx, err := t.active("find payment")
	if err != nil {
		return nil, err
	}
	return findPayment(ctx, tx, lookup)
}

func (t *transaction) RecordOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	tx, err := t.active("record outbox")
	if err != nil {
		return err
	}

	record := outboxRecord{
		ID:        msg.ID,
		QueueName: msg.QueueName,
		Payload:   msg.Payload,
		CreatedAt: msg.CreatedAt,
	}
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		return domain.NewEntityError("record outbox", err)
	}
	return nil
}
