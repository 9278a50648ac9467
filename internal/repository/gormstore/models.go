package gormstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

type paymentRecord struct {
	ID             uint            `gorm:"column:id;primaryKey;autoIncrement"`
	PaymentID      string          `gorm:"column:id_pagamento;size:36;uniqueIndex;not null"`
	TotalValue     decimal.Decimal `gorm:"column:valor_total;type:decimal(10,2);not null"`
	PaymentMethod  string          `gorm:"column:forma_pagamento;not null"`
	Status         string          `gorm:"column:status;not null"`
	PixURL         string          `gorm:"column:pix_url;not null"`
	PixCode        string          `gorm:"column:pix_code;not null"`
	ExpirationDate time.Time       `gorm:"column:validade"`
	ClientID       string          `gorm:"column:id_cliente;not null"`
	OrderID        string          `gorm:"column:id_pedido;uniqueIndex;not null"`
	CreatedAt      time.Time       `gorm:"column:data_cadastro;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:data_atualizacao;autoUpdateTime"`
}

func (paymentRecord) TableName() string {
	return "pagamentos"
}

// upsertColumns are overwritten when a checkout is repeated for an order.
// id and id_pagamento are kept.
var upsertColumns = []string{
	"valor_total",
	"forma_pagamento",
	"status",
	"pix_url",
	"pix_code",
	"validade",
	"id_cliente",
	"data_atualizacao",
}

func newPaymentRecord(p *domain.Payment) paymentRecord {
	return paymentRecord{
		PaymentID:      p.PaymentID,
		TotalValue:     p.TotalValue,
		PaymentMethod:  p.PaymentMethod,
		Status:         string(p.Status),
		PixURL:         p.PixURL,
		PixCode:        p.PixCode,
		ExpirationDate: p.ExpirationDate,
		ClientID:       p.ClientID,
		OrderID:        p.OrderID,
	}
}

func (r paymentRecord) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:             r.ID,
		PaymentID:      r.PaymentID,
		OrderID:        r.OrderID,
		TotalValue:     r.TotalValue,
		PaymentMethod:  r.PaymentMethod,
		Status:         domain.PaymentStatus(r.Status),
		PixURL:         r.PixURL,
		PixCode:        r.PixCode,
		ExpirationDate: r.ExpirationDate,
		ClientID:       r.ClientID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type outboxRecord struct {
	ID          string     `gorm:"column:id;primaryKey;size:36"`
	QueueName   string     `gorm:"column:queue_name;not null"`
	Payload     []byte     `gorm:"column:payload;not null"`
	Published   bool       `gorm:"column:published;not null;index"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	PublishedAt *time.Time `gorm:"column:published_at"`
}

func (outboxRecord) TableName() string {
	return "kitchen_outbox"
}
