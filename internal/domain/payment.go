package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "Pendente"
	StatusProcessing PaymentStatus = "Processando"
	StatusConcluded  PaymentStatus = "Concluido"
	StatusCanceled   PaymentStatus = "Cancelado"
)

// Terminal reports whether no further lifecycle events are expected.
func (s PaymentStatus) Terminal() bool {
	return s == StatusConcluded || s == StatusCanceled
}

// PaymentMethodPix is the only payment method accepted at checkout.
const PaymentMethodPix = "pix"

// OrderStatusReceived is the order status eligible for payment creation.
const OrderStatusReceived = "Recebido"

type Payment struct {
	ID             uint            `json:"id"`
	PaymentID      string          `json:"paymentId"`
	OrderID        string          `json:"orderId"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	PaymentMethod  string          `json:"paymentMethod"`
	Status         PaymentStatus   `json:"status"`
	PixURL         string          `json:"pixUrl"`
	PixCode        string          `json:"pixCode"`
	ExpirationDate time.Time       `json:"expirationDate"`
	ClientID       string          `json:"clientId,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Order is owned by the ordering system and only read here.
type Order struct {
	OrderID    string          `json:"orderId"`
	Status     string          `json:"status"`
	ClientID   string          `json:"clientId,omitempty"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

type CheckoutRequest struct {
	Order         Order  `json:"order"`
	PaymentMethod string `json:"paymentMethod"`
}

// PixInstrument is what the gateway hands back for a PIX charge.
type PixInstrument struct {
	PaymentMethod  string
	Status         PaymentStatus
	PixURL         string
	PixCode        string
	TotalValue     decimal.Decimal
	ClientID       string
	ExpirationDate time.Time
}

type CheckoutResult struct {
	OrderID   string        `json:"orderId"`
	Status    PaymentStatus `json:"status"`
	PaymentID string        `json:"paymentId"`
}

// SavedPayment is the summary returned by an upsert.
type SavedPayment struct {
	ID         uint            `json:"id"`
	Status     PaymentStatus   `json:"status"`
	PaymentID  string          `json:"paymentId"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// StatusUpdate is both the webhook result and the kitchen message body.
type StatusUpdate struct {
	PaymentID string        `json:"paymentId"`
	Status    PaymentStatus `json:"status"`
}

// PaymentLookup matches every non-empty field.
type PaymentLookup struct {
	PaymentID string `json:"paymentId" form:"paymentId"`
	OrderID   string `json:"orderId" form:"orderId"`
}

func (l PaymentLookup) Empty() bool {
	return l.PaymentID == "" && l.OrderID == ""
}

type WebhookEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	CreatedAt string      `json:"created_at"`
	Data      WebhookData `json:"data"`
}

type WebhookData struct {
	ID       string          `json:"id"`
	Code     string          `json:"code"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type WebhookClassification struct {
	OrderID string
	Status  PaymentStatus
}

type PaymentStatusChangedEvent struct {
	PaymentID   string        `json:"payment_id"`
	OrderID     string        `json:"order_id"`
	Status      PaymentStatus `json:"status"`
	ProcessedAt time.Time     `json:"processed_at"`
}
