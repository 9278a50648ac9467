package service

import (
	"fmt"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

// Gateway invoice events.
const (
	EventInvoiceCreated       = "invoice.created"
	EventInvoiceUpdated       = "invoice.updated"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventInvoiceCanceled      = "invoice.canceled"
)

var webhookStatuses = map[string]domain.PaymentStatus{
	EventInvoiceCreated:       domain.StatusPending,
	EventInvoiceUpdated:       domain.StatusProcessing,
	EventInvoicePaid:          domain.StatusConcluded,
	EventInvoicePaymentFailed: domain.StatusCanceled,
	EventInvoiceCanceled:      domain.StatusCanceled,
}

// ClassifyWebhook maps a gateway event to the order it refers to and the
// status it implies. The order id is returned as received.
func ClassifyWebhook(event domain.WebhookEvent) (domain.WebhookClassification, error) {
	status, ok := webhookStatuses[event.Type]
	if !ok {
		return domain.WebhookClassification{}, fmt.Errorf("%w: %s", domain.ErrUnrecognizedEventKind, event.Type)
	}
	return domain.WebhookClassification{
		OrderID: event.Data.Code,
		Status:  status,
	}, nil
}
