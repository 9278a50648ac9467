package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

type mockPaymentService struct {
	createCheckoutFunc     func(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error)
	applyWebhookUpdateFunc func(ctx context.Context, event domain.WebhookEvent) (*domain.StatusUpdate, error)
	getCheckoutFunc        func(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error)
}

func (m *mockPaymentService) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	return m.createCheckoutFunc(ctx, req)
}

func (m *mockPaymentService) ApplyWebhookUpdate(ctx context.Context, event domain.WebhookEvent) (*domain.StatusUpdate, error) {
	return m.applyWebhookUpdateFunc(ctx, event)
}

func (m *mockPaymentService) GetCheckout(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error) {
	return m.getCheckoutFunc(ctx, lookup)
}

func newContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(method, target, bytes.NewBuffer(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("corpo de erro inválido: %v", err)
	}
	return resp["errors"]
}

func TestPaymentHandler_CreateCheckout(t *testing.T) {
	var got domain.CheckoutRequest
	svc := &mockPaymentService{
		createCheckoutFunc: func(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
			got = req
			return &domain.CheckoutResult{OrderID: req.Order.OrderID, Status: domain.StatusProcessing, PaymentID: "P1"}, nil
		},
	}

	h := NewPaymentHandler(svc, "")

	body := []byte(`{"order":{"orderId":"O1","status":"Recebido","totalValue":55.40},"paymentMethod":"PIX"}`)
	c, w := newContext("POST", "/v1/checkout", body)

	h.CreateCheckout(c)

	if w.Code != http.StatusCreated {
		t.Errorf("esperava status 201, obteve %d", w.Code)
	}
	if !got.Order.TotalValue.Equal(decimal.RequireFromString("55.40")) {
		t.Errorf("esperava valor 55.40, obteve %s", got.Order.TotalValue)
	}

	var resp domain.CheckoutResult
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp != (domain.CheckoutResult{OrderID: "O1", Status: domain.StatusProcessing, PaymentID: "P1"}) {
		t.Errorf("resposta inesperada: %+v", resp)
	}
}

func TestPaymentHandler_CreateCheckoutFaults(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validação", err: domain.NewFault(domain.FaultValidation, "checkout.create", "O1", domain.ErrInvalidPaymentMethod), want: http.StatusBadRequest},
		{name: "transação", err: domain.NewFault(domain.FaultTransaction, "checkout.create", "O1", domain.ErrGatewayFailure), want: http.StatusBadRequest},
		{name: "inesperado", err: domain.NewFault(domain.FaultUnexpected, "checkout.create", "O1", errors.New("db down")), want: http.StatusInternalServerError},
		{name: "erro sem classificação", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPaymentService{
				createCheckoutFunc: func(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
					return nil, tt.err
				},
			}
			c, w := newContext("POST", "/v1/checkout", []byte(`{"order":{"orderId":"O1"},"paymentMethod":"card"}`))

			NewPaymentHandler(svc, "").CreateCheckout(c)

			if w.Code != tt.want {
				t.Errorf("esperava status %d, obteve %d", tt.want, w.Code)
			}
			if errorBody(t, w) != tt.err.Error() {
				t.Errorf("esperava mensagem %q, obteve %q", tt.err.Error(), errorBody(t, w))
			}
		})
	}
}

func TestPaymentHandler_CreateCheckoutInvalidBody(t *testing.T) {
	h := NewPaymentHandler(&mockPaymentService{}, "")
	c, w := newContext("POST", "/v1/checkout", []byte(`{`))

	h.CreateCheckout(c)

	if w.Code != http.StatusBadRequest {
		t.Errorf("esperava status 400, obteve %d", w.Code)
	}
}

func TestPaymentHandler_GetCheckout(t *testing.T) {
	svc := &mockPaymentService{
		getCheckoutFunc: func(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error) {
			if lookup.OrderID == "O1" && lookup.PaymentID == "P1" {
				return &domain.Payment{PaymentID: "P1", OrderID: "O1", Status: domain.StatusPending}, nil
			}
			return nil, domain.NewFault(domain.FaultNotFound, "checkout.get", lookup.OrderID, domain.ErrPaymentNotFound)
		},
	}
	h := NewPaymentHandler(svc, "")

	t.Run("encontrado", func(t *testing.T) {
		c, w := newContext("GET", "/v1/checkout?orderId=O1&paymentId=P1", nil)
		h.GetCheckout(c)

		if w.Code != http.StatusOK {
			t.Errorf("esperava status 200, obteve %d", w.Code)
		}
		var resp domain.Payment
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.PaymentID != "P1" {
			t.Errorf("esperava paymentId P1, obteve %s", resp.PaymentID)
		}
	})

	t.Run("não encontrado", func(t *testing.T) {
		c, w := newContext("GET", "/v1/checkout?orderId=O2", nil)
		h.GetCheckout(c)

		if w.Code != http.StatusNotFound {
			t.Errorf("esperava status 404, obteve %d", w.Code)
		}
	})
}

func TestPaymentHandler_HandleWebhook(t *testing.T) {
	var got domain.WebhookEvent
	svc := &mockPaymentService{
		applyWebhookUpdateFunc: func(ctx context.Context, event domain.WebhookEvent) (*domain.StatusUpdate, error) {
			got = event
			return &domain.StatusUpdate{PaymentID: "P1", Status: domain.StatusConcluded}, nil
		},
	}

	h := NewPaymentHandler(svc, "")

	c, w := newContext("POST", "/v1/checkout/webhook", []byte(`{"type":"invoice.paid","data":{"code":"O1"}}`))

	h.HandleWebhook(c)

	if w.Code != http.StatusCreated {
		t.Errorf("esperava status 201, obteve %d", w.Code)
	}
	if got.Type != "invoice.paid" || got.Data.Code != "O1" {
		t.Errorf("evento inesperado: %+v", got)
	}

	var resp domain.StatusUpdate
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp != (domain.StatusUpdate{PaymentID: "P1", Status: domain.StatusConcluded}) {
		t.Errorf("resposta inesperada: %+v", resp)
	}
}

func TestPaymentHandler_HandleWebhookSignature(t *testing.T) {
	body := []byte(`{"type":"invoice.paid","data":{"code":"O1"}}`)
	svc := &mockPaymentService{
		applyWebhookUpdateFunc: func(ctx context.Context, event domain.WebhookEvent) (*domain.StatusUpdate, error) {
			return &domain.StatusUpdate{PaymentID: "P1", Status: domain.StatusConcluded}, nil
		},
	}
	h := NewPaymentHandler(svc, "segredo")

	tests := []struct {
		name      string
		signature string
		want      int
	}{
		{name: "assinatura válida", signature: Sign("segredo", body), want: http.StatusCreated},
		{name: "assinatura de outro segredo", signature: Sign("outro", body), want: http.StatusUnauthorized},
		{name: "sem assinatura", signature: "", want: http.StatusUnauthorized},
		{name: "formato inválido", signature: "md5=abc", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newContext("POST", "/v1/checkout/webhook", body)
			if tt.signature != "" {
				c.Request.Header.Set(SignatureHeader, tt.signature)
			}

			h.HandleWebhook(c)

			if w.Code != tt.want {
				t.Errorf("esperava status %d, obteve %d", tt.want, w.Code)
			}
		})
	}
}

func TestPaymentHandler_HandleWebhookFaults(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "tipo desconhecido", err: domain.NewFault(domain.FaultValidation, "checkout.webhook", "", domain.ErrUnrecognizedEventKind), want: http.StatusBadRequest},
		{name: "pagamento inexistente", err: domain.NewFault(domain.FaultNotFound, "checkout.webhook", "O404", domain.ErrPaymentNotFound), want: http.StatusNotFound},
		{name: "falha ao publicar", err: domain.NewFault(domain.FaultTransaction, "checkout.webhook", "O1", errors.New("nats down")), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPaymentService{
				applyWebhookUpdateFunc: func(ctx context.Context, event domain.WebhookEvent) (*domain.StatusUpdate, error) {
					return nil, tt.err
				},
			}
			c, w := newContext("POST", "/v1/checkout/webhook", []byte(`{"type":"invoice.paid","data":{"code":"O1"}}`))

			NewPaymentHandler(svc, "").HandleWebhook(c)

			if w.Code != tt.want {
				t.Errorf("esperava status %d, obteve %d", tt.want, w.Code)
			}
		})
	}

	t.Run("corpo inválido", func(t *testing.T) {
		c, w := newContext("POST", "/v1/checkout/webhook", []byte(`not json`))
		NewPaymentHandler(&mockPaymentService{}, "").HandleWebhook(c)

		if w.Code != http.StatusBadRequest {
			t.Errorf("esperava status 400, obteve %d", w.Code)
		}
	})
}
