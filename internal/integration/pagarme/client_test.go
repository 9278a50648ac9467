package pagarme

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

var testOrder = domain.Order{
	OrderID:    "O1",
	Status:     domain.OrderStatusReceived,
	ClientID:   "C1",
	TotalValue: decimal.RequireFromString("55.40"),
}

func TestClient_GeneratePix(t *testing.T) {
	expiresAt := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	var received OrderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/core/v5/orders", r.URL.Path)

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OrderResponse{
			ID:     "or_123",
			Code:   "O1",
			Status: "pending",
			Charges: []Charge{{
				ID:     "ch_123",
				Status: "pending",
				LastTransaction: LastTransaction{
					QRCode:    "00020101021226",
					QRCodeURL: "https://api.pagar.me/qr/123.png",
					ExpiresAt: expiresAt,
				},
			}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", time.Hour)
	instrument, err := client.GeneratePix(context.Background(), testOrder)

	require.NoError(t, err)
	require.NotNil(t, instrument)
	assert.Equal(t, "Pix", instrument.PaymentMethod)
	assert.Equal(t, domain.StatusProcessing, instrument.Status)
	assert.Equal(t, "00020101021226", instrument.PixCode)
	assert.Equal(t, "https://api.pagar.me/qr/123.png", instrument.PixURL)
	assert.True(t, instrument.ExpirationDate.Equal(expiresAt))
	assert.True(t, instrument.TotalValue.Equal(testOrder.TotalValue))

	assert.Equal(t, "O1", received.Code)
	require.Len(t, received.Items, 1)
	assert.Equal(t, int64(5540), received.Items[0].Amount)
	require.Len(t, received.Payments, 1)
	assert.Equal(t, "pix", received.Payments[0].PaymentMethod)
	assert.Equal(t, int64(3600), received.Payments[0].Pix.ExpiresIn)
	require.NotNil(t, received.Customer)
	assert.Equal(t, "C1", received.Customer.Code)
}

func TestClient_GeneratePixDeclined(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unprocessable request", status: http.StatusUnprocessableEntity, body: `{"message":"invalid"}`},
		{name: "no charges", status: http.StatusOK, body: `{"id":"or_1","charges":[]}`},
		{name: "charge without qr code", status: http.StatusOK, body: `{"id":"or_1","charges":[{"id":"ch_1","status":"failed","last_transaction":{}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			instrument, err := NewClient(server.URL, "sk_test", 0).GeneratePix(context.Background(), testOrder)
			assert.NoError(t, err)
			assert.Nil(t, instrument)
		})
	}
}

func TestClient_GeneratePixServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	instrument, err := NewClient(server.URL, "sk_test", 0).GeneratePix(context.Background(), testOrder)
	assert.Error(t, err)
	assert.Nil(t, instrument)
}

func TestClient_GeneratePixHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, "sk_test", 0).GeneratePix(ctx, testOrder)
	assert.Error(t, err)
}

func TestSandboxGateway(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	gateway := &SandboxGateway{ExpiresIn: 24 * time.Hour, Now: func() time.Time { return now }}

	instrument, err := gateway.GeneratePix(context.Background(), testOrder)

	require.NoError(t, err)
	assert.Equal(t, "Pix", instrument.PaymentMethod)
	assert.Equal(t, domain.StatusProcessing, instrument.Status)
	assert.Equal(t, SandboxPixURL, instrument.PixURL)
	assert.Equal(t, SandboxPixCode, instrument.PixCode)
	assert.Equal(t, now.Add(24*time.Hour), instrument.ExpirationDate)
	assert.Equal(t, "C1", instrument.ClientID)
}

func TestClient_GeneratePixReusesIdempotencyKey(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", time.Hour)
	repriced := testOrder
	repriced.TotalValue = decimal.RequireFromString("60.00")

	for _, order := range []domain.Order{testOrder, testOrder, repriced} {
		_, err := client.GeneratePix(context.Background(), order)
		require.Error(t, err)
	}

	require.Len(t, keys, 3)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1], "a retried checkout sends the same key")
	assert.NotEqual(t, keys[0], keys[2], "a new amount is a new charge")
	assert.Equal(t, IdempotencyKey(testOrder), keys[0])
}
