package pagarme

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/logger"
)

const DefaultBaseURL = "https://api.pagar.me"

type Client struct {
	httpClient *resty.Client
	baseURL    string
	secretKey  string
	expiresIn  time.Duration
	now        func() time.Time
}

func NewClient(baseURL, secretKey string, expiresIn time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	return &Client{
		httpClient: resty.New(),
		baseURL:    baseURL,
		secretKey:  secretKey,
		expiresIn:  expiresIn,
		now:        time.Now,
	}
}

type OrderRequest struct {
	Code     string    `json:"code"`
	Closed   bool      `json:"closed"`
	Items    []Item    `json:"items"`
	Customer *Customer `json:"customer,omitempty"`
	Payments []Payment `json:"payments"`
}

type Item struct {
	Code        string `json:"code"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type Customer struct {
	Code string `json:"code"`
}

type Payment struct {
	PaymentMethod string    `json:"payment_method"`
	Pix           PixConfig `json:"pix"`
}

type PixConfig struct {
	ExpiresIn int64 `json:"expires_in"`
}

type OrderResponse struct {
	ID      string   `json:"id"`
	Code    string   `json:"code"`
	Amount  int64    `json:"amount"`
	Status  string   `json:"status"`
	Charges []Charge `json:"charges"`
}

type Charge struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	LastTransaction LastTransaction `json:"last_transaction"`
}

type LastTransaction struct {
	QRCode    string    `json:"qr_code"`
	QRCodeURL string    `json:"qr_code_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GeneratePix creates a closed PIX order for the checkout. A declined request
// or a response without a QR code yields nil, nil; transport failures and 5xx
// answers are returned as errors.
func (c *Client) GeneratePix(ctx context.Context, order domain.Order) (*domain.PixInstrument, error) {
	url := fmt.Sprintf("%s/core/v5/orders", c.baseURL)

	orderReq := OrderRequest{
		Code:   order.OrderID,
		Closed: true,
		Items: []Item{
			{
				Code:        order.OrderID,
				Amount:      toCents(order.TotalValue),
				Description: "Pedido " + order.OrderID,
				Quantity:    1,
			},
		},
		Payments: []Payment{
			{
				PaymentMethod: "pix",
				Pix:           PixConfig{ExpiresIn: int64(c.expiresIn.Seconds())},
			},
		},
	}
	if order.ClientID != "" {
		orderReq.Customer = &Customer{Code: order.ClientID}
	}

	var orderResp OrderResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBasicAuth(c.secretKey, "").
		SetHeader("Idempotency-Key", IdempotencyKey(order)).
		SetBody(orderReq).
		SetResult(&orderResp).
		Post(url)

	if err != nil {
		return nil, err
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("pagarme api error: status %d: %s", resp.StatusCode(), resp.String())
	}

	if resp.IsError() {
		logger.Warn("pagarme declined pix charge",
			zap.String("order_id", order.OrderID),
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, nil
	}

	if len(orderResp.Charges) == 0 || orderResp.Charges[0].LastTransaction.QRCode == "" {
		logger.Warn("pagarme returned no pix qr code", zap.String("order_id", order.OrderID))
		return nil, nil
	}

	tx := orderResp.Charges[0].LastTransaction
	expiration := tx.ExpiresAt
	if expiration.IsZero() {
		expiration = c.now().Add(c.expiresIn)
	}

	return &domain.PixInstrument{
		PaymentMethod:  "Pix",
		Status:         domain.StatusProcessing,
		PixURL:         tx.QRCodeURL,
		PixCode:        tx.QRCode,
		TotalValue:     order.TotalValue,
		ClientID:       order.ClientID,
		ExpirationDate: expiration,
	}, nil
}

func toCents(v decimal.Decimal) int64 {
	return v.Shift(2).Round(0).IntPart()
}

// IdempotencyKey is stable for an order and amount, so a redelivered checkout
// replays the charge Pagar.me already created instead of opening another.
func IdempotencyKey(order domain.Order) string {
	name := order.OrderID + ":" + order.TotalValue.StringFixed(2)
	return "checkout-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
