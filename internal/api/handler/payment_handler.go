package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/logger"
)

const SignatureHeader = "X-Hub-Signature"

type PaymentService interface {
	CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error)
	ApplyWebhookUpdate(ctx context.Context, event domain.WebhookEvent) (*domain.StatusUpdate, error)
	GetCheckout(ctx context.Context, lookup domain.PaymentLookup) (*domain.Payment, error)
}

type PaymentHandler struct {
	service       PaymentService
	webhookSecret string
}

func NewPaymentHandler(service PaymentService, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		service:       service,
		webhookSecret: webhookSecret,
	}
}

// StatusCode maps a fault to the HTTP status returned to the caller.
func StatusCode(err error) int {
	switch domain.AsFault(err).Kind {
	case domain.FaultValidation, domain.FaultTransaction:
		return http.StatusBadRequest
	case domain.FaultNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func abortWithFault(c *gin.Context, err error) {
	c.JSON(StatusCode(err), gin.H{"errors": err.Error()})
}

// CreateCheckout godoc
// @Summary      Criar checkout PIX
// @Description  Gera a cobrança PIX de um pedido recebido
// @Tags         checkout
// @Accept       json
// @Produce      json
// @Param        request  body      domain.CheckoutRequest  true  "Pedido e forma de pagamento"
// @Success      201      {object}  domain.CheckoutResult
// @Failure      400      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /checkout [post]
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	var req domain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	result, err := h.service.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		abortWithFault(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetCheckout godoc
// @Summary      Consultar checkout
// @Tags         checkout
// @Produce      json
// @Param        orderId    query     string  false  "ID do pedido"
// @Param        paymentId  query     string  false  "ID do pagamento"
// @Success      200        {object}  domain.Payment
// @Failure      400        {object}  map[string]string
// @Failure      404        {object}  map[string]string
// @Router       /checkout [get]
func (h *PaymentHandler) GetCheckout(c *gin.Context) {
	var lookup domain.PaymentLookup
	if err := c.ShouldBindQuery(&lookup); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	payment, err := h.service.GetCheckout(c.Request.Context(), lookup)
	if err != nil {
		abortWithFault(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// HandleWebhook godoc
// @Summary      Receber notificação do gateway
// @Description  Atualiza o status do pagamento e avisa a cozinha
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        X-Hub-Signature  header    string               false  "sha256=<hmac do corpo>"
// @Param        event            body      domain.WebhookEvent  true   "Evento do gateway"
// @Success      201      {object}  domain.StatusUpdate
// @Failure      400      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /checkout/webhook [post]
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	// Validação de Segurança do Webhook
	if !h.validateSignature(c.GetHeader(SignatureHeader), body) {
		logger.Warn("invalid webhook signature detected",
			zap.String("signature", c.GetHeader(SignatureHeader)),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"errors": "invalid signature"})
		return
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errors.Join(domain.ErrInvalidPayload, err).Error()})
		return
	}

	update, err := h.service.ApplyWebhookUpdate(c.Request.Context(), event)
	if err != nil {
		abortWithFault(c, err)
		return
	}

	c.JSON(http.StatusCreated, update)
}

func (h *PaymentHandler) validateSignature(header string, body []byte) bool {
	if h.webhookSecret == "" {
		return true
	}

	if !strings.HasPrefix(header, "sha256=") {
		return false
	}

	expected := Sign(h.webhookSecret, body)
	return hmac.Equal([]byte(strings.ToLower(header)), []byte(expected))
}

// Sign returns the X-Hub-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
