package pagarme

import (
	"context"
	"time"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

const (
	SandboxPixURL  = "https://example.com/pix"
	SandboxPixCode = "1234567890"
)

// SandboxGateway issues a fixed PIX instrument without calling Pagar.me.
type SandboxGateway struct {
	ExpiresIn time.Duration
	Now       func() time.Time
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{ExpiresIn: 24 * time.Hour, Now: time.Now}
}

func (g *SandboxGateway) GeneratePix(ctx context.Context, order domain.Order) (*domain.PixInstrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &domain.PixInstrument{
		PaymentMethod:  "Pix",
		Status:         domain.StatusProcessing,
		PixURL:         SandboxPixURL,
		PixCode:        SandboxPixCode,
		TotalValue:     order.TotalValue,
		ClientID:       order.ClientID,
		ExpirationDate: g.Now().Add(g.ExpiresIn),
	}, nil
}
