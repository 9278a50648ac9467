package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFault_Retryable(t *testing.T) {
	tests := []struct {
		kind      FaultKind
		retryable bool
		name      string
	}{
		{kind: FaultValidation, retryable: false, name: "validation"},
		{kind: FaultNotFound, retryable: false, name: "not_found"},
		{kind: FaultTransaction, retryable: false, name: "transaction"},
		{kind: FaultUnexpected, retryable: true, name: "unexpected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFault(tt.kind, "op", "O1", errors.New("x"))
			assert.Equal(t, tt.retryable, f.Retryable())
			assert.Equal(t, !tt.retryable, f.ClientFault())
			assert.Equal(t, tt.name, tt.kind.String())
		})
	}
}

func TestAsFault(t *testing.T) {
	assert.Nil(t, AsFault(nil))

	inner := NewFault(FaultNotFound, "checkout.webhook", "O1", ErrPaymentNotFound)
	wrapped := fmt.Errorf("handler: %w", inner)
	assert.Same(t, inner, AsFault(wrapped))
	assert.ErrorIs(t, wrapped, ErrPaymentNotFound)

	plain := errors.New("connection reset")
	lifted := AsFault(plain)
	assert.Equal(t, FaultUnexpected, lifted.Kind)
	assert.ErrorIs(t, lifted, plain)
}

func TestEntityError(t *testing.T) {
	err := NewEntityError("save payment", ErrTransactionNotOpen)
	assert.EqualError(t, err, "save payment: transaction is not open")
	assert.ErrorIs(t, err, ErrTransactionNotOpen)
}

func TestPaymentStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusConcluded.Terminal())
	assert.True(t, StatusCanceled.Terminal())
}

func TestPaymentLookup_Empty(t *testing.T) {
	assert.True(t, PaymentLookup{}.Empty())
	assert.False(t, PaymentLookup{OrderID: "O1"}.Empty())
	assert.False(t, PaymentLookup{PaymentID: "P1"}.Empty())
}
