package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidOrderStatus    = errors.New("invalid order status")
	ErrMissingOrderID        = errors.New("cannot update payment status: orderId not found")
	ErrMissingStatus         = errors.New("cannot update payment status: status not found")
	ErrUnrecognizedEventKind = errors.New("unknown webhook type")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrGatewayFailure        = errors.New("payment gateway returned no instrument")
	ErrTransactionFailure    = errors.New("transaction failure")
	ErrTransactionNotOpen    = errors.New("transaction is not open")
	ErrEmptyLookup           = errors.New("payment lookup needs a paymentId or an orderId")
	ErrInvalidPayload        = errors.New("invalid message payload")
)

// EntityError wraps an underlying storage fault.
type EntityError struct {
	Op  string
	Err error
}

func NewEntityError(op string, err error) *EntityError {
	return &EntityError{Op: op, Err: err}
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

type FaultKind int

const (
	// FaultValidation covers business-rule and input violations.
	FaultValidation FaultKind = iota + 1
	// FaultNotFound is a payment lookup miss.
	FaultNotFound
	// FaultTransaction is a gateway, persistence or publish failure inside an open transaction.
	FaultTransaction
	// FaultUnexpected is anything outside the taxonomy.
	FaultUnexpected
)

func (k FaultKind) String() string {
	switch k {
	case FaultValidation:
		return "validation"
	case FaultNotFound:
		return "not_found"
	case FaultTransaction:
		return "transaction"
	case FaultUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("fault(%d)", int(k))
	}
}

// Fault is the only error type that leaves the PaymentService.
type Fault struct {
	Kind    FaultKind
	Op      string
	OrderID string
	Err     error
}

func NewFault(kind FaultKind, op, orderID string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, OrderID: orderID, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Err.Error()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Retryable reports whether redelivering the same input may succeed.
func (f *Fault) Retryable() bool {
	return f.Kind == FaultUnexpected
}

// ClientFault reports whether the caller is expected to correct the input.
func (f *Fault) ClientFault() bool {
	return !f.Retryable()
}

// AsFault returns the Fault in err's chain, lifting foreign errors to FaultUnexpected.
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: FaultUnexpected, Err: err}
}
