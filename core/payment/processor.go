package payment

import "context"

// Processor is the external payment gateway.
type Processor interface {
	// CreateOrder registers an order of amountMinor in currency and returns the processor's order reference.
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error)
	// VerifySignature reports whether signature authenticates paymentRef for orderRef.
	// An error means the check itself could not be performed.
	VerifySignature(ctx context.Context, orderRef, paymentRef, signature string) (bool, error)
}

// ProcessorError is returned when the payment processor could not be reached or refused a request.
type ProcessorError struct {
	Op  string
	Err error
}

func (e *ProcessorError) Error() string {
	return "payment processor: " + e.Op + ": " + e.Err.Error()
}

func (e *ProcessorError) Unwrap() error { return e.Err }
