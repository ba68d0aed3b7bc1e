package demo

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/elimu/core/payment"
)

const (
	orderPrefix     = "order_demo_"
	paymentPrefix   = "pay_demo_"
	signaturePrefix = "sig_demo_"

	// Notes is stored on payments taken while the demo processor is in use.
	Notes = "demo mode: no real payment was processed"
)

// Processor fabricates orders and accepts the signatures produced by Credentials.
// It lets a development setup run the complete checkout flow without a gateway account.
type Processor struct{}

var _ payment.Processor = Processor{}

func NewProcessor() Processor {
	return Processor{}
}

func (Processor) CreateOrder(_ context.Context, _ int64, _, _ string) (string, error) {
	return orderPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")[:14], nil
}

func (Processor) VerifySignature(_ context.Context, orderRef, paymentRef, signature string) (bool, error) {
	if !strings.HasPrefix(orderRef, orderPrefix) {
		return false, nil
	}
	wantPayment, wantSignature := Credentials(orderRef)
	return paymentRef == wantPayment && signature == wantSignature, nil
}

// Credentials returns the payment reference and signature a demo checkout of orderRef completes with.
func Credentials(orderRef string) (paymentRef, signature string) {
	suffix := strings.TrimPrefix(orderRef, orderPrefix)
	return paymentPrefix + suffix, signaturePrefix + suffix
}
