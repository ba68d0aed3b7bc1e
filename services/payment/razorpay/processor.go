package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/payment"
)

var errMissingSecret = errors.New("razorpay key secret is not configured")

type (
	orderRequest struct {
		Amount         int64  `json:"amount"`
		Currency       string `json:"currency"`
		Receipt        string `json:"receipt,omitempty"`
		PaymentCapture int    `json:"payment_capture"`
	}

	orderResponse struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
	}

	errorResponse struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
)

// Processor talks to the Razorpay Orders API and checks checkout signatures.
type Processor struct {
	client    *resty.Client
	keySecret string
}

var _ payment.Processor = (*Processor)(nil)

func NewProcessor(conf core.PaymentConfig) *Processor {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(conf.BaseURL).
		SetBasicAuth(conf.KeyID, conf.KeySecret).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Processor{client: client, keySecret: conf.KeySecret}
}

// CreateOrder creates an auto-captured order and returns its id.
func (p *Processor) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	var order orderResponse
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(orderRequest{Amount: amountMinor, Currency: currency, Receipt: receipt, PaymentCapture: 1}).
		SetResult(&order).
		SetError(&apiErr).
		Post("/orders")
	if err != nil {
		return "", errors.Wrap(err, "requesting order")
	}
	if resp.IsError() {
		return "", errors.Errorf("creating order: %d %s: %s", resp.StatusCode(), apiErr.Error.Code, apiErr.Error.Description)
	}
	if order.ID == "" {
		return "", errors.New("creating order: empty order id")
	}
	return order.ID, nil
}

// VerifySignature checks that signature is the hex HMAC-SHA256 of "orderRef|paymentRef" under the key secret.
func (p *Processor) VerifySignature(_ context.Context, orderRef, paymentRef, signature string) (bool, error) {
	if p.keySecret == "" {
		return false, errMissingSecret
	}
	return hmac.Equal([]byte(Sign(p.keySecret, orderRef, paymentRef)), []byte(signature)), nil
}

// Sign computes the checkout signature Razorpay sends back for a paid order.
func Sign(keySecret, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}
