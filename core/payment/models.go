package payment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/elimu/core"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var hundred = decimal.NewFromInt(100)

// Payment is one checkout attempt for a paid course. It is terminal once it leaves StatusPending.
type Payment struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	CourseID        string          `json:"course_id"`
	Amount          decimal.Decimal `json:"amount"`
	AmountMinor     int64           `json:"amount_minor"`
	Currency        string          `json:"currency"`
	Receipt         string          `json:"receipt"`
	OrderRef        string          `json:"order_ref"`
	PaymentRef      *string         `json:"payment_ref"`
	Signature       *string         `json:"-"`
	Status          Status          `json:"status"`
	Notes           string          `json:"notes"`
	TransactionDate time.Time       `json:"transaction_date"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p Payment) IsFinal() bool {
	return p.Status != StatusPending
}

// Finalization is the terminal state a pending Payment moves to.
type Finalization struct {
	Status     Status
	PaymentRef *string
	Signature  *string
	UpdatedAt  time.Time
}

// Checkout is what a client needs to open the processor's payment widget.
type Checkout struct {
	OrderRef  string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	CourseID  string `json:"course_id"`
	KeyID     string `json:"key_id,omitempty"`
	PaymentID string `json:"payment_id"`
}

// Verification is the processor's callback payload for a completed checkout.
type Verification struct {
	OrderRef   string `json:"razorpay_order_id" validate:"required"`
	PaymentRef string `json:"razorpay_payment_id" validate:"required"`
	Signature  string `json:"razorpay_signature" validate:"required"`
}

func (v *Verification) Validate(validate *validator.Validate) error {
	v.OrderRef = core.CleanString(v.OrderRef)
	v.PaymentRef = core.CleanString(v.PaymentRef)
	v.Signature = core.CleanString(v.Signature)
	return validate.Struct(v)
}

// MinorUnits converts a price to the smallest currency unit, truncating sub-unit fractions.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Mul(hundred).IntPart()
}
