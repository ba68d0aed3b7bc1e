package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/payment"
)

const paymentColumns = `id, user_id, course_id, amount, amount_minor, currency, receipt, order_ref, payment_ref,
	signature, status, notes, transaction_date, updated_at`

type paymentRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	CourseID        string          `db:"course_id"`
	Amount          decimal.Decimal `db:"amount"`
	AmountMinor     int64           `db:"amount_minor"`
	Currency        string          `db:"currency"`
	Receipt         string          `db:"receipt"`
	OrderRef        string          `db:"order_ref"`
	PaymentRef      null.String     `db:"payment_ref"`
	Signature       null.String     `db:"signature"`
	Status          string          `db:"status"`
	Notes           string          `db:"notes"`
	TransactionDate time.Time       `db:"transaction_date"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func newPaymentRow(p payment.Payment) paymentRow {
	return paymentRow{
		ID:              p.ID,
		UserID:          p.UserID,
		CourseID:        p.CourseID,
		Amount:          p.Amount,
		AmountMinor:     p.AmountMinor,
		Currency:        p.Currency,
		Receipt:         p.Receipt,
		OrderRef:        p.OrderRef,
		PaymentRef:      null.StringFromPtr(p.PaymentRef),
		Signature:       null.StringFromPtr(p.Signature),
		Status:          string(p.Status),
		Notes:           p.Notes,
		TransactionDate: p.TransactionDate,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (r paymentRow) toPayment() payment.Payment {
	return payment.Payment{
		ID:              r.ID,
		UserID:          r.UserID,
		CourseID:        r.CourseID,
		Amount:          r.Amount,
		AmountMinor:     r.AmountMinor,
		Currency:        r.Currency,
		Receipt:         r.Receipt,
		OrderRef:        r.OrderRef,
		PaymentRef:      r.PaymentRef.Ptr(),
		Signature:       r.Signature.Ptr(),
		Status:          payment.Status(r.Status),
		Notes:           r.Notes,
		TransactionDate: r.TransactionDate.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *sqlx.DB) payment.Repository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	q := `INSERT INTO payments (` + paymentColumns + `)
		VALUES (:id, :user_id, :course_id, :amount, :amount_minor, :currency, :receipt, :order_ref, :payment_ref,
			:signature, :status, :notes, :transaction_date, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, newPaymentRow(p)); err != nil {
		return payment.Payment{}, errors.Wrap(trapErr(err, payment.ErrUnknownOrder), "inserting payment")
	}
	return p, nil
}

func (repo *paymentRepository) GetPaymentByOrderRef(ctx context.Context, orderRef string) (payment.Payment, error) {
	var row paymentRow
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE order_ref = $1`
	if err := sqlx.GetContext(ctx, repo.db, &row, q, orderRef); err != nil {
		return payment.Payment{}, trapErr(err, payment.ErrUnknownOrder)
	}
	return row.toPayment(), nil
}

func (repo *paymentRepository) FinalizePayment(
	ctx context.Context,
	orderRef string,
	fin payment.Finalization,
	exec ...core.DBExecutor,
) (payment.Payment, error) {
	db, err := getExec(repo.db, exec)
	if err != nil {
		return payment.Payment{}, err
	}

	q := `UPDATE payments
		SET status = $2, payment_ref = COALESCE($3, payment_ref), signature = COALESCE($4, signature), updated_at = $5
		WHERE order_ref = $1 AND status = 'pending'
		RETURNING ` + paymentColumns

	var row paymentRow
	err = sqlx.GetContext(ctx, db, &row, q,
		orderRef, string(fin.Status), null.StringFromPtr(fin.PaymentRef), null.StringFromPtr(fin.Signature), fin.UpdatedAt,
	)
	if err == nil {
		return row.toPayment(), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return payment.Payment{}, errors.Wrap(err, "finalizing payment")
	}

	// nothing updated: either the order does not exist or it is no longer pending
	if _, err = repo.GetPaymentByOrderRef(ctx, orderRef); err != nil {
		return payment.Payment{}, err
	}
	return payment.Payment{}, payment.ErrAlreadyFinalized
}

func (repo *paymentRepository) QueryPayments(ctx context.Context, userID string) ([]payment.Payment, error) {
	var rows []paymentRow
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY transaction_date DESC`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, userID); err != nil {
		if trapErr(err, payment.ErrUnknownOrder) == payment.ErrUnknownOrder {
			return []payment.Payment{}, nil
		}
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.toPayment())
	}
	return payments, nil
}
