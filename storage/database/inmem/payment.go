package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/payment"
)

type paymentRepository struct {
	db *paymentTable
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db.payment}
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[p.OrderRef]; ok {
		return payment.Payment{}, core.ErrConflict
	}
	repo.db.table[p.OrderRef] = &p
	return p, nil
}

func (repo *paymentRepository) GetPaymentByOrderRef(_ context.Context, orderRef string) (payment.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.table[orderRef]; ok {
		return *p, nil
	}
	return payment.Payment{}, payment.ErrUnknownOrder
}

func (repo *paymentRepository) FinalizePayment(
	_ context.Context,
	orderRef string,
	fin payment.Finalization,
	exec ...core.DBExecutor,
) (payment.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.table[orderRef]
	if !ok {
		return payment.Payment{}, payment.ErrUnknownOrder
	}
	if p.Status != payment.StatusPending {
		return payment.Payment{}, payment.ErrAlreadyFinalized
	}
	if tx := txFrom(exec); tx != nil {
		prev := *p
		tx.onRollback(func() {
			repo.db.mutex.Lock()
			defer repo.db.mutex.Unlock()
			*p = prev
		})
	}
	p.Status = fin.Status
	if fin.PaymentRef != nil {
		p.PaymentRef = fin.PaymentRef
	}
	if fin.Signature != nil {
		p.Signature = fin.Signature
	}
	p.UpdatedAt = fin.UpdatedAt
	return *p, nil
}

func (repo *paymentRepository) QueryPayments(_ context.Context, userID string) ([]payment.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	payments := make([]payment.Payment, 0)
	for _, p := range repo.db.table {
		if p.UserID == userID {
			payments = append(payments, *p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].TransactionDate.After(payments[j].TransactionDate) })
	return payments, nil
}
