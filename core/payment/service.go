package payment

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/user"
)

var (
	// errors
	ErrUnknownOrder     = errors.New("unknown order")
	ErrAlreadyFinalized = errors.New("payment already finalized")
	ErrSignatureInvalid = errors.New("invalid payment signature")
	ErrFreeCourse       = errors.New("course is free, enroll directly")
)

type (
	Repository interface {
		// CreatePayment returns core.ErrConflict when the order reference is already recorded.
		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		// GetPaymentByOrderRef returns ErrUnknownOrder when no payment has this order reference.
		GetPaymentByOrderRef(ctx context.Context, orderRef string) (Payment, error)
		// FinalizePayment atomically moves a pending payment to fin.Status.
		// It returns ErrAlreadyFinalized when the payment is no longer pending.
		FinalizePayment(ctx context.Context, orderRef string, fin Finalization, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, userID string) ([]Payment, error)
	}

	// Catalog is the part of catalog.Service the gate reads from.
	Catalog interface {
		GetCourse(ctx context.Context, id string) (catalog.Course, error)
		GetActiveCourse(ctx context.Context, id string) (catalog.Course, error)
	}

	// Ledger is the part of enrollment.Service the gate writes to.
	Ledger interface {
		Enroll(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error)
		Get(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error)
	}

	// Users looks up receipt recipients.
	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		InitiateCheckout(ctx context.Context, userID, courseID string) (Checkout, error)
		// Verify authenticates a processor callback, finalizes the payment and enrolls its user.
		Verify(ctx context.Context, orderRef, paymentRef, signature string) (enrollment.Enrollment, error)
		ListForUser(ctx context.Context, userID string) ([]Payment, error)
	}

	ServiceDeps struct {
		Repo      Repository
		DB        core.DB // completes a payment and its enrollment in one transaction
		Processor Processor
		Catalog   Catalog
		Ledger    Ledger
		Clock     core.Clock
		Logger    core.Logger
		Users     Users             // optional: receipts are skipped without it
		MailSvc   core.EmailService // optional: receipts are skipped without it
	}

	Options struct {
		Currency string
		KeyID    string // public key handed to clients with each Checkout
		Notes    string // stored on every new Payment
	}

	service struct {
		ServiceDeps
		opts Options
	}
)

var _ Service = (*service)(nil)

func NewService(deps ServiceDeps, opts Options) Service {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	return &service{ServiceDeps: deps, opts: opts}
}

func (svc *service) InitiateCheckout(ctx context.Context, userID, courseID string) (Checkout, error) {
	course, err := svc.Catalog.GetActiveCourse(ctx, courseID)
	if err != nil {
		return Checkout{}, err
	}
	if course.IsFree() {
		return Checkout{}, ErrFreeCourse
	}
	if _, err = svc.Ledger.Get(ctx, userID, courseID); err == nil {
		return Checkout{}, enrollment.ErrAlreadyEnrolled
	} else if errors.Cause(err) != enrollment.ErrNotEnrolled {
		return Checkout{}, errors.Wrap(err, "checking enrollment")
	}

	paymentID := uuid.New().String()
	receipt := "rcpt_" + strings.ReplaceAll(paymentID, "-", "")[:20]
	amountMinor := MinorUnits(course.Price)

	orderRef, err := svc.Processor.CreateOrder(ctx, amountMinor, svc.opts.Currency, receipt)
	if err != nil {
		return Checkout{}, asProcessorError("create order", err)
	}

	now := svc.Clock.Now()
	p, err := svc.Repo.CreatePayment(ctx, Payment{
		ID:              paymentID,
		UserID:          userID,
		CourseID:        course.ID,
		Amount:          course.Price,
		AmountMinor:     amountMinor,
		Currency:        svc.opts.Currency,
		Receipt:         receipt,
		OrderRef:        orderRef,
		Status:          StatusPending,
		Notes:           svc.opts.Notes,
		TransactionDate: now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Checkout{}, errors.Wrap(err, "saving payment")
	}

	return Checkout{
		OrderRef:  p.OrderRef,
		Amount:    p.AmountMinor,
		Currency:  p.Currency,
		CourseID:  p.CourseID,
		KeyID:     svc.opts.KeyID,
		PaymentID: p.ID,
	}, nil
}

func (svc *service) Verify(ctx context.Context, orderRef, paymentRef, signature string) (enrollment.Enrollment, error) {
	p, err := svc.Repo.GetPaymentByOrderRef(ctx, orderRef)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	if p.IsFinal() {
		return enrollment.Enrollment{}, ErrAlreadyFinalized
	}

	valid, err := svc.Processor.VerifySignature(ctx, orderRef, paymentRef, signature)
	if err != nil {
		return enrollment.Enrollment{}, asProcessorError("verify signature", err)
	}

	if !valid {
		if _, err = svc.Repo.FinalizePayment(ctx, orderRef, Finalization{
			Status:    StatusFailed,
			UpdatedAt: svc.Clock.Now(),
		}); err != nil {
			return enrollment.Enrollment{}, err
		}
		svc.Logger.Warn(
			fmt.Sprintf("payment %s failed signature verification", p.ID),
			map[string]interface{}{"order_ref": orderRef, "payment_ref": paymentRef},
		)
		return enrollment.Enrollment{}, ErrSignatureInvalid
	}

	// the payment stays pending when enrolling fails, so the callback can be retried
	var enr enrollment.Enrollment
	err = core.RunInTransaction(ctx, svc.DB, func(exec core.DBExecutor) error {
		var err error
		if p, err = svc.Repo.FinalizePayment(ctx, orderRef, Finalization{
			Status:     StatusCompleted,
			PaymentRef: &paymentRef,
			Signature:  &signature,
			UpdatedAt:  svc.Clock.Now(),
		}, exec); err != nil {
			return err
		}

		enr, err = svc.Ledger.Enroll(ctx, p.UserID, p.CourseID, exec)
		if errors.Cause(err) == enrollment.ErrAlreadyEnrolled {
			enr, err = svc.Ledger.Get(ctx, p.UserID, p.CourseID, exec)
		}
		if err != nil {
			svc.Logger.Error(
				fmt.Sprintf("payment %s: enrollment failed, rolling back: %v", p.ID, err),
				err, map[string]interface{}{"user_id": p.UserID, "course_id": p.CourseID},
			)
			return errors.Wrap(err, "enrolling after payment")
		}
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	svc.sendReceipt(ctx, p)
	return enr, nil
}

func (svc *service) ListForUser(ctx context.Context, userID string) ([]Payment, error) {
	return svc.Repo.QueryPayments(ctx, userID)
}

// sendReceipt emails the payer a receipt. Failures are logged, never returned.
func (svc *service) sendReceipt(ctx context.Context, p Payment) {
	if svc.Users == nil || svc.MailSvc == nil {
		return
	}
	usr, err := svc.Users.GetByID(ctx, p.UserID)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("receipt for payment %s: finding user: %v", p.ID, err), err)
		return
	}
	if usr.Email == "" {
		return
	}
	course, err := svc.Catalog.GetCourse(ctx, p.CourseID)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("receipt for payment %s: finding course: %v", p.ID, err), err, usr)
		return
	}

	var paymentRef string
	if p.PaymentRef != nil {
		paymentRef = *p.PaymentRef
	}
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Payment receipt: " + course.Title,
		TemplateName: "payment_receipt",
		TemplateData: map[string]interface{}{
			"Name":        usr.Name,
			"CourseID":    course.ID,
			"CourseTitle": course.Title,
			"Amount":      p.Amount.StringFixed(2),
			"Currency":    p.Currency,
			"OrderRef":    p.OrderRef,
			"PaymentRef":  paymentRef,
			"Date":        p.UpdatedAt.Format("02 Jan 2006 15:04 MST"),
		},
	})
}

func asProcessorError(op string, err error) error {
	var perr *ProcessorError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProcessorError{Op: op, Err: err}
}
