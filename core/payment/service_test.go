package payment_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/payment"
	"github.com/trezcool/elimu/core/user"
	emailsvc "github.com/trezcool/elimu/services/email"
	inmemdb "github.com/trezcool/elimu/storage/database/inmem"
	"github.com/trezcool/elimu/testutil"
)

// fakeProcessor numbers its orders ord_1, ord_2... and accepts the signature sig_N for payment pay_N.
type fakeProcessor struct {
	mu        sync.Mutex
	orders    int
	amounts   []int64
	createErr error
	verifyErr error
}

func (p *fakeProcessor) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	if currency != "INR" || !strings.HasPrefix(receipt, "rcpt_") {
		return "", fmt.Errorf("bad order request: %s %s", currency, receipt)
	}
	p.orders++
	p.amounts = append(p.amounts, amountMinor)
	return fmt.Sprintf("ord_%d", p.orders), nil
}

func (p *fakeProcessor) VerifySignature(_ context.Context, _, paymentRef, signature string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.verifyErr != nil {
		return false, p.verifyErr
	}
	return signature == "sig_"+strings.TrimPrefix(paymentRef, "pay_"), nil
}

type fixture struct {
	db            *inmemdb.DB
	clock         *testutil.Clock
	logger        *testutil.Logger
	mailSvc       *emailsvc.ConsoleService
	processor     *fakeProcessor
	repo          payment.Repository
	catalogSvc    catalog.Service
	enrollmentSvc enrollment.Service
	svc           payment.Service

	learner user.User
	paid    catalog.Course
	free    catalog.Course
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := inmemdb.NewDB()
	conf := testutil.NewConfig()
	fx := &fixture{
		db:        db,
		clock:     testutil.NewClock(testutil.Epoch),
		logger:    &testutil.Logger{},
		processor: &fakeProcessor{},
		repo:      inmemdb.NewPaymentRepository(db),
	}
	core.ParseEmailTemplates(fx.logger, true)
	fx.mailSvc = emailsvc.NewConsoleServiceMock(conf, fx.logger)

	usrSvc := user.NewService(inmemdb.NewUserRepository(db), fx.clock)
	fx.catalogSvc = catalog.NewService(inmemdb.NewCatalogRepository(db), fx.clock)
	fx.enrollmentSvc = enrollment.NewService(inmemdb.NewEnrollmentRepository(db), fx.catalogSvc, fx.clock)
	fx.svc = payment.NewService(
		payment.ServiceDeps{
			Repo:      fx.repo,
			DB:        fx.db,
			Processor: fx.processor,
			Catalog:   fx.catalogSvc,
			Ledger:    fx.enrollmentSvc,
			Clock:     fx.clock,
			Logger:    fx.logger,
			Users:     usrSvc,
			MailSvc:   fx.mailSvc,
		},
		payment.Options{KeyID: "rzp_test_key"},
	)

	fx.learner = testutil.CreateUser(t, usrSvc, "Learner", "learner", "learner@test.cd", "s3cretpass")
	fx.paid = testutil.CreateCourse(t, fx.catalogSvc, "Go in Depth", "1999.00")
	fx.free = testutil.CreateCourse(t, fx.catalogSvc, "Go Basics", "")
	return fx
}

func (fx *fixture) payments(t *testing.T) []payment.Payment {
	t.Helper()
	payments, err := fx.svc.ListForUser(context.Background(), fx.learner.ID)
	require.NoError(t, err)
	return payments
}

func Test_service_InitiateCheckout(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	co, err := fx.svc.InitiateCheckout(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)
	assert.Equal(t, "ord_1", co.OrderRef)
	assert.Equal(t, int64(199900), co.Amount)
	assert.Equal(t, "INR", co.Currency)
	assert.Equal(t, fx.paid.ID, co.CourseID)
	assert.Equal(t, "rzp_test_key", co.KeyID)
	assert.NotEmpty(t, co.PaymentID)
	assert.Equal(t, []int64{199900}, fx.processor.amounts)

	p, err := fx.repo.GetPaymentByOrderRef(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, co.PaymentID, p.ID)
	assert.Equal(t, fx.learner.ID, p.UserID)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, "1999", p.Amount.String())
	assert.Equal(t, int64(199900), p.AmountMinor)
	assert.Nil(t, p.PaymentRef)
	assert.Nil(t, p.Signature)
	assert.Equal(t, testutil.Epoch, p.TransactionDate)

	// a retry opens a new order
	co2, err := fx.svc.InitiateCheckout(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)
	assert.Equal(t, "ord_2", co2.OrderRef)
	assert.NotEqual(t, co.PaymentID, co2.PaymentID)
	assert.Len(t, fx.payments(t), 2)
}

func Test_service_InitiateCheckout_rejected(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	inactive := false
	hidden, err := fx.catalogSvc.CreateCourse(ctx, catalog.NewCourse{Title: "Hidden", Type: catalog.CoursePaid, IsActive: &inactive})
	require.NoError(t, err)

	enrolled := testutil.CreateCourse(t, fx.catalogSvc, "Owned", "10")
	_, err = fx.enrollmentSvc.Enroll(ctx, fx.learner.ID, enrolled.ID)
	require.NoError(t, err)

	zero, err := fx.catalogSvc.CreateCourse(ctx, catalog.NewCourse{Title: "Zero", Type: catalog.CoursePaid})
	require.NoError(t, err)

	tests := []struct {
		name     string
		courseID string
		wantErr  error
	}{
		{name: "free course", courseID: fx.free.ID, wantErr: payment.ErrFreeCourse},
		{name: "paid course at zero price", courseID: zero.ID, wantErr: payment.ErrFreeCourse},
		{name: "unknown course", courseID: "unknown", wantErr: catalog.ErrCourseNotFound},
		{name: "inactive course", courseID: hidden.ID, wantErr: catalog.ErrCourseNotFound},
		{name: "already enrolled", courseID: enrolled.ID, wantErr: enrollment.ErrAlreadyEnrolled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.InitiateCheckout(ctx, fx.learner.ID, tt.courseID)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}
	assert.Zero(t, fx.processor.orders)
	assert.Empty(t, fx.payments(t))

	// free courses are enrolled in directly
	enr, err := fx.enrollmentSvc.Enroll(ctx, fx.learner.ID, fx.free.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, enr.Progress)
}

func Test_service_InitiateCheckout_processorFailure(t *testing.T) {
	fx := setup(t)
	fx.processor.createErr = errors.New("connection refused")

	_, err := fx.svc.InitiateCheckout(context.Background(), fx.learner.ID, fx.paid.ID)
	var perr *payment.ProcessorError
	require.True(t, errors.As(err, &perr), "error = %v", err)
	assert.Equal(t, "create order", perr.Op)
	assert.Empty(t, fx.payments(t), "no pending payment on processor failure")
}

func Test_service_Verify(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	co, err := fx.svc.InitiateCheckout(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)
	fx.clock.Advance(5 * time.Minute)

	enr, err := fx.svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
	require.NoError(t, err)
	assert.Equal(t, fx.learner.ID, enr.UserID)
	assert.Equal(t, fx.paid.ID, enr.CourseID)
	assert.Equal(t, 0, enr.Progress)
	assert.True(t, enr.IsActive)

	p, err := fx.repo.GetPaymentByOrderRef(ctx, co.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, p.Status)
	require.NotNil(t, p.PaymentRef)
	assert.Equal(t, "pay_1", *p.PaymentRef)
	require.NotNil(t, p.Signature)
	assert.Equal(t, "sig_1", *p.Signature)
	assert.Equal(t, fx.clock.Now(), p.UpdatedAt)

	// receipt
	sent := fx.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "learner@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "1999.00 INR")
	assert.Contains(t, sent[0].TextContent, "ord_1")
	assert.Contains(t, sent[0].HTMLContent, "Go in Depth")
	assert.Empty(t, fx.logger.Errors())

	// second callback for the same order
	_, err = fx.svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
	assert.Equal(t, payment.ErrAlreadyFinalized, err)

	enrs, err := fx.enrollmentSvc.ListForUser(ctx, fx.learner.ID)
	require.NoError(t, err)
	assert.Len(t, enrs, 1)
	assert.Len(t, fx.mailSvc.SentMessages(), 1)
}

func Test_service_Verify_rejected(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	_, err := fx.svc.Verify(ctx, "ord_unknown", "pay_1", "sig_1")
	assert.Equal(t, payment.ErrUnknownOrder, err)

	co, err := fx.svc.InitiateCheckout(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)

	_, err = fx.svc.Verify(ctx, co.OrderRef, "pay_1", "forged")
	assert.Equal(t, payment.ErrSignatureInvalid, err)

	p, err := fx.repo.GetPaymentByOrderRef(ctx, co.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Nil(t, p.PaymentRef)

	// failed payments are never reopened
	_, err = fx.svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
	assert.Equal(t, payment.ErrAlreadyFinalized, err)

	_, err = fx.enrollmentSvc.Get(ctx, fx.learner.ID, fx.paid.ID)
	assert.Equal(t, enrollment.ErrNotEnrolled, err)
	assert.Empty(t, fx.mailSvc.SentMessages())
}

func Test_service_Verify_processorFailure(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	co, err := fx.svc.InitiateCheckout(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)

	fx.processor.verifyErr = errors.New("timeout")
	_, err = fx.svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
	var perr *payment.ProcessorError
	require.True(t, errors.As(err, &perr), "error = %v", err)
	assert.Equal(t, "verify signature", perr.Op)

	p, err := fx.repo.GetPaymentByOrderRef(ctx, co.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status, "payment left untouched")

	// retried with the same identifiers
	fx.processor.verifyErr = nil
	_, err = fx.svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
	require.NoError(t, err)
}

func Test_service_Verify_concurrent(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	co, err := fx.svc.InitiateCheckout(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)

	const callbacks = 8
	var wg sync.WaitGroup
	errs := make(chan error, callbacks)
	for i := 0; i < callbacks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, payment.ErrAlreadyFinalized, err)
	}
	assert.Equal(t, 1, succeeded)

	enrs, err := fx.enrollmentSvc.ListForUser(ctx, fx.learner.ID)
	require.NoError(t, err)
	assert.Len(t, enrs, 1)
}

func Test_service_Verify_enrolledMeanwhile(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	co, err := fx.svc.InitiateCheckout(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)

	// enrolled through another path while the payment was pending
	existing, err := fx.enrollmentSvc.Enroll(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)

	enr, err := fx.svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, enr.ID)

	p, err := fx.repo.GetPaymentByOrderRef(ctx, co.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, p.Status)

	enrs, err := fx.enrollmentSvc.ListForUser(ctx, fx.learner.ID)
	require.NoError(t, err)
	assert.Len(t, enrs, 1)
}

func Test_service_Verify_receiptFailureIgnored(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	svc := payment.NewService(
		payment.ServiceDeps{
			Repo:      fx.repo,
			DB:        fx.db,
			Processor: fx.processor,
			Catalog:   fx.catalogSvc,
			Ledger:    fx.enrollmentSvc,
			Clock:     fx.clock,
			Logger:    fx.logger,
			Users:     user.NewService(inmemdb.NewUserRepository(inmemdb.NewDB()), fx.clock), // knows no one
			MailSvc:   fx.mailSvc,
		},
		payment.Options{},
	)

	co, err := svc.InitiateCheckout(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)
	assert.Empty(t, co.KeyID)

	_, err = svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
	require.NoError(t, err)
	assert.Empty(t, fx.mailSvc.SentMessages())
	assert.Len(t, fx.logger.Errors(), 1)
}

// flakyLedger fails its first failures calls to Enroll.
type flakyLedger struct {
	payment.Ledger
	failures int
}

func (l *flakyLedger) Enroll(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	if l.failures > 0 {
		l.failures--
		return enrollment.Enrollment{}, errors.New("connection reset")
	}
	return l.Ledger.Enroll(ctx, userID, courseID, exec...)
}

func Test_service_Verify_enrollmentFailure(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	svc := payment.NewService(
		payment.ServiceDeps{
			Repo:      fx.repo,
			DB:        fx.db,
			Processor: fx.processor,
			Catalog:   fx.catalogSvc,
			Ledger:    &flakyLedger{Ledger: fx.enrollmentSvc, failures: 1},
			Clock:     fx.clock,
			Logger:    fx.logger,
			MailSvc:   fx.mailSvc,
		},
		payment.Options{},
	)

	co, err := svc.InitiateCheckout(ctx, fx.learner.ID, fx.paid.ID)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, fx.logger.Errors(), 1)

	p, err := fx.repo.GetPaymentByOrderRef(ctx, co.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status, "payment rolled back")
	assert.Nil(t, p.PaymentRef)
	_, err = fx.enrollmentSvc.Get(ctx, fx.learner.ID, fx.paid.ID)
	assert.Equal(t, enrollment.ErrNotEnrolled, err)

	// the callback is retried
	enr, err := svc.Verify(ctx, co.OrderRef, "pay_1", "sig_1")
	require.NoError(t, err)
	assert.Equal(t, fx.paid.ID, enr.CourseID)

	p, err = fx.repo.GetPaymentByOrderRef(ctx, co.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, p.Status)
	_, err = fx.enrollmentSvc.Get(ctx, fx.learner.ID, fx.paid.ID)
	assert.NoError(t, err)
}
