package sqlxrepos_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/payment"
	"github.com/trezcool/elimu/core/user"
	sqlxrepos "github.com/trezcool/elimu/storage/database/sqlx"
	"github.com/trezcool/elimu/testutil"
)

type fixture struct {
	db         core.DB
	clock      *testutil.Clock
	usrSvc     user.Service
	catalogSvc catalog.Service
	enrRepo    enrollment.Repository
	payRepo    payment.Repository
	learner    user.User
	course     catalog.Course
	modules    []catalog.Module
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.PrepareDB(t)
	fx := &fixture{
		db:      sqlxrepos.NewDB(db),
		clock:   testutil.NewClock(testutil.Epoch),
		enrRepo: sqlxrepos.NewEnrollmentRepository(db),
		payRepo: sqlxrepos.NewPaymentRepository(db),
	}
	fx.usrSvc = user.NewService(sqlxrepos.NewUserRepository(db), fx.clock)
	fx.catalogSvc = catalog.NewService(sqlxrepos.NewCatalogRepository(db), fx.clock)

	fx.learner = testutil.CreateUser(t, fx.usrSvc, "Amani", "amani", "amani@example.com", "Pwd12345")
	fx.course = testutil.CreateCourse(t, fx.catalogSvc, "Swahili 101", "1999.00")
	fx.modules = testutil.AddModules(t, fx.catalogSvc, fx.course.ID, 3)
	return fx
}

func TestUserRepository(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	usr, err := fx.usrSvc.GetByUsernameOrEmail(ctx, "AMANI@example.com")
	require.NoError(t, err)
	assert.Equal(t, fx.learner.ID, usr.ID)
	assert.Equal(t, user.StudentRoles, usr.Roles)

	err = fx.usrSvc.CheckUniqueness(ctx, "amani", "other@example.com")
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, user.ErrUsernameExists, vErr.Err)

	assert.NoError(t, fx.usrSvc.CheckUniqueness(ctx, "amani", "amani@example.com", fx.learner.ID))

	_, err = fx.usrSvc.GetByID(ctx, "not-a-uuid")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestCatalogRepository(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	course, err := fx.catalogSvc.GetActiveCourse(ctx, fx.course.ID)
	require.NoError(t, err)
	assert.True(t, course.Price.Equal(decimal.RequireFromString("1999")))
	assert.Equal(t, catalog.CoursePaid, course.Type)

	modules, err := fx.catalogSvc.ListModules(ctx, fx.course.ID)
	require.NoError(t, err)
	require.Len(t, modules, 3)
	for i, mod := range modules {
		assert.Equal(t, i+1, mod.Order)
	}

	_, err = fx.catalogSvc.AddModule(ctx, catalog.NewModule{
		CourseID: fx.course.ID,
		Title:    "Duplicate",
		Type:     catalog.ModuleText,
		Order:    2,
	})
	assert.Equal(t, catalog.ErrDuplicateModuleOrder, errors.Cause(err))

	count, err := fx.catalogSvc.CountModules(ctx, fx.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = fx.catalogSvc.GetCourse(ctx, "not-a-uuid")
	assert.Equal(t, catalog.ErrCourseNotFound, errors.Cause(err))
}

func TestEnrollmentRepository_CreateEnrollment(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	enr, err := fx.enrRepo.CreateEnrollment(ctx, enrollment.Enrollment{
		UserID:     fx.learner.ID,
		CourseID:   fx.course.ID,
		IsActive:   true,
		EnrolledAt: fx.clock.Now(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, enr.ID)
	assert.True(t, enr.IsActive)
	assert.Equal(t, 0, enr.Progress)

	t.Run("active enrollment conflicts", func(t *testing.T) {
		_, err := fx.enrRepo.CreateEnrollment(ctx, enrollment.Enrollment{
			UserID:     fx.learner.ID,
			CourseID:   fx.course.ID,
			EnrolledAt: fx.clock.Now(),
		})
		assert.Equal(t, core.ErrConflict, errors.Cause(err))
	})
}

func TestEnrollmentRepository_Reactivation(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	clock := testutil.NewClock(testutil.Epoch)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), clock)
	catalogSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db), clock)
	repo := sqlxrepos.NewEnrollmentRepository(db)

	learner := testutil.CreateUser(t, usrSvc, "Baraka", "baraka", "baraka@example.com", "Pwd12345")
	course := testutil.CreateCourse(t, catalogSvc, "Kiswahili", "")

	enr, err := repo.CreateEnrollment(ctx, enrollment.Enrollment{UserID: learner.ID, CourseID: course.ID, EnrolledAt: clock.Now()})
	require.NoError(t, err)
	_, err = repo.UpdateProgress(ctx, enr.ID, 50, nil)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE enrollments SET is_active = FALSE WHERE id = $1`, enr.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	again, err := repo.CreateEnrollment(ctx, enrollment.Enrollment{UserID: learner.ID, CourseID: course.ID, EnrolledAt: clock.Now()})
	require.NoError(t, err)
	assert.Equal(t, enr.ID, again.ID)
	assert.True(t, again.IsActive)
	assert.Equal(t, 50, again.Progress)
	assert.True(t, again.EnrolledAt.Equal(testutil.Epoch.Add(time.Hour)))
}

func TestEnrollmentRepository_Progress(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	enr, err := fx.enrRepo.CreateEnrollment(ctx, enrollment.Enrollment{
		UserID:     fx.learner.ID,
		CourseID:   fx.course.ID,
		EnrolledAt: fx.clock.Now(),
	})
	require.NoError(t, err)

	mp, err := fx.enrRepo.MarkModuleCompleted(ctx, enr.ID, fx.modules[0].ID, fx.clock.Now())
	require.NoError(t, err)
	assert.True(t, mp.IsCompleted)
	first := mp.CompletedAt

	fx.clock.Advance(time.Minute)
	mp, err = fx.enrRepo.MarkModuleCompleted(ctx, enr.ID, fx.modules[0].ID, fx.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, mp.CompletedAt)
	assert.True(t, first.Equal(*mp.CompletedAt), "completion time must not move")

	_, err = fx.enrRepo.MarkModuleCompleted(ctx, enr.ID, fx.modules[2].ID, fx.clock.Now())
	require.NoError(t, err)

	count, err := fx.enrRepo.CountCompletedModules(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	ids, err := fx.enrRepo.QueryCompletedModuleIDs(ctx, enr.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{fx.modules[0].ID, fx.modules[2].ID}, ids)

	_, err = fx.enrRepo.MarkModuleCompleted(ctx, enr.ID, "not-a-uuid", fx.clock.Now())
	assert.Equal(t, enrollment.ErrNotEnrolled, errors.Cause(err))

	done := fx.clock.Now()
	updated, err := fx.enrRepo.UpdateProgress(ctx, enr.ID, 100, &done)
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)
	require.NotNil(t, updated.CompletedAt)

	later := done.Add(time.Hour)
	updated, err = fx.enrRepo.UpdateProgress(ctx, enr.ID, 100, &later)
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.CompletedAt.Equal(done), "completed_at is only written once")

	require.NoError(t, fx.enrRepo.DeleteEnrollment(ctx, enr.ID))
	_, err = fx.enrRepo.GetEnrollment(ctx, fx.learner.ID, fx.course.ID)
	assert.Equal(t, enrollment.ErrNotEnrolled, errors.Cause(err))
	count, err = fx.enrRepo.CountCompletedModules(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	enrs, err := fx.enrRepo.QueryEnrollments(ctx, fx.learner.ID)
	require.NoError(t, err)
	assert.Empty(t, enrs)
}

func TestEnrollmentRepository_RecomputeProgress(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	enr, err := fx.enrRepo.CreateEnrollment(ctx, enrollment.Enrollment{
		UserID:     fx.learner.ID,
		CourseID:   fx.course.ID,
		EnrolledAt: fx.clock.Now(),
	})
	require.NoError(t, err)

	_, err = fx.enrRepo.MarkModuleCompleted(ctx, enr.ID, fx.modules[0].ID, fx.clock.Now())
	require.NoError(t, err)
	updated, err := fx.enrRepo.RecomputeProgress(ctx, enr.ID, 3, fx.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 33, updated.Progress)
	assert.Nil(t, updated.CompletedAt)

	// completions racing each other all end at 100
	var wg sync.WaitGroup
	for _, mod := range fx.modules[1:] {
		wg.Add(1)
		go func(moduleID string) {
			defer wg.Done()
			if _, err := fx.enrRepo.MarkModuleCompleted(ctx, enr.ID, moduleID, fx.clock.Now()); err != nil {
				t.Error(err)
				return
			}
			if _, err := fx.enrRepo.RecomputeProgress(ctx, enr.ID, 3, fx.clock.Now()); err != nil {
				t.Error(err)
			}
		}(mod.ID)
	}
	wg.Wait()

	got, err := fx.enrRepo.GetEnrollment(ctx, fx.learner.ID, fx.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(fx.clock.Now()))

	// a fourth module lowers progress, completion time stays
	updated, err = fx.enrRepo.RecomputeProgress(ctx, enr.ID, 4, fx.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 75, updated.Progress)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.CompletedAt.Equal(fx.clock.Now()))
}

func TestRunInTransaction(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	p, err := fx.payRepo.CreatePayment(ctx, newPayment(fx, "order_000000000003"))
	require.NoError(t, err)

	finalizeAndEnroll := func(fail bool) error {
		return core.RunInTransaction(ctx, fx.db, func(exec core.DBExecutor) error {
			ref := "pay_3"
			if _, err := fx.payRepo.FinalizePayment(ctx, p.OrderRef, payment.Finalization{
				Status:     payment.StatusCompleted,
				PaymentRef: &ref,
				UpdatedAt:  fx.clock.Now(),
			}, exec); err != nil {
				return err
			}
			if _, err := fx.enrRepo.CreateEnrollment(ctx, enrollment.Enrollment{
				UserID:     fx.learner.ID,
				CourseID:   fx.course.ID,
				EnrolledAt: fx.clock.Now(),
			}, exec); err != nil {
				return err
			}
			if fail {
				return errBoom
			}
			return nil
		})
	}

	assert.Equal(t, errBoom, finalizeAndEnroll(true))
	got, err := fx.payRepo.GetPaymentByOrderRef(ctx, p.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, got.Status)
	_, err = fx.enrRepo.GetEnrollment(ctx, fx.learner.ID, fx.course.ID)
	assert.Equal(t, enrollment.ErrNotEnrolled, errors.Cause(err))

	require.NoError(t, finalizeAndEnroll(false))
	got, err = fx.payRepo.GetPaymentByOrderRef(ctx, p.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, got.Status)
	enr, err := fx.enrRepo.GetEnrollment(ctx, fx.learner.ID, fx.course.ID)
	require.NoError(t, err)
	assert.True(t, enr.IsActive)
}

func newPayment(fx *fixture, orderRef string) payment.Payment {
	return payment.Payment{
		ID:              "00000000-0000-4000-8000-" + orderRef[len(orderRef)-12:],
		UserID:          fx.learner.ID,
		CourseID:        fx.course.ID,
		Amount:          fx.course.Price,
		AmountMinor:     payment.MinorUnits(fx.course.Price),
		Currency:        "INR",
		Receipt:         "rcpt_" + orderRef,
		OrderRef:        orderRef,
		Status:          payment.StatusPending,
		TransactionDate: fx.clock.Now(),
		UpdatedAt:       fx.clock.Now(),
	}
}

func TestPaymentRepository(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	p, err := fx.payRepo.CreatePayment(ctx, newPayment(fx, "order_000000000001"))
	require.NoError(t, err)

	_, err = fx.payRepo.CreatePayment(ctx, newPayment(fx, "order_000000000001"))
	assert.Equal(t, core.ErrConflict, errors.Cause(err))

	got, err := fx.payRepo.GetPaymentByOrderRef(ctx, p.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, got.Status)
	assert.Equal(t, int64(199900), got.AmountMinor)
	assert.Nil(t, got.PaymentRef)

	_, err = fx.payRepo.FinalizePayment(ctx, "order_unknown", payment.Finalization{Status: payment.StatusCompleted})
	assert.Equal(t, payment.ErrUnknownOrder, errors.Cause(err))

	t.Run("only one finalization wins", func(t *testing.T) {
		payRef, sig := "pay_1", "sig_1"
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			completed int
			finalized int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := fx.payRepo.FinalizePayment(ctx, p.OrderRef, payment.Finalization{
					Status:     payment.StatusCompleted,
					PaymentRef: &payRef,
					Signature:  &sig,
					UpdatedAt:  fx.clock.Now(),
				})
				mu.Lock()
				defer mu.Unlock()
				switch errors.Cause(err) {
				case nil:
					completed++
				case payment.ErrAlreadyFinalized:
					finalized++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, completed)
		assert.Equal(t, 4, finalized)

		got, err := fx.payRepo.GetPaymentByOrderRef(ctx, p.OrderRef)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, got.Status)
		require.NotNil(t, got.PaymentRef)
		assert.Equal(t, payRef, *got.PaymentRef)
	})

	t.Run("failed payment keeps null references", func(t *testing.T) {
		failed, err := fx.payRepo.CreatePayment(ctx, newPayment(fx, "order_000000000002"))
		require.NoError(t, err)
		got, err := fx.payRepo.FinalizePayment(ctx, failed.OrderRef, payment.Finalization{
			Status:    payment.StatusFailed,
			UpdatedAt: fx.clock.Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, payment.StatusFailed, got.Status)
		assert.Nil(t, got.PaymentRef)
	})

	payments, err := fx.payRepo.QueryPayments(ctx, fx.learner.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}
