package enrollment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/catalog"
)

var (
	// errors
	ErrAlreadyEnrolled  = errors.New("already enrolled in this course")
	ErrNotEnrolled      = errors.New("not enrolled in this course")
	ErrIncompleteCourse = errors.New("please complete all modules before finishing the course")
)

type (
	Repository interface {
		// CreateEnrollment inserts a new active enrollment, or reactivates an inactive one for the same
		// (user, course). It returns core.ErrConflict when an active enrollment already exists.
		CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		// GetEnrollment returns ErrNotEnrolled when the user never enrolled in the course.
		GetEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		QueryEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
		// UpdateProgress stores progress. completedAt is only written when CompletedAt is unset.
		UpdateProgress(ctx context.Context, id string, progress int, completedAt *time.Time) (Enrollment, error)
		// RecomputeProgress stores ComputeProgress(completed modules, total) in one atomic step,
		// serialized with other recomputations of the same enrollment.
		// now becomes CompletedAt when progress reaches 100 and CompletedAt is unset.
		RecomputeProgress(ctx context.Context, id string, total int, now time.Time) (Enrollment, error)
		// MarkModuleCompleted creates-or-fetches the ModuleProgress of (enrollment, module) and marks it completed.
		// An already completed ModuleProgress keeps its CompletedAt.
		MarkModuleCompleted(ctx context.Context, enrollmentID, moduleID string, now time.Time) (ModuleProgress, error)
		CountCompletedModules(ctx context.Context, enrollmentID string) (int, error)
		QueryCompletedModuleIDs(ctx context.Context, enrollmentID string) ([]string, error)
		// DeleteEnrollment also deletes the enrollment's ModuleProgress.
		DeleteEnrollment(ctx context.Context, id string) error
	}

	// Catalog is the part of catalog.Service the ledger reads from.
	Catalog interface {
		GetCourse(ctx context.Context, id string) (catalog.Course, error)
		GetModule(ctx context.Context, id string) (catalog.Module, error)
		CountModules(ctx context.Context, courseID string) (int, error)
	}

	Service interface {
		// Enroll and Get join the caller's transaction when exec is given.
		Enroll(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		// RecordModuleCompletion marks a module completed and returns the recomputed course progress.
		RecordModuleCompletion(ctx context.Context, userID, moduleID string) (int, error)
		Finish(ctx context.Context, userID, courseID string) (Enrollment, error)
		Get(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		ListForUser(ctx context.Context, userID string) ([]Enrollment, error)
		CompletedModules(ctx context.Context, userID, courseID string) ([]string, error)
		Unenroll(ctx context.Context, userID, courseID string) error
	}

	service struct {
		repo    Repository
		catalog Catalog
		clock   core.Clock
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, catalog Catalog, clock core.Clock) Service {
	return &service{repo: repo, catalog: catalog, clock: clock}
}

func (svc *service) Enroll(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error) {
	if _, err := svc.catalog.GetCourse(ctx, courseID); err != nil {
		return Enrollment{}, err
	}

	enr, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		IsActive:   true,
		EnrolledAt: svc.clock.Now(),
	}, exec...)
	if err != nil {
		if errors.Cause(err) == core.ErrConflict {
			return Enrollment{}, ErrAlreadyEnrolled
		}
		return Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	return enr, nil
}

func (svc *service) RecordModuleCompletion(ctx context.Context, userID, moduleID string) (int, error) {
	mod, err := svc.catalog.GetModule(ctx, moduleID)
	if err != nil {
		return 0, err
	}
	enr, err := svc.Get(ctx, userID, mod.CourseID)
	if err != nil {
		return 0, err
	}

	now := svc.clock.Now()
	if _, err = svc.repo.MarkModuleCompleted(ctx, enr.ID, mod.ID, now); err != nil {
		return 0, errors.Wrap(err, "marking module completed")
	}

	total, err := svc.catalog.CountModules(ctx, mod.CourseID)
	if err != nil {
		return 0, errors.Wrap(err, "counting modules")
	}
	if total <= 0 {
		return enr.Progress, nil
	}

	if enr, err = svc.repo.RecomputeProgress(ctx, enr.ID, total, now); err != nil {
		return 0, errors.Wrap(err, "updating progress")
	}
	return enr.Progress, nil
}

func (svc *service) Finish(ctx context.Context, userID, courseID string) (Enrollment, error) {
	enr, err := svc.Get(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, err
	}

	total, err := svc.catalog.CountModules(ctx, courseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "counting modules")
	}
	completed, err := svc.repo.CountCompletedModules(ctx, enr.ID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "counting completed modules")
	}
	if completed < total {
		return Enrollment{}, ErrIncompleteCourse
	}
	if enr.Progress == 100 && enr.IsCompleted() {
		return enr, nil
	}

	now := svc.clock.Now()
	if enr, err = svc.repo.UpdateProgress(ctx, enr.ID, 100, &now); err != nil {
		return Enrollment{}, errors.Wrap(err, "finishing course")
	}
	return enr, nil
}

func (svc *service) Get(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollment(ctx, userID, courseID, exec...)
	if err != nil {
		return Enrollment{}, err
	}
	if !enr.IsActive {
		return Enrollment{}, ErrNotEnrolled
	}
	return enr, nil
}

func (svc *service) ListForUser(ctx context.Context, userID string) ([]Enrollment, error) {
	enrs, err := svc.repo.QueryEnrollments(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := enrs[:0]
	for _, enr := range enrs {
		if enr.IsActive {
			active = append(active, enr)
		}
	}
	return active, nil
}

func (svc *service) CompletedModules(ctx context.Context, userID, courseID string) ([]string, error) {
	enr, err := svc.Get(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryCompletedModuleIDs(ctx, enr.ID)
}

// Unenroll deletes the enrollment and its module progress.
func (svc *service) Unenroll(ctx context.Context, userID, courseID string) error {
	enr, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return err
	}
	return svc.repo.DeleteEnrollment(ctx, enr.ID)
}
