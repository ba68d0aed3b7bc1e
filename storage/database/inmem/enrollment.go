package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/enrollment"
)

type enrollmentRepository struct {
	db *enrollmentTable
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db.enrollment}
}

func (repo *enrollmentRepository) find(userID, courseID string) (*enrollment.Enrollment, bool) {
	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID && enr.CourseID == courseID {
			return enr, true
		}
	}
	return nil, false
}

func (repo *enrollmentRepository) CreateEnrollment(
	_ context.Context,
	enr enrollment.Enrollment,
	exec ...core.DBExecutor,
) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tx := txFrom(exec)
	if existing, ok := repo.find(enr.UserID, enr.CourseID); ok {
		if existing.IsActive {
			return enrollment.Enrollment{}, core.ErrConflict
		}
		if tx != nil {
			prev := *existing
			tx.onRollback(func() {
				repo.db.mutex.Lock()
				defer repo.db.mutex.Unlock()
				*existing = prev
			})
		}
		existing.IsActive = true
		existing.EnrolledAt = enr.EnrolledAt
		return *existing, nil
	}

	enr.ID = uuid.New().String()
	enr.IsActive = true
	repo.db.enrollments[enr.ID] = &enr
	if tx != nil {
		id := enr.ID
		tx.onRollback(func() {
			repo.db.mutex.Lock()
			defer repo.db.mutex.Unlock()
			delete(repo.db.enrollments, id)
		})
	}
	return enr, nil
}

func (repo *enrollmentRepository) GetEnrollment(
	_ context.Context,
	userID, courseID string,
	_ ...core.DBExecutor,
) (enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if enr, ok := repo.find(userID, courseID); ok {
		return *enr, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotEnrolled
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, userID string) ([]enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrs := make([]enrollment.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID {
			enrs = append(enrs, *enr)
		}
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].EnrolledAt.After(enrs[j].EnrolledAt) })
	return enrs, nil
}

func (repo *enrollmentRepository) UpdateProgress(_ context.Context, id string, progress int, completedAt *time.Time) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	enr, ok := repo.db.enrollments[id]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotEnrolled
	}
	enr.Progress = progress
	if enr.CompletedAt == nil && completedAt != nil {
		at := *completedAt
		enr.CompletedAt = &at
	}
	return *enr, nil
}

func (repo *enrollmentRepository) RecomputeProgress(
	_ context.Context,
	id string,
	total int,
	now time.Time,
) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	enr, ok := repo.db.enrollments[id]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotEnrolled
	}
	progress, ok := enrollment.ComputeProgress(repo.countCompleted(id), total)
	if !ok {
		return *enr, nil
	}
	enr.Progress = progress
	if progress == 100 && enr.CompletedAt == nil {
		at := now
		enr.CompletedAt = &at
	}
	return *enr, nil
}

func (repo *enrollmentRepository) MarkModuleCompleted(_ context.Context, enrollmentID, moduleID string, now time.Time) (enrollment.ModuleProgress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.enrollments[enrollmentID]; !ok {
		return enrollment.ModuleProgress{}, enrollment.ErrNotEnrolled
	}
	for _, mp := range repo.db.progress {
		if mp.EnrollmentID == enrollmentID && mp.ModuleID == moduleID {
			if !mp.IsCompleted || mp.CompletedAt == nil {
				mp.IsCompleted = true
				mp.CompletedAt = &now
			}
			return *mp, nil
		}
	}

	mp := &enrollment.ModuleProgress{
		ID:           uuid.New().String(),
		EnrollmentID: enrollmentID,
		ModuleID:     moduleID,
		IsCompleted:  true,
		CompletedAt:  &now,
	}
	repo.db.progress[mp.ID] = mp
	return *mp, nil
}

func (repo *enrollmentRepository) CountCompletedModules(_ context.Context, enrollmentID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.countCompleted(enrollmentID), nil
}

// countCompleted expects the table lock to be held.
func (repo *enrollmentRepository) countCompleted(enrollmentID string) int {
	var count int
	for _, mp := range repo.db.progress {
		if mp.EnrollmentID == enrollmentID && mp.IsCompleted {
			count++
		}
	}
	return count
}

func (repo *enrollmentRepository) QueryCompletedModuleIDs(_ context.Context, enrollmentID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]string, 0)
	for _, mp := range repo.db.progress {
		if mp.EnrollmentID == enrollmentID && mp.IsCompleted {
			ids = append(ids, mp.ModuleID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *enrollmentRepository) DeleteEnrollment(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.enrollments, id)
	for mpID, mp := range repo.db.progress {
		if mp.EnrollmentID == id {
			delete(repo.db.progress, mpID)
		}
	}
	return nil
}
