package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/enrollment"
)

const (
	enrollmentColumns     = `id, user_id, course_id, is_active, progress, enrolled_at, completed_at`
	moduleProgressColumns = `id, enrollment_id, module_id, is_completed, completed_at`
)

type enrollmentRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	CourseID    string    `db:"course_id"`
	IsActive    bool      `db:"is_active"`
	Progress    int       `db:"progress"`
	EnrolledAt  time.Time `db:"enrolled_at"`
	CompletedAt null.Time `db:"completed_at"`
}

func (r enrollmentRow) toEnrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:          r.ID,
		UserID:      r.UserID,
		CourseID:    r.CourseID,
		IsActive:    r.IsActive,
		Progress:    r.Progress,
		EnrolledAt:  r.EnrolledAt.UTC(),
		CompletedAt: utcPtr(r.CompletedAt.Ptr()),
	}
}

type moduleProgressRow struct {
	ID           string    `db:"id"`
	EnrollmentID string    `db:"enrollment_id"`
	ModuleID     string    `db:"module_id"`
	IsCompleted  bool      `db:"is_completed"`
	CompletedAt  null.Time `db:"completed_at"`
}

func (r moduleProgressRow) toModuleProgress() enrollment.ModuleProgress {
	return enrollment.ModuleProgress{
		ID:           r.ID,
		EnrollmentID: r.EnrollmentID,
		ModuleID:     r.ModuleID,
		IsCompleted:  r.IsCompleted,
		CompletedAt:  utcPtr(r.CompletedAt.Ptr()),
	}
}

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *sqlx.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) CreateEnrollment(
	ctx context.Context,
	enr enrollment.Enrollment,
	exec ...core.DBExecutor,
) (enrollment.Enrollment, error) {
	db, err := getExec(repo.db, exec)
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	// an active row makes the conditional DO UPDATE a no-op, so nothing is returned
	q := `INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, TRUE, 0, $4, NULL)
		ON CONFLICT (user_id, course_id) DO UPDATE SET is_active = TRUE, enrolled_at = EXCLUDED.enrolled_at
		WHERE enrollments.is_active = FALSE
		RETURNING ` + enrollmentColumns

	var row enrollmentRow
	if err = sqlx.GetContext(ctx, db, &row, q, uuid.New().String(), enr.UserID, enr.CourseID, enr.EnrolledAt); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return enrollment.Enrollment{}, core.ErrConflict
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *enrollmentRepository) GetEnrollment(
	ctx context.Context,
	userID, courseID string,
	exec ...core.DBExecutor,
) (enrollment.Enrollment, error) {
	db, err := getExec(repo.db, exec)
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	var row enrollmentRow
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2`
	if err = sqlx.GetContext(ctx, db, &row, q, userID, courseID); err != nil {
		return enrollment.Enrollment{}, trapErr(err, enrollment.ErrNotEnrolled)
	}
	return row.toEnrollment(), nil
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	var rows []enrollmentRow
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at DESC`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, userID); err != nil {
		if trapErr(err, enrollment.ErrNotEnrolled) == enrollment.ErrNotEnrolled {
			return []enrollment.Enrollment{}, nil
		}
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, row.toEnrollment())
	}
	return enrs, nil
}

func (repo *enrollmentRepository) UpdateProgress(ctx context.Context, id string, progress int, completedAt *time.Time) (enrollment.Enrollment, error) {
	var row enrollmentRow
	q := `UPDATE enrollments SET progress = $2, completed_at = COALESCE(completed_at, $3)
		WHERE id = $1 RETURNING ` + enrollmentColumns
	if err := sqlx.GetContext(ctx, repo.db, &row, q, id, progress, null.TimeFromPtr(completedAt)); err != nil {
		return enrollment.Enrollment{}, errors.Wrap(trapErr(err, enrollment.ErrNotEnrolled), "updating progress")
	}
	return row.toEnrollment(), nil
}

func (repo *enrollmentRepository) RecomputeProgress(
	ctx context.Context,
	id string,
	total int,
	now time.Time,
) (enr enrollment.Enrollment, err error) {
	if total <= 0 {
		return enrollment.Enrollment{}, errors.Errorf("recomputing progress of %s: no modules", id)
	}
	err = core.RunInTransaction(ctx, NewDB(repo.db), func(exec core.DBExecutor) error {
		tx := exec.(*sqlx.Tx)

		// the lock makes the count below see every completion committed before it
		if _, err := tx.ExecContext(ctx, `SELECT id FROM enrollments WHERE id = $1 FOR UPDATE`, id); err != nil {
			return errors.Wrap(err, "locking enrollment")
		}

		q := `WITH done AS (SELECT COUNT(*) AS n FROM module_progress WHERE enrollment_id = $1 AND is_completed)
			UPDATE enrollments SET
				progress = LEAST(100, done.n * 100 / $2),
				completed_at = CASE WHEN done.n >= $2 THEN COALESCE(completed_at, $3) ELSE completed_at END
			FROM done
			WHERE enrollments.id = $1
			RETURNING ` + enrollmentColumns

		var row enrollmentRow
		if err := sqlx.GetContext(ctx, tx, &row, q, id, total, now); err != nil {
			return trapErr(err, enrollment.ErrNotEnrolled)
		}
		enr = row.toEnrollment()
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "recomputing progress")
	}
	return enr, nil
}

func (repo *enrollmentRepository) MarkModuleCompleted(ctx context.Context, enrollmentID, moduleID string, now time.Time) (enrollment.ModuleProgress, error) {
	q := `INSERT INTO module_progress (` + moduleProgressColumns + `)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT (enrollment_id, module_id) DO UPDATE
		SET is_completed = TRUE, completed_at = COALESCE(module_progress.completed_at, EXCLUDED.completed_at)
		RETURNING ` + moduleProgressColumns

	var row moduleProgressRow
	if err := sqlx.GetContext(ctx, repo.db, &row, q, uuid.New().String(), enrollmentID, moduleID, now); err != nil {
		return enrollment.ModuleProgress{}, errors.Wrap(trapErr(err, enrollment.ErrNotEnrolled), "upserting module progress")
	}
	return row.toModuleProgress(), nil
}

func (repo *enrollmentRepository) CountCompletedModules(ctx context.Context, enrollmentID string) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM module_progress WHERE enrollment_id = $1 AND is_completed`
	if err := sqlx.GetContext(ctx, repo.db, &count, q, enrollmentID); err != nil {
		return 0, errors.Wrap(err, "counting completed modules")
	}
	return count, nil
}

func (repo *enrollmentRepository) QueryCompletedModuleIDs(ctx context.Context, enrollmentID string) ([]string, error) {
	ids := make([]string, 0)
	q := `SELECT module_id FROM module_progress WHERE enrollment_id = $1 AND is_completed ORDER BY module_id`
	if err := sqlx.SelectContext(ctx, repo.db, &ids, q, enrollmentID); err != nil {
		return nil, errors.Wrap(err, "querying completed modules")
	}
	return ids, nil
}

func (repo *enrollmentRepository) DeleteEnrollment(ctx context.Context, id string) error {
	// module_progress rows go with it (ON DELETE CASCADE)
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	return nil
}
