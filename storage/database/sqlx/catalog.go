package sqlxrepos

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/catalog"
)

const (
	courseColumns = `id, title, description, short_description, course_type, price, is_active, created_by, created_at, updated_at`
	moduleColumns = `id, course_id, title, description, module_type, "order", duration_minutes, is_preview, video_url, text_content, created_at`
)

var courseOrderingFields = map[string]string{
	"title":      "title",
	"price":      "price",
	"created_at": "created_at",
}

type courseRow struct {
	ID               string          `db:"id"`
	Title            string          `db:"title"`
	Description      string          `db:"description"`
	ShortDescription string          `db:"short_description"`
	CourseType       string          `db:"course_type"`
	Price            decimal.Decimal `db:"price"`
	IsActive         bool            `db:"is_active"`
	CreatedBy        null.String     `db:"created_by"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r courseRow) toCourse() catalog.Course {
	return catalog.Course{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		ShortDescription: r.ShortDescription,
		Type:             catalog.CourseType(r.CourseType),
		Price:            r.Price,
		IsActive:         r.IsActive,
		CreatedBy:        r.CreatedBy.String,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type moduleRow struct {
	ID              string      `db:"id"`
	CourseID        string      `db:"course_id"`
	Title           string      `db:"title"`
	Description     string      `db:"description"`
	ModuleType      string      `db:"module_type"`
	Order           int         `db:"order"`
	DurationMinutes int         `db:"duration_minutes"`
	IsPreview       bool        `db:"is_preview"`
	VideoURL        null.String `db:"video_url"`
	TextContent     null.String `db:"text_content"`
	CreatedAt       time.Time   `db:"created_at"`
}

func (r moduleRow) toModule() catalog.Module {
	return catalog.Module{
		ID:              r.ID,
		CourseID:        r.CourseID,
		Title:           r.Title,
		Description:     r.Description,
		Type:            catalog.ModuleType(r.ModuleType),
		Order:           r.Order,
		DurationMinutes: r.DurationMinutes,
		IsPreview:       r.IsPreview,
		VideoURL:        r.VideoURL.String,
		TextContent:     r.TextContent.String,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type catalogRepository struct {
	db *sqlx.DB
}

var _ catalog.Repository = (*catalogRepository)(nil)

func NewCatalogRepository(db *sqlx.DB) catalog.Repository {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) CreateCourse(ctx context.Context, course catalog.Course) (catalog.Course, error) {
	course.ID = uuid.New().String()
	q := `INSERT INTO courses (` + courseColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := repo.db.ExecContext(ctx, q,
		course.ID, course.Title, course.Description, course.ShortDescription, string(course.Type),
		course.Price, course.IsActive, null.NewString(course.CreatedBy, course.CreatedBy != ""),
		course.CreatedAt, course.UpdatedAt,
	)
	if err != nil {
		return catalog.Course{}, errors.Wrap(trapErr(err, catalog.ErrCourseNotFound), "inserting course")
	}
	return course, nil
}

func (repo *catalogRepository) GetCourse(ctx context.Context, id string) (catalog.Course, error) {
	var row courseRow
	if err := sqlx.GetContext(ctx, repo.db, &row, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id); err != nil {
		return catalog.Course{}, trapErr(err, catalog.ErrCourseNotFound)
	}
	return row.toCourse(), nil
}

func (repo *catalogRepository) QueryCourses(ctx context.Context, filter catalog.QueryFilter, ordering ...core.DBOrdering) ([]catalog.Course, error) {
	conds := make([]string, 0, 3)
	args := make([]interface{}, 0, 2)
	if !filter.IncludeInactive {
		conds = append(conds, "is_active")
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, "course_type = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, "(title ILIKE $"+n+" OR short_description ILIKE $"+n+")")
	}

	q := `SELECT ` + courseColumns + ` FROM courses`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderBy(ordering, courseOrderingFields, "created_at DESC")

	var rows []courseRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]catalog.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

func (repo *catalogRepository) CreateModule(ctx context.Context, module catalog.Module) (catalog.Module, error) {
	module.ID = uuid.New().String()
	q := `INSERT INTO modules (` + moduleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := repo.db.ExecContext(ctx, q,
		module.ID, module.CourseID, module.Title, module.Description, string(module.Type), module.Order,
		module.DurationMinutes, module.IsPreview, null.NewString(module.VideoURL, module.VideoURL != ""),
		null.NewString(module.TextContent, module.TextContent != ""), module.CreatedAt,
	)
	if err != nil {
		return catalog.Module{}, errors.Wrap(trapErr(err, catalog.ErrCourseNotFound), "inserting module")
	}
	return module, nil
}

func (repo *catalogRepository) GetModule(ctx context.Context, id string) (catalog.Module, error) {
	var row moduleRow
	if err := sqlx.GetContext(ctx, repo.db, &row, `SELECT `+moduleColumns+` FROM modules WHERE id = $1`, id); err != nil {
		return catalog.Module{}, trapErr(err, catalog.ErrModuleNotFound)
	}
	return row.toModule(), nil
}

func (repo *catalogRepository) QueryModules(ctx context.Context, courseID string) ([]catalog.Module, error) {
	var rows []moduleRow
	q := `SELECT ` + moduleColumns + ` FROM modules WHERE course_id = $1 ORDER BY "order" ASC`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, courseID); err != nil {
		if trapErr(err, catalog.ErrCourseNotFound) == catalog.ErrCourseNotFound {
			return []catalog.Module{}, nil
		}
		return nil, errors.Wrap(err, "querying modules")
	}
	modules := make([]catalog.Module, 0, len(rows))
	for _, row := range rows {
		modules = append(modules, row.toModule())
	}
	return modules, nil
}

func (repo *catalogRepository) CountModules(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, repo.db, &count, `SELECT COUNT(*) FROM modules WHERE course_id = $1`, courseID); err != nil {
		if trapErr(err, catalog.ErrCourseNotFound) == catalog.ErrCourseNotFound {
			return 0, nil
		}
		return 0, errors.Wrap(err, "counting modules")
	}
	return count, nil
}
