package catalog

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

var (
	// errors
	ErrCourseNotFound       = errors.New("course not found")
	ErrModuleNotFound       = errors.New("module not found")
	ErrDuplicateModuleOrder = errors.New("a module with this order already exists in the course")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, course Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Course.Title or Course.ShortDescription.
		QueryCourses(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Course, error)
		// CreateModule returns core.ErrConflict when the course already has a module at that order.
		CreateModule(ctx context.Context, module Module) (Module, error)
		GetModule(ctx context.Context, id string) (Module, error)
		// QueryModules lists the modules of a course by ascending Module.Order.
		QueryModules(ctx context.Context, courseID string) ([]Module, error)
		CountModules(ctx context.Context, courseID string) (int, error)
	}

	Service interface {
		CreateCourse(ctx context.Context, nc NewCourse) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// GetActiveCourse is GetCourse for learners: inactive courses are not found.
		GetActiveCourse(ctx context.Context, id string) (Course, error)
		ListCourses(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Course, error)
		AddModule(ctx context.Context, nm NewModule) (Module, error)
		GetModule(ctx context.Context, id string) (Module, error)
		ListModules(ctx context.Context, courseID string) ([]Module, error)
		// CountModules is recomputed from storage on every call.
		CountModules(ctx context.Context, courseID string) (int, error)
	}

	service struct {
		repo  Repository
		clock core.Clock
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, clock core.Clock) Service {
	return &service{repo: repo, clock: clock}
}

func (svc *service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	now := svc.clock.Now()
	isActive := true
	if nc.IsActive != nil {
		isActive = *nc.IsActive
	}
	return svc.repo.CreateCourse(ctx, Course{
		Title:            nc.Title,
		Description:      nc.Description,
		ShortDescription: nc.ShortDescription,
		Type:             nc.Type,
		Price:            nc.Price,
		IsActive:         isActive,
		CreatedBy:        nc.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

func (svc *service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *service) GetActiveCourse(ctx context.Context, id string) (Course, error) {
	course, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !course.IsActive {
		return Course{}, ErrCourseNotFound
	}
	return course, nil
}

func (svc *service) ListCourses(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter, ordering...)
}

func (svc *service) AddModule(ctx context.Context, nm NewModule) (Module, error) {
	if _, err := svc.repo.GetCourse(ctx, nm.CourseID); err != nil {
		return Module{}, err
	}
	mod, err := svc.repo.CreateModule(ctx, Module{
		CourseID:        nm.CourseID,
		Title:           nm.Title,
		Description:     nm.Description,
		Type:            nm.Type,
		Order:           nm.Order,
		DurationMinutes: nm.DurationMinutes,
		IsPreview:       nm.IsPreview,
		VideoURL:        nm.VideoURL,
		TextContent:     nm.TextContent,
		CreatedAt:       svc.clock.Now(),
	})
	if errors.Cause(err) == core.ErrConflict {
		return Module{}, ErrDuplicateModuleOrder
	}
	return mod, err
}

func (svc *service) GetModule(ctx context.Context, id string) (Module, error) {
	return svc.repo.GetModule(ctx, id)
}

func (svc *service) ListModules(ctx context.Context, courseID string) ([]Module, error) {
	return svc.repo.QueryModules(ctx, courseID)
}

func (svc *service) CountModules(ctx context.Context, courseID string) (int, error) {
	return svc.repo.CountModules(ctx, courseID)
}
