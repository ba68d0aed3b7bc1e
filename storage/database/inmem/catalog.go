package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/catalog"
)

var defaultCourseOrdering = []core.DBOrdering{{Field: "created_at", Ascending: false}}

type catalogRepository struct {
	db *catalogTable
}

var _ catalog.Repository = (*catalogRepository)(nil)

func NewCatalogRepository(db *DB) catalog.Repository {
	return &catalogRepository{db: db.catalog}
}

func (repo *catalogRepository) CreateCourse(_ context.Context, course catalog.Course) (catalog.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	course.ID = uuid.New().String()
	repo.db.courses[course.ID] = &course
	return course, nil
}

func (repo *catalogRepository) GetCourse(_ context.Context, id string) (catalog.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if course, ok := repo.db.courses[id]; ok {
		return *course, nil
	}
	return catalog.Course{}, catalog.ErrCourseNotFound
}

func (repo *catalogRepository) QueryCourses(_ context.Context, filter catalog.QueryFilter, ordering ...core.DBOrdering) ([]catalog.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	courses := make([]catalog.Course, 0, len(repo.db.courses))
	for _, course := range repo.db.courses {
		if !filter.IncludeInactive && !course.IsActive {
			continue
		}
		if filter.Type != "" && string(course.Type) != filter.Type {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(course.Title), search) &&
			!strings.Contains(strings.ToLower(course.ShortDescription), search) {
			continue
		}
		courses = append(courses, *course)
	}

	if len(ordering) == 0 {
		ordering = defaultCourseOrdering
	}
	sort.SliceStable(courses, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareCourses(courses[i], courses[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return courses[i].ID < courses[j].ID
	})
	return courses, nil
}

func compareCourses(a, b catalog.Course, field string) int {
	switch field {
	case "title":
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case "price":
		return a.Price.Cmp(b.Price)
	case "created_at":
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		}
	}
	return 0
}

func (repo *catalogRepository) CreateModule(_ context.Context, module catalog.Module) (catalog.Module, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[module.CourseID]; !ok {
		return catalog.Module{}, catalog.ErrCourseNotFound
	}
	for _, mod := range repo.db.modules {
		if mod.CourseID == module.CourseID && mod.Order == module.Order {
			return catalog.Module{}, core.ErrConflict
		}
	}
	module.ID = uuid.New().String()
	repo.db.modules[module.ID] = &module
	return module, nil
}

func (repo *catalogRepository) GetModule(_ context.Context, id string) (catalog.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if mod, ok := repo.db.modules[id]; ok {
		return *mod, nil
	}
	return catalog.Module{}, catalog.ErrModuleNotFound
}

func (repo *catalogRepository) QueryModules(_ context.Context, courseID string) ([]catalog.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	modules := make([]catalog.Module, 0)
	for _, mod := range repo.db.modules {
		if mod.CourseID == courseID {
			modules = append(modules, *mod)
		}
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Order < modules[j].Order })
	return modules, nil
}

func (repo *catalogRepository) CountModules(_ context.Context, courseID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, mod := range repo.db.modules {
		if mod.CourseID == courseID {
			count++
		}
	}
	return count, nil
}
