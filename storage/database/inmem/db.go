package inmemdb

import (
	"sync"

	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/payment"
	"github.com/trezcool/elimu/core/user"
)

type (
	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	catalogTable struct {
		mutex   sync.RWMutex
		courses map[string]*catalog.Course
		modules map[string]*catalog.Module
	}

	// enrollmentTable holds enrollments and their module progress under one lock,
	// so that deleting an enrollment cascades atomically.
	enrollmentTable struct {
		mutex       sync.RWMutex
		enrollments map[string]*enrollment.Enrollment
		progress    map[string]*enrollment.ModuleProgress
	}

	paymentTable struct {
		mutex sync.RWMutex
		table map[string]*payment.Payment // keyed by OrderRef
	}

	// DB is a process-local store with the same uniqueness guarantees as the Postgres schema.
	DB struct {
		user       *userTable
		catalog    *catalogTable
		enrollment *enrollmentTable
		payment    *paymentTable
	}
)

func NewDB() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		catalog: &catalogTable{
			courses: make(map[string]*catalog.Course),
			modules: make(map[string]*catalog.Module),
		},
		enrollment: &enrollmentTable{
			enrollments: make(map[string]*enrollment.Enrollment),
			progress:    make(map[string]*enrollment.ModuleProgress),
		},
		payment: &paymentTable{table: make(map[string]*payment.Payment)},
	}
}
