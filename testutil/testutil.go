package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/core/user"
	"github.com/trezcool/elimu/storage/database"
)

// TestDatabaseURLEnv names the variable holding the Postgres DSN used by database tests.
const TestDatabaseURLEnv = "TEST_DATABASE_URL"

// Epoch is the start time of test clocks.
var Epoch = time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC)

// Clock is a manually advanced core.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

var _ core.Clock = (*Clock)(nil)

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Logger discards everything, but remembers error messages.
type Logger struct {
	mu     sync.Mutex
	errors []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) Debug(string, ...interface{}) {}
func (l *Logger) Info(string, ...interface{})  {}
func (l *Logger) Warn(string, ...interface{})  {}
func (l *Logger) Fatal(string, ...interface{}) {}

func (l *Logger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *Logger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

// NewConfig returns a TEST configuration that does not read the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:         "Elimu",
		Env:             "TEST",
		Build:           "test",
		TestMode:        true,
		SecretKey:       "test-secret-key",
		FrontendBaseURL: "http://localhost:3000",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
		Payment: core.PaymentConfig{Currency: "INR"},
	}
}

// NewValidator returns a validator with every custom rule registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	catalog.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(t *testing.T, svc user.Service, name, username, email, pwd string, roles ...string) user.User {
	t.Helper()
	if len(roles) == 0 {
		roles = user.StudentRoles
	}
	usr, err := svc.Create(context.Background(), user.NewUser{
		Name:            name,
		Username:        username,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse creates an active course. An empty or zero price makes it free.
func CreateCourse(t *testing.T, svc catalog.Service, title, price string) catalog.Course {
	t.Helper()
	nc := catalog.NewCourse{Title: title, Type: catalog.CourseFree}
	if price != "" {
		nc.Price = decimal.RequireFromString(price)
		if !nc.Price.IsZero() {
			nc.Type = catalog.CoursePaid
		}
	}
	course, err := svc.CreateCourse(context.Background(), nc)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return course
}

// AddModules adds n text modules ordered 1..n to a course.
func AddModules(t *testing.T, svc catalog.Service, courseID string, n int) []catalog.Module {
	t.Helper()
	modules := make([]catalog.Module, 0, n)
	for i := 1; i <= n; i++ {
		mod, err := svc.AddModule(context.Background(), catalog.NewModule{
			CourseID: courseID,
			Title:    "Module " + string(rune('A'+i-1)),
			Type:     catalog.ModuleText,
			Order:    i,
		})
		if err != nil {
			t.Fatalf("AddModule() failed: %v", err)
		}
		modules = append(modules, mod)
	}
	return modules
}

// PrepareDB connects to the test database, migrates it and empties every table.
// The test is skipped when TEST_DATABASE_URL is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv(TestDatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s not set", TestDatabaseURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := database.OpenURL(ctx, dsn)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	if _, err = db.Exec(`TRUNCATE users, courses, modules, enrollments, module_progress, payments CASCADE`); err != nil {
		t.Fatalf("truncating test database: %v", err)
	}
	return db
}
