package catalog

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/elimu/core"
)

type CourseType string

const (
	CourseFree CourseType = "free"
	CoursePaid CourseType = "paid"
)

type ModuleType string

const (
	ModuleVideo ModuleType = "video"
	ModuleText  ModuleType = "text"
	ModulePDF   ModuleType = "pdf"
	ModuleQuiz  ModuleType = "quiz"
)

var (
	CourseTypes = []CourseType{CourseFree, CoursePaid}
	ModuleTypes = []ModuleType{ModuleVideo, ModuleText, ModulePDF, ModuleQuiz}
)

type Course struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	ShortDescription string          `json:"short_description"`
	Type             CourseType      `json:"course_type"`
	Price            decimal.Decimal `json:"price"`
	IsActive         bool            `json:"is_active"`
	CreatedBy        string          `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsFree reports whether the course can be enrolled in without a payment.
// A paid course with a zero price is free.
func (c Course) IsFree() bool {
	return c.Type == CourseFree || c.Price.IsZero()
}

type Module struct {
	ID              string     `json:"id"`
	CourseID        string     `json:"course_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Type            ModuleType `json:"module_type"`
	Order           int        `json:"order"`
	DurationMinutes int        `json:"duration_minutes"`
	IsPreview       bool       `json:"is_preview"`
	VideoURL        string     `json:"video_url,omitempty"`
	TextContent     string     `json:"text_content,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title            string          `json:"title" validate:"required,max=200"`
	Description      string          `json:"description"`
	ShortDescription string          `json:"short_description" validate:"max=500"`
	Type             CourseType      `json:"course_type" validate:"required,coursetype"`
	Price            decimal.Decimal `json:"price" validate:"gte=0,lt=100000000"`
	IsActive         *bool           `json:"is_active"`
	CreatedBy        string          `json:"-"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.ShortDescription = core.CleanString(nc.ShortDescription)
	nc.Type = CourseType(core.CleanString(string(nc.Type), true /* lower */))
	nc.Price = nc.Price.Round(2)
	return validate.Struct(nc)
}

// NewModule contains information needed to add a Module to a Course.
type NewModule struct {
	CourseID        string     `json:"course_id" validate:"required"`
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description"`
	Type            ModuleType `json:"module_type" validate:"required,moduletype"`
	Order           int        `json:"order" validate:"gt=0"`
	DurationMinutes int        `json:"duration_minutes" validate:"gte=0"`
	IsPreview       bool       `json:"is_preview"`
	VideoURL        string     `json:"video_url" validate:"omitempty,url"`
	TextContent     string     `json:"text_content"`
}

func (nm *NewModule) Validate(validate *validator.Validate) error {
	nm.CourseID = core.CleanString(nm.CourseID)
	nm.Title = core.CleanString(nm.Title)
	nm.Description = core.CleanString(nm.Description)
	nm.Type = ModuleType(core.CleanString(string(nm.Type), true /* lower */))
	nm.VideoURL = core.CleanString(nm.VideoURL)
	return validate.Struct(nm)
}

type QueryFilter struct {
	Search          string `query:"search"`
	Type            string `query:"type"`
	IncludeInactive bool   `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Type = core.CleanString(qf.Type, true /* lower */)
}
