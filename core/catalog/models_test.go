package catalog_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/testutil"
)

func Test_Course_IsFree(t *testing.T) {
	tests := []struct {
		name   string
		course catalog.Course
		want   bool
	}{
		{name: "free type", course: catalog.Course{Type: catalog.CourseFree}, want: true},
		{name: "free type with a price", course: catalog.Course{Type: catalog.CourseFree, Price: decimal.RequireFromString("10")}, want: true},
		{name: "paid with zero price", course: catalog.Course{Type: catalog.CoursePaid, Price: decimal.Zero}, want: true},
		{name: "paid", course: catalog.Course{Type: catalog.CoursePaid, Price: decimal.RequireFromString("1999.00")}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.course.IsFree())
		})
	}
}

// failedTags maps each invalid field (by JSON name) to the tag it failed on.
func failedTags(t *testing.T, err error) map[string]string {
	t.Helper()
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	tags := make(map[string]string, len(vErrs))
	for _, vErr := range vErrs {
		tags[vErr.Field()] = vErr.Tag()
	}
	return tags
}

func Test_NewCourse_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	tests := []struct {
		name     string
		data     catalog.NewCourse
		wantTags map[string]string
	}{
		{name: "free", data: catalog.NewCourse{Title: " Go ", Type: catalog.CourseFree}},
		{name: "paid, type is cleaned", data: catalog.NewCourse{Title: "Go", Type: " PAID ", Price: decimal.RequireFromString("1999.00")}},
		{name: "missing fields", data: catalog.NewCourse{}, wantTags: map[string]string{"title": "required", "course_type": "required"}},
		{name: "unknown type", data: catalog.NewCourse{Title: "Go", Type: "lol"}, wantTags: map[string]string{"course_type": "coursetype"}},
		{
			name:     "negative price",
			data:     catalog.NewCourse{Title: "Go", Type: catalog.CoursePaid, Price: decimal.RequireFromString("-0.01")},
			wantTags: map[string]string{"price": "gte"},
		},
		{
			name:     "price too high",
			data:     catalog.NewCourse{Title: "Go", Type: catalog.CoursePaid, Price: decimal.RequireFromString("100000000")},
			wantTags: map[string]string{"price": "lt"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			err := data.Validate(validate)
			assert.Equal(t, tt.wantTags, failedTags(t, err))
		})
	}
}

func Test_NewCourse_Validate_cleans(t *testing.T) {
	validate, _ := testutil.NewValidator()

	nc := catalog.NewCourse{Title: "  Go\tin Depth ", Type: " Paid", Price: decimal.RequireFromString("1999.999")}
	require.NoError(t, nc.Validate(validate))
	assert.Equal(t, catalog.CoursePaid, nc.Type)
	assert.Equal(t, "2000.00", nc.Price.StringFixed(2))
}

func Test_NewModule_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	valid := catalog.NewModule{CourseID: "course", Title: "Intro", Type: catalog.ModuleVideo, Order: 1, VideoURL: "https://videos.test/intro.mp4"}
	with := func(update func(nm *catalog.NewModule)) catalog.NewModule {
		nm := valid
		update(&nm)
		return nm
	}

	tests := []struct {
		name     string
		data     catalog.NewModule
		wantTags map[string]string
	}{
		{name: "valid", data: valid},
		{name: "type is cleaned", data: with(func(nm *catalog.NewModule) { nm.Type = " QUIZ " })},
		{name: "no course", data: with(func(nm *catalog.NewModule) { nm.CourseID = " " }), wantTags: map[string]string{"course_id": "required"}},
		{name: "unknown type", data: with(func(nm *catalog.NewModule) { nm.Type = "audio" }), wantTags: map[string]string{"module_type": "moduletype"}},
		{name: "zero order", data: with(func(nm *catalog.NewModule) { nm.Order = 0 }), wantTags: map[string]string{"order": "gt"}},
		{name: "negative duration", data: with(func(nm *catalog.NewModule) { nm.DurationMinutes = -5 }), wantTags: map[string]string{"duration_minutes": "gte"}},
		{name: "bad video url", data: with(func(nm *catalog.NewModule) { nm.VideoURL = "not a url" }), wantTags: map[string]string{"video_url": "url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			err := data.Validate(validate)
			assert.Equal(t, tt.wantTags, failedTags(t, err))
		})
	}
}
