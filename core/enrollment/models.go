package enrollment

import "time"

// Enrollment is the record that a user is registered in a course, and how far along they are.
type Enrollment struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CourseID    string     `json:"course_id"`
	IsActive    bool       `json:"is_active"`
	Progress    int        `json:"progress"` // 0..100
	EnrolledAt  time.Time  `json:"enrolled_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (e Enrollment) IsCompleted() bool {
	return e.CompletedAt != nil
}

// ModuleProgress records the completion of one module within an enrollment.
type ModuleProgress struct {
	ID           string     `json:"id"`
	EnrollmentID string     `json:"enrollment_id"`
	ModuleID     string     `json:"module_id"`
	IsCompleted  bool       `json:"is_completed"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// ComputeProgress returns floor(100 * completed / total), capped at 100.
// ok is false for a course without modules, whose progress is left untouched.
func ComputeProgress(completed, total int) (progress int, ok bool) {
	if total <= 0 {
		return 0, false
	}
	if completed >= total {
		return 100, true
	}
	return completed * 100 / total, true
}
