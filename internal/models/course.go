package models

import "time"

// Course represents a catalog entry students enroll into. Capacity is nil for
// unlimited courses; EnrolledCount mirrors the number of ACTIVE enrollments
// and is only mutated under the course row lock.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	Title         string    `db:"title" json:"title"`
	Credits       int       `db:"credits" json:"credits"`
	Capacity      *int      `db:"capacity" json:"capacity,omitempty"`
	EnrolledCount int       `db:"enrolled_count" json:"enrolled_count"`
	Active        bool      `db:"active" json:"active"`
	ProfessorID   *string   `db:"professor_id" json:"professor_id,omitempty"`
	GradeScaleID  *string   `db:"grade_scale_id" json:"grade_scale_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// HasSeat reports whether the course can admit one more active enrollment.
func (c *Course) HasSeat() bool {
	if c.Capacity == nil {
		return true
	}
	return c.EnrolledCount < *c.Capacity
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	ProfessorID string
	Active      *bool
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
