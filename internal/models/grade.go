package models

import "time"

// GradeCategory classifies the assignment a score belongs to.
type GradeCategory string

const (
	GradeCategoryExam       GradeCategory = "EXAM"
	GradeCategoryAssignment GradeCategory = "ASSIGNMENT"
	GradeCategoryQuiz       GradeCategory = "QUIZ"
	GradeCategoryProject    GradeCategory = "PROJECT"
)

// Valid reports whether the category is one of the known assignment kinds.
func (c GradeCategory) Valid() bool {
	switch c {
	case GradeCategoryExam, GradeCategoryAssignment, GradeCategoryQuiz, GradeCategoryProject:
		return true
	}
	return false
}

// GradeRecord stores one graded assignment for an enrollment. Letter and
// Points are derived from Score under the scale in effect at grading time and
// are recomputed on every write.
type GradeRecord struct {
	ID           string        `db:"id" json:"id"`
	EnrollmentID string        `db:"enrollment_id" json:"enrollment_id"`
	Category     GradeCategory `db:"category" json:"category"`
	Label        string        `db:"label" json:"label"`
	Score        float64       `db:"score" json:"score"`
	Letter       string        `db:"letter" json:"letter"`
	Points       float64       `db:"points" json:"points"`
	GradedBy     string        `db:"graded_by" json:"graded_by"`
	Comment      *string       `db:"comment" json:"comment,omitempty"`
	GradedAt     time.Time     `db:"graded_at" json:"graded_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// GradeFilter allows querying of grade records.
type GradeFilter struct {
	EnrollmentID string
	Category     GradeCategory
	GradedBy     string
}

// EnrollmentAverage is the per-enrollment aggregate feeding GPA computation.
// Average is nil when the enrollment has no recorded grades.
type EnrollmentAverage struct {
	EnrollmentID string   `db:"enrollment_id" json:"enrollment_id"`
	CourseID     string   `db:"course_id" json:"course_id"`
	CourseCode   string   `db:"course_code" json:"course_code"`
	CourseTitle  string   `db:"course_title" json:"course_title"`
	Credits      int      `db:"credits" json:"credits"`
	GradeScaleID *string  `db:"grade_scale_id" json:"grade_scale_id,omitempty"`
	Average      *float64 `db:"average" json:"average,omitempty"`
	GradeCount   int      `db:"grade_count" json:"grade_count"`
}

// GpaResult reports the credit-weighted GPA together with the number of
// graded enrollments, so a true 0.0 GPA is distinguishable from "no grades".
type GpaResult struct {
	StudentID             string    `json:"student_id"`
	Gpa                   float64   `json:"gpa"`
	GradedEnrollmentCount int       `json:"graded_enrollment_count"`
	TotalCredits          int       `json:"total_credits"`
	ComputedAt            time.Time `json:"computed_at"`
}
