package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive     EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
	EnrollmentStatusWithdrawn  EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
)

// enrollmentTransitions is the legal transition table. DROPPED, WITHDRAWN and
// COMPLETED are terminal.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusActive:     {EnrollmentStatusDropped, EnrollmentStatusWithdrawn, EnrollmentStatusCompleted},
	EnrollmentStatusWaitlisted: {EnrollmentStatusActive, EnrollmentStatusDropped},
}

// Valid reports whether the status is a known lifecycle state.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusWaitlisted, EnrollmentStatusDropped,
		EnrollmentStatusWithdrawn, EnrollmentStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from the status.
func (s EnrollmentStatus) Terminal() bool {
	return len(enrollmentTransitions[s]) == 0 && s.Valid()
}

// CanTransitionTo reports whether the transition s -> next is legal.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Enrollment captures a student's seat (or waitlist spot) in a course.
// Rows are never deleted; dropped and withdrawn enrollments remain for
// transcript history.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	Term       *string          `db:"term" json:"term,omitempty"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	LeftAt     *time.Time       `db:"left_at" json:"left_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Term      string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
