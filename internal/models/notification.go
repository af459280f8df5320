package models

import "time"

// NotificationKind labels the event that produced a notification.
type NotificationKind string

const (
	NotificationKindGradePosted      NotificationKind = "GRADE_POSTED"
	NotificationKindEnrollmentStatus NotificationKind = "ENROLLMENT_STATUS"
)

// Notification is a fire-and-forget message delivered to a user after grade
// posting or an enrollment status change.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	CourseID    *string          `db:"course_id" json:"course_id,omitempty"`
	Kind        NotificationKind `db:"kind" json:"kind"`
	Message     string           `db:"message" json:"message"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
