package models

import "time"

// TranscriptRow summarises one enrollment on a student's transcript.
type TranscriptRow struct {
	CourseCode  string           `json:"course_code"`
	CourseTitle string           `json:"course_title"`
	Credits     int              `json:"credits"`
	Status      EnrollmentStatus `json:"status"`
	Average     *float64         `json:"average,omitempty"`
	Letter      string           `json:"letter,omitempty"`
	Points      *float64         `json:"points,omitempty"`
}

// Transcript is the full academic record rendered for export.
type Transcript struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	Rows        []TranscriptRow `json:"rows"`
	Gpa         GpaResult       `json:"gpa"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// TranscriptExport references a rendered transcript file available for
// download through a signed URL.
type TranscriptExport struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Format    string    `json:"format"`
	FilePath  string    `json:"file_path"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
