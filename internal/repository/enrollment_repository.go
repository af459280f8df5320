package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/university-records-api/internal/models"
)

// Sentinel errors surfaced by the admission-control transaction. The service
// layer maps them onto the API error taxonomy.
var (
	ErrCourseInactive    = errors.New("course inactive")
	ErrCourseFull        = errors.New("course at capacity")
	ErrInvalidTransition = errors.New("illegal enrollment transition")
	ErrNotEnrolled       = errors.New("enrollment already ended")
)

// IsSerializationFailure reports whether the error is a transient
// serialization or deadlock failure worth retrying.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// AdmissionResult is the outcome of an admission attempt.
type AdmissionResult struct {
	Enrollment models.Enrollment
	// Existing is true when an ACTIVE or WAITLISTED row for the pair was
	// already present and returned unchanged.
	Existing bool
}

// TransitionResult reports a status change together with any waitlist
// promotion performed in the same transaction.
type TransitionResult struct {
	Enrollment models.Enrollment
	Promoted   *models.Enrollment
}

// EnrollmentRepository handles persistence of enrollments and owns the
// course-seat critical section. Every read-count-then-write sequence runs
// inside one transaction holding the course row lock, so two concurrent
// admissions against the last seat cannot both succeed.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, course_id, term, status, enrolled_at, left_at`

// Admit performs the capacity-bounded admission decision for the pair.
// An existing ACTIVE or WAITLISTED enrollment is returned unchanged. When the
// course is full, the student is waitlisted if waitlist is true, otherwise
// ErrCourseFull is returned. Returns sql.ErrNoRows when the course is absent.
func (r *EnrollmentRepository) Admit(ctx context.Context, studentID, courseID string, term *string, waitlist bool) (*AdmissionResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin admission tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	course, err := lockCourse(ctx, tx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.Active {
		return nil, ErrCourseInactive
	}

	var existing models.Enrollment
	err = tx.GetContext(ctx, &existing,
		`SELECT `+enrollmentColumns+` FROM enrollments
        WHERE student_id = $1 AND course_id = $2 AND status IN ($3, $4) LIMIT 1`,
		studentID, courseID, models.EnrollmentStatusActive, models.EnrollmentStatusWaitlisted)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit admission tx: %w", err)
		}
		return &AdmissionResult{Enrollment: existing, Existing: true}, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check existing enrollment: %w", err)
	}

	status := models.EnrollmentStatusActive
	if !course.HasSeat() {
		if !waitlist {
			return nil, ErrCourseFull
		}
		status = models.EnrollmentStatusWaitlisted
	}

	enrollment := models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		CourseID:   courseID,
		Term:       term,
		Status:     status,
		EnrolledAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO enrollments (id, student_id, course_id, term, status, enrolled_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		enrollment.ID, enrollment.StudentID, enrollment.CourseID, enrollment.Term, enrollment.Status, enrollment.EnrolledAt); err != nil {
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	if status == models.EnrollmentStatusActive {
		if err := adjustSeatCount(ctx, tx, courseID, 1); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admission tx: %w", err)
	}
	return &AdmissionResult{Enrollment: enrollment}, nil
}

// Transition moves the enrollment to the requested status, adjusting the
// course seat counter symmetrically. When a seat frees and promote is true,
// the earliest WAITLISTED enrollment of the course is promoted to ACTIVE in
// the same transaction, leaving the seat count unchanged.
func (r *EnrollmentRepository) Transition(ctx context.Context, id string, next models.EnrollmentStatus, promote bool) (*TransitionResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Resolve the course first so the lock order matches Admit.
	var courseID string
	if err := tx.GetContext(ctx, &courseID, `SELECT course_id FROM enrollments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	course, err := lockCourse(ctx, tx, courseID)
	if err != nil {
		return nil, err
	}

	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	if enrollment.Status.Terminal() {
		return nil, ErrNotEnrolled
	}
	if !enrollment.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}

	if enrollment.Status == models.EnrollmentStatusWaitlisted && next == models.EnrollmentStatusActive {
		if !course.HasSeat() {
			return nil, ErrCourseFull
		}
	}

	prior := enrollment.Status
	now := time.Now().UTC()
	enrollment.Status = next
	var leftAt *time.Time
	if next == models.EnrollmentStatusDropped || next == models.EnrollmentStatusWithdrawn {
		leftAt = &now
	}
	enrollment.LeftAt = leftAt
	if _, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET status = $2, left_at = $3 WHERE id = $1`,
		id, next, leftAt); err != nil {
		return nil, fmt.Errorf("update enrollment status: %w", err)
	}

	result := &TransitionResult{Enrollment: enrollment}
	switch {
	case prior == models.EnrollmentStatusActive && next != models.EnrollmentStatusActive:
		promoted, err := promoteEarliestWaitlisted(ctx, tx, courseID, promote)
		if err != nil {
			return nil, err
		}
		result.Promoted = promoted
		if promoted == nil {
			if err := adjustSeatCount(ctx, tx, courseID, -1); err != nil {
				return nil, err
			}
		}
	case prior == models.EnrollmentStatusWaitlisted && next == models.EnrollmentStatusActive:
		if err := adjustSeatCount(ctx, tx, courseID, 1); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}
	return result, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with student and course context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.term, e.status, e.enrolled_at, e.left_at,
        u.full_name AS student_name, c.code AS course_code, c.title AS course_title
        FROM enrollments e
        LEFT JOIN users u ON u.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users u ON u.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Term != "" {
		conditions = append(conditions, fmt.Sprintf("e.term = $%d", len(args)+1))
		args = append(args, filter.Term)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "u.full_name",
		"course_code":  "c.code",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrolled_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.term, e.status, e.enrolled_at, e.left_at,
        u.full_name AS student_name, c.code AS course_code, c.title AS course_title
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListByStudent returns all enrollments for a student, newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 ORDER BY enrolled_at DESC`,
		studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// CountActiveByCourse returns the number of ACTIVE enrollments for a course.
func (r *EnrollmentRepository) CountActiveByCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2`,
		courseID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

func lockCourse(ctx context.Context, tx *sqlx.Tx, courseID string) (*models.Course, error) {
	var course models.Course
	if err := tx.GetContext(ctx, &course,
		`SELECT id, code, title, credits, capacity, enrolled_count, active, professor_id, grade_scale_id, created_at, updated_at
        FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		return nil, err
	}
	return &course, nil
}

func adjustSeatCount(ctx context.Context, tx *sqlx.Tx, courseID string, delta int) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE courses SET enrolled_count = enrolled_count + $2, updated_at = $3 WHERE id = $1`,
		courseID, delta, time.Now().UTC()); err != nil {
		return fmt.Errorf("adjust seat count: %w", err)
	}
	return nil
}

func promoteEarliestWaitlisted(ctx context.Context, tx *sqlx.Tx, courseID string, promote bool) (*models.Enrollment, error) {
	if !promote {
		return nil, nil
	}
	var candidate models.Enrollment
	err := tx.GetContext(ctx, &candidate,
		`SELECT `+enrollmentColumns+` FROM enrollments
        WHERE course_id = $1 AND status = $2 ORDER BY enrolled_at ASC LIMIT 1 FOR UPDATE`,
		courseID, models.EnrollmentStatusWaitlisted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find waitlisted enrollment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET status = $2, left_at = NULL WHERE id = $1`,
		candidate.ID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("promote waitlisted enrollment: %w", err)
	}
	candidate.Status = models.EnrollmentStatusActive
	candidate.LeftAt = nil
	return &candidate, nil
}
