package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/university-records-api/internal/models"
)

// ErrCapacityBelowEnrolled is returned when a capacity update would drop the
// limit under the current number of active enrollments.
var ErrCapacityBelowEnrolled = errors.New("capacity below enrolled count")

// CourseRepository handles persistence of catalog courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, code, title, credits, capacity, enrolled_count, active, professor_id, grade_scale_id, created_at, updated_at`

// Create inserts a new course and assigns its ID.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	course.ID = uuid.NewString()
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	course.Active = true
	_, err := r.db.NamedExecContext(ctx, `
        INSERT INTO courses (id, code, title, credits, capacity, enrolled_count, active, professor_id, grade_scale_id, created_at, updated_at)
        VALUES (:id, :code, :title, :credits, :capacity, 0, :active, :professor_id, :grade_scale_id, :created_at, :updated_at)`, course)
	if err != nil {
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its catalog code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course,
		`SELECT `+courseColumns+` FROM courses WHERE code = $1`, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// Update persists mutable course fields. The WHERE guard rejects capacity
// reductions below the current enrolled count without racing concurrent
// admissions. Returns ErrCapacityBelowEnrolled when the guard fires on an
// existing row.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	result, err := r.db.NamedExecContext(ctx, `
        UPDATE courses SET code = :code, title = :title, credits = :credits,
            capacity = :capacity, active = :active, professor_id = :professor_id,
            grade_scale_id = :grade_scale_id, updated_at = :updated_at
        WHERE id = :id AND (CAST(:capacity AS int) IS NULL OR :capacity >= enrolled_count)`, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course rows: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1)`, course.ID); err != nil {
			return fmt.Errorf("check course exists: %w", err)
		}
		if exists {
			return ErrCapacityBelowEnrolled
		}
		return fmt.Errorf("course %s not found", course.ID)
	}
	return nil
}

// SetActive toggles a course's availability for admission.
func (r *CourseRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE courses SET active = $2, updated_at = $3 WHERE id = $1`,
		id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set course active: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set course active rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("course %s not found", id)
	}
	return nil
}

// List returns courses matching the filter with pagination metadata.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var conditions []string
	var args []interface{}

	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR title ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]bool{"code": true, "title": true, "credits": true, "created_at": true}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT `+courseColumns+` FROM courses%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		clause, sortBy, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM courses"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}
