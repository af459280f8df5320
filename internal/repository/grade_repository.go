package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/university-records-api/internal/models"
)

// GradeRepository handles persistence of grade records and the score
// aggregates that feed course averages and GPA computation.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `id, enrollment_id, category, label, score, letter, points, graded_by, comment, graded_at, updated_at`

// Create inserts a grade record and assigns its ID.
func (r *GradeRepository) Create(ctx context.Context, grade *models.GradeRecord) error {
	grade.ID = uuid.NewString()
	now := time.Now().UTC()
	grade.GradedAt = now
	grade.UpdatedAt = now
	_, err := r.db.NamedExecContext(ctx, `
        INSERT INTO grades (id, enrollment_id, category, label, score, letter, points, graded_by, comment, graded_at, updated_at)
        VALUES (:id, :enrollment_id, :category, :label, :score, :letter, :points, :graded_by, :comment, :graded_at, :updated_at)`, grade)
	if err != nil {
		return fmt.Errorf("insert grade: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing grade record.
func (r *GradeRepository) Update(ctx context.Context, grade *models.GradeRecord) error {
	grade.UpdatedAt = time.Now().UTC()
	result, err := r.db.NamedExecContext(ctx, `
        UPDATE grades SET category = :category, label = :label, score = :score,
            letter = :letter, points = :points, comment = :comment, updated_at = :updated_at
        WHERE id = :id`, grade)
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update grade rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("grade %s not found", grade.ID)
	}
	return nil
}

// FindByID returns a grade record by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.GradeRecord, error) {
	var grade models.GradeRecord
	if err := r.db.GetContext(ctx, &grade,
		`SELECT `+gradeColumns+` FROM grades WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// List returns grade records matching the filter, newest first.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.GradedBy != "" {
		conditions = append(conditions, fmt.Sprintf("graded_by = $%d", len(args)+1))
		args = append(args, filter.GradedBy)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var grades []models.GradeRecord
	query := `SELECT ` + gradeColumns + ` FROM grades` + clause + ` ORDER BY graded_at DESC`
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// AverageForEnrollment returns the mean score across an enrollment's grades,
// or nil when none are recorded.
func (r *GradeRepository) AverageForEnrollment(ctx context.Context, enrollmentID string) (*float64, int, error) {
	var row struct {
		Average *float64 `db:"average"`
		Count   int      `db:"grade_count"`
	}
	if err := r.db.GetContext(ctx, &row,
		`SELECT AVG(score) AS average, COUNT(*) AS grade_count FROM grades WHERE enrollment_id = $1`,
		enrollmentID); err != nil {
		return nil, 0, fmt.Errorf("enrollment average: %w", err)
	}
	return row.Average, row.Count, nil
}

// AverageForCourse returns the mean of per-enrollment averages over a course's
// ACTIVE and COMPLETED enrollments. Averaging per enrollment first keeps a
// heavily graded student from outweighing the rest.
func (r *GradeRepository) AverageForCourse(ctx context.Context, courseID string) (*float64, int, error) {
	const query = `SELECT AVG(t.average) AS average, COUNT(*) AS graded_count FROM (
            SELECT AVG(g.score) AS average
            FROM enrollments e
            JOIN grades g ON g.enrollment_id = e.id
            WHERE e.course_id = $1 AND e.status IN ($2, $3)
            GROUP BY e.id
        ) t`
	var row struct {
		Average *float64 `db:"average"`
		Count   int      `db:"graded_count"`
	}
	if err := r.db.GetContext(ctx, &row, query,
		courseID, models.EnrollmentStatusActive, models.EnrollmentStatusCompleted); err != nil {
		return nil, 0, fmt.Errorf("course average: %w", err)
	}
	return row.Average, row.Count, nil
}

// AveragesForStudent returns one aggregate row per enrollment of the student,
// including enrollments with no grades yet, with course credits and scale for
// GPA weighting.
func (r *GradeRepository) AveragesForStudent(ctx context.Context, studentID string) ([]models.EnrollmentAverage, error) {
	const query = `SELECT e.id AS enrollment_id, c.id AS course_id, c.code AS course_code,
            c.title AS course_title, c.credits, c.grade_scale_id,
            AVG(g.score) AS average, COUNT(g.id) AS grade_count
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        LEFT JOIN grades g ON g.enrollment_id = e.id
        WHERE e.student_id = $1 AND e.status IN ($2, $3)
        GROUP BY e.id, c.id
        ORDER BY c.code ASC`
	var rows []models.EnrollmentAverage
	if err := r.db.SelectContext(ctx, &rows, query,
		studentID, models.EnrollmentStatusActive, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("student averages: %w", err)
	}
	return rows, nil
}
