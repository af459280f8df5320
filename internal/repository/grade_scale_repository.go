package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/university-records-api/internal/models"
)

// GradeScaleRepository persists grading scales. Band tables are stored as a
// jsonb column since they are always read and written whole.
type GradeScaleRepository struct {
	db *sqlx.DB
}

// NewGradeScaleRepository constructs the repository.
func NewGradeScaleRepository(db *sqlx.DB) *GradeScaleRepository {
	return &GradeScaleRepository{db: db}
}

type gradeScaleRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	MaxScore     float64   `db:"max_score"`
	PassingGrade float64   `db:"passing_grade"`
	Bands        []byte    `db:"bands"`
	CreatedBy    *string   `db:"created_by"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row *gradeScaleRow) toModel() (*models.GradeScale, error) {
	scale := &models.GradeScale{
		ID:           row.ID,
		Name:         row.Name,
		MaxScore:     row.MaxScore,
		PassingGrade: row.PassingGrade,
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
	}
	if err := json.Unmarshal(row.Bands, &scale.Bands); err != nil {
		return nil, fmt.Errorf("decode scale bands: %w", err)
	}
	return scale, nil
}

// Create inserts a grade scale and assigns its ID.
func (r *GradeScaleRepository) Create(ctx context.Context, scale *models.GradeScale) error {
	bands, err := json.Marshal(scale.Bands)
	if err != nil {
		return fmt.Errorf("encode scale bands: %w", err)
	}
	scale.ID = uuid.NewString()
	scale.CreatedAt = time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `
        INSERT INTO grade_scales (id, name, max_score, passing_grade, bands, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		scale.ID, scale.Name, scale.MaxScore, scale.PassingGrade, bands, scale.CreatedBy, scale.CreatedAt); err != nil {
		return fmt.Errorf("insert grade scale: %w", err)
	}
	return nil
}

// FindByID returns a grade scale by its ID.
func (r *GradeScaleRepository) FindByID(ctx context.Context, id string) (*models.GradeScale, error) {
	var row gradeScaleRow
	if err := r.db.GetContext(ctx, &row,
		`SELECT id, name, max_score, passing_grade, bands, created_by, created_at
        FROM grade_scales WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// FindByName returns a grade scale by its unique name.
func (r *GradeScaleRepository) FindByName(ctx context.Context, name string) (*models.GradeScale, error) {
	var row gradeScaleRow
	if err := r.db.GetContext(ctx, &row,
		`SELECT id, name, max_score, passing_grade, bands, created_by, created_at
        FROM grade_scales WHERE name = $1`, name); err != nil {
		return nil, err
	}
	return row.toModel()
}

// List returns all stored grade scales ordered by name.
func (r *GradeScaleRepository) List(ctx context.Context) ([]models.GradeScale, error) {
	var rows []gradeScaleRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT id, name, max_score, passing_grade, bands, created_by, created_at
        FROM grade_scales ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list grade scales: %w", err)
	}
	scales := make([]models.GradeScale, 0, len(rows))
	for i := range rows {
		scale, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		scales = append(scales, *scale)
	}
	return scales, nil
}
