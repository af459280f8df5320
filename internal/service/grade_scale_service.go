package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/pkg/config"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
)

type gradeScaleRepository interface {
	Create(ctx context.Context, scale *models.GradeScale) error
	FindByID(ctx context.Context, id string) (*models.GradeScale, error)
	FindByName(ctx context.Context, name string) (*models.GradeScale, error)
	List(ctx context.Context) ([]models.GradeScale, error)
}

// CreateGradeScaleRequest describes a custom grading scale.
type CreateGradeScaleRequest struct {
	Name         string             `json:"name" validate:"required,min=2,max=64"`
	MaxScore     float64            `json:"max_score"`
	PassingGrade float64            `json:"passing_grade" validate:"gte=0"`
	Bands        []models.GradeBand `json:"bands" validate:"required,min=1"`
}

// GradeScaleService manages grading scales and resolves the scale in effect
// for a course.
type GradeScaleService struct {
	repo      gradeScaleRepository
	cfg       config.GradingConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeScaleService constructs GradeScaleService.
func NewGradeScaleService(repo gradeScaleRepository, cfg config.GradingConfig, validate *validator.Validate, logger *zap.Logger) *GradeScaleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeScaleService{repo: repo, cfg: cfg, validator: validate, logger: logger}
}

// List returns all stored scales plus the built-in defaults.
func (s *GradeScaleService) List(ctx context.Context) ([]models.GradeScale, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade scales")
	}
	scales := []models.GradeScale{*models.PercentageScale(), *models.CreditScale()}
	scales = append(scales, stored...)
	return scales, nil
}

// Get returns a stored scale by ID.
func (s *GradeScaleService) Get(ctx context.Context, id string) (*models.GradeScale, error) {
	scale, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade scale not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade scale")
	}
	return scale, nil
}

// Create validates and stores a custom scale. An omitted max score falls back
// to the configured grading maximum.
func (s *GradeScaleService) Create(ctx context.Context, req CreateGradeScaleRequest, createdBy string) (*models.GradeScale, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade scale payload")
	}
	if req.Name == models.ScalePercentage || req.Name == models.ScaleCredit {
		return nil, appErrors.Clone(appErrors.ErrConflict, "scale name reserved for a built-in scale")
	}
	if _, err := s.repo.FindByName(ctx, req.Name); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "grade scale name already in use")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grade scale name")
	}

	maxScore := req.MaxScore
	if maxScore <= 0 {
		maxScore = s.cfg.MaxScore
	}
	scale := &models.GradeScale{
		Name:         req.Name,
		MaxScore:     maxScore,
		PassingGrade: req.PassingGrade,
		Bands:        req.Bands,
		CreatedBy:    &createdBy,
	}
	if err := scale.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if err := s.repo.Create(ctx, scale); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade scale")
	}
	s.logger.Info("grade scale created", zap.String("scale_id", scale.ID), zap.String("name", scale.Name))
	return scale, nil
}

// ResolveByID returns the scale for the given ID, or the configured default
// scale when the ID is nil.
func (s *GradeScaleService) ResolveByID(ctx context.Context, id *string) (*models.GradeScale, error) {
	if id == nil || *id == "" {
		return s.defaultScale(), nil
	}
	scale, err := s.repo.FindByID(ctx, *id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade scale not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade scale")
	}
	return scale, nil
}

// Resolve returns the scale in effect for the course.
func (s *GradeScaleService) Resolve(ctx context.Context, course *models.Course) (*models.GradeScale, error) {
	if course == nil {
		return s.defaultScale(), nil
	}
	return s.ResolveByID(ctx, course.GradeScaleID)
}

func (s *GradeScaleService) defaultScale() *models.GradeScale {
	var scale *models.GradeScale
	switch s.cfg.DefaultScale {
	case models.ScaleCredit:
		scale = models.CreditScale()
	default:
		scale = models.PercentageScale()
	}
	if s.cfg.PassingGrade > 0 && s.cfg.PassingGrade <= scale.MaxScore {
		scale.PassingGrade = s.cfg.PassingGrade
	}
	return scale
}
