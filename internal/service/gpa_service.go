package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/pkg/config"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
)

type studentAverageReader interface {
	AveragesForStudent(ctx context.Context, studentID string) ([]models.EnrollmentAverage, error)
}

type scaleByIDResolver interface {
	ResolveByID(ctx context.Context, id *string) (*models.GradeScale, error)
}

type gpaCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const gpaCacheKeyPattern = "gpa:student:*"

func gpaCacheKey(studentID string) string {
	return "gpa:student:" + studentID
}

// GpaService computes the credit-weighted grade point average across a
// student's graded enrollments. Results are cached and invalidated on every
// grade or enrollment write.
type GpaService struct {
	grades  studentAverageReader
	users   userReader
	scales  scaleByIDResolver
	cache   gpaCache
	metrics *MetricsService
	cfg     config.GpaConfig
	logger  *zap.Logger
}

// NewGpaService constructs GpaService.
func NewGpaService(grades studentAverageReader, users userReader, scales scaleByIDResolver, cache gpaCache, metrics *MetricsService, cfg config.GpaConfig, logger *zap.Logger) *GpaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GpaService{grades: grades, users: users, scales: scales, cache: cache, metrics: metrics, cfg: cfg, logger: logger}
}

// Compute returns the student's GPA. Enrollments without grades are excluded
// from both the numerator and the credit total, so an all-ungraded student
// reports a zero GPA with a zero graded-enrollment count rather than a
// misleading 0.0 average.
func (s *GpaService) Compute(ctx context.Context, studentID string) (*models.GpaResult, error) {
	key := gpaCacheKey(studentID)
	if s.cache != nil {
		var cached models.GpaResult
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("gpa cache read failed", zap.String("student_id", studentID), zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "user is not a student")
	}

	rows, err := s.grades.AveragesForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graded enrollments")
	}

	var weighted float64
	var credits int
	var graded int
	for _, row := range rows {
		if row.Average == nil || row.Credits <= 0 {
			continue
		}
		scale, err := s.scales.ResolveByID(ctx, row.GradeScaleID)
		if err != nil {
			return nil, err
		}
		_, points, err := scale.Classify(*row.Average)
		if err != nil {
			return nil, err
		}
		weighted += points * float64(row.Credits)
		credits += row.Credits
		graded++
	}

	result := &models.GpaResult{
		StudentID:             studentID,
		GradedEnrollmentCount: graded,
		TotalCredits:          credits,
		ComputedAt:            time.Now().UTC(),
	}
	if credits > 0 {
		result.Gpa = weighted / float64(credits)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("gpa cache write failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return result, nil
}

// Invalidate drops the cached GPA for the student.
func (s *GpaService) Invalidate(ctx context.Context, studentID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, gpaCacheKey(studentID))
}

// InvalidateAll drops every cached GPA. Catalog changes that shift course
// credits or grading scales stale every student at once, so per-student
// invalidation does not apply.
func (s *GpaService) InvalidateAll(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteByPattern(ctx, gpaCacheKeyPattern)
}
