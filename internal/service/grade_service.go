package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/university-records-api/internal/models"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
)

type gradeRepository interface {
	Create(ctx context.Context, grade *models.GradeRecord) error
	Update(ctx context.Context, grade *models.GradeRecord) error
	FindByID(ctx context.Context, id string) (*models.GradeRecord, error)
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeRecord, error)
	AverageForEnrollment(ctx context.Context, enrollmentID string) (*float64, int, error)
	AverageForCourse(ctx context.Context, courseID string) (*float64, int, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type scaleResolver interface {
	Resolve(ctx context.Context, course *models.Course) (*models.GradeScale, error)
}

type gradeNotifier interface {
	GradePosted(ctx context.Context, studentID string, courseID string, letter string)
}

// RecordGradeRequest describes a new graded assignment.
type RecordGradeRequest struct {
	EnrollmentID string               `json:"enrollment_id" validate:"required"`
	Category     models.GradeCategory `json:"category" validate:"required"`
	Label        string               `json:"label" validate:"required,max=128"`
	Score        float64              `json:"score"`
	Comment      *string              `json:"comment,omitempty"`
}

// UpdateGradeRequest describes a grade correction. Nil fields keep the stored
// value; the letter and points are always re-derived from the current scale.
type UpdateGradeRequest struct {
	Category *models.GradeCategory `json:"category,omitempty"`
	Label    *string               `json:"label,omitempty" validate:"omitempty,max=128"`
	Score    *float64              `json:"score,omitempty"`
	Comment  *string               `json:"comment,omitempty"`
}

// AverageSummary reports a mean score classified under the relevant scale.
type AverageSummary struct {
	Average    *float64 `json:"average,omitempty"`
	GradeCount int      `json:"grade_count"`
	Letter     string   `json:"letter,omitempty"`
	Points     *float64 `json:"points,omitempty"`
	Passing    *bool    `json:"passing,omitempty"`
}

// GradeService records and corrects grades, deriving letters and grade points
// from the scale in effect for the course at write time.
type GradeService struct {
	repo        gradeRepository
	enrollments enrollmentReader
	courses     courseReader
	scales      scaleResolver
	notifier    gradeNotifier
	gpa         gpaInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(repo gradeRepository, enrollments enrollmentReader, courses courseReader, scales scaleResolver, notifier gradeNotifier, gpa gpaInvalidator, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		repo:        repo,
		enrollments: enrollments,
		courses:     courses,
		scales:      scales,
		notifier:    notifier,
		gpa:         gpa,
		validator:   validate,
		logger:      logger,
	}
}

// Record stores a grade against an ACTIVE enrollment.
func (s *GradeService) Record(ctx context.Context, req RecordGradeRequest, gradedBy string) (*models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if !req.Category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown grade category")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("grades require an active enrollment, current status %s", enrollment.Status))
	}

	course, scale, err := s.resolveScale(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	letter, points, err := scale.Classify(req.Score)
	if err != nil {
		return nil, err
	}

	grade := &models.GradeRecord{
		EnrollmentID: req.EnrollmentID,
		Category:     req.Category,
		Label:        req.Label,
		Score:        req.Score,
		Letter:       letter,
		Points:       points,
		GradedBy:     gradedBy,
		Comment:      req.Comment,
	}
	if err := s.repo.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}

	s.logger.Info("grade recorded",
		zap.String("grade_id", grade.ID),
		zap.String("enrollment_id", grade.EnrollmentID),
		zap.Float64("score", grade.Score),
		zap.String("letter", grade.Letter))
	if s.notifier != nil {
		s.notifier.GradePosted(ctx, enrollment.StudentID, course.ID, letter)
	}
	s.invalidateGpa(ctx, enrollment.StudentID)
	return grade, nil
}

// Update corrects an existing grade, re-classifying the score under the scale
// currently in effect for the course.
func (s *GradeService) Update(ctx context.Context, gradeID string, req UpdateGradeRequest) (*models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	grade, err := s.repo.FindByID(ctx, gradeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	enrollment, err := s.enrollments.FindByID(ctx, grade.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if req.Category != nil {
		if !req.Category.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown grade category")
		}
		grade.Category = *req.Category
	}
	if req.Label != nil {
		grade.Label = *req.Label
	}
	if req.Score != nil {
		grade.Score = *req.Score
	}
	if req.Comment != nil {
		grade.Comment = req.Comment
	}

	_, scale, err := s.resolveScale(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	letter, points, err := scale.Classify(grade.Score)
	if err != nil {
		return nil, err
	}
	grade.Letter = letter
	grade.Points = points

	if err := s.repo.Update(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}
	s.logger.Info("grade updated", zap.String("grade_id", grade.ID), zap.Float64("score", grade.Score))
	s.invalidateGpa(ctx, enrollment.StudentID)
	return grade, nil
}

// Get returns a grade record by ID.
func (s *GradeService) Get(ctx context.Context, id string) (*models.GradeRecord, error) {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

// List returns grade records matching the filter.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeRecord, error) {
	grades, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// AverageForEnrollment returns the enrollment's mean score classified under
// the course scale. An ungraded enrollment yields a nil average, never zero.
func (s *GradeService) AverageForEnrollment(ctx context.Context, enrollmentID string) (*AverageSummary, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	average, count, err := s.repo.AverageForEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute enrollment average")
	}
	return s.summarize(ctx, enrollment.CourseID, average, count)
}

// AverageForCourse returns the course mean over per-enrollment averages.
func (s *GradeService) AverageForCourse(ctx context.Context, courseID string) (*AverageSummary, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	average, count, err := s.repo.AverageForCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute course average")
	}
	return s.summarize(ctx, courseID, average, count)
}

func (s *GradeService) resolveScale(ctx context.Context, courseID string) (*models.Course, *models.GradeScale, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	scale, err := s.scales.Resolve(ctx, course)
	if err != nil {
		return nil, nil, err
	}
	return course, scale, nil
}

func (s *GradeService) summarize(ctx context.Context, courseID string, average *float64, count int) (*AverageSummary, error) {
	summary := &AverageSummary{Average: average, GradeCount: count}
	if average == nil {
		return summary, nil
	}
	_, scale, err := s.resolveScale(ctx, courseID)
	if err != nil {
		return nil, err
	}
	letter, points, err := scale.Classify(*average)
	if err != nil {
		return nil, err
	}
	passing := scale.IsPassing(*average)
	summary.Letter = letter
	summary.Points = &points
	summary.Passing = &passing
	return summary, nil
}

func (s *GradeService) invalidateGpa(ctx context.Context, studentID string) {
	if s.gpa == nil {
		return
	}
	if err := s.gpa.Invalidate(ctx, studentID); err != nil {
		s.logger.Warn("failed to invalidate gpa cache", zap.String("student_id", studentID), zap.Error(err))
	}
}
