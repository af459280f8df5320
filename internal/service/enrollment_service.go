package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/internal/repository"
	"github.com/noah-isme/university-records-api/pkg/config"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
)

type admissionRepository interface {
	Admit(ctx context.Context, studentID, courseID string, term *string, waitlist bool) (*repository.AdmissionResult, error)
	Transition(ctx context.Context, id string, next models.EnrollmentStatus, promote bool) (*repository.TransitionResult, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrollmentNotifier interface {
	EnrollmentStatusChanged(ctx context.Context, studentID string, courseID string, status models.EnrollmentStatus)
}

type gpaInvalidator interface {
	Invalidate(ctx context.Context, studentID string) error
}

// EnrollRequest describes an admission attempt.
type EnrollRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	CourseID  string  `json:"course_id" validate:"required"`
	Term      *string `json:"term,omitempty"`
}

// EnrollResult reports the admission outcome. AlreadyEnrolled marks the
// idempotent case where an existing enrollment was returned unchanged.
type EnrollResult struct {
	Enrollment      models.Enrollment `json:"enrollment"`
	AlreadyEnrolled bool              `json:"already_enrolled"`
	Waitlisted      bool              `json:"waitlisted"`
}

// EnrollmentService orchestrates admission control and the enrollment
// lifecycle. Seat accounting itself lives in the repository transaction; this
// layer adds validation, retries on serialization failures, notifications and
// GPA cache invalidation.
type EnrollmentService struct {
	repo      admissionRepository
	users     userReader
	courses   courseReader
	notifier  enrollmentNotifier
	gpa       gpaInvalidator
	cfg       config.EnrollmentConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo admissionRepository, users userReader, courses courseReader, notifier enrollmentNotifier, gpa gpaInvalidator, cfg config.EnrollmentConfig, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		users:     users,
		courses:   courses,
		notifier:  notifier,
		gpa:       gpa,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
	}
}

// Enroll admits a student into a course. Re-enrolling while ACTIVE or
// WAITLISTED returns the existing enrollment unchanged. A full course either
// waitlists or rejects depending on configuration.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "user is not a student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}

	var result *repository.AdmissionResult
	err = s.withRetry(ctx, func() error {
		var admitErr error
		result, admitErr = s.repo.Admit(ctx, req.StudentID, req.CourseID, req.Term, s.cfg.WaitlistEnabled)
		return admitErr
	})
	if err != nil {
		return nil, s.mapAdmissionError(err)
	}

	if !result.Existing {
		s.logger.Info("enrollment admitted",
			zap.String("enrollment_id", result.Enrollment.ID),
			zap.String("student_id", req.StudentID),
			zap.String("course_id", req.CourseID),
			zap.String("status", string(result.Enrollment.Status)))
		if s.notifier != nil {
			s.notifier.EnrollmentStatusChanged(ctx, req.StudentID, req.CourseID, result.Enrollment.Status)
		}
		s.invalidateGpa(ctx, req.StudentID)
	}

	return &EnrollResult{
		Enrollment:      result.Enrollment,
		AlreadyEnrolled: result.Existing,
		Waitlisted:      result.Enrollment.Status == models.EnrollmentStatusWaitlisted,
	}, nil
}

// Drop transitions the enrollment to DROPPED. Student actors may only drop
// their own enrollments; a nil actor means an internal caller. Dropping an
// ACTIVE seat promotes the earliest waitlisted student of the course in the
// same transaction.
func (s *EnrollmentService) Drop(ctx context.Context, enrollmentID string, actor *models.JWTClaims) (*models.Enrollment, error) {
	if actor != nil && actor.Role == models.RoleStudent {
		enrollment, err := s.repo.FindByID(ctx, enrollmentID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		if enrollment.StudentID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only drop their own enrollments")
		}
	}
	return s.transition(ctx, enrollmentID, models.EnrollmentStatusDropped)
}

// SetStatus applies an explicit lifecycle transition such as WITHDRAWN or
// COMPLETED.
func (s *EnrollmentService) SetStatus(ctx context.Context, enrollmentID string, next models.EnrollmentStatus) (*models.Enrollment, error) {
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}
	return s.transition(ctx, enrollmentID, next)
}

func (s *EnrollmentService) transition(ctx context.Context, enrollmentID string, next models.EnrollmentStatus) (*models.Enrollment, error) {
	var result *repository.TransitionResult
	err := s.withRetry(ctx, func() error {
		var txErr error
		result, txErr = s.repo.Transition(ctx, enrollmentID, next, s.cfg.WaitlistEnabled)
		return txErr
	})
	if err != nil {
		return nil, s.mapAdmissionError(err)
	}

	s.logger.Info("enrollment transitioned",
		zap.String("enrollment_id", enrollmentID),
		zap.String("status", string(next)))
	if s.notifier != nil {
		s.notifier.EnrollmentStatusChanged(ctx, result.Enrollment.StudentID, result.Enrollment.CourseID, next)
		if result.Promoted != nil {
			s.notifier.EnrollmentStatusChanged(ctx, result.Promoted.StudentID, result.Promoted.CourseID, result.Promoted.Status)
		}
	}
	s.invalidateGpa(ctx, result.Enrollment.StudentID)
	if result.Promoted != nil {
		s.invalidateGpa(ctx, result.Promoted.StudentID)
	}
	return &result.Enrollment, nil
}

// Get returns an enrollment by ID.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListByStudent returns a student's enrollment history.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	enrollments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student enrollments")
	}
	return enrollments, nil
}

// withRetry re-runs the admission transaction on serialization or deadlock
// failures, up to the configured attempt limit.
func (s *EnrollmentService) withRetry(ctx context.Context, fn func() error) error {
	attempts := s.cfg.AdmissionRetries
	if attempts < 1 {
		attempts = 1
	}
	backoff := s.cfg.AdmissionBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !repository.IsSerializationFailure(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		s.logger.Warn("admission serialization failure, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		timer := time.NewTimer(backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return appErrors.Wrap(err, appErrors.ErrConcurrentModification.Code, appErrors.ErrConcurrentModification.Status, "admission retries exhausted")
}

func (s *EnrollmentService) mapAdmissionError(err error) error {
	switch {
	case err == sql.ErrNoRows:
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment or course not found")
	case errors.Is(err, repository.ErrCourseInactive):
		return appErrors.Clone(appErrors.ErrCourseInactive, "course is not open for enrollment")
	case errors.Is(err, repository.ErrCourseFull):
		return appErrors.Clone(appErrors.ErrCourseFull, "course has no remaining seats")
	case errors.Is(err, repository.ErrNotEnrolled):
		return appErrors.Clone(appErrors.ErrNotEnrolled, "enrollment has already ended")
	case errors.Is(err, repository.ErrInvalidTransition):
		return appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment status transition not allowed")
	}
	if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enrollment operation failed")
}

func (s *EnrollmentService) invalidateGpa(ctx context.Context, studentID string) {
	if s.gpa == nil {
		return
	}
	if err := s.gpa.Invalidate(ctx, studentID); err != nil {
		s.logger.Warn("failed to invalidate gpa cache", zap.String("student_id", studentID), zap.Error(err))
	}
}
