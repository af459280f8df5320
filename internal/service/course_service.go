package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/internal/repository"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	Update(ctx context.Context, course *models.Course) error
	SetActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
}

type gradeScaleReader interface {
	FindByID(ctx context.Context, id string) (*models.GradeScale, error)
}

type gpaBulkInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// CreateCourseRequest describes a new catalog course. A nil capacity means
// unlimited seats.
type CreateCourseRequest struct {
	Code         string  `json:"code" validate:"required,min=2,max=16"`
	Title        string  `json:"title" validate:"required,min=2,max=256"`
	Credits      int     `json:"credits" validate:"required,gt=0"`
	Capacity     *int    `json:"capacity,omitempty" validate:"omitempty,gt=0"`
	ProfessorID  *string `json:"professor_id,omitempty"`
	GradeScaleID *string `json:"grade_scale_id,omitempty"`
}

// UpdateCourseRequest describes a partial course update.
type UpdateCourseRequest struct {
	Title        *string `json:"title,omitempty" validate:"omitempty,min=2,max=256"`
	Credits      *int    `json:"credits,omitempty" validate:"omitempty,gt=0"`
	Capacity     *int    `json:"capacity,omitempty" validate:"omitempty,gt=0"`
	ProfessorID  *string `json:"professor_id,omitempty"`
	GradeScaleID *string `json:"grade_scale_id,omitempty"`
}

// CourseService manages the course catalog.
type CourseService struct {
	repo      courseRepository
	users     userReader
	scales    gradeScaleReader
	gpa       gpaBulkInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, users userReader, scales gradeScaleReader, gpa gpaBulkInvalidator, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, users: users, scales: scales, gpa: gpa, validator: validate, logger: logger}
}

// Create adds a course to the catalog.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if err := s.checkReferences(ctx, req.ProfessorID, req.GradeScaleID); err != nil {
		return nil, err
	}

	course := &models.Course{
		Code:         req.Code,
		Title:        req.Title,
		Credits:      req.Credits,
		Capacity:     req.Capacity,
		ProfessorID:  req.ProfessorID,
		GradeScaleID: req.GradeScaleID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// Get returns a course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Update applies a partial course update. Reducing capacity below the current
// enrolled count is rejected.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, req.ProfessorID, req.GradeScaleID); err != nil {
		return nil, err
	}

	gradingChanged := false
	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Credits != nil {
		gradingChanged = gradingChanged || course.Credits != *req.Credits
		course.Credits = *req.Credits
	}
	if req.Capacity != nil {
		course.Capacity = req.Capacity
	}
	if req.ProfessorID != nil {
		course.ProfessorID = req.ProfessorID
	}
	if req.GradeScaleID != nil {
		gradingChanged = true
		course.GradeScaleID = req.GradeScaleID
	}

	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, repository.ErrCapacityBelowEnrolled) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "capacity cannot drop below current enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	// New credits or a new scale stale every enrolled student's GPA.
	if gradingChanged && s.gpa != nil {
		if err := s.gpa.InvalidateAll(ctx); err != nil {
			s.logger.Warn("failed to invalidate gpa caches after course update",
				zap.String("course_id", course.ID), zap.Error(err))
		}
	}
	return course, nil
}

// SetActive opens or closes a course for admission. Deactivation leaves
// existing enrollments untouched.
func (s *CourseService) SetActive(ctx context.Context, id string, active bool) (*models.Course, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change course availability")
	}
	return s.Get(ctx, id)
}

// List returns catalog courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *CourseService) checkReferences(ctx context.Context, professorID, scaleID *string) error {
	if professorID != nil && *professorID != "" {
		professor, err := s.users.FindByID(ctx, *professorID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "professor not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
		}
		if professor.Role != models.RoleProfessor {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "assigned user is not a professor")
		}
	}
	if scaleID != nil && *scaleID != "" {
		if _, err := s.scales.FindByID(ctx, *scaleID); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "grade scale not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade scale")
		}
	}
	return nil
}
