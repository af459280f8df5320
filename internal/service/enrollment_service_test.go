package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/internal/repository"
	"github.com/noah-isme/university-records-api/pkg/config"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
)

type mockAdmissionRepo struct {
	courses     map[string]*models.Course
	enrollments map[string]*models.Enrollment
	nextID      int
	failures    []error
}

func newMockAdmissionRepo() *mockAdmissionRepo {
	return &mockAdmissionRepo{
		courses:     make(map[string]*models.Course),
		enrollments: make(map[string]*models.Enrollment),
	}
}

func (m *mockAdmissionRepo) addCourse(id string, capacity *int, active bool) {
	m.courses[id] = &models.Course{ID: id, Code: id, Credits: 3, Capacity: capacity, Active: active}
}

func (m *mockAdmissionRepo) popFailure() error {
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}

func (m *mockAdmissionRepo) Admit(ctx context.Context, studentID, courseID string, term *string, waitlist bool) (*repository.AdmissionResult, error) {
	if err := m.popFailure(); err != nil {
		return nil, err
	}
	course, ok := m.courses[courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if !course.Active {
		return nil, repository.ErrCourseInactive
	}
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID &&
			(e.Status == models.EnrollmentStatusActive || e.Status == models.EnrollmentStatusWaitlisted) {
			return &repository.AdmissionResult{Enrollment: *e, Existing: true}, nil
		}
	}
	status := models.EnrollmentStatusActive
	if course.Capacity != nil && course.EnrolledCount >= *course.Capacity {
		if !waitlist {
			return nil, repository.ErrCourseFull
		}
		status = models.EnrollmentStatusWaitlisted
	}
	m.nextID++
	enrollment := &models.Enrollment{
		ID:        string(rune('a' + m.nextID)),
		StudentID: studentID,
		CourseID:  courseID,
		Term:      term,
		Status:    status,
	}
	m.enrollments[enrollment.ID] = enrollment
	if status == models.EnrollmentStatusActive {
		course.EnrolledCount++
	}
	return &repository.AdmissionResult{Enrollment: *enrollment}, nil
}

func (m *mockAdmissionRepo) Transition(ctx context.Context, id string, next models.EnrollmentStatus, promote bool) (*repository.TransitionResult, error) {
	if err := m.popFailure(); err != nil {
		return nil, err
	}
	enrollment, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if enrollment.Status.Terminal() {
		return nil, repository.ErrNotEnrolled
	}
	if !enrollment.Status.CanTransitionTo(next) {
		return nil, repository.ErrInvalidTransition
	}
	course := m.courses[enrollment.CourseID]
	prior := enrollment.Status
	enrollment.Status = next

	result := &repository.TransitionResult{Enrollment: *enrollment}
	if prior == models.EnrollmentStatusActive && next != models.EnrollmentStatusActive {
		var promoted *models.Enrollment
		if promote {
			for _, candidate := range m.enrollments {
				if candidate.CourseID == enrollment.CourseID && candidate.Status == models.EnrollmentStatusWaitlisted {
					promoted = candidate
					break
				}
			}
		}
		if promoted != nil {
			promoted.Status = models.EnrollmentStatusActive
			copied := *promoted
			result.Promoted = &copied
		} else {
			course.EnrolledCount--
		}
	}
	if prior == models.EnrollmentStatusWaitlisted && next == models.EnrollmentStatusActive {
		course.EnrolledCount++
	}
	return result, nil
}

func (m *mockAdmissionRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAdmissionRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: *e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAdmissionRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockAdmissionRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var result []models.Enrollment
	for _, e := range m.enrollments {
		if e.StudentID == studentID {
			result = append(result, *e)
		}
	}
	return result, nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseReader struct {
	repo *mockAdmissionRepo
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.repo.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type recordedNotification struct {
	studentID string
	status    models.EnrollmentStatus
}

type mockEnrollmentNotifier struct {
	events []recordedNotification
}

func (m *mockEnrollmentNotifier) EnrollmentStatusChanged(ctx context.Context, studentID string, courseID string, status models.EnrollmentStatus) {
	m.events = append(m.events, recordedNotification{studentID: studentID, status: status})
}

type mockInvalidator struct {
	invalidated []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, studentID string) error {
	m.invalidated = append(m.invalidated, studentID)
	return nil
}

func newEnrollmentFixture(waitlist bool) (*EnrollmentService, *mockAdmissionRepo, *mockEnrollmentNotifier, *mockInvalidator) {
	repo := newMockAdmissionRepo()
	users := &mockUserReader{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", Role: models.RoleStudent, Active: true},
		"stu-2": {ID: "stu-2", Role: models.RoleStudent, Active: true},
		"stu-3": {ID: "stu-3", Role: models.RoleStudent, Active: true},
		"prof":  {ID: "prof", Role: models.RoleProfessor, Active: true},
	}}
	notifier := &mockEnrollmentNotifier{}
	invalidator := &mockInvalidator{}
	cfg := config.EnrollmentConfig{WaitlistEnabled: waitlist, AdmissionRetries: 3, AdmissionBackoff: 1}
	svc := NewEnrollmentService(repo, users, &mockCourseReader{repo: repo}, notifier, invalidator, cfg, nil, zap.NewNop())
	return svc, repo, notifier, invalidator
}

func TestEnrollAdmitsWithFreeSeat(t *testing.T) {
	svc, repo, notifier, invalidator := newEnrollmentFixture(false)
	capacity := 2
	repo.addCourse("cs101", &capacity, true)

	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	assert.False(t, result.AlreadyEnrolled)
	assert.Len(t, notifier.events, 1)
	assert.Equal(t, []string{"stu-1"}, invalidator.invalidated)
}

func TestEnrollRejectsWhenFull(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	capacity := 1
	repo.addCourse("cs101", &capacity, true)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-2", CourseID: "cs101"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCourseFull.Code, appErr.Code)
}

func TestEnrollWaitlistsWhenFull(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(true)
	capacity := 1
	repo.addCourse("cs101", &capacity, true)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)

	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-2", CourseID: "cs101"})
	require.NoError(t, err)
	assert.True(t, result.Waitlisted)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, result.Enrollment.Status)
}

func TestEnrollIsIdempotent(t *testing.T) {
	svc, repo, notifier, _ := newEnrollmentFixture(false)
	capacity := 5
	repo.addCourse("cs101", &capacity, true)

	first, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)

	second, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyEnrolled)
	assert.Equal(t, first.Enrollment.ID, second.Enrollment.ID)
	// No second notification for the no-op admission.
	assert.Len(t, notifier.events, 1)
}

func TestEnrollRejectsInactiveCourse(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	repo.addCourse("cs101", nil, false)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseInactive.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsNonStudent(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	repo.addCourse("cs101", nil, true)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "prof", CourseID: "cs101"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollRetriesSerializationFailures(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	capacity := 2
	repo.addCourse("cs101", &capacity, true)
	repo.failures = []error{
		&pq.Error{Code: "40001"},
		&pq.Error{Code: "40P01"},
	}

	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
}

func TestEnrollGivesUpAfterRetriesExhausted(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	capacity := 2
	repo.addCourse("cs101", &capacity, true)
	repo.failures = []error{
		&pq.Error{Code: "40001"},
		&pq.Error{Code: "40001"},
		&pq.Error{Code: "40001"},
	}

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConcurrentModification.Code, appErrors.FromError(err).Code)
}

func TestDropPromotesWaitlistedStudent(t *testing.T) {
	svc, repo, notifier, invalidator := newEnrollmentFixture(true)
	capacity := 1
	repo.addCourse("cs101", &capacity, true)

	active, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)
	waitlisted, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-2", CourseID: "cs101"})
	require.NoError(t, err)
	require.True(t, waitlisted.Waitlisted)

	dropped, err := svc.Drop(context.Background(), active.Enrollment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, dropped.Status)

	promoted, err := svc.Get(context.Background(), waitlisted.Enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, promoted.Status)

	// Seat count stays balanced when a promotion fills the freed seat.
	assert.Equal(t, 1, repo.courses["cs101"].EnrolledCount)
	assert.Contains(t, invalidator.invalidated, "stu-1")
	assert.Contains(t, invalidator.invalidated, "stu-2")
	require.NotEmpty(t, notifier.events)
	last := notifier.events[len(notifier.events)-1]
	assert.Equal(t, "stu-2", last.studentID)
	assert.Equal(t, models.EnrollmentStatusActive, last.status)
}

func TestDropWithoutWaitlistFreesSeat(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	capacity := 1
	repo.addCourse("cs101", &capacity, true)

	active, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)

	_, err = svc.Drop(context.Background(), active.Enrollment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, repo.courses["cs101"].EnrolledCount)

	// The freed seat is available again.
	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-2", CourseID: "cs101"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
}

func TestDropRejectsForeignStudent(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	repo.addCourse("cs101", nil, true)

	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)

	intruder := &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}
	_, err = svc.Drop(context.Background(), result.Enrollment.ID, intruder)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// The seat is untouched.
	current, err := svc.Get(context.Background(), result.Enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, current.Status)
}

func TestDropAllowsOwningStudent(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	repo.addCourse("cs101", nil, true)

	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)

	owner := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	dropped, err := svc.Drop(context.Background(), result.Enrollment.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, dropped.Status)
}

func TestDropAllowsAdminForAnyStudent(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	repo.addCourse("cs101", nil, true)

	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)

	admin := &models.JWTClaims{UserID: "registrar", Role: models.RoleAdmin}
	dropped, err := svc.Drop(context.Background(), result.Enrollment.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, dropped.Status)
}

func TestDropEndedEnrollmentReportsNotEnrolled(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(false)
	repo.addCourse("cs101", nil, true)

	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)

	_, err = svc.Drop(context.Background(), result.Enrollment.ID, nil)
	require.NoError(t, err)

	_, err = svc.Drop(context.Background(), result.Enrollment.ID, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErrors.FromError(err).Code)
}

func TestSetStatusRejectsIllegalTransition(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(true)
	capacity := 1
	repo.addCourse("cs101", &capacity, true)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", CourseID: "cs101"})
	require.NoError(t, err)
	waitlisted, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-2", CourseID: "cs101"})
	require.NoError(t, err)
	require.True(t, waitlisted.Waitlisted)

	// A waitlisted student never completed the course.
	_, err = svc.SetStatus(context.Background(), waitlisted.Enrollment.ID, models.EnrollmentStatusCompleted)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(false)
	_, err := svc.SetStatus(context.Background(), "any", models.EnrollmentStatus("BANANA"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
