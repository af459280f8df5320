package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/university-records-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func courseRows(capacity interface{}, enrolled int, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "code", "title", "credits", "capacity", "enrolled_count", "active",
		"professor_id", "grade_scale_id", "created_at", "updated_at",
	}).AddRow("c1", "CS101", "Programming", 3, capacity, enrolled, active, nil, nil, now, now)
}

func TestAdmitTakesFreeSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(courseRows(2, 1, true))
	mock.ExpectQuery(`FROM enrollments\s+WHERE student_id = \$1 AND course_id = \$2`).
		WithArgs("stu-1", "c1", models.EnrollmentStatusActive, models.EnrollmentStatusWaitlisted).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO enrollments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE courses SET enrolled_count = enrolled_count \+ \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Admit(context.Background(), "stu-1", "c1", nil, false)
	require.NoError(t, err)
	assert.False(t, result.Existing)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	assert.NotEmpty(t, result.Enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitRejectsFullCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(courseRows(1, 1, true))
	mock.ExpectQuery(`FROM enrollments\s+WHERE student_id = \$1 AND course_id = \$2`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Admit(context.Background(), "stu-1", "c1", nil, false)
	assert.ErrorIs(t, err, ErrCourseFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitWaitlistsFullCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(courseRows(1, 1, true))
	mock.ExpectQuery(`FROM enrollments\s+WHERE student_id = \$1 AND course_id = \$2`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO enrollments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Admit(context.Background(), "stu-1", "c1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, result.Enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitReturnsExistingEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	existing := sqlmock.NewRows([]string{"id", "student_id", "course_id", "term", "status", "enrolled_at", "left_at"}).
		AddRow("e1", "stu-1", "c1", nil, models.EnrollmentStatusActive, time.Now(), nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(courseRows(1, 1, true))
	mock.ExpectQuery(`FROM enrollments\s+WHERE student_id = \$1 AND course_id = \$2`).
		WillReturnRows(existing)
	mock.ExpectCommit()

	result, err := repo.Admit(context.Background(), "stu-1", "c1", nil, false)
	require.NoError(t, err)
	assert.True(t, result.Existing)
	assert.Equal(t, "e1", result.Enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitRejectsInactiveCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(courseRows(nil, 0, false))
	mock.ExpectRollback()

	_, err := repo.Admit(context.Background(), "stu-1", "c1", nil, false)
	assert.ErrorIs(t, err, ErrCourseInactive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT course_id FROM enrollments WHERE id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("c1"))
	mock.ExpectQuery(`FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(courseRows(nil, 0, true))
	mock.ExpectQuery(`FROM enrollments WHERE id = \$1 FOR UPDATE`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "term", "status", "enrolled_at", "left_at"}).
			AddRow("e1", "stu-1", "c1", nil, models.EnrollmentStatusWaitlisted, time.Now(), nil))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), "e1", models.EnrollmentStatusCompleted, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRejectsEndedEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT course_id FROM enrollments WHERE id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("c1"))
	mock.ExpectQuery(`FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(courseRows(nil, 0, true))
	mock.ExpectQuery(`FROM enrollments WHERE id = \$1 FOR UPDATE`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "term", "status", "enrolled_at", "left_at"}).
			AddRow("e1", "stu-1", "c1", nil, models.EnrollmentStatusDropped, time.Now(), time.Now()))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), "e1", models.EnrollmentStatusCompleted, false)
	assert.ErrorIs(t, err, ErrNotEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionPromotesWaitlisted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT course_id FROM enrollments WHERE id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("c1"))
	mock.ExpectQuery(`FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("c1").
		WillReturnRows(courseRows(1, 1, true))
	mock.ExpectQuery(`FROM enrollments WHERE id = \$1 FOR UPDATE`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "term", "status", "enrolled_at", "left_at"}).
			AddRow("e1", "stu-1", "c1", nil, models.EnrollmentStatusActive, time.Now(), nil))
	mock.ExpectExec(`UPDATE enrollments SET status = \$2, left_at = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`status = \$2 ORDER BY enrolled_at ASC LIMIT 1 FOR UPDATE`).
		WithArgs("c1", models.EnrollmentStatusWaitlisted).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "term", "status", "enrolled_at", "left_at"}).
			AddRow("e2", "stu-2", "c1", nil, models.EnrollmentStatusWaitlisted, time.Now(), nil))
	mock.ExpectExec(`UPDATE enrollments SET status = \$2, left_at = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Transition(context.Background(), "e1", models.EnrollmentStatusDropped, true)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, result.Enrollment.Status)
	require.NotNil(t, result.Promoted)
	assert.Equal(t, "e2", result.Promoted.ID)
	assert.Equal(t, models.EnrollmentStatusActive, result.Promoted.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, IsSerializationFailure(&pq.Error{Code: "40001"}))
	assert.True(t, IsSerializationFailure(&pq.Error{Code: "40P01"}))
	assert.False(t, IsSerializationFailure(&pq.Error{Code: "23505"}))
	assert.False(t, IsSerializationFailure(sql.ErrNoRows))
	assert.False(t, IsSerializationFailure(nil))
}
