package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/university-records-api/internal/models"
)

func TestUpdateCourseRejectsCapacityBelowEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(`UPDATE courses SET code = \$\d`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM courses WHERE id = \$1\)`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	capacity := 1
	err := repo.Update(context.Background(), &models.Course{ID: "c1", Code: "CS101", Title: "Programming", Credits: 3, Capacity: &capacity})
	assert.ErrorIs(t, err, ErrCapacityBelowEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCourseMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(`UPDATE courses SET code = \$\d`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM courses WHERE id = \$1\)`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.Update(context.Background(), &models.Course{ID: "ghost", Code: "CS101", Title: "Programming", Credits: 3})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCapacityBelowEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCourseSucceedsWithRoomToSpare(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(`UPDATE courses SET code = \$\d`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	capacity := 30
	course := &models.Course{ID: "c1", Code: "CS101", Title: "Programming", Credits: 3, Capacity: &capacity}
	require.NoError(t, repo.Update(context.Background(), course))
	assert.False(t, course.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetActiveMissingCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(`UPDATE courses SET active = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("ghost", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), "ghost", false)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCourseByCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM courses WHERE code = \$1`).
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "code", "title", "credits", "capacity", "enrolled_count", "active",
			"professor_id", "grade_scale_id", "created_at", "updated_at",
		}).AddRow("c1", "CS101", "Programming", 3, 30, 12, true, nil, nil, now, now))

	course, err := repo.FindByCode(context.Background(), "CS101")
	require.NoError(t, err)
	assert.Equal(t, "c1", course.ID)
	require.NotNil(t, course.Capacity)
	assert.Equal(t, 30, *course.Capacity)
	assert.True(t, course.HasSeat())
	require.NoError(t, mock.ExpectationsWereMet())
}
