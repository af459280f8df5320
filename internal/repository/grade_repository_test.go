package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/university-records-api/internal/models"
)

func TestAverageForEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(`SELECT AVG\(score\) AS average, COUNT\(\*\) AS grade_count FROM grades WHERE enrollment_id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"average", "grade_count"}).AddRow(86.5, 4))

	average, count, err := repo.AverageForEnrollment(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, average)
	assert.InDelta(t, 86.5, *average, 1e-9)
	assert.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAverageForEnrollmentWithoutGrades(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(`SELECT AVG\(score\) AS average, COUNT\(\*\) AS grade_count FROM grades WHERE enrollment_id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"average", "grade_count"}).AddRow(nil, 0))

	average, count, err := repo.AverageForEnrollment(context.Background(), "e1")
	require.NoError(t, err)
	assert.Nil(t, average)
	assert.Zero(t, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAverageForCourseFiltersStatuses(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(`SELECT AVG\(t\.average\) AS average, COUNT\(\*\) AS graded_count FROM`).
		WithArgs("c1", models.EnrollmentStatusActive, models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"average", "graded_count"}).AddRow(78.25, 12))

	average, count, err := repo.AverageForCourse(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, average)
	assert.InDelta(t, 78.25, *average, 1e-9)
	assert.Equal(t, 12, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAveragesForStudentIncludesUngraded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{
		"enrollment_id", "course_id", "course_code", "course_title",
		"credits", "grade_scale_id", "average", "grade_count",
	}).
		AddRow("e1", "c1", "CS101", "Programming", 3, nil, 91.0, 5).
		AddRow("e2", "c2", "MA201", "Calculus", 4, nil, nil, 0)

	mock.ExpectQuery(`LEFT JOIN grades g ON g\.enrollment_id = e\.id\s+WHERE e\.student_id = \$1`).
		WithArgs("stu-1", models.EnrollmentStatusActive, models.EnrollmentStatusCompleted).
		WillReturnRows(rows)

	averages, err := repo.AveragesForStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, averages, 2)

	require.NotNil(t, averages[0].Average)
	assert.InDelta(t, 91.0, *averages[0].Average, 1e-9)
	assert.Equal(t, 3, averages[0].Credits)

	assert.Nil(t, averages[1].Average)
	assert.Equal(t, "MA201", averages[1].CourseCode)
	require.NoError(t, mock.ExpectationsWereMet())
}
