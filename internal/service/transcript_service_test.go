package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/pkg/config"
	"github.com/noah-isme/university-records-api/pkg/storage"
)

type mockGpaComputer struct {
	result models.GpaResult
}

func (m *mockGpaComputer) Compute(ctx context.Context, studentID string) (*models.GpaResult, error) {
	result := m.result
	result.StudentID = studentID
	return &result, nil
}

func newTranscriptFixture(t *testing.T) (*TranscriptService, *mockAdmissionRepo) {
	t.Helper()

	enrollments := newMockAdmissionRepo()
	enrollments.addCourse("cs101", nil, true)
	enrollments.addCourse("ma201", nil, true)
	enrollments.enrollments["e1"] = &models.Enrollment{
		ID: "e1", StudentID: "stu-1", CourseID: "cs101", Status: models.EnrollmentStatusActive,
	}
	enrollments.enrollments["e2"] = &models.Enrollment{
		ID: "e2", StudentID: "stu-1", CourseID: "ma201", Status: models.EnrollmentStatusDropped,
	}

	users := &mockUserReader{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", FullName: "Dana Alvarez", Role: models.RoleStudent, Active: true},
	}}
	averages := &mockAverages{rows: map[string][]models.EnrollmentAverage{
		"stu-1": {
			{EnrollmentID: "e1", CourseID: "cs101", CourseCode: "CS101", CourseTitle: "Programming", Credits: 3, Average: avg(88)},
		},
	}}
	gpa := &mockGpaComputer{result: models.GpaResult{Gpa: 3.0, GradedEnrollmentCount: 1, TotalCredits: 3}}

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)

	cfg := config.TranscriptsConfig{RetentionTTL: 24 * time.Hour, RetentionSweep: time.Hour}
	svc := NewTranscriptService(users, enrollments, averages, &mockCourseReader{repo: enrollments}, &mockScaleResolver{}, gpa, store, signer, cfg, zap.NewNop())
	return svc, enrollments
}

func TestBuildTranscriptCoversAllEnrollments(t *testing.T) {
	svc, _ := newTranscriptFixture(t)

	transcript, err := svc.Build(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "Dana Alvarez", transcript.StudentName)
	require.Len(t, transcript.Rows, 2)

	byStatus := make(map[models.EnrollmentStatus]models.TranscriptRow)
	for _, row := range transcript.Rows {
		byStatus[row.Status] = row
	}

	graded := byStatus[models.EnrollmentStatusActive]
	require.NotNil(t, graded.Average)
	assert.InDelta(t, 88.0, *graded.Average, 1e-9)
	assert.Equal(t, "B", graded.Letter)

	dropped := byStatus[models.EnrollmentStatusDropped]
	assert.Nil(t, dropped.Average)
	assert.Equal(t, "ma201", dropped.CourseCode)

	assert.InDelta(t, 3.0, transcript.Gpa.Gpa, 1e-9)
}

func TestExportCsvRoundTrip(t *testing.T) {
	svc, _ := newTranscriptFixture(t)

	export, err := svc.Export(context.Background(), "stu-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", export.Format)
	assert.Contains(t, export.URL, "/transcripts/downloads/")
	assert.True(t, export.ExpiresAt.After(time.Now()))

	token := strings.TrimPrefix(export.URL, "/transcripts/downloads/")
	file, filename, err := svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer file.Close()

	assert.True(t, strings.HasSuffix(filename, ".csv"))
	content, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), "CS101")
	assert.Contains(t, string(content), "Course,Title,Credits,Status,Average,Grade")
}

func TestExportPdfProducesDocument(t *testing.T) {
	svc, _ := newTranscriptFixture(t)

	export, err := svc.Export(context.Background(), "stu-1", "pdf")
	require.NoError(t, err)

	token := strings.TrimPrefix(export.URL, "/transcripts/downloads/")
	file, _, err := svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer file.Close()

	header := make([]byte, 5)
	_, err = file.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(header))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc, _ := newTranscriptFixture(t)

	_, err := svc.Export(context.Background(), "stu-1", "xlsx")
	require.Error(t, err)
}

func TestRetentionSweepRemovesExpiredExports(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("transcripts/stu-1/old.csv", []byte("stale"))
	require.NoError(t, err)
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "transcripts", "stu-1", "old.csv"), stale, stale))
	_, err = store.Save("transcripts/stu-1/new.csv", []byte("fresh"))
	require.NoError(t, err)

	cfg := config.TranscriptsConfig{RetentionTTL: 24 * time.Hour}
	svc := NewTranscriptService(nil, nil, nil, nil, nil, nil, store, nil, cfg, zap.NewNop())
	svc.sweepExpired()

	_, err = store.Open("transcripts/stu-1/old.csv")
	require.Error(t, err)
	fresh, err := store.Open("transcripts/stu-1/new.csv")
	require.NoError(t, err)
	fresh.Close() //nolint:errcheck
}

func TestDownloadRejectsTamperedToken(t *testing.T) {
	svc, _ := newTranscriptFixture(t)

	export, err := svc.Export(context.Background(), "stu-1", "csv")
	require.NoError(t, err)

	token := strings.TrimPrefix(export.URL, "/transcripts/downloads/")
	_, _, err = svc.Download(context.Background(), token+"x")
	require.Error(t, err)
}
