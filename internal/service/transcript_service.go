package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/pkg/config"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
	"github.com/noah-isme/university-records-api/pkg/export"
	"github.com/noah-isme/university-records-api/pkg/storage"
)

type enrollmentHistoryReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

type gpaComputer interface {
	Compute(ctx context.Context, studentID string) (*models.GpaResult, error)
}

// Supported transcript export formats.
const (
	TranscriptFormatCSV = "csv"
	TranscriptFormatPDF = "pdf"
)

// TranscriptService assembles a student's full academic record and renders it
// into downloadable CSV or PDF files behind signed URLs.
type TranscriptService struct {
	users       userReader
	enrollments enrollmentHistoryReader
	averages    studentAverageReader
	courses     courseReader
	scales      scaleByIDResolver
	gpa         gpaComputer
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	cfg         config.TranscriptsConfig
	logger      *zap.Logger
}

// NewTranscriptService constructs TranscriptService.
func NewTranscriptService(users userReader, enrollments enrollmentHistoryReader, averages studentAverageReader, courses courseReader, scales scaleByIDResolver, gpa gpaComputer, store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg config.TranscriptsConfig, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptService{
		users:       users,
		enrollments: enrollments,
		averages:    averages,
		courses:     courses,
		scales:      scales,
		gpa:         gpa,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		store:       store,
		signer:      signer,
		cfg:         cfg,
		logger:      logger,
	}
}

// StartRetention begins the periodic sweep that removes export files older
// than the retention TTL. Signed URLs expire long before the files do; the
// sweep reclaims the disk space. A non-positive TTL disables retention.
func (s *TranscriptService) StartRetention(ctx context.Context) {
	if s.cfg.RetentionTTL <= 0 {
		return
	}
	every := s.cfg.RetentionSweep
	if every <= 0 {
		every = time.Hour
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepExpired()
			}
		}
	}()
}

func (s *TranscriptService) sweepExpired() {
	removed, err := s.store.CleanupOlderThan(s.cfg.RetentionTTL)
	if err != nil {
		s.logger.Warn("transcript retention sweep failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired transcript exports removed", zap.Int("count", len(removed)))
	}
}

// Build assembles the transcript, covering every enrollment including dropped
// and withdrawn ones. Ungraded rows keep a nil average.
func (s *TranscriptService) Build(ctx context.Context, studentID string) (*models.Transcript, error) {
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	averageRows, err := s.averages.AveragesForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade averages")
	}
	averagesByEnrollment := make(map[string]models.EnrollmentAverage, len(averageRows))
	for _, row := range averageRows {
		averagesByEnrollment[row.EnrollmentID] = row
	}

	rows := make([]models.TranscriptRow, 0, len(enrollments))
	for _, enrollment := range enrollments {
		row := models.TranscriptRow{Status: enrollment.Status}
		if agg, ok := averagesByEnrollment[enrollment.ID]; ok {
			row.CourseCode = agg.CourseCode
			row.CourseTitle = agg.CourseTitle
			row.Credits = agg.Credits
			if agg.Average != nil {
				scale, err := s.scales.ResolveByID(ctx, agg.GradeScaleID)
				if err != nil {
					return nil, err
				}
				letter, points, err := scale.Classify(*agg.Average)
				if err != nil {
					return nil, err
				}
				row.Average = agg.Average
				row.Letter = letter
				row.Points = &points
			}
		} else {
			course, err := s.courses.FindByID(ctx, enrollment.CourseID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
			}
			row.CourseCode = course.Code
			row.CourseTitle = course.Title
			row.Credits = course.Credits
		}
		rows = append(rows, row)
	}

	gpa, err := s.gpa.Compute(ctx, studentID)
	if err != nil {
		return nil, err
	}

	return &models.Transcript{
		StudentID:   studentID,
		StudentName: student.FullName,
		Rows:        rows,
		Gpa:         *gpa,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Export renders the transcript into the requested format, stores the file
// and returns a signed download URL.
func (s *TranscriptService) Export(ctx context.Context, studentID, format string) (*models.TranscriptExport, error) {
	format = strings.ToLower(format)
	if format != TranscriptFormatCSV && format != TranscriptFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	transcript, err := s.Build(ctx, studentID)
	if err != nil {
		return nil, err
	}
	dataset := transcriptDataset(transcript)

	var payload []byte
	switch format {
	case TranscriptFormatCSV:
		payload, err = s.csv.Render(dataset)
	case TranscriptFormatPDF:
		title := fmt.Sprintf("Academic Transcript %s", transcript.StudentName)
		footer := []string{
			fmt.Sprintf("GPA: %.2f over %d graded enrollments (%d credits)",
				transcript.Gpa.Gpa, transcript.Gpa.GradedEnrollmentCount, transcript.Gpa.TotalCredits),
			fmt.Sprintf("Generated at %s", transcript.GeneratedAt.Format(time.RFC3339)),
		}
		payload, err = s.pdf.Render(dataset, title, footer...)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}

	exportID := uuid.NewString()
	relPath := path.Join("transcripts", studentID, fmt.Sprintf("%s.%s", exportID, format))
	if _, err := s.store.Save(relPath, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store transcript")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	s.logger.Info("transcript exported",
		zap.String("student_id", studentID),
		zap.String("export_id", exportID),
		zap.String("format", format))

	return &models.TranscriptExport{
		ID:        exportID,
		StudentID: studentID,
		Format:    format,
		FilePath:  relPath,
		URL:       "/transcripts/downloads/" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Download validates a signed token and opens the referenced file.
func (s *TranscriptService) Download(ctx context.Context, token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "transcript file no longer available")
	}
	return file, path.Base(relPath), nil
}

func transcriptDataset(t *models.Transcript) export.Dataset {
	headers := []string{"Course", "Title", "Credits", "Status", "Average", "Grade"}
	rows := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		average := ""
		if row.Average != nil {
			average = strconv.FormatFloat(*row.Average, 'f', 2, 64)
		}
		rows = append(rows, map[string]string{
			"Course":  row.CourseCode,
			"Title":   row.CourseTitle,
			"Credits": strconv.Itoa(row.Credits),
			"Status":  string(row.Status),
			"Average": average,
			"Grade":   row.Letter,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
