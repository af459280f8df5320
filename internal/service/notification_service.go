package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/pkg/config"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
	"github.com/noah-isme/university-records-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
}

const notificationJobType = "notification.deliver"

// NotificationService delivers grade and enrollment notifications through a
// background queue. Delivery failures are retried by the queue and never
// surface to the write path that triggered them.
type NotificationService struct {
	repo   notificationRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service and its dispatch queue. Call
// Start before enqueueing and Stop on shutdown.
func NewNotificationService(repo notificationRepository, cfg config.NotifyConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// GradePosted notifies a student that a grade was recorded for a course.
func (s *NotificationService) GradePosted(ctx context.Context, studentID string, courseID string, letter string) {
	s.enqueue(models.Notification{
		RecipientID: studentID,
		CourseID:    &courseID,
		Kind:        models.NotificationKindGradePosted,
		Message:     fmt.Sprintf("A grade of %s was posted for one of your courses.", letter),
	})
}

// EnrollmentStatusChanged notifies a student about an enrollment transition.
func (s *NotificationService) EnrollmentStatusChanged(ctx context.Context, studentID string, courseID string, status models.EnrollmentStatus) {
	s.enqueue(models.Notification{
		RecipientID: studentID,
		CourseID:    &courseID,
		Kind:        models.NotificationKindEnrollmentStatus,
		Message:     fmt.Sprintf("Your enrollment status changed to %s.", status),
	})
}

// ListForUser returns the user's most recent notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByRecipient(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

func (s *NotificationService) enqueue(n models.Notification) {
	job := jobs.Job{ID: uuid.NewString(), Type: notificationJobType, Payload: n}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("recipient_id", n.RecipientID), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	s.logger.Debug("notification delivered",
		zap.String("recipient_id", n.RecipientID), zap.String("kind", string(n.Kind)))
	return nil
}
