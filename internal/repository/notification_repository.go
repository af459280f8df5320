package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/university-records-api/internal/models"
)

// NotificationRepository persists delivered notifications so users can review
// them later.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification and assigns its ID.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	_, err := r.db.NamedExecContext(ctx, `
        INSERT INTO notifications (id, recipient_id, course_id, kind, message, created_at)
        VALUES (:id, :recipient_id, :course_id, :kind, :message, :created_at)`, n)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListByRecipient returns the most recent notifications for a user.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, `
        SELECT id, recipient_id, course_id, kind, message, created_at
        FROM notifications WHERE recipient_id = $1
        ORDER BY created_at DESC LIMIT $2`, recipientID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}
