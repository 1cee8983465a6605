package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"groupware/approval-portal/approval-portal-backend/internal/approval"
	"groupware/approval-portal/approval-portal-backend/internal/notifications/websocket"
)

// Service delivers approval notifications over three channels: a durable
// in-app row, a websocket push and an optional email. It satisfies
// approval.Notifier.
type Service struct {
	db        *gorm.DB
	wsManager *websocket.Manager
	email     *EmailSender
	directory approval.DirectoryService
	logger    *zap.Logger
}

// NewService creates the notification service. email may be nil when SES is
// not configured; delivery then skips the email channel.
func NewService(db *gorm.DB, wsManager *websocket.Manager, email *EmailSender, directory approval.DirectoryService, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		wsManager: wsManager,
		email:     email,
		directory: directory,
		logger:    logger,
	}
}

// Notify fans one decided notification out to all its recipients. The in-app
// row must land; push and email failures are logged and ignored.
func (s *Service) Notify(ctx context.Context, senderEmployeeNumber string, n approval.Notification) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}

	rows := make([]InAppNotification, 0, len(n.Recipients))
	for _, recipientID := range n.Recipients {
		rows = append(rows, InAppNotification{
			ID:                   uuid.New(),
			RecipientID:          recipientID,
			SenderEmployeeNumber: senderEmployeeNumber,
			Title:                n.Title,
			Content:              n.Content,
			LinkURL:              n.LinkURL,
			Metadata:             metadata,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to store notifications: %w", err)
	}

	msg := websocket.Message{
		Type:      websocket.MessageTypeNotification,
		Title:     n.Title,
		Content:   n.Content,
		LinkURL:   n.LinkURL,
		Data:      n.Metadata,
		Timestamp: time.Now(),
	}
	for _, recipientID := range n.Recipients {
		s.wsManager.SendToEmployee(recipientID, msg)
		s.sendEmail(ctx, recipientID, n)
	}
	return nil
}

func (s *Service) sendEmail(ctx context.Context, recipientID uuid.UUID, n approval.Notification) {
	if s.email == nil {
		return
	}
	snapshot, err := s.directory.Resolve(ctx, recipientID)
	if err != nil || snapshot.Email == "" {
		return
	}
	if err := s.email.Send(ctx, snapshot.Email, n.Title, n.Content); err != nil {
		s.logger.Warn("failed to send notification email",
			zap.String("recipient_id", recipientID.String()),
			zap.Error(err))
	}
}

// List returns an employee's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, page, limit int) ([]InAppNotification, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}

	q := s.db.WithContext(ctx).Model(&InAppNotification{}).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	var rows []InAppNotification
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return rows, total, nil
}

// UnreadCount returns the badge count.
func (s *Service) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&InAppNotification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&InAppNotification{}).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", notificationID, approval.ErrNotFound)
	}
	return nil
}

// MarkAllRead clears the caller's unread set.
func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&InAppNotification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

func (s *Service) Close() {
	s.wsManager.Close()
}
