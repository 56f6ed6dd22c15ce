package service

import (
	"context"

	"campusrides/internal/domain"
	"campusrides/internal/models"

	"github.com/rs/zerolog"
)

// NotificationService persists user notifications. Writes are fire-and-forget
// for callers; a failed insert is logged and swallowed so notification
// problems can never fail a booking operation.
type NotificationService struct {
	store  domain.Store
	logger *zerolog.Logger
}

func NewNotificationService(store domain.Store, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{store: store, logger: logger}
}

func (s *NotificationService) Notify(ctx context.Context, userID int64, title, message, category string, relatedID int64, priority string) {
	if priority == "" {
		priority = models.PriorityNormal
	}
	n := &models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Category:  category,
		RelatedID: relatedID,
		Priority:  priority,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Str("title", title).
			Msg("notification insert failed")
	}
}

func (s *NotificationService) List(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	return s.store.ListUserNotifications(ctx, userID, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID int64) error {
	return s.store.MarkNotificationRead(ctx, id, userID)
}
