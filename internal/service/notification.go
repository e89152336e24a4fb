package service

import (
	"context"
	"strings"

	"expanddesk/internal/model"
	"expanddesk/internal/repository"
)

// NotificationService handles in-app notifications and device token
// registration. Notification creation happens in the event workers; this
// service serves the recipient-facing operations.
type NotificationService struct {
	notifRepo repository.NotificationRepository
	tokenRepo repository.DeviceTokenRepository
}

func NewNotificationService(
	notifRepo repository.NotificationRepository,
	tokenRepo repository.DeviceTokenRepository,
) *NotificationService {
	return &NotificationService{
		notifRepo: notifRepo,
		tokenRepo: tokenRepo,
	}
}

// List returns the user's notifications, newest first, with the unread
// count for badge display.
func (s *NotificationService) List(ctx context.Context, userID int64, limit int) (*model.NotificationListResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	notifications, err := s.notifRepo.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	unread, err := s.notifRepo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unread,
	}, nil
}

// MarkAsRead marks specific notifications as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error {
	return s.notifRepo.MarkAsRead(ctx, userID, notificationIDs)
}

// MarkAllAsRead marks all of the user's notifications as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.notifRepo.MarkAllAsRead(ctx, userID)
}

// Delete removes one notification owned by the user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID int64) error {
	return s.notifRepo.Delete(ctx, userID, notificationID)
}

// GetUnreadCount returns the number of unread notifications.
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.notifRepo.GetUnreadCount(ctx, userID)
}

// RegisterDeviceToken stores or updates a device's push token.
// Called when a user logs in on a device or the app refreshes its token.
// The token shape is validated first: placeholder or truncated tokens are
// rejected instead of stored and failed on every send.
func (s *NotificationService) RegisterDeviceToken(ctx context.Context, userID int64, token, platform string) error {
	if !model.ValidTokenShape(token) {
		return model.ErrInvalidToken
	}

	switch strings.ToLower(platform) {
	case model.PlatformIOS, model.PlatformAndroid, model.PlatformWeb:
		platform = strings.ToLower(platform)
	default:
		platform = model.PlatformAndroid
	}

	return s.tokenRepo.Upsert(ctx, userID, strings.TrimSpace(token), platform)
}

// RemoveDeviceToken removes a device token (e.g., on logout).
func (s *NotificationService) RemoveDeviceToken(ctx context.Context, token string) error {
	return s.tokenRepo.DeleteByToken(ctx, token)
}
