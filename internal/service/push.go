package service

import (
	"context"
	"log"

	"expanddesk/internal/model"
	"expanddesk/internal/repository"
)

// PushService resolves users to device tokens and delivers push
// notifications through the configured gateway. Delivery is best effort:
// a failed push is logged and never propagated to the triggering operation.
type PushService struct {
	sender    PushSender // nil when push is not configured
	tokenRepo repository.DeviceTokenRepository
	notifRepo repository.NotificationRepository
}

func NewPushService(
	sender PushSender,
	tokenRepo repository.DeviceTokenRepository,
	notifRepo repository.NotificationRepository,
) *PushService {
	return &PushService{
		sender:    sender,
		tokenRepo: tokenRepo,
		notifRepo: notifRepo,
	}
}

// Enabled reports whether a push gateway is configured.
func (s *PushService) Enabled() bool {
	return s.sender != nil
}

// NotifyUser sends one push to all of a user's registered devices.
//
// The badge is the recipient's unread notification count, computed fresh at
// send time so the app icon never shows a stale number. Tokens failing the
// shape check are deleted before the send; tokens the gateway reports as
// permanently dead are pruned after it.
func (s *PushService) NotifyUser(ctx context.Context, userID int64, title, body string, data map[string]string) error {
	if s.sender == nil {
		return nil
	}

	tokens, err := s.tokenRepo.GetByUserIDs(ctx, []int64{userID})
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil // User has no registered devices
	}

	valid := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !model.ValidTokenShape(t.Token) {
			log.Printf("[Push] Pruning malformed token: user=%d", t.UserID)
			if err := s.tokenRepo.DeleteByToken(ctx, t.Token); err != nil {
				log.Printf("[Push] Prune FAILED: user=%d err=%v", t.UserID, err)
			}
			continue
		}
		valid = append(valid, t.Token)
	}
	if len(valid) == 0 {
		return nil
	}

	unread, err := s.notifRepo.GetUnreadCount(ctx, userID)
	if err != nil {
		log.Printf("[Push] Badge count FAILED: user=%d err=%v", userID, err)
		unread = 0
	}

	results, err := s.sender.Send(ctx, valid, PushNotification{
		Title: title,
		Body:  body,
		Badge: &unread,
		Data:  data,
	})
	if err != nil {
		return err
	}

	var dead []string
	for _, r := range results {
		if !r.OK && r.Permanent {
			dead = append(dead, r.Token)
		}
	}
	if len(dead) > 0 {
		n, err := s.tokenRepo.DeleteByTokens(ctx, dead)
		if err != nil {
			log.Printf("[Push] Prune dead tokens FAILED: user=%d err=%v", userID, err)
		} else {
			log.Printf("[Push] Pruned %d dead tokens: user=%d", n, userID)
		}
	}

	return nil
}

// NotifyUsers fans a push out to several recipients. Each recipient is
// isolated: one failure is logged and the rest still get their push.
func (s *PushService) NotifyUsers(ctx context.Context, userIDs []int64, title, body string, data map[string]string) {
	if s.sender == nil {
		return
	}
	for _, userID := range userIDs {
		if err := s.NotifyUser(ctx, userID, title, body, data); err != nil {
			log.Printf("[Push] NotifyUser FAILED: user=%d err=%v", userID, err)
		}
	}
}

// CleanupInvalidTokens sweeps the token table and deletes every token that
// fails the shape check. Run periodically; registrations predating the
// shape validation can still carry placeholder tokens.
func (s *PushService) CleanupInvalidTokens(ctx context.Context) (int64, error) {
	tokens, err := s.tokenRepo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	var invalid []string
	for _, t := range tokens {
		if !model.ValidTokenShape(t.Token) {
			invalid = append(invalid, t.Token)
		}
	}
	if len(invalid) == 0 {
		return 0, nil
	}

	removed, err := s.tokenRepo.DeleteByTokens(ctx, invalid)
	if err != nil {
		return 0, err
	}

	log.Printf("[Push] CleanupInvalidTokens: scanned=%d removed=%d", len(tokens), removed)
	return removed, nil
}
