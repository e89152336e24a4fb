package service

import (
	"context"
	"strings"
	"testing"

	"expanddesk/internal/model"
)

// goodToken builds a token long enough to pass the shape check.
func goodToken(seed string) string {
	return seed + strings.Repeat("x", 60)
}

func TestNotifyUserNoSenderIsNoOp(t *testing.T) {
	tokenRepo := &mockTokenRepo{}
	svc := NewPushService(nil, tokenRepo, &mockNotifRepo{})

	if svc.Enabled() {
		t.Error("push must report disabled without a sender")
	}
	if err := svc.NotifyUser(context.Background(), 7, "t", "b", nil); err != nil {
		t.Errorf("disabled push must be silent, got %v", err)
	}
}

func TestNotifyUserFiltersMalformedTokens(t *testing.T) {
	sender := &fakePushSender{}
	tokenRepo := &mockTokenRepo{
		getByUserIDsFn: func(ctx context.Context, userIDs []int64) ([]model.DeviceToken, error) {
			return []model.DeviceToken{
				{UserID: 7, Token: "fcm_token_example_1234567890123456789012345678901234567890"},
				{UserID: 7, Token: "short"},
				{UserID: 7, Token: goodToken("real")},
			}, nil
		},
	}
	svc := NewPushService(sender, tokenRepo, &mockNotifRepo{})

	if err := svc.NotifyUser(context.Background(), 7, "title", "body", nil); err != nil {
		t.Fatalf("NotifyUser failed: %v", err)
	}

	if len(tokenRepo.deletedSingles) != 2 {
		t.Errorf("expected 2 malformed tokens pruned, got %v", tokenRepo.deletedSingles)
	}
	if len(sender.sentBatches) != 1 || len(sender.sentBatches[0]) != 1 {
		t.Fatalf("expected one send with one token, got %v", sender.sentBatches)
	}
	if sender.sentBatches[0][0] != goodToken("real") {
		t.Errorf("wrong token sent: %q", sender.sentBatches[0][0])
	}
}

func TestNotifyUserBadgeIsFreshUnreadCount(t *testing.T) {
	sender := &fakePushSender{}
	tokenRepo := &mockTokenRepo{
		getByUserIDsFn: func(ctx context.Context, userIDs []int64) ([]model.DeviceToken, error) {
			return []model.DeviceToken{{UserID: 7, Token: goodToken("real")}}, nil
		},
	}
	notifRepo := &mockNotifRepo{
		unreadCountFn: func(ctx context.Context, userID int64) (int, error) { return 4, nil },
	}
	svc := NewPushService(sender, tokenRepo, notifRepo)

	if err := svc.NotifyUser(context.Background(), 7, "title", "body", nil); err != nil {
		t.Fatalf("NotifyUser failed: %v", err)
	}
	if len(sender.sentBadges) != 1 || sender.sentBadges[0] == nil || *sender.sentBadges[0] != 4 {
		t.Errorf("expected badge 4, got %v", sender.sentBadges)
	}
}

func TestNotifyUserPrunesDeadTokens(t *testing.T) {
	dead := goodToken("dead")
	flaky := goodToken("flaky")
	live := goodToken("live")
	sender := &fakePushSender{
		results: map[string]SendResult{
			dead:  {Token: dead, OK: false, Permanent: true},
			flaky: {Token: flaky, OK: false, Permanent: false},
			live:  {Token: live, OK: true},
		},
	}
	tokenRepo := &mockTokenRepo{
		getByUserIDsFn: func(ctx context.Context, userIDs []int64) ([]model.DeviceToken, error) {
			return []model.DeviceToken{
				{UserID: 7, Token: dead},
				{UserID: 7, Token: flaky},
				{UserID: 7, Token: live},
			}, nil
		},
	}
	svc := NewPushService(sender, tokenRepo, &mockNotifRepo{})

	if err := svc.NotifyUser(context.Background(), 7, "title", "body", nil); err != nil {
		t.Fatalf("NotifyUser failed: %v", err)
	}

	if len(tokenRepo.deletedBatches) != 1 {
		t.Fatalf("expected one prune batch, got %v", tokenRepo.deletedBatches)
	}
	pruned := tokenRepo.deletedBatches[0]
	if len(pruned) != 1 || pruned[0] != dead {
		t.Errorf("only the permanently dead token must be pruned, got %v", pruned)
	}
}

func TestNotifyUserNoDevices(t *testing.T) {
	sender := &fakePushSender{}
	svc := NewPushService(sender, &mockTokenRepo{}, &mockNotifRepo{})

	if err := svc.NotifyUser(context.Background(), 7, "title", "body", nil); err != nil {
		t.Fatalf("NotifyUser failed: %v", err)
	}
	if len(sender.sentBatches) != 0 {
		t.Error("no devices must mean no send")
	}
}

func TestCleanupInvalidTokens(t *testing.T) {
	tokenRepo := &mockTokenRepo{
		listAllFn: func(ctx context.Context) ([]model.DeviceToken, error) {
			return []model.DeviceToken{
				{UserID: 1, Token: goodToken("keep")},
				{UserID: 2, Token: "placeholder_token_0000000000000000000000000000000000000000"},
				{UserID: 3, Token: "tiny"},
			}, nil
		},
	}
	svc := NewPushService(&fakePushSender{}, tokenRepo, &mockNotifRepo{})

	removed, err := svc.CleanupInvalidTokens(context.Background())
	if err != nil {
		t.Fatalf("CleanupInvalidTokens failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if len(tokenRepo.deletedBatches) != 1 || len(tokenRepo.deletedBatches[0]) != 2 {
		t.Errorf("unexpected prune batches: %v", tokenRepo.deletedBatches)
	}
}

func TestRegisterDeviceTokenValidatesShape(t *testing.T) {
	tokenRepo := &mockTokenRepo{}
	svc := NewNotificationService(&mockNotifRepo{}, tokenRepo)

	err := svc.RegisterDeviceToken(context.Background(), 7, "fcm_token_example", "ios")
	if err != model.ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if len(tokenRepo.upserted) != 0 {
		t.Error("invalid token must not be stored")
	}

	if err := svc.RegisterDeviceToken(context.Background(), 7, goodToken("real"), "IOS"); err != nil {
		t.Fatalf("RegisterDeviceToken failed: %v", err)
	}
	if len(tokenRepo.upserted) != 1 {
		t.Fatal("expected the token stored")
	}
}
