package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"expanddesk/internal/model"
	"expanddesk/internal/queue"
)

type fakeUserRepo struct {
	managers []model.User
	agents   []model.User
	users    map[int64]*model.User
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, model.ErrUserNotFound
}

func (f *fakeUserRepo) GetManagers(ctx context.Context) ([]model.User, error) {
	return f.managers, nil
}

func (f *fakeUserRepo) GetAgentsByCategory(ctx context.Context, categoryID int64) ([]model.User, error) {
	return f.agents, nil
}

type fakeNotifRepo struct {
	created []model.Notification
}

func (f *fakeNotifRepo) CreateBatch(ctx context.Context, ns []model.Notification) error {
	f.created = append(f.created, ns...)
	return nil
}

func (f *fakeNotifRepo) List(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	return nil, nil
}

func (f *fakeNotifRepo) MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error {
	return nil
}

func (f *fakeNotifRepo) MarkAllAsRead(ctx context.Context, userID int64) error { return nil }

func (f *fakeNotifRepo) Delete(ctx context.Context, userID, notificationID int64) error { return nil }

func (f *fakeNotifRepo) GetUnreadCount(ctx context.Context, userID int64) (int, error) { return 0, nil }

type fakeChatRepo struct {
	participants []model.Participant
}

func (f *fakeChatRepo) GetOrCreate(ctx context.Context, ticketID int64) (*model.Chat, error) {
	return nil, model.ErrChatNotFound
}

func (f *fakeChatRepo) GetByID(ctx context.Context, id int64) (*model.Chat, error) {
	return nil, model.ErrChatNotFound
}

func (f *fakeChatRepo) GetByTicketID(ctx context.Context, ticketID int64) (*model.Chat, error) {
	return nil, model.ErrChatNotFound
}

func (f *fakeChatRepo) AddParticipant(ctx context.Context, chatID int64, ref model.UserRef) error {
	return nil
}

func (f *fakeChatRepo) GetParticipants(ctx context.Context, chatID int64) ([]model.Participant, error) {
	return f.participants, nil
}

func (f *fakeChatRepo) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	return false, nil
}

func (f *fakeChatRepo) ActiveAgent(ctx context.Context, chatID int64) (*model.Participant, error) {
	return nil, nil
}

func (f *fakeChatRepo) RetireAgents(ctx context.Context, chatID int64) error { return nil }

func (f *fakeChatRepo) ActivateParticipant(ctx context.Context, chatID int64, ref model.UserRef) error {
	return nil
}

func (f *fakeChatRepo) SetLastMessage(ctx context.Context, chatID int64, content string, at time.Time) error {
	return nil
}

func (f *fakeChatRepo) ListSummariesForUser(ctx context.Context, userID int64) ([]model.ChatSummary, error) {
	return nil, nil
}

type fakeActivityRepo struct {
	entries []string
}

func (f *fakeActivityRepo) Create(ctx context.Context, userID int64, message, status string) error {
	f.entries = append(f.entries, message)
	return nil
}

type recordedPush struct {
	UserID int64
	Title  string
	Body   string
	Data   map[string]string
}

type fakePusher struct {
	pushes  []recordedPush
	failFor map[int64]error
}

func (f *fakePusher) NotifyUser(ctx context.Context, userID int64, title, body string, data map[string]string) error {
	if err, ok := f.failFor[userID]; ok {
		return err
	}
	f.pushes = append(f.pushes, recordedPush{UserID: userID, Title: title, Body: body, Data: data})
	return nil
}

type recordedEmit struct {
	UserID int64
	Event  string
}

type fakeNotifier struct {
	emits []recordedEmit
}

func (f *fakeNotifier) EmitUser(userID int64, event string, payload interface{}) {
	f.emits = append(f.emits, recordedEmit{UserID: userID, Event: event})
}

type sentMail struct {
	To      string
	Subject string
}

type fakeMailer struct {
	created  []sentMail
	statuses []sentMail
	assigned []sentMail
}

func (f *fakeMailer) SendTicketCreated(to, ticketNumber, description string) error {
	f.created = append(f.created, sentMail{To: to, Subject: ticketNumber})
	return nil
}

func (f *fakeMailer) SendTicketStatusChanged(to, ticketNumber, oldStatus, newStatus string) error {
	f.statuses = append(f.statuses, sentMail{To: to, Subject: ticketNumber})
	return nil
}

func (f *fakeMailer) SendTicketAssigned(to, ticketNumber, agentName string) error {
	f.assigned = append(f.assigned, sentMail{To: to, Subject: ticketNumber})
	return nil
}

type handlerEnv struct {
	handler  *Handler
	users    *fakeUserRepo
	notifs   *fakeNotifRepo
	chats    *fakeChatRepo
	activity *fakeActivityRepo
	pusher   *fakePusher
	mailer   *fakeMailer
	notifier *fakeNotifier
}

func newHandlerEnv() *handlerEnv {
	env := &handlerEnv{
		users:    &fakeUserRepo{users: make(map[int64]*model.User)},
		notifs:   &fakeNotifRepo{},
		chats:    &fakeChatRepo{},
		activity: &fakeActivityRepo{},
		pusher:   &fakePusher{},
		mailer:   &fakeMailer{},
		notifier: &fakeNotifier{},
	}
	env.handler = NewHandler(env.users, env.notifs, env.chats, env.activity)
	env.handler.SetPusher(env.pusher)
	env.handler.SetMailer(env.mailer)
	env.handler.SetNotifier(env.notifier)
	return env
}

func TestHandleEventUnknownType(t *testing.T) {
	env := newHandlerEnv()
	err := env.handler.HandleEvent(context.Background(), queue.Event{Type: "mystery"})
	if err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestTicketCreatedNotifiesStaffOnce(t *testing.T) {
	env := newHandlerEnv()
	env.users.managers = []model.User{{ID: 1, Role: model.RoleManager}, {ID: 2, Role: model.RoleManager}}
	// Manager 2 also covers the category as an agent; they get one notification
	env.users.agents = []model.User{{ID: 2, Role: model.RoleAgent}, {ID: 3, Role: model.RoleAgent}}
	env.users.users[7] = &model.User{ID: 7, Email: "bob@example.com", Role: model.RoleCustomer}

	event := queue.NewTicketCreatedEvent(10, "EXP00000010", 7, 3, 7, "Projector will not power on")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	// The customer is the actor here; they get no self-notification
	if len(env.notifs.created) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(env.notifs.created))
	}
	seen := make(map[int64]int)
	for _, n := range env.notifs.created {
		seen[n.UserID]++
		if n.Category != model.CategoryTicket {
			t.Errorf("expected ticket category, got %s", n.Category)
		}
	}
	for _, id := range []int64{1, 2, 3} {
		if seen[id] != 1 {
			t.Errorf("user %d got %d notifications", id, seen[id])
		}
	}

	if len(env.mailer.created) != 1 || env.mailer.created[0].To != "bob@example.com" {
		t.Errorf("expected confirmation email to the customer, got %v", env.mailer.created)
	}
	if len(env.activity.entries) != 1 || !strings.Contains(env.activity.entries[0], "EXP00000010") {
		t.Errorf("expected one audit entry, got %v", env.activity.entries)
	}
}

func TestTicketCreatedOnBehalfNotifiesCustomer(t *testing.T) {
	env := newHandlerEnv()
	env.users.managers = []model.User{{ID: 1, Role: model.RoleManager}}
	env.users.agents = []model.User{{ID: 3, Role: model.RoleAgent}}
	env.users.users[7] = &model.User{ID: 7, Email: "bob@example.com", Role: model.RoleCustomer}

	// Manager 1 created the ticket for customer 7: the manager gets no
	// self-notification and the customer is informed.
	event := queue.NewTicketCreatedEvent(10, "EXP00000010", 7, 3, 1, "Broken chair")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	seen := make(map[int64]bool)
	for _, n := range env.notifs.created {
		seen[n.UserID] = true
	}
	if len(env.notifs.created) != 2 || !seen[3] || !seen[7] {
		t.Errorf("expected agent and customer notified, got %+v", env.notifs.created)
	}
	if seen[1] {
		t.Error("the acting manager must not notify themselves")
	}
}

func TestStatusChangedByStaffNotifiesCustomer(t *testing.T) {
	env := newHandlerEnv()
	env.users.users[7] = &model.User{ID: 7, Email: "bob@example.com", Role: model.RoleCustomer}

	event := queue.NewTicketStatusChangedEvent(10, "EXP00000010", 7, 2, "in_progress", "resolved")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if len(env.notifs.created) != 1 || env.notifs.created[0].UserID != 7 {
		t.Fatalf("expected one notification for the customer, got %+v", env.notifs.created)
	}
	if env.notifs.created[0].Type != model.NotificationSuccess {
		t.Errorf("resolved must notify with success severity, got %s", env.notifs.created[0].Type)
	}
	if len(env.mailer.statuses) != 1 {
		t.Errorf("expected a status email, got %v", env.mailer.statuses)
	}
}

func TestNotificationsMirroredToLiveConnections(t *testing.T) {
	env := newHandlerEnv()
	env.users.users[7] = &model.User{ID: 7, Email: "bob@example.com", Role: model.RoleCustomer}

	event := queue.NewTicketStatusChangedEvent(10, "EXP00000010", 7, 2, "pending", "in_progress")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if len(env.notifier.emits) != 1 {
		t.Fatalf("expected one live emit, got %+v", env.notifier.emits)
	}
	if env.notifier.emits[0].UserID != 7 || env.notifier.emits[0].Event != "notification" {
		t.Errorf("expected a notification emit for the customer, got %+v", env.notifier.emits[0])
	}
}

func TestStatusChangedByCustomerNotifiesManagers(t *testing.T) {
	env := newHandlerEnv()
	env.users.managers = []model.User{{ID: 1, Role: model.RoleManager}}

	// A reopen by the customer: actor == customer
	event := queue.NewTicketStatusChangedEvent(10, "EXP00000010", 7, 7, "closed", "reopen")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if len(env.notifs.created) != 1 || env.notifs.created[0].UserID != 1 {
		t.Fatalf("expected the manager notified, got %+v", env.notifs.created)
	}
	if len(env.mailer.statuses) != 0 {
		t.Error("customer-initiated change must not email the customer")
	}
}

func TestStatusChangedClosedSeverity(t *testing.T) {
	env := newHandlerEnv()
	env.users.users[7] = &model.User{ID: 7, Email: "bob@example.com"}

	event := queue.NewTicketStatusChangedEvent(10, "EXP00000010", 7, 2, "resolved", "closed")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if env.notifs.created[0].Type != model.NotificationWarning {
		t.Errorf("closed must notify with warning severity, got %s", env.notifs.created[0].Type)
	}
}

func TestTicketAssignedNotifiesAgentAndCustomer(t *testing.T) {
	env := newHandlerEnv()
	env.users.users[7] = &model.User{ID: 7, Email: "bob@example.com", Role: model.RoleCustomer}

	event := queue.NewTicketAssignedEvent(10, "EXP00000010", 7, 2, 1, "unassigned", "Alice")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if len(env.notifs.created) != 2 {
		t.Fatalf("expected agent and customer notified, got %d", len(env.notifs.created))
	}
	if env.notifs.created[0].UserID != 2 || env.notifs.created[0].Category != model.CategoryAgent {
		t.Errorf("unexpected agent notification: %+v", env.notifs.created[0])
	}
	if env.notifs.created[1].UserID != 7 || env.notifs.created[1].Type != model.NotificationSuccess {
		t.Errorf("unexpected customer notification: %+v", env.notifs.created[1])
	}
	if len(env.mailer.assigned) != 1 || env.mailer.assigned[0].To != "bob@example.com" {
		t.Errorf("expected assignment email to the customer, got %v", env.mailer.assigned)
	}
}

func TestChatMessagePushRecipients(t *testing.T) {
	env := newHandlerEnv()
	// Alice is the sender; the manager and the retired agent are excluded,
	// leaving the customer as the only push recipient.
	env.chats.participants = []model.Participant{
		{UserID: 2, Name: "Alice", Role: model.RoleAgent, Status: model.ParticipantActive},
		{UserID: 7, Name: "Bob", Role: model.RoleCustomer, Status: model.ParticipantActive},
		{UserID: 1, Name: "Boss", Role: model.RoleManager, Status: model.ParticipantActive},
		{UserID: 4, Name: "Carol", Role: model.RoleAgent, Status: model.ParticipantOld},
	}

	event := queue.NewChatMessageSentEvent(10, "EXP00000010", 5, 55, 2, "see you at 3pm")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if len(env.pusher.pushes) != 1 {
		t.Fatalf("expected exactly one push, got %+v", env.pusher.pushes)
	}
	push := env.pusher.pushes[0]
	if push.UserID != 7 {
		t.Errorf("expected push for the customer, got user %d", push.UserID)
	}
	if !strings.Contains(push.Title, "Alice") || !strings.Contains(push.Title, "EXP00000010") {
		t.Errorf("title must carry sender and ticket, got %q", push.Title)
	}
	if push.Body != "see you at 3pm" {
		t.Errorf("body must be the preview, got %q", push.Body)
	}
	if push.Data["type"] != "chat_message" || push.Data["chat_id"] != "5" {
		t.Errorf("unexpected push data: %v", push.Data)
	}
}

func TestChatMessageSenderNameFallback(t *testing.T) {
	env := newHandlerEnv()
	// Sender missing from the roster (e.g. participant row not yet visible)
	env.chats.participants = []model.Participant{
		{UserID: 7, Name: "Bob", Role: model.RoleCustomer, Status: model.ParticipantActive},
	}

	event := queue.NewChatMessageSentEvent(10, "EXP00000010", 5, 55, 2, "hello")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(env.pusher.pushes) != 1 || !strings.HasPrefix(env.pusher.pushes[0].Title, "Support") {
		t.Errorf("expected Support fallback in title, got %+v", env.pusher.pushes)
	}
}

func TestPushFailureDoesNotBlockOtherRecipients(t *testing.T) {
	env := newHandlerEnv()
	env.pusher.failFor = map[int64]error{7: errors.New("gateway timeout")}
	env.chats.participants = []model.Participant{
		{UserID: 2, Name: "Alice", Role: model.RoleAgent, Status: model.ParticipantActive},
		{UserID: 7, Name: "Bob", Role: model.RoleCustomer, Status: model.ParticipantActive},
		{UserID: 8, Name: "Dana", Role: model.RoleCustomer, Status: model.ParticipantActive},
	}

	event := queue.NewChatMessageSentEvent(10, "EXP00000010", 5, 55, 2, "hello")
	if err := env.handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(env.pusher.pushes) != 1 || env.pusher.pushes[0].UserID != 8 {
		t.Errorf("the other recipient must still get their push, got %+v", env.pusher.pushes)
	}
}
