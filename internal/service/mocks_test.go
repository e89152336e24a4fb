package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"expanddesk/internal/model"
	"expanddesk/internal/queue"
)

// Function-field mocks shared by the service tests. A nil field means the
// test does not expect that call; hitting one returns a zero value.

type mockTicketRepo struct {
	createFn        func(ctx context.Context, ticket *model.Ticket) error
	getByIDFn       func(ctx context.Context, id int64) (*model.Ticket, error)
	updateStatusFn  func(ctx context.Context, id int64, status model.TicketStatus) (bool, error)
	reopenFn        func(ctx context.Context, id int64) (bool, error)
	assignFn        func(ctx context.Context, id, agentID int64) (bool, error)
	startProgressFn func(ctx context.Context, tx *sqlx.Tx, id, agentID int64) error
	appendNoteFn    func(ctx context.Context, id int64, note string) error
	listForAgentFn  func(ctx context.Context, agentID int64, categoryIDs []int64) ([]model.Ticket, error)
	listAllFn       func(ctx context.Context) ([]model.Ticket, error)
	listForCustFn   func(ctx context.Context, customerID int64) ([]model.Ticket, error)

	updateStatusCalls  []model.TicketStatus
	assignCalls        []int64
	startProgressCalls []int64
	appendedNotes      []string
}

func (m *mockTicketRepo) Create(ctx context.Context, ticket *model.Ticket) error {
	if m.createFn != nil {
		return m.createFn(ctx, ticket)
	}
	return nil
}

func (m *mockTicketRepo) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrTicketNotFound
}

func (m *mockTicketRepo) UpdateStatus(ctx context.Context, id int64, status model.TicketStatus) (bool, error) {
	m.updateStatusCalls = append(m.updateStatusCalls, status)
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return true, nil
}

func (m *mockTicketRepo) Reopen(ctx context.Context, id int64) (bool, error) {
	if m.reopenFn != nil {
		return m.reopenFn(ctx, id)
	}
	return true, nil
}

func (m *mockTicketRepo) Assign(ctx context.Context, id, agentID int64) (bool, error) {
	m.assignCalls = append(m.assignCalls, agentID)
	if m.assignFn != nil {
		return m.assignFn(ctx, id, agentID)
	}
	return true, nil
}

func (m *mockTicketRepo) StartProgress(ctx context.Context, tx *sqlx.Tx, id, agentID int64) error {
	m.startProgressCalls = append(m.startProgressCalls, agentID)
	if m.startProgressFn != nil {
		return m.startProgressFn(ctx, tx, id, agentID)
	}
	return nil
}

func (m *mockTicketRepo) AppendNote(ctx context.Context, id int64, note string) error {
	m.appendedNotes = append(m.appendedNotes, note)
	if m.appendNoteFn != nil {
		return m.appendNoteFn(ctx, id, note)
	}
	return nil
}

func (m *mockTicketRepo) SetRead(ctx context.Context, id int64, isRead bool) error { return nil }

func (m *mockTicketRepo) SetArchived(ctx context.Context, id int64, archived bool) error { return nil }

func (m *mockTicketRepo) ListForCustomer(ctx context.Context, customerID int64) ([]model.Ticket, error) {
	if m.listForCustFn != nil {
		return m.listForCustFn(ctx, customerID)
	}
	return nil, nil
}

func (m *mockTicketRepo) ListForAgent(ctx context.Context, agentID int64, categoryIDs []int64) ([]model.Ticket, error) {
	if m.listForAgentFn != nil {
		return m.listForAgentFn(ctx, agentID, categoryIDs)
	}
	return nil, nil
}

func (m *mockTicketRepo) ListAll(ctx context.Context) ([]model.Ticket, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

type mockUserRepo struct {
	getByIDFn func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepo) GetManagers(ctx context.Context) ([]model.User, error) { return nil, nil }

func (m *mockUserRepo) GetAgentsByCategory(ctx context.Context, categoryID int64) ([]model.User, error) {
	return nil, nil
}

type mockChatRepo struct {
	getOrCreateFn     func(ctx context.Context, ticketID int64) (*model.Chat, error)
	getByIDFn         func(ctx context.Context, id int64) (*model.Chat, error)
	isParticipantFn   func(ctx context.Context, chatID, userID int64) (bool, error)
	activeAgentFn     func(ctx context.Context, chatID int64) (*model.Participant, error)
	getParticipantsFn func(ctx context.Context, chatID int64) ([]model.Participant, error)
	listSummariesFn   func(ctx context.Context, userID int64) ([]model.ChatSummary, error)

	addedParticipants []model.UserRef
	retireCalls       int
	activatedRefs     []model.UserRef
}

func (m *mockChatRepo) GetOrCreate(ctx context.Context, ticketID int64) (*model.Chat, error) {
	if m.getOrCreateFn != nil {
		return m.getOrCreateFn(ctx, ticketID)
	}
	return &model.Chat{ID: 1, TicketID: ticketID}, nil
}

func (m *mockChatRepo) GetByID(ctx context.Context, id int64) (*model.Chat, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrChatNotFound
}

func (m *mockChatRepo) GetByTicketID(ctx context.Context, ticketID int64) (*model.Chat, error) {
	return nil, model.ErrChatNotFound
}

func (m *mockChatRepo) AddParticipant(ctx context.Context, chatID int64, ref model.UserRef) error {
	m.addedParticipants = append(m.addedParticipants, ref)
	return nil
}

func (m *mockChatRepo) GetParticipants(ctx context.Context, chatID int64) ([]model.Participant, error) {
	if m.getParticipantsFn != nil {
		return m.getParticipantsFn(ctx, chatID)
	}
	return nil, nil
}

func (m *mockChatRepo) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	if m.isParticipantFn != nil {
		return m.isParticipantFn(ctx, chatID, userID)
	}
	return false, nil
}

func (m *mockChatRepo) ActiveAgent(ctx context.Context, chatID int64) (*model.Participant, error) {
	if m.activeAgentFn != nil {
		return m.activeAgentFn(ctx, chatID)
	}
	return nil, nil
}

func (m *mockChatRepo) RetireAgents(ctx context.Context, chatID int64) error {
	m.retireCalls++
	return nil
}

func (m *mockChatRepo) ActivateParticipant(ctx context.Context, chatID int64, ref model.UserRef) error {
	m.activatedRefs = append(m.activatedRefs, ref)
	return nil
}

func (m *mockChatRepo) SetLastMessage(ctx context.Context, chatID int64, content string, at time.Time) error {
	return nil
}

func (m *mockChatRepo) ListSummariesForUser(ctx context.Context, userID int64) ([]model.ChatSummary, error) {
	if m.listSummariesFn != nil {
		return m.listSummariesFn(ctx, userID)
	}
	return nil, nil
}

type mockMessageRepo struct {
	createFn          func(ctx context.Context, tx *sqlx.Tx, message *model.Message) error
	findDuplicateFn   func(ctx context.Context, chatID, senderID int64, content string, window time.Duration) (*model.Message, error)
	markAllReadFn     func(ctx context.Context, chatID, userID int64) error
	listLatestFn      func(ctx context.Context, chatID int64, limit int) ([]model.Message, error)
	listByChatFn      func(ctx context.Context, chatID int64, limit, offset int) ([]model.Message, error)
	listReadByFn      func(ctx context.Context, messageIDs []int64) (map[int64][]model.ReadReceipt, error)
	unreadForChatFn   func(ctx context.Context, chatID, userID int64) (int, error)
	unreadForTicketFn func(ctx context.Context, ticketID, userID int64) (int, error)

	markAllReadCalls []int64
}

func (m *mockMessageRepo) Create(ctx context.Context, tx *sqlx.Tx, message *model.Message) error {
	if m.createFn != nil {
		return m.createFn(ctx, tx, message)
	}
	return nil
}

func (m *mockMessageRepo) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	return nil, model.ErrMessageNotFound
}

func (m *mockMessageRepo) FindRecentDuplicate(ctx context.Context, chatID, senderID int64, content string, window time.Duration) (*model.Message, error) {
	if m.findDuplicateFn != nil {
		return m.findDuplicateFn(ctx, chatID, senderID, content, window)
	}
	return nil, nil
}

func (m *mockMessageRepo) ListLatest(ctx context.Context, chatID int64, limit int) ([]model.Message, error) {
	if m.listLatestFn != nil {
		return m.listLatestFn(ctx, chatID, limit)
	}
	return nil, nil
}

func (m *mockMessageRepo) ListByChat(ctx context.Context, chatID int64, limit, offset int) ([]model.Message, error) {
	if m.listByChatFn != nil {
		return m.listByChatFn(ctx, chatID, limit, offset)
	}
	return nil, nil
}

func (m *mockMessageRepo) ListReadBy(ctx context.Context, messageIDs []int64) (map[int64][]model.ReadReceipt, error) {
	if m.listReadByFn != nil {
		return m.listReadByFn(ctx, messageIDs)
	}
	return nil, nil
}

func (m *mockMessageRepo) MarkAllRead(ctx context.Context, chatID, userID int64) error {
	m.markAllReadCalls = append(m.markAllReadCalls, userID)
	if m.markAllReadFn != nil {
		return m.markAllReadFn(ctx, chatID, userID)
	}
	return nil
}

func (m *mockMessageRepo) UnreadCountForChat(ctx context.Context, chatID, userID int64) (int, error) {
	if m.unreadForChatFn != nil {
		return m.unreadForChatFn(ctx, chatID, userID)
	}
	return 0, nil
}

func (m *mockMessageRepo) UnreadCountForTicket(ctx context.Context, ticketID, userID int64) (int, error) {
	if m.unreadForTicketFn != nil {
		return m.unreadForTicketFn(ctx, ticketID, userID)
	}
	return 0, nil
}

type mockNotifRepo struct {
	unreadCountFn func(ctx context.Context, userID int64) (int, error)

	created []model.Notification
}

func (m *mockNotifRepo) CreateBatch(ctx context.Context, ns []model.Notification) error {
	m.created = append(m.created, ns...)
	return nil
}

func (m *mockNotifRepo) List(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	return nil, nil
}

func (m *mockNotifRepo) MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error {
	return nil
}

func (m *mockNotifRepo) MarkAllAsRead(ctx context.Context, userID int64) error { return nil }

func (m *mockNotifRepo) Delete(ctx context.Context, userID, notificationID int64) error { return nil }

func (m *mockNotifRepo) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	if m.unreadCountFn != nil {
		return m.unreadCountFn(ctx, userID)
	}
	return 0, nil
}

type mockTokenRepo struct {
	getByUserIDsFn func(ctx context.Context, userIDs []int64) ([]model.DeviceToken, error)
	listAllFn      func(ctx context.Context) ([]model.DeviceToken, error)

	upserted       []string
	deletedSingles []string
	deletedBatches [][]string
}

func (m *mockTokenRepo) Upsert(ctx context.Context, userID int64, token, platform string) error {
	m.upserted = append(m.upserted, token)
	return nil
}

func (m *mockTokenRepo) GetByUserIDs(ctx context.Context, userIDs []int64) ([]model.DeviceToken, error) {
	if m.getByUserIDsFn != nil {
		return m.getByUserIDsFn(ctx, userIDs)
	}
	return nil, nil
}

func (m *mockTokenRepo) DeleteByToken(ctx context.Context, token string) error {
	m.deletedSingles = append(m.deletedSingles, token)
	return nil
}

func (m *mockTokenRepo) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	m.deletedBatches = append(m.deletedBatches, tokens)
	return int64(len(tokens)), nil
}

func (m *mockTokenRepo) ListAll(ctx context.Context) ([]model.DeviceToken, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, stream string, event queue.Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.events = append(m.events, event)
	return "1-0", nil
}

func (m *mockPublisher) published() []queue.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.Event(nil), m.events...)
}

// recordedEmit is one captured broadcast.
type recordedEmit struct {
	Room    string
	Event   string
	Payload interface{}
}

// mockBroadcaster records room and global emits.
type mockBroadcaster struct {
	mu    sync.Mutex
	emits []recordedEmit
}

func (m *mockBroadcaster) EmitRoom(room, event string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emits = append(m.emits, recordedEmit{Room: room, Event: event, Payload: payload})
}

func (m *mockBroadcaster) EmitAll(event string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emits = append(m.emits, recordedEmit{Event: event, Payload: payload})
}

func (m *mockBroadcaster) recorded() []recordedEmit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedEmit(nil), m.emits...)
}

// countingTxBeginner opens real transactions against a no-op driver, so
// transactional paths run end to end without a database. The repositories
// are mocked and never touch the connection; only Begin/Commit/Rollback
// reach the driver. calls counts the transactions opened.
type countingTxBeginner struct {
	db    *sqlx.DB
	calls int
}

func newCountingTxBeginner() *countingTxBeginner {
	return &countingTxBeginner{db: sqlx.NewDb(sql.OpenDB(noopConnector{}), "postgres")}
}

func (c *countingTxBeginner) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	c.calls++
	return c.db.BeginTxx(ctx, opts)
}

type noopConnector struct{}

func (noopConnector) Connect(ctx context.Context) (driver.Conn, error) { return noopConn{}, nil }

func (noopConnector) Driver() driver.Driver { return noopDriver{} }

type noopDriver struct{}

func (noopDriver) Open(name string) (driver.Conn, error) { return noopConn{}, nil }

type noopConn struct{}

func (noopConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("statements not supported")
}

func (noopConn) Close() error { return nil }

func (noopConn) Begin() (driver.Tx, error) { return noopTx{}, nil }

type noopTx struct{}

func (noopTx) Commit() error { return nil }

func (noopTx) Rollback() error { return nil }

// fakePushSender returns canned per-token results.
type fakePushSender struct {
	results map[string]SendResult
	err     error

	sentBatches [][]string
	sentBadges  []*int
}

func (f *fakePushSender) Send(ctx context.Context, tokens []string, n PushNotification) ([]SendResult, error) {
	f.sentBatches = append(f.sentBatches, tokens)
	f.sentBadges = append(f.sentBadges, n.Badge)
	if f.err != nil {
		return nil, f.err
	}
	results := make([]SendResult, 0, len(tokens))
	for _, token := range tokens {
		if r, ok := f.results[token]; ok {
			results = append(results, r)
			continue
		}
		results = append(results, SendResult{Token: token, OK: true})
	}
	return results, nil
}
