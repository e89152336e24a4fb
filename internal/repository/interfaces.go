package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"expanddesk/internal/model"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetManagers returns all active managers
	GetManagers(ctx context.Context) ([]model.User, error)
	// GetAgentsByCategory returns active agents whose category set contains categoryID
	GetAgentsByCategory(ctx context.Context, categoryID int64) ([]model.User, error)
}

type TicketRepository interface {
	Create(ctx context.Context, ticket *model.Ticket) error
	GetByID(ctx context.Context, id int64) (*model.Ticket, error)
	// UpdateStatus writes the new status only while the ticket is not closed.
	// Returns false when the guard rejected the write.
	UpdateStatus(ctx context.Context, id int64, status model.TicketStatus) (bool, error)
	// Reopen flips a closed ticket to reopen. Returns false if the ticket
	// was not closed.
	Reopen(ctx context.Context, id int64) (bool, error)
	// Assign sets the agent only while the ticket is not closed.
	Assign(ctx context.Context, id, agentID int64) (bool, error)
	// StartProgress is the first-agent-message transition: within tx, moves a
	// workable ticket to in_progress and assigns agentID if unassigned.
	StartProgress(ctx context.Context, tx *sqlx.Tx, id, agentID int64) error
	// AppendNote atomically appends one note block to the ticket's note list.
	AppendNote(ctx context.Context, id int64, note string) error
	SetRead(ctx context.Context, id int64, isRead bool) error
	SetArchived(ctx context.Context, id int64, archived bool) error
	ListForCustomer(ctx context.Context, customerID int64) ([]model.Ticket, error)
	// ListForAgent returns tickets assigned to the agent plus unassigned
	// tickets in the agent's categories.
	ListForAgent(ctx context.Context, agentID int64, categoryIDs []int64) ([]model.Ticket, error)
	// ListAll returns every non-archived ticket (manager/admin view).
	ListAll(ctx context.Context) ([]model.Ticket, error)
}

type ChatRepository interface {
	// GetOrCreate returns the chat for a ticket, creating it if absent.
	// Concurrency-safe: two concurrent callers converge on one row.
	GetOrCreate(ctx context.Context, ticketID int64) (*model.Chat, error)
	GetByID(ctx context.Context, id int64) (*model.Chat, error)
	GetByTicketID(ctx context.Context, ticketID int64) (*model.Chat, error)
	// AddParticipant appends a roster row if the user is not on it yet.
	// Idempotent set-add: concurrent duplicates converge to one row.
	AddParticipant(ctx context.Context, chatID int64, ref model.UserRef) error
	GetParticipants(ctx context.Context, chatID int64) ([]model.Participant, error)
	IsParticipant(ctx context.Context, chatID, userID int64) (bool, error)
	// ActiveAgent returns the roster row with role=agent and status=active,
	// or nil when no agent is live on the chat.
	ActiveAgent(ctx context.Context, chatID int64) (*model.Participant, error)
	// RetireAgents marks every agent roster row as old.
	RetireAgents(ctx context.Context, chatID int64) error
	// ActivateParticipant upserts a roster row to active, refreshing the
	// name/email snapshot.
	ActivateParticipant(ctx context.Context, chatID int64, ref model.UserRef) error
	SetLastMessage(ctx context.Context, chatID int64, content string, at time.Time) error
	// ListSummariesForUser returns the user's support inbox: one entry per
	// chat the user participates in, newest message first.
	ListSummariesForUser(ctx context.Context, userID int64) ([]model.ChatSummary, error)
}

type MessageRepository interface {
	// Create inserts the message and seeds its read set with the sender,
	// inside the caller's transaction.
	Create(ctx context.Context, tx *sqlx.Tx, message *model.Message) error
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	// FindRecentDuplicate returns a message with identical sender and content
	// created within the window, or nil.
	FindRecentDuplicate(ctx context.Context, chatID, senderID int64, content string, window time.Duration) (*model.Message, error)
	// ListLatest returns up to limit of the newest messages in chronological order.
	ListLatest(ctx context.Context, chatID int64, limit int) ([]model.Message, error)
	ListByChat(ctx context.Context, chatID int64, limit, offset int) ([]model.Message, error)
	// ListReadBy returns the read receipts of each listed message, keyed by
	// message id. Messages nobody has read are absent from the map.
	ListReadBy(ctx context.Context, messageIDs []int64) (map[int64][]model.ReadReceipt, error)
	// MarkAllRead adds a read receipt for every message in the chat not sent
	// by userID, then refreshes is_read on messages every active participant
	// has now read. Idempotent; safe under concurrent readers.
	MarkAllRead(ctx context.Context, chatID, userID int64) error
	UnreadCountForChat(ctx context.Context, chatID, userID int64) (int, error)
	UnreadCountForTicket(ctx context.Context, ticketID, userID int64) (int, error)
}

type NotificationRepository interface {
	// CreateBatch bulk-inserts notifications in one statement.
	CreateBatch(ctx context.Context, ns []model.Notification) error
	List(ctx context.Context, userID int64, limit int) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error
	MarkAllAsRead(ctx context.Context, userID int64) error
	Delete(ctx context.Context, userID, notificationID int64) error
	GetUnreadCount(ctx context.Context, userID int64) (int, error)
}

type DeviceTokenRepository interface {
	// Upsert registers a token for a user. The token is globally unique:
	// a token held by a different user is transferred, and a user's previous
	// token is replaced (latest wins).
	Upsert(ctx context.Context, userID int64, token, platform string) error
	GetByUserIDs(ctx context.Context, userIDs []int64) ([]model.DeviceToken, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByTokens(ctx context.Context, tokens []string) (int64, error)
	ListAll(ctx context.Context) ([]model.DeviceToken, error)
}

type ActivityLogRepository interface {
	Create(ctx context.Context, userID int64, message, status string) error
}
