package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"expanddesk/internal/model"
)

type chatRepository struct {
	db *sqlx.DB
}

func NewChatRepository(db *sqlx.DB) ChatRepository {
	return &chatRepository{db: db}
}

const chatColumns = `id, ticket_id, is_active, last_message, last_message_at, created_at, updated_at`

// GetOrCreate relies on the unique constraint on ticket_id: the insert is a
// no-op when the chat already exists, and two concurrent callers both land
// on the single surviving row.
func (r *chatRepository) GetOrCreate(ctx context.Context, ticketID int64) (*model.Chat, error) {
	insert := `
		INSERT INTO chats (ticket_id, last_message, last_message_at)
		VALUES ($1, '', NOW())
		ON CONFLICT (ticket_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, ticketID); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return r.GetByTicketID(ctx, ticketID)
}

func (r *chatRepository) GetByID(ctx context.Context, id int64) (*model.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`

	var chat model.Chat
	err := r.db.GetContext(ctx, &chat, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &chat, nil
}

func (r *chatRepository) GetByTicketID(ctx context.Context, ticketID int64) (*model.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE ticket_id = $1`

	var chat model.Chat
	err := r.db.GetContext(ctx, &chat, query, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat by ticket: %w", err)
	}
	return &chat, nil
}

// AddParticipant is a storage-level set-add: the unique (chat_id, user_id)
// constraint absorbs concurrent duplicate joins without a read-modify-write.
func (r *chatRepository) AddParticipant(ctx context.Context, chatID int64, ref model.UserRef) error {
	query := `
		INSERT INTO chat_participants (chat_id, user_id, role, name, email, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, chatID, ref.UserID, ref.Role, ref.Name, ref.Email); err != nil {
		return fmt.Errorf("add chat participant: %w", err)
	}
	return nil
}

func (r *chatRepository) GetParticipants(ctx context.Context, chatID int64) ([]model.Participant, error) {
	query := `
		SELECT id, chat_id, user_id, role, name, email, status, joined_at, updated_at
		FROM chat_participants
		WHERE chat_id = $1
		ORDER BY joined_at
	`
	var participants []model.Participant
	if err := r.db.SelectContext(ctx, &participants, query, chatID); err != nil {
		return nil, fmt.Errorf("get chat participants: %w", err)
	}
	return participants, nil
}

func (r *chatRepository) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, chatID, userID); err != nil {
		return false, fmt.Errorf("check chat participant: %w", err)
	}
	return exists, nil
}

func (r *chatRepository) ActiveAgent(ctx context.Context, chatID int64) (*model.Participant, error) {
	query := `
		SELECT id, chat_id, user_id, role, name, email, status, joined_at, updated_at
		FROM chat_participants
		WHERE chat_id = $1 AND role = 'agent' AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var p model.Participant
	err := r.db.GetContext(ctx, &p, query, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active agent: %w", err)
	}
	return &p, nil
}

func (r *chatRepository) RetireAgents(ctx context.Context, chatID int64) error {
	query := `
		UPDATE chat_participants SET status = 'old', updated_at = NOW()
		WHERE chat_id = $1 AND role = 'agent'
	`
	if _, err := r.db.ExecContext(ctx, query, chatID); err != nil {
		return fmt.Errorf("retire chat agents: %w", err)
	}
	return nil
}

// ActivateParticipant flips an existing roster row back to active and
// refreshes its name/email snapshot, or appends a fresh active row.
func (r *chatRepository) ActivateParticipant(ctx context.Context, chatID int64, ref model.UserRef) error {
	query := `
		INSERT INTO chat_participants (chat_id, user_id, role, name, email, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		ON CONFLICT (chat_id, user_id) DO UPDATE SET
			status = 'active',
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, chatID, ref.UserID, ref.Role, ref.Name, ref.Email); err != nil {
		return fmt.Errorf("activate chat participant: %w", err)
	}
	return nil
}

func (r *chatRepository) SetLastMessage(ctx context.Context, chatID int64, content string, at time.Time) error {
	query := `
		UPDATE chats SET last_message = $2, last_message_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, chatID, content, at); err != nil {
		return fmt.Errorf("set chat last message: %w", err)
	}
	return nil
}

// ListSummariesForUser builds the support inbox in one query: chats the
// user participates in, with ticket context, the caller's unread count and
// whether they have read the latest message.
func (r *chatRepository) ListSummariesForUser(ctx context.Context, userID int64) ([]model.ChatSummary, error) {
	query := `
		SELECT c.id AS chat_id,
		       t.id AS ticket_id,
		       t.ticket_number,
		       t.status AS ticket_status,
		       c.last_message,
		       c.last_message_at,
		       NOT EXISTS (
		           SELECT 1 FROM messages m
		           WHERE m.chat_id = c.id
		             AND m.sender_id <> $1
		             AND m.created_at = c.last_message_at
		             AND NOT EXISTS (
		                 SELECT 1 FROM message_reads r
		                 WHERE r.message_id = m.id AND r.user_id = $1
		             )
		       ) AS last_message_read,
		       (
		           SELECT COUNT(*) FROM messages m
		           WHERE m.chat_id = c.id
		             AND m.sender_id <> $1
		             AND NOT EXISTS (
		                 SELECT 1 FROM message_reads r
		                 WHERE r.message_id = m.id AND r.user_id = $1
		             )
		       ) AS unread_count
		FROM chats c
		JOIN tickets t ON t.id = c.ticket_id
		JOIN chat_participants p ON p.chat_id = c.id AND p.user_id = $1
		WHERE c.is_active AND NOT t.is_archived
		ORDER BY c.last_message_at DESC
	`
	var summaries []model.ChatSummary
	if err := r.db.SelectContext(ctx, &summaries, query, userID); err != nil {
		return nil, fmt.Errorf("list chat summaries: %w", err)
	}
	return summaries, nil
}
