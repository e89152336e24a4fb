package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"expanddesk/internal/model"
)

type messageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `
	id, chat_id, ticket_id, sender_id, sender_role, sender_name, sender_email,
	content, message_type, attachments, is_read, created_at
`

// Create inserts the message and the sender's own read receipt in the
// caller's transaction. The sender implicitly reads their message at
// creation time, so it never counts against their unread totals.
func (r *messageRepository) Create(ctx context.Context, tx *sqlx.Tx, message *model.Message) error {
	query := `
		INSERT INTO messages (chat_id, ticket_id, sender_id, sender_role,
			sender_name, sender_email, content, message_type, attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := tx.QueryRowxContext(ctx, query,
		message.ChatID, message.TicketID, message.SenderID, message.SenderRole,
		message.SenderName, message.SenderEmail, message.Content, message.Type,
		pq.Array([]string(message.Attachments)),
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	seed := `
		INSERT INTO message_reads (message_id, user_id, read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, seed, message.ID, message.SenderID, message.CreatedAt); err != nil {
		return fmt.Errorf("seed sender read receipt: %w", err)
	}

	message.ReadBy = []model.ReadReceipt{{UserID: message.SenderID, ReadAt: message.CreatedAt}}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	var message model.Message
	err := r.db.GetContext(ctx, &message, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	fillSender(&message)
	return &message, nil
}

// FindRecentDuplicate backs the send idempotency window: client retry
// storms map onto the message already stored.
func (r *messageRepository) FindRecentDuplicate(ctx context.Context, chatID, senderID int64, content string, window time.Duration) (*model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = $1 AND sender_id = $2 AND content = $3 AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT 1
	`
	var message model.Message
	err := r.db.GetContext(ctx, &message, query, chatID, senderID, content, time.Now().Add(-window))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent duplicate: %w", err)
	}
	fillSender(&message)
	return &message, nil
}

// ListLatest serves the real-time backlog: the newest messages, returned
// oldest-first so the client can render them in order.
func (r *messageRepository) ListLatest(ctx context.Context, chatID int64, limit int) ([]model.Message, error) {
	query := `
		SELECT * FROM (
			SELECT ` + messageColumns + `
			FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) latest
		ORDER BY created_at
	`
	var messages []model.Message
	if err := r.db.SelectContext(ctx, &messages, query, chatID, limit); err != nil {
		return nil, fmt.Errorf("list latest messages: %w", err)
	}
	for i := range messages {
		fillSender(&messages[i])
	}
	return messages, nil
}

func (r *messageRepository) ListByChat(ctx context.Context, chatID int64, limit, offset int) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var messages []model.Message
	if err := r.db.SelectContext(ctx, &messages, query, chatID, limit, offset); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	// Reverse to chronological order for display
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	for i := range messages {
		fillSender(&messages[i])
	}
	return messages, nil
}

// ListReadBy loads the read receipts of a whole message page in one query.
func (r *messageRepository) ListReadBy(ctx context.Context, messageIDs []int64) (map[int64][]model.ReadReceipt, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT message_id, user_id, read_at
		FROM message_reads
		WHERE message_id = ANY($1)
		ORDER BY read_at
	`
	var rows []struct {
		MessageID int64     `db:"message_id"`
		UserID    int64     `db:"user_id"`
		ReadAt    time.Time `db:"read_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(messageIDs)); err != nil {
		return nil, fmt.Errorf("list read receipts: %w", err)
	}

	receipts := make(map[int64][]model.ReadReceipt, len(messageIDs))
	for _, row := range rows {
		receipts[row.MessageID] = append(receipts[row.MessageID], model.ReadReceipt{
			UserID: row.UserID,
			ReadAt: row.ReadAt,
		})
	}
	return receipts, nil
}

// MarkAllRead runs as two set-oriented statements, never a read-modify-write:
// receipt insertion is an ON CONFLICT no-op when already present, and the
// is_read refresh only flips messages every active non-sender participant
// has read. Both are idempotent and commute under concurrent readers.
func (r *messageRepository) MarkAllRead(ctx context.Context, chatID, userID int64) error {
	insert := `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, $2, NOW()
		FROM messages m
		WHERE m.chat_id = $1 AND m.sender_id <> $2
		ON CONFLICT (message_id, user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, chatID, userID); err != nil {
		return fmt.Errorf("insert read receipts: %w", err)
	}

	refresh := `
		UPDATE messages m
		SET is_read = true
		WHERE m.chat_id = $1 AND NOT m.is_read
		  AND NOT EXISTS (
		      SELECT 1 FROM chat_participants p
		      WHERE p.chat_id = m.chat_id
		        AND p.status = 'active'
		        AND p.user_id <> m.sender_id
		        AND NOT EXISTS (
		            SELECT 1 FROM message_reads r
		            WHERE r.message_id = m.id AND r.user_id = p.user_id
		        )
		  )
	`
	if _, err := r.db.ExecContext(ctx, refresh, chatID); err != nil {
		return fmt.Errorf("refresh message read flags: %w", err)
	}
	return nil
}

func (r *messageRepository) UnreadCountForChat(ctx context.Context, chatID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.chat_id = $1 AND m.sender_id <> $2
		  AND NOT EXISTS (
		      SELECT 1 FROM message_reads r
		      WHERE r.message_id = m.id AND r.user_id = $2
		  )
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, chatID, userID); err != nil {
		return 0, fmt.Errorf("unread count for chat: %w", err)
	}
	return count, nil
}

func (r *messageRepository) UnreadCountForTicket(ctx context.Context, ticketID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.ticket_id = $1 AND m.sender_id <> $2
		  AND NOT EXISTS (
		      SELECT 1 FROM message_reads r
		      WHERE r.message_id = m.id AND r.user_id = $2
		  )
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, ticketID, userID); err != nil {
		return 0, fmt.Errorf("unread count for ticket: %w", err)
	}
	return count, nil
}

// fillSender lifts the flat sender columns into the snapshot struct the
// JSON layer exposes.
func fillSender(m *model.Message) {
	m.Sender = model.UserRef{
		UserID: m.SenderID,
		Role:   m.SenderRole,
		Name:   m.SenderName,
		Email:  m.SenderEmail,
	}
}
