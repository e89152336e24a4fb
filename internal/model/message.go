package model

import (
	"errors"
	"time"

	"github.com/lib/pq"
)

// MessageType is the closed set of message kinds.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system_info" // Synthesized by the server (e.g. agent handoff)
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

// ReadReceipt records that one user has read a message.
type ReadReceipt struct {
	UserID int64     `db:"user_id" json:"user_id"`
	ReadAt time.Time `db:"read_at" json:"read_at"`
}

// Message is one append-only entry of a chat's log. The sender block is a
// snapshot captured at send time. Read state is the only mutable part and
// only grows (set-add semantics on ReadBy).
type Message struct {
	ID       int64 `db:"id" json:"id"`
	ChatID   int64 `db:"chat_id" json:"chat_id"`
	TicketID int64 `db:"ticket_id" json:"ticket_id"` // Redundant with chat, kept for ticket-scoped queries

	SenderID    int64  `db:"sender_id" json:"-"`
	SenderRole  Role   `db:"sender_role" json:"-"`
	SenderName  string `db:"sender_name" json:"-"`
	SenderEmail string `db:"sender_email" json:"-"`

	Content     string         `db:"content" json:"content"`
	Type        MessageType    `db:"message_type" json:"message_type"`
	Attachments pq.StringArray `db:"attachments" json:"attachments"`

	// IsRead flips true once every active participant other than the sender
	// has a read receipt. Per-user unread state always uses ReadBy, not this.
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// Loaded separately, not columns
	Sender UserRef       `json:"sender"`
	ReadBy []ReadReceipt `json:"read_by,omitempty"`
}

// SendMessageRequest is the request body for sending a chat message.
type SendMessageRequest struct {
	ChatID      int64       `json:"chat_id"`
	Content     string      `json:"content"`
	Type        MessageType `json:"message_type,omitempty"`
	Attachments []string    `json:"attachments,omitempty"`
}

// Message constraints
const (
	// MaxMessageLength matches the real-time transport cap.
	MaxMessageLength = 10000

	// DuplicateWindow is the idempotency window for message sends: an
	// identical (sender, content) pair within this window returns the
	// already-stored message instead of creating a duplicate.
	DuplicateWindow = 5 * time.Second
)

// Message errors
var (
	ErrMessageNotFound    = errors.New("message not found")
	ErrMessageEmpty       = errors.New("message content is required")
	ErrMessageTooLong     = errors.New("message content too long")
	ErrInvalidMessageType = errors.New("invalid message type")
)
