package model

import (
	"errors"
	"time"
)

// ParticipantStatus tracks a participant's standing in a chat.
// Reassigned agents become "old" instead of being removed, which keeps
// history attribution intact while marking who is currently live.
type ParticipantStatus string

const (
	ParticipantActive   ParticipantStatus = "active"
	ParticipantOld      ParticipantStatus = "old"
	ParticipantInactive ParticipantStatus = "inactive"
)

// Participant is one row of a chat's roster. Name and email are snapshots
// taken when the participant joined (refreshed on agent reassignment).
type Participant struct {
	ID        int64             `db:"id" json:"id"`
	ChatID    int64             `db:"chat_id" json:"-"`
	UserID    int64             `db:"user_id" json:"user_id"`
	Role      Role              `db:"role" json:"role"`
	Name      string            `db:"name" json:"name"`
	Email     string            `db:"email" json:"email"`
	Status    ParticipantStatus `db:"status" json:"status"`
	JoinedAt  time.Time         `db:"joined_at" json:"joined_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// Chat is the one-to-one conversation attached to a ticket.
// Created lazily on first access, never deleted.
type Chat struct {
	ID            int64     `db:"id" json:"id"`
	TicketID      int64     `db:"ticket_id" json:"ticket_id"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	LastMessage   string    `db:"last_message" json:"last_message"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	// Loaded separately, not a column
	Participants []Participant `json:"participants,omitempty"`
}

// ChatSummary is one entry of a user's support inbox: the chat plus
// ticket context and the caller's read state of the latest message.
type ChatSummary struct {
	ChatID          int64        `db:"chat_id" json:"chat_id"`
	TicketID        int64        `db:"ticket_id" json:"ticket_id"`
	TicketNumber    string       `db:"ticket_number" json:"ticket_number"`
	TicketStatus    TicketStatus `db:"ticket_status" json:"ticket_status"`
	LastMessage     string       `db:"last_message" json:"last_message"`
	LastMessageAt   time.Time    `db:"last_message_at" json:"last_message_at"`
	LastMessageRead bool         `db:"last_message_read" json:"last_message_read"`
	UnreadCount     int          `db:"unread_count" json:"unread_count"`
}

// Chat errors
var (
	ErrChatNotFound = errors.New("chat not found")

	// ErrChatAccessDenied is returned when a user is neither on the roster
	// nor entitled to be auto-added (staff, or customer owning the ticket).
	ErrChatAccessDenied = errors.New("access denied to this chat")
)
