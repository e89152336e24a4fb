package model

import (
	"errors"
	"time"

	"github.com/lib/pq"
)

// TicketStatus is the closed set of ticket lifecycle states.
type TicketStatus string

const (
	StatusPending    TicketStatus = "pending"
	StatusInProgress TicketStatus = "in_progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
	StatusReopen     TicketStatus = "reopen"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusClosed, StatusReopen:
		return true
	}
	return false
}

// Workable reports whether the ticket can still receive work
// (messages, assignment, status changes other than reopen).
func (s TicketStatus) Workable() bool {
	return s != StatusClosed
}

// Ticket represents an equipment-support ticket.
type Ticket struct {
	ID              int64          `db:"id" json:"id"`
	TicketNumber    string         `db:"ticket_number" json:"ticket_number"` // Human-readable, e.g. EXP12345678
	Description     string         `db:"description" json:"description"`
	Status          TicketStatus   `db:"status" json:"status"`
	CustomerID      int64          `db:"customer_id" json:"customer_id"`
	AssignedAgentID *int64         `db:"assigned_agent_id" json:"assigned_agent_id,omitempty"`
	CategoryID      int64          `db:"category_id" json:"category_id"`
	EquipmentID     *int64         `db:"equipment_id" json:"equipment_id,omitempty"`
	SerialNumber    *string        `db:"serial_number" json:"serial_number,omitempty"`
	Notes           pq.StringArray `db:"notes" json:"notes"` // Append-only note blocks
	Attachments     pq.StringArray `db:"attachments" json:"attachments"`
	IsRead          bool           `db:"is_read" json:"is_read"`
	IsArchived      bool           `db:"is_archived" json:"is_archived"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// TicketWithUnread decorates a ticket with the caller's unread message count
// for list views. Computed fresh per request, never cached.
type TicketWithUnread struct {
	Ticket
	UnreadMessageCount int `json:"unread_message_count"`
}

// CreateTicketRequest is the request body for creating a ticket.
// CustomerID is only honored for managers creating on a customer's behalf.
type CreateTicketRequest struct {
	Description  string   `json:"description"`
	CategoryID   int64    `json:"category_id"`
	EquipmentID  *int64   `json:"equipment_id,omitempty"`
	SerialNumber *string  `json:"serial_number,omitempty"`
	CustomerID   *int64   `json:"customer_id,omitempty"`
	Attachments  []string `json:"attachments,omitempty"`
}

// UpdateStatusRequest is the request body for a status transition.
type UpdateStatusRequest struct {
	Status TicketStatus `json:"status"`
}

// AssignTicketRequest is the request body for assigning an agent.
type AssignTicketRequest struct {
	AgentID int64 `json:"agent_id"`
}

// AppendNoteRequest is the request body for appending a free-text note.
type AppendNoteRequest struct {
	Note string `json:"note"`
}

// Ticket errors
var (
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrTicketClosed is returned when a status change or assignment is
	// attempted on a closed ticket. Only an explicit reopen is accepted.
	ErrTicketClosed = errors.New("ticket is closed")

	ErrInvalidStatus       = errors.New("invalid ticket status")
	ErrDescriptionRequired = errors.New("ticket description is required")
	ErrNoteRequired        = errors.New("note cannot be empty")
)
