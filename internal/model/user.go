package model

import (
	"errors"
	"time"

	"github.com/lib/pq"
)

// Role is the closed set of user roles in the helpdesk.
// Every role-based decision (access rules, auto-add rules, presence channels)
// switches on this type explicitly instead of comparing loose strings.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to helpdesk staff (non-customer).
// Staff presence broadcasts on the agent channel and staff may self-join chats.
func (r Role) IsStaff() bool {
	switch r {
	case RoleAgent, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// User represents a helpdesk user (customer, agent, manager or admin).
type User struct {
	ID          int64         `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	Email       string        `db:"email" json:"email"`
	Role        Role          `db:"role" json:"role"`
	Phone       *string       `db:"phone" json:"phone,omitempty"`
	CategoryIDs pq.Int64Array `db:"category_ids" json:"category_ids,omitempty"` // Agent's support categories
	IsActive    bool          `db:"is_active" json:"is_active"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// UserRef is the snapshot of a user captured on participants and message
// senders at write time. It is never live-joined afterwards, so chat history
// keeps the name/email the user had when they spoke.
type UserRef struct {
	UserID int64  `db:"user_id" json:"user_id"`
	Role   Role   `db:"role" json:"role"`
	Name   string `db:"name" json:"name"`
	Email  string `db:"email" json:"email"`
}

// RefOf builds the write-time snapshot for a user.
func RefOf(u *User) UserRef {
	return UserRef{UserID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}
}

var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidRole is returned when a request carries an unknown role
	ErrInvalidRole = errors.New("invalid role")
)
