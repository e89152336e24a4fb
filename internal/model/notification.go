package model

import (
	"encoding/json"
	"errors"
	"time"
)

// Notification severity levels
const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
	NotificationError   = "error"
)

// Notification categories
const (
	CategoryTicket   = "ticket"
	CategoryCustomer = "customer"
	CategoryAgent    = "agent"
	CategorySystem   = "system"
	CategoryAuth     = "auth"
)

// Notification is a transient in-app record addressed to one user.
// Created as a side effect of ticket/chat events; the recipient reads or
// deletes it; isRead is the only field that ever changes.
type Notification struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"-"` // Recipient
	Title     string          `db:"title" json:"title"`
	Message   string          `db:"message" json:"message"`
	Type      string          `db:"type" json:"type"`         // info, success, warning, error
	Category  string          `db:"category" json:"category"` // ticket, customer, agent, system, auth
	IsRead    bool            `db:"is_read" json:"is_read"`
	Metadata  json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// NotificationListResponse is the notification list response with the
// unread count for badge display.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// MarkNotificationsReadRequest is the request body for marking
// notifications as read.
type MarkNotificationsReadRequest struct {
	NotificationIDs []int64 `json:"notification_ids"`
}

// ErrNotificationNotFound is returned when a notification cannot be found
// or does not belong to the requesting user.
var ErrNotificationNotFound = errors.New("notification not found")
