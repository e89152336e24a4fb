package model

import "time"

// Activity status tags
const (
	ActivityAdded   = "added"
	ActivityUpdated = "updated"
	ActivityDeleted = "deleted"
)

// ActivityLog is one audit-trail entry. Written fire-and-forget as a side
// effect of ticket and chat mutations; a failed write never affects the
// primary operation.
type ActivityLog struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"` // Actor
	Message   string    `db:"message" json:"message"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
