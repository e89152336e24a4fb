package model

import (
	"errors"
	"strings"
	"time"
)

// DeviceToken binds a user to their single active push token.
// Latest registration wins; a token re-registered by a different user is
// transferred to that user (device changed hands).
type DeviceToken struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"-"`
	Token        string    `db:"token" json:"-"` // FCM token, hidden from JSON
	Platform     string    `db:"platform" json:"platform"`
	LastActiveAt time.Time `db:"last_active_at" json:"last_active_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// RegisterTokenRequest is the request body for registering a device token.
type RegisterTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"` // "ios", "android" or "web"
}

// Platform constants
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// minTokenLength rejects tokens too short to be real FCM tokens, which run
// well past 100 characters in practice.
const minTokenLength = 50

var placeholderTokenMarkers = []string{
	"fcm_token_example",
	"token_example",
	"example",
	"placeholder",
	"dummy",
	"test",
}

// ValidTokenShape reports whether a token looks like a deliverable FCM token.
// Placeholder-looking or too-short tokens are rejected before any send and
// pruned from storage proactively.
func ValidTokenShape(token string) bool {
	t := strings.TrimSpace(token)
	if len(t) < minTokenLength {
		return false
	}
	lower := strings.ToLower(t)
	for _, marker := range placeholderTokenMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// ErrInvalidToken is returned when a registration carries a token that
// fails the shape check.
var ErrInvalidToken = errors.New("invalid device token format")
