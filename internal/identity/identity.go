// Package identity defines the identity provider contract and ships the
// local provider implementation backing it.
package identity

import (
	"context"
	"time"
)

// AuthUser is the identity attached to a session. Email and FullName may
// be empty; consumers render a fallback label when FullName is missing.
type AuthUser struct {
	ID       string
	Email    string
	FullName string
}

// Session is an authenticated provider session.
type Session struct {
	Token     string
	User      AuthUser
	ExpiresAt time.Time
}

type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is a session-change notification. Session is nil for sign-out.
type Event struct {
	Type    EventType
	Session *Session
}

// Provider is the narrow identity-provider surface the rest of the system
// consumes. CurrentSession returns (nil, nil) when no session exists, so a
// temporary provider failure is the only way to get an error.
type Provider interface {
	CurrentSession(ctx context.Context) (*Session, error)
	// Subscribe registers for session-change events. The returned func
	// releases the subscription; events fire on sign-in, sign-out and
	// token refresh.
	Subscribe() (<-chan Event, func())
	SignOut(ctx context.Context) error
}
