// Package storage defines the persistence boundary for user profiles, chat
// sessions and chat messages.
package storage

import (
	"context"
	"time"
)

// Profile is a registered user.
type Profile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is one conversation owned by a user.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one chat message within a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Driver persists profiles, sessions and messages. Callers assign IDs and
// timestamps; drivers store them as given.
type Driver interface {
	// CreateProfile stores a new profile. Returns ErrConflict when the email
	// is already registered.
	CreateProfile(ctx context.Context, p *Profile) error

	// GetProfile retrieves a profile by ID.
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// GetProfileByEmail retrieves a profile by email.
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)

	// UpdateProfile overwrites a profile's username, password hash and
	// updated_at.
	UpdateProfile(ctx context.Context, p *Profile) error

	// CreateSession stores a new session.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns a user's sessions, most recently updated first.
	ListSessions(ctx context.Context, userID string) ([]*Session, error)

	// RenameSession sets a session's title and updated_at.
	RenameSession(ctx context.Context, id, title string, at time.Time) (*Session, error)

	// DeleteSession removes a session and all of its messages.
	DeleteSession(ctx context.Context, id string) error

	// AddMessage stores a message and moves its session's updated_at to the
	// message's created_at.
	AddMessage(ctx context.Context, m *Message) error

	// ListMessages returns a session's messages, oldest first.
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)

	// Close closes the store and releases any resources.
	Close() error
}
