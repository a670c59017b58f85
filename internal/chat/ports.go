package chat

import (
	"context"
	"time"
)

// SessionStore persists chat sessions. The owner argument is the identity
// scope; the empty string is the shared scope.
type SessionStore interface {
	CreateSession(ctx context.Context, owner, title string) (*Session, error)
	ListSessions(ctx context.Context, owner string) ([]SessionSummary, error)
	// LookupSession returns the session without its messages.
	LookupSession(ctx context.Context, owner, id string) (*Session, error)
	// GetSession returns the session with its messages, oldest first.
	GetSession(ctx context.Context, owner, id string) (*Session, error)
	UpdateTitle(ctx context.Context, owner, id, title string) (*Session, error)
	// TouchActivity moves lastMessageAt forward to at. It never moves it back.
	TouchActivity(ctx context.Context, id string, at time.Time) error
	DeleteSession(ctx context.Context, owner, id string) error
}

// MessageStore persists messages, append-only per session.
type MessageStore interface {
	AppendMessage(ctx context.Context, sessionID string, role Role, content string, meta *Metadata) (*Message, error)
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]Message, error)
	// RecentHistory returns the newest count messages, oldest first.
	RecentHistory(ctx context.Context, sessionID string, count int) ([]Message, error)
	CountByRole(ctx context.Context, sessionID string, role Role) (int, error)
}

// Store is a backend providing both halves.
type Store interface {
	SessionStore
	MessageStore
	Close() error
}

// Responder produces the assistant reply for a turn. Implementations must
// not fail: upstream problems turn into a fallback reply.
type Responder interface {
	Respond(ctx context.Context, message string, history []HistoryEntry) Reply
}
