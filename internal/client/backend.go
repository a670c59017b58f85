// Package client keeps a caller-side view of the chat: the session list, the
// open session and the messages still waiting for the server.
package client

import (
	"context"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/conversation"
)

// Backend is what the cache talks to. APIClient reaches a server over HTTP;
// Local calls a Service in the same process.
type Backend interface {
	SendMessage(ctx context.Context, sessionID, content string) (*chat.Message, error)
	CreateSession(ctx context.Context, title string) (*chat.Session, error)
	ListSessions(ctx context.Context) ([]chat.SessionSummary, error)
	GetSession(ctx context.Context, id string) (*chat.Session, error)
	RenameSession(ctx context.Context, id, title string) (*chat.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Local adapts a conversation.Service to Backend, acting as userID.
type Local struct {
	svc    *conversation.Service
	userID string
}

var _ Backend = (*Local)(nil)

func NewLocal(svc *conversation.Service, userID string) *Local {
	return &Local{svc: svc, userID: userID}
}

func (l *Local) ctx(ctx context.Context) context.Context {
	return chat.WithIdentity(ctx, l.userID)
}

func (l *Local) SendMessage(ctx context.Context, sessionID, content string) (*chat.Message, error) {
	return l.svc.SendMessage(l.ctx(ctx), conversation.SendMessageInput{SessionID: sessionID, Content: content})
}

func (l *Local) CreateSession(ctx context.Context, title string) (*chat.Session, error) {
	return l.svc.CreateSession(l.ctx(ctx), title)
}

func (l *Local) ListSessions(ctx context.Context) ([]chat.SessionSummary, error) {
	return l.svc.ListSessions(l.ctx(ctx))
}

func (l *Local) GetSession(ctx context.Context, id string) (*chat.Session, error) {
	return l.svc.GetSession(l.ctx(ctx), id)
}

func (l *Local) RenameSession(ctx context.Context, id, title string) (*chat.Session, error) {
	return l.svc.UpdateSessionTitle(l.ctx(ctx), id, title)
}

func (l *Local) DeleteSession(ctx context.Context, id string) error {
	return l.svc.DeleteSession(l.ctx(ctx), id)
}
