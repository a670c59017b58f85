package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/conversation"
)

const tempIDPrefix = "temp-user-"

// Cache reconciles what the user has typed with what the server has stored.
// A submitted message shows up at once under a temporary id and is replaced
// by the server's copy once the turn completes. It is safe for concurrent
// use.
type Cache struct {
	backend Backend
	now     func() time.Time

	mu       sync.Mutex
	sessions []chat.SessionSummary
	active   *chat.Session
	pending  []chat.Message
	seq      int
	lastErr  error
}

func NewCache(backend Backend) *Cache {
	return &Cache{backend: backend, now: time.Now}
}

// Submit sends content to the active session, or to a new one when no
// session is open. The returned message is the assistant's reply.
func (c *Cache) Submit(ctx context.Context, content string) (*chat.Message, error) {
	c.mu.Lock()
	c.seq++
	var sessionID string
	if c.active != nil {
		sessionID = c.active.ID
	}
	optimistic := chat.Message{
		ID:            fmt.Sprintf("%s%d", tempIDPrefix, c.seq),
		ChatSessionID: sessionID,
		Role:          chat.RoleUser,
		Content:       content,
		CreatedAt:     c.now(),
	}
	c.pending = append(c.pending, optimistic)
	c.mu.Unlock()

	reply, err := c.backend.SendMessage(ctx, sessionID, content)
	if err != nil {
		c.mu.Lock()
		c.drop(optimistic.ID)
		c.lastErr = err
		c.mu.Unlock()
		if written, ok := persistedSession(err); ok {
			// The server kept the user message; show what it holds.
			if rerr := c.adopt(ctx, sessionID, written); rerr != nil {
				return nil, errors.Join(err, rerr)
			}
		}
		return nil, err
	}

	c.mu.Lock()
	c.drop(optimistic.ID)
	c.lastErr = nil
	c.mu.Unlock()

	if err := c.adopt(ctx, sessionID, reply.ChatSessionID); err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return reply, err
	}
	return reply, nil
}

// adopt reloads the session a turn wrote to and the session list. The
// session becomes the open one if it was submitted to, or if nothing was
// open; a selection made while the turn ran is kept.
func (c *Cache) adopt(ctx context.Context, submittedTo, written string) error {
	sess, err := c.backend.GetSession(ctx, written)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	c.mu.Lock()
	if (c.active == nil && submittedTo == "") || (c.active != nil && c.active.ID == sess.ID) {
		c.active = sess
	}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// persistedSession reports the session a failed turn still wrote the user
// message to.
func persistedSession(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.SessionID, apiErr.UserMessagePersisted && apiErr.SessionID != ""
	}
	var te *conversation.TurnError
	if errors.As(err, &te) {
		return te.SessionID, te.UserMessage != nil && te.SessionID != ""
	}
	return "", false
}

// drop must be called with c.mu held.
func (c *Cache) drop(id string) {
	c.pending = slices.DeleteFunc(c.pending, func(m chat.Message) bool { return m.ID == id })
}

// Messages returns the open session's stored messages followed by any
// submissions still in flight for it.
func (c *Cache) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []chat.Message
	var sessionID string
	if c.active != nil {
		sessionID = c.active.ID
		out = append(out, c.active.Messages...)
	}
	for _, m := range c.pending {
		if m.ChatSessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

// Pending reports how many submissions are still waiting for the server.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Active returns a copy of the open session, or nil.
func (c *Cache) Active() *chat.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	s := *c.active
	s.Messages = slices.Clone(c.active.Messages)
	return &s
}

func (c *Cache) Sessions() []chat.SessionSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sessions)
}

// LastError is the most recent failure of Submit, or nil after a success.
// A failed turn that kept the user's message still leaves its error here.
func (c *Cache) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Refresh reloads the session list.
func (c *Cache) Refresh(ctx context.Context) error {
	list, err := c.backend.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("refresh sessions: %w", err)
	}
	c.mu.Lock()
	c.sessions = list
	c.mu.Unlock()
	return nil
}

// Select opens the session with the given id.
func (c *Cache) Select(ctx context.Context, id string) error {
	sess, err := c.backend.GetSession(ctx, id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.active = sess
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Leave closes the open session; the next Submit starts a new one.
func (c *Cache) Leave() {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

// New creates a session and opens it.
func (c *Cache) New(ctx context.Context, title string) (*chat.Session, error) {
	sess, err := c.backend.CreateSession(ctx, title)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.active = sess
	c.mu.Unlock()
	return sess, c.Refresh(ctx)
}

func (c *Cache) Rename(ctx context.Context, id, title string) error {
	sess, err := c.backend.RenameSession(ctx, id, title)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.active != nil && c.active.ID == id {
		c.active.Title = sess.Title
	}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.backend.DeleteSession(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	if c.active != nil && c.active.ID == id {
		c.active = nil
	}
	c.pending = slices.DeleteFunc(c.pending, func(m chat.Message) bool { return m.ChatSessionID == id })
	c.mu.Unlock()
	return c.Refresh(ctx)
}
