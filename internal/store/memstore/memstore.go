// Package memstore keeps sessions and messages in process memory. It backs
// tests and the "memory" storage driver.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	clock    *store.Clock
	sessions map[string]*chat.Session
	messages map[string][]chat.Message
}

var _ chat.Store = (*Store)(nil)

func New(clock *store.Clock) *Store {
	if clock == nil {
		clock = store.NewClock(nil)
	}
	return &Store{
		clock:    clock,
		sessions: make(map[string]*chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateSession(_ context.Context, owner, title string) (*chat.Session, error) {
	if err := chat.ValidateTitle(title); err != nil {
		return nil, err
	}
	now := s.clock.Next()
	sess := &chat.Session{
		ID:            uuid.NewString(),
		OwnerID:       owner,
		Title:         title,
		CreatedAt:     now,
		LastMessageAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	out := *sess
	return &out, nil
}

func (s *Store) ListSessions(_ context.Context, owner string) ([]chat.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.OwnerID != owner {
			continue
		}
		out = append(out, chat.SessionSummary{Session: *sess, MessageCount: len(s.messages[sess.ID])})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// find must be called with s.mu held.
func (s *Store) find(owner, id string) (*chat.Session, error) {
	sess, ok := s.sessions[id]
	if !ok || sess.OwnerID != owner {
		return nil, fmt.Errorf("%w: session %s", chat.ErrNotFound, id)
	}
	return sess, nil
}

func (s *Store) LookupSession(_ context.Context, owner, id string) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, err := s.find(owner, id)
	if err != nil {
		return nil, err
	}
	out := *sess
	return &out, nil
}

func (s *Store) GetSession(_ context.Context, owner, id string) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, err := s.find(owner, id)
	if err != nil {
		return nil, err
	}
	out := *sess
	out.Messages = append([]chat.Message(nil), s.messages[id]...)
	return &out, nil
}

func (s *Store) UpdateTitle(_ context.Context, owner, id, title string) (*chat.Session, error) {
	if err := chat.ValidateTitle(title); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.find(owner, id)
	if err != nil {
		return nil, err
	}
	sess.Title = title
	out := *sess
	return &out, nil
}

func (s *Store) TouchActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", chat.ErrNotFound, id)
	}
	at = at.UTC().Truncate(store.Resolution)
	if at.After(sess.LastMessageAt) {
		sess.LastMessageAt = at
	}
	return nil
}

func (s *Store) DeleteSession(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.find(owner, id); err != nil {
		return err
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *Store) AppendMessage(_ context.Context, sessionID string, role chat.Role, content string, meta *chat.Metadata) (*chat.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", chat.ErrValidation, role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content must not be empty", chat.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: session %s", chat.ErrNotFound, sessionID)
	}
	msg := chat.Message{
		ID:            uuid.NewString(),
		ChatSessionID: sessionID,
		Role:          role,
		Content:       content,
		CreatedAt:     s.clock.Next(),
	}
	if meta != nil {
		m := *meta
		msg.Metadata = &m
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	return &msg, nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string, limit, offset int) ([]chat.Message, error) {
	if err := chat.ValidatePage(limit, offset); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: session %s", chat.ErrNotFound, sessionID)
	}
	msgs := s.messages[sessionID]
	if offset >= len(msgs) {
		return []chat.Message{}, nil
	}
	end := min(offset+limit, len(msgs))
	return append([]chat.Message(nil), msgs[offset:end]...), nil
}

func (s *Store) RecentHistory(_ context.Context, sessionID string, count int) ([]chat.Message, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: history window must be positive", chat.ErrValidation)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	if len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	return append([]chat.Message{}, msgs...), nil
}

func (s *Store) CountByRole(_ context.Context, sessionID string, role chat.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages[sessionID] {
		if m.Role == role {
			n++
		}
	}
	return n, nil
}
