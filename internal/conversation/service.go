// Package conversation runs the chat turn and the session operations that
// surround it.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/config"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
)

const placeholderTitleLayout = "2006-01-02 15:04"

type Service struct {
	sessions      chat.SessionStore
	messages      chat.MessageStore
	responder     chat.Responder
	historyWindow int
	perUser       bool
	now           func() time.Time
}

func NewService(store chat.Store, responder chat.Responder, cfg config.Config) *Service {
	window := cfg.Conversation.HistoryWindow
	if window < 1 {
		window = 10
	}
	return &Service{
		sessions:      store,
		messages:      store,
		responder:     responder,
		historyWindow: window,
		perUser:       cfg.Identity.Mode == config.IdentityPerUser,
		now:           time.Now,
	}
}

// SendMessageInput is one user submission. SessionID may be empty, in which
// case a session is created first, named Title or a timestamped placeholder.
type SendMessageInput struct {
	SessionID string
	Content   string
	Title     string
}

// SendMessage runs a full turn and returns the stored assistant message.
//
// The turn is not cancelled when ctx is: once started it runs to completion
// even if the caller goes away.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	t := &turn{in: in}
	return s.runTurn(context.WithoutCancel(ctx), t)
}

func (s *Service) validate(ctx context.Context, t *turn) (Trigger, error) {
	if err := chat.ValidateUserContent(t.in.Content); err != nil {
		return "", err
	}
	if t.in.SessionID == "" && t.in.Title != "" {
		if err := chat.ValidateTitle(t.in.Title); err != nil {
			return "", err
		}
	}
	owner, err := s.scope(ctx)
	if err != nil {
		return "", err
	}
	t.owner = owner
	return TriggerValidated, nil
}

func (s *Service) ensureSession(ctx context.Context, t *turn) (Trigger, error) {
	if t.in.SessionID != "" {
		sess, err := s.sessions.LookupSession(ctx, t.owner, t.in.SessionID)
		if err != nil {
			return "", err
		}
		t.session = sess
		return TriggerSessionReady, nil
	}

	title := t.in.Title
	if title == "" {
		title = "Career Chat " + s.now().Format(placeholderTitleLayout)
	}
	sess, err := s.sessions.CreateSession(ctx, t.owner, title)
	if err != nil {
		return "", err
	}
	logger.FromContext(ctx).Info("session created for turn", "session_id", sess.ID)
	t.session = sess
	return TriggerSessionReady, nil
}

func (s *Service) persistUserMessage(ctx context.Context, t *turn) (Trigger, error) {
	msg, err := s.messages.AppendMessage(ctx, t.session.ID, chat.RoleUser, t.in.Content, nil)
	if err != nil {
		return "", err
	}
	t.user = msg
	return TriggerUserPersisted, nil
}

// retitle names the session after its first user message. The count and the
// update are not atomic: two concurrent first messages can both see a count
// of one, and the later update wins.
func (s *Service) retitle(ctx context.Context, t *turn) (Trigger, error) {
	n, err := s.messages.CountByRole(ctx, t.session.ID, chat.RoleUser)
	if err != nil {
		return "", err
	}
	if n != 1 {
		return TriggerTitleSettled, nil
	}
	sess, err := s.sessions.UpdateTitle(ctx, t.owner, t.session.ID, chat.DeriveTitle(t.in.Content))
	if err != nil {
		return "", err
	}
	t.session = sess
	return TriggerTitleSettled, nil
}

func (s *Service) fetchHistory(ctx context.Context, t *turn) (Trigger, error) {
	hist, err := s.messages.RecentHistory(ctx, t.session.ID, s.historyWindow)
	if err != nil {
		return "", err
	}
	t.history = hist
	return TriggerHistoryLoaded, nil
}

func (s *Service) awaitReply(ctx context.Context, t *turn) (Trigger, error) {
	t.reply = s.responder.Respond(ctx, t.in.Content, chat.HistoryFromMessages(t.history))
	return TriggerReplyReceived, nil
}

func (s *Service) persistReply(ctx context.Context, t *turn) (Trigger, error) {
	meta := t.reply.Metadata
	msg, err := s.messages.AppendMessage(ctx, t.session.ID, chat.RoleAssistant, t.reply.Content, &meta)
	if err != nil {
		return "", err
	}
	t.answer = msg
	return TriggerReplyPersisted, nil
}

func (s *Service) touchSession(ctx context.Context, t *turn) (Trigger, error) {
	if err := s.sessions.TouchActivity(ctx, t.session.ID, t.answer.CreatedAt); err != nil {
		return "", err
	}
	t.session.LastMessageAt = t.answer.CreatedAt
	return TriggerActivityRecorded, nil
}

// scope resolves which owner's sessions the caller may touch.
func (s *Service) scope(ctx context.Context) (string, error) {
	if !s.perUser {
		return "", nil
	}
	id, ok := chat.IdentityFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("%w: an identity is required", chat.ErrUnauthenticated)
	}
	return id, nil
}

func (s *Service) CreateSession(ctx context.Context, title string) (*chat.Session, error) {
	owner, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.CreateSession(ctx, owner, title)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("session created", "session_id", sess.ID)
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context) ([]chat.SessionSummary, error) {
	owner, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.sessions.ListSessions(ctx, owner)
}

func (s *Service) GetSession(ctx context.Context, id string) (*chat.Session, error) {
	owner, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.sessions.GetSession(ctx, owner, id)
}

func (s *Service) UpdateSessionTitle(ctx context.Context, id, title string) (*chat.Session, error) {
	owner, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.sessions.UpdateTitle(ctx, owner, id, title)
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	owner, err := s.scope(ctx)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteSession(ctx, owner, id); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("session deleted", "session_id", id)
	return nil
}

// ListMessages pages through a session's messages, oldest first.
func (s *Service) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]chat.Message, error) {
	owner, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := chat.ValidatePage(limit, offset); err != nil {
		return nil, err
	}
	if _, err := s.sessions.LookupSession(ctx, owner, sessionID); err != nil {
		return nil, err
	}
	return s.messages.ListMessages(ctx, sessionID, limit, offset)
}
