package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/config"
	"github.com/itsAakanksha/career-counselor-ai/internal/responder"
	"github.com/itsAakanksha/career-counselor-ai/internal/store"
	"github.com/itsAakanksha/career-counselor-ai/internal/store/memstore"
)

type mockResponder struct {
	mu        sync.Mutex
	RespondFn func(message string, history []chat.HistoryEntry) chat.Reply
	calls     [][]chat.HistoryEntry
}

func (m *mockResponder) Respond(_ context.Context, message string, history []chat.HistoryEntry) chat.Reply {
	m.mu.Lock()
	m.calls = append(m.calls, history)
	m.mu.Unlock()
	if m.RespondFn != nil {
		return m.RespondFn(message, history)
	}
	return chat.Reply{
		Content:  "Here is some advice about: " + message,
		Metadata: chat.Metadata{Model: "gpt-4.1-nano", TokenCount: 42, FinishReason: "stop"},
	}
}

// faultyStore fails selected operations of an otherwise working store.
type faultyStore struct {
	chat.Store
	appendFn      func(role chat.Role) error
	updateTitleFn func() error
	touchFn       func() error
}

func (f *faultyStore) AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string, meta *chat.Metadata) (*chat.Message, error) {
	if f.appendFn != nil {
		if err := f.appendFn(role); err != nil {
			return nil, err
		}
	}
	return f.Store.AppendMessage(ctx, sessionID, role, content, meta)
}

func (f *faultyStore) UpdateTitle(ctx context.Context, owner, id, title string) (*chat.Session, error) {
	if f.updateTitleFn != nil {
		if err := f.updateTitleFn(); err != nil {
			return nil, err
		}
	}
	return f.Store.UpdateTitle(ctx, owner, id, title)
}

func (f *faultyStore) TouchActivity(ctx context.Context, id string, at time.Time) error {
	if f.touchFn != nil {
		if err := f.touchFn(); err != nil {
			return err
		}
	}
	return f.Store.TouchActivity(ctx, id, at)
}

func storeFailure(op string) error {
	return fmt.Errorf("%w: %s: disk I/O error", chat.ErrStore, op)
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Conversation.HistoryWindow = 10
	cfg.Identity.Mode = config.IdentityShared
	return cfg
}

func newTestService(t *testing.T, st chat.Store, r chat.Responder, cfg config.Config) *Service {
	t.Helper()
	svc := NewService(st, r, cfg)
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC) }
	return svc
}

func TestSendMessage_NewSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(nil)
	svc := newTestService(t, st, &mockResponder{}, testConfig())

	answer, err := svc.SendMessage(ctx, SendMessageInput{Content: "How do I switch from QA to product management?"})
	require.NoError(t, err)
	require.Equal(t, chat.RoleAssistant, answer.Role)
	require.NotNil(t, answer.Metadata)
	require.Equal(t, "gpt-4.1-nano", answer.Metadata.Model)
	require.Equal(t, 42, answer.Metadata.TokenCount)

	sess, err := svc.GetSession(ctx, answer.ChatSessionID)
	require.NoError(t, err)
	require.Equal(t, "How do I switch from QA", sess.Title)
	require.Len(t, sess.Messages, 2)
	require.Equal(t, chat.RoleUser, sess.Messages[0].Role)
	require.Equal(t, chat.RoleAssistant, sess.Messages[1].Role)
	require.True(t, sess.Messages[1].CreatedAt.After(sess.Messages[0].CreatedAt))
	require.Equal(t, answer.CreatedAt, sess.LastMessageAt)

	list, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].MessageCount)
}

func TestSendMessage_ExistingSessionKeepsTitleAfterFirstMessage(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memstore.New(nil), &mockResponder{}, testConfig())

	sess, err := svc.CreateSession(ctx, "Salary talk")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, SendMessageInput{SessionID: sess.ID, Content: "  How do I ask for a raise??   "})
	require.NoError(t, err)
	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "How do I ask for a", got.Title)

	_, err = svc.SendMessage(ctx, SendMessageInput{SessionID: sess.ID, Content: "What about equity instead of cash?"})
	require.NoError(t, err)
	got, err = svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "How do I ask for a", got.Title)
	require.Len(t, got.Messages, 4)
}

func TestSendMessage_PlaceholderAndCallerTitle(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(nil)
	svc := newTestService(t, st, &mockResponder{}, testConfig())

	// The first message always retitles, so the placeholder is only visible
	// when the turn fails after the session was created.
	faulty := &faultyStore{Store: st, appendFn: func(chat.Role) error { return storeFailure("append") }}
	svc.messages = faulty

	_, err := svc.SendMessage(ctx, SendMessageInput{Content: "hello there"})
	require.Error(t, err)
	list, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Career Chat 2024-03-05 14:07", list[0].Title)

	_, err = svc.SendMessage(ctx, SendMessageInput{Content: "hello again", Title: "Interview prep"})
	require.Error(t, err)
	list, err = svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Interview prep", list[0].Title)
}

func TestSendMessage_ValidationLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(nil)
	resp := &mockResponder{}
	svc := newTestService(t, st, resp, testConfig())

	for _, content := range []string{"", "   \n\t ", strings.Repeat("a", chat.MaxContentLength+1)} {
		_, err := svc.SendMessage(ctx, SendMessageInput{Content: content})
		require.ErrorIs(t, err, chat.ErrValidation)
		require.False(t, UserMessagePersisted(err))

		var te *TurnError
		require.ErrorAs(t, err, &te)
		require.Equal(t, StateValidating, te.State)
	}

	_, err := svc.SendMessage(ctx, SendMessageInput{Content: "fine", Title: strings.Repeat("t", chat.MaxTitleLength+1)})
	require.ErrorIs(t, err, chat.ErrValidation)

	list, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
	require.Empty(t, resp.calls)
}

func TestSendMessage_UnknownSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memstore.New(nil), &mockResponder{}, testConfig())

	_, err := svc.SendMessage(ctx, SendMessageInput{SessionID: "does-not-exist", Content: "hi"})
	require.ErrorIs(t, err, chat.ErrNotFound)
	require.False(t, UserMessagePersisted(err))

	var te *TurnError
	require.ErrorAs(t, err, &te)
	require.Equal(t, StateEnsuringSession, te.State)
	require.Empty(t, te.SessionID)
}

func TestSendMessage_AIFailureStillCompletes(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(nil)
	resp := &mockResponder{RespondFn: func(string, []chat.HistoryEntry) chat.Reply {
		return responder.Fallback()
	}}
	svc := newTestService(t, st, resp, testConfig())

	answer, err := svc.SendMessage(ctx, SendMessageInput{Content: "Should I get a master's degree?"})
	require.NoError(t, err)
	require.Equal(t, responder.FallbackContent, answer.Content)
	require.Equal(t, responder.FallbackModel, answer.Metadata.Model)
	require.Equal(t, 0, answer.Metadata.TokenCount)
	require.Equal(t, "error", answer.Metadata.FinishReason)

	msgs, err := svc.ListMessages(ctx, answer.ChatSessionID, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestSendMessage_HistoryIsBoundedAndOrdered(t *testing.T) {
	ctx := context.Background()
	resp := &mockResponder{}
	cfg := testConfig()
	cfg.Conversation.HistoryWindow = 4
	svc := newTestService(t, memstore.New(nil), resp, cfg)

	sess, err := svc.CreateSession(ctx, "Long chat")
	require.NoError(t, err)
	for i := range 5 {
		_, err := svc.SendMessage(ctx, SendMessageInput{SessionID: sess.ID, Content: fmt.Sprintf("question %d", i)})
		require.NoError(t, err)
	}

	require.Len(t, resp.calls, 5)
	require.Len(t, resp.calls[0], 1)
	last := resp.calls[4]
	require.Len(t, last, 4)
	require.Equal(t, chat.RoleAssistant, last[0].Role)
	require.Equal(t, chat.HistoryEntry{Role: chat.RoleUser, Content: "question 3"}, last[1])
	require.Equal(t, chat.HistoryEntry{Role: chat.RoleUser, Content: "question 4"}, last[3])
}

func TestSendMessage_ReplyPersistFailureKeepsUserMessage(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(nil)
	svc := newTestService(t, st, &mockResponder{}, testConfig())

	sess, err := svc.CreateSession(ctx, "Partial")
	require.NoError(t, err)
	svc.messages = &faultyStore{Store: st, appendFn: func(role chat.Role) error {
		if role == chat.RoleAssistant {
			return storeFailure("append")
		}
		return nil
	}}

	_, err = svc.SendMessage(ctx, SendMessageInput{SessionID: sess.ID, Content: "Is it too late to learn to code at 40?"})
	require.ErrorIs(t, err, chat.ErrStore)
	require.True(t, UserMessagePersisted(err))

	var te *TurnError
	require.ErrorAs(t, err, &te)
	require.Equal(t, StatePersistingReply, te.State)
	require.Equal(t, sess.ID, te.SessionID)
	require.Equal(t, "Is it too late to learn to code at 40?", te.UserMessage.Content)

	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Equal(t, chat.RoleUser, got.Messages[0].Role)
}

func TestSendMessage_RetitleAndTouchFailuresAreStoreErrors(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(nil)

	tests := []struct {
		name  string
		store *faultyStore
		state State
	}{
		{"retitle", &faultyStore{Store: st, updateTitleFn: func() error { return storeFailure("update title") }}, StateRetitling},
		{"touch", &faultyStore{Store: st, touchFn: func() error { return storeFailure("touch") }}, StateTouchingSession},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, tc.store, &mockResponder{}, testConfig())
			_, err := svc.SendMessage(ctx, SendMessageInput{Content: "What does a staff engineer do?"})
			require.ErrorIs(t, err, chat.ErrStore)
			require.True(t, UserMessagePersisted(err))

			var te *TurnError
			require.ErrorAs(t, err, &te)
			require.Equal(t, tc.state, te.State)
		})
	}
}

func TestSendMessage_SurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := newTestService(t, memstore.New(nil), &mockResponder{RespondFn: func(message string, _ []chat.HistoryEntry) chat.Reply {
		cancel()
		return chat.Reply{Content: "answer to " + message, Metadata: chat.Metadata{Model: "m", FinishReason: "stop"}}
	}}, testConfig())

	answer, err := svc.SendMessage(ctx, SendMessageInput{Content: "quick one"})
	require.NoError(t, err)
	require.Equal(t, "answer to quick one", answer.Content)
}

func TestSendMessage_ConcurrentTurnsStayOrdered(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memstore.New(store.NewClock(nil)), &mockResponder{}, testConfig())
	sess, err := svc.CreateSession(ctx, "Busy")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SendMessage(ctx, SendMessageInput{SessionID: sess.ID, Content: fmt.Sprintf("message %d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 16)
	for i := 1; i < len(got.Messages); i++ {
		require.True(t, got.Messages[i].CreatedAt.After(got.Messages[i-1].CreatedAt))
	}
	require.Equal(t, got.Messages[len(got.Messages)-1].CreatedAt, got.LastMessageAt)
}

func TestPerUserScoping(t *testing.T) {
	cfg := testConfig()
	cfg.Identity.Mode = config.IdentityPerUser
	svc := newTestService(t, memstore.New(nil), &mockResponder{}, cfg)

	alice := chat.WithIdentity(context.Background(), "alice")
	bob := chat.WithIdentity(context.Background(), "bob")

	_, err := svc.ListSessions(context.Background())
	require.ErrorIs(t, err, chat.ErrUnauthenticated)
	_, err = svc.SendMessage(context.Background(), SendMessageInput{Content: "hi"})
	require.ErrorIs(t, err, chat.ErrUnauthenticated)

	answer, err := svc.SendMessage(alice, SendMessageInput{Content: "Alice wants a career change"})
	require.NoError(t, err)

	list, err := svc.ListSessions(bob)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = svc.GetSession(bob, answer.ChatSessionID)
	require.ErrorIs(t, err, chat.ErrNotFound)
	_, err = svc.SendMessage(bob, SendMessageInput{SessionID: answer.ChatSessionID, Content: "hijack"})
	require.ErrorIs(t, err, chat.ErrNotFound)
	require.ErrorIs(t, svc.DeleteSession(bob, answer.ChatSessionID), chat.ErrNotFound)
	_, err = svc.ListMessages(bob, answer.ChatSessionID, 10, 0)
	require.ErrorIs(t, err, chat.ErrNotFound)

	list, err = svc.ListSessions(alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSharedModeIgnoresIdentity(t *testing.T) {
	svc := newTestService(t, memstore.New(nil), &mockResponder{}, testConfig())

	sess, err := svc.CreateSession(chat.WithIdentity(context.Background(), "alice"), "Shared")
	require.NoError(t, err)

	got, err := svc.GetSession(chat.WithIdentity(context.Background(), "bob"), sess.ID)
	require.NoError(t, err)
	require.Equal(t, "Shared", got.Title)
}

func TestSessionOperations(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memstore.New(nil), &mockResponder{}, testConfig())

	_, err := svc.CreateSession(ctx, "")
	require.ErrorIs(t, err, chat.ErrValidation)

	sess, err := svc.CreateSession(ctx, "Resume review")
	require.NoError(t, err)

	renamed, err := svc.UpdateSessionTitle(ctx, sess.ID, "CV review")
	require.NoError(t, err)
	require.Equal(t, "CV review", renamed.Title)

	_, err = svc.UpdateSessionTitle(ctx, sess.ID, strings.Repeat("x", chat.MaxTitleLength+1))
	require.ErrorIs(t, err, chat.ErrValidation)

	_, err = svc.SendMessage(ctx, SendMessageInput{SessionID: sess.ID, Content: "Can you look at my summary section?"})
	require.NoError(t, err)

	_, err = svc.ListMessages(ctx, sess.ID, 0, 0)
	require.ErrorIs(t, err, chat.ErrValidation)
	_, err = svc.ListMessages(ctx, sess.ID, 10, -1)
	require.ErrorIs(t, err, chat.ErrValidation)

	page, err := svc.ListMessages(ctx, sess.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, chat.RoleAssistant, page[0].Role)

	require.NoError(t, svc.DeleteSession(ctx, sess.ID))
	err = svc.DeleteSession(ctx, sess.ID)
	require.True(t, errors.Is(err, chat.ErrNotFound))
	_, err = svc.ListMessages(ctx, sess.ID, 10, 0)
	require.ErrorIs(t, err, chat.ErrNotFound)
}
