package client

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/config"
	"github.com/itsAakanksha/career-counselor-ai/internal/conversation"
	"github.com/itsAakanksha/career-counselor-ai/internal/httpapi"
	"github.com/itsAakanksha/career-counselor-ai/internal/store/memstore"
)

type stubResponder struct {
	RespondFn func(ctx context.Context, message string) chat.Reply
}

func (s *stubResponder) Respond(ctx context.Context, message string, _ []chat.HistoryEntry) chat.Reply {
	if s.RespondFn != nil {
		return s.RespondFn(ctx, message)
	}
	return chat.Reply{Content: "reply to " + message, Metadata: chat.Metadata{Model: "test-model", TokenCount: 7, FinishReason: "stop"}}
}

func newLocalBackend(t *testing.T, r chat.Responder) *Local {
	t.Helper()
	var cfg config.Config
	cfg.Conversation.HistoryWindow = 10
	cfg.Identity.Mode = config.IdentityShared
	return NewLocal(conversation.NewService(memstore.New(nil), r, cfg), "")
}

// failingBackend wraps a Backend and fails SendMessage.
type failingBackend struct {
	Backend
	err error
}

func (f *failingBackend) SendMessage(context.Context, string, string) (*chat.Message, error) {
	return nil, f.err
}

func TestCache_SubmitShowsOptimisticMessageUntilReply(t *testing.T) {
	ctx := context.Background()
	inFlight := make(chan struct{})
	release := make(chan struct{})
	backend := newLocalBackend(t, &stubResponder{RespondFn: func(_ context.Context, message string) chat.Reply {
		close(inFlight)
		<-release
		return chat.Reply{Content: "reply to " + message, Metadata: chat.Metadata{Model: "m", FinishReason: "stop"}}
	}})
	cache := NewCache(backend)

	_, err := cache.New(ctx, "Career pivot")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := cache.Submit(ctx, "Should I become a data analyst?")
		done <- err
	}()

	<-inFlight
	msgs := cache.Messages()
	require.Len(t, msgs, 1)
	require.True(t, strings.HasPrefix(msgs[0].ID, "temp-user-"))
	require.Equal(t, "Should I become a data analyst?", msgs[0].Content)
	require.Equal(t, 1, cache.Pending())

	close(release)
	require.NoError(t, <-done)

	msgs = cache.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.False(t, strings.HasPrefix(m.ID, "temp-user-"))
	}
	require.Equal(t, chat.RoleUser, msgs[0].Role)
	require.Equal(t, chat.RoleAssistant, msgs[1].Role)
	require.Equal(t, 0, cache.Pending())
	require.NoError(t, cache.LastError())

	active := cache.Active()
	require.NotNil(t, active)
	require.Equal(t, "Should I become a data analyst?", active.Title)
}

func TestCache_SubmitWithoutSessionAdoptsServerSession(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newLocalBackend(t, &stubResponder{}))

	reply, err := cache.Submit(ctx, "What skills do product managers need?")
	require.NoError(t, err)

	active := cache.Active()
	require.NotNil(t, active)
	require.Equal(t, reply.ChatSessionID, active.ID)
	require.Len(t, cache.Messages(), 2)

	sessions := cache.Sessions()
	require.Len(t, sessions, 1)
	require.Equal(t, 2, sessions[0].MessageCount)
}

func TestCache_SubmitFailureDropsOptimisticMessage(t *testing.T) {
	ctx := context.Background()
	local := newLocalBackend(t, &stubResponder{})
	backend := &failingBackend{Backend: local, err: fmt.Errorf("%w: database is locked", chat.ErrStore)}
	cache := NewCache(backend)

	_, err := cache.New(ctx, "Flaky")
	require.NoError(t, err)
	_, err = local.SendMessage(ctx, cache.Active().ID, "earlier question")
	require.NoError(t, err)
	require.NoError(t, cache.Select(ctx, cache.Active().ID))
	before := cache.Messages()
	require.Len(t, before, 2)

	_, err = cache.Submit(ctx, "this one fails")
	require.ErrorIs(t, err, chat.ErrStore)
	require.ErrorIs(t, cache.LastError(), chat.ErrStore)
	require.Equal(t, before, cache.Messages())
	require.Equal(t, 0, cache.Pending())

	backend.err = nil
	cache.backend = local
	_, err = cache.Submit(ctx, "retry")
	require.NoError(t, err)
	require.NoError(t, cache.LastError())
	require.Len(t, cache.Messages(), 4)
}

func TestCache_SessionHelpersRefreshList(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newLocalBackend(t, &stubResponder{}))

	first, err := cache.New(ctx, "First")
	require.NoError(t, err)
	second, err := cache.New(ctx, "Second")
	require.NoError(t, err)
	require.Len(t, cache.Sessions(), 2)
	require.Equal(t, second.ID, cache.Active().ID)

	require.NoError(t, cache.Rename(ctx, second.ID, "Renamed"))
	require.Equal(t, "Renamed", cache.Active().Title)
	titles := []string{}
	for _, s := range cache.Sessions() {
		titles = append(titles, s.Title)
	}
	require.ElementsMatch(t, []string{"First", "Renamed"}, titles)

	require.NoError(t, cache.Select(ctx, first.ID))
	require.Equal(t, first.ID, cache.Active().ID)

	require.NoError(t, cache.Delete(ctx, first.ID))
	require.Nil(t, cache.Active())
	require.Len(t, cache.Sessions(), 1)

	err = cache.Select(ctx, first.ID)
	require.True(t, errors.Is(err, chat.ErrNotFound))

	cache.Leave()
	require.Empty(t, cache.Messages())
}

// replyFailingStore stores user messages but fails every assistant write.
type replyFailingStore struct {
	chat.Store
}

func (s replyFailingStore) AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string, meta *chat.Metadata) (*chat.Message, error) {
	if role == chat.RoleAssistant {
		return nil, fmt.Errorf("%w: insert message: disk full", chat.ErrStore)
	}
	return s.Store.AppendMessage(ctx, sessionID, role, content, meta)
}

func newReplyFailingService() *conversation.Service {
	var cfg config.Config
	cfg.Conversation.HistoryWindow = 10
	cfg.Identity.Mode = config.IdentityShared
	return conversation.NewService(replyFailingStore{Store: memstore.New(nil)}, &stubResponder{}, cfg)
}

func TestCache_PartialFailureMatchesServer(t *testing.T) {
	ctx := context.Background()
	svc := newReplyFailingService()
	local := NewLocal(svc, "")

	tests := []struct {
		name    string
		backend func(t *testing.T) Backend
	}{
		{"in process", func(*testing.T) Backend { return local }},
		{"over http", func(t *testing.T) Backend {
			srv := httptest.NewServer(httpapi.NewRouter(newReplyFailingService()))
			t.Cleanup(srv.Close)
			return NewAPIClient(srv.URL, "", 5*time.Second)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := tc.backend(t)
			cache := NewCache(backend)

			// No open session: the server creates one and keeps the user message.
			_, err := cache.Submit(ctx, "Can I move from teaching into UX research?")
			require.ErrorIs(t, err, chat.ErrStore)
			require.ErrorIs(t, cache.LastError(), chat.ErrStore)

			active := cache.Active()
			require.NotNil(t, active)
			server, err := backend.GetSession(ctx, active.ID)
			require.NoError(t, err)
			require.Len(t, server.Messages, 1)
			require.Equal(t, server.Messages, cache.Messages())
			require.Len(t, cache.Sessions(), 1)
			require.Equal(t, 0, cache.Pending())

			// A retry goes to the adopted session instead of creating another.
			_, err = cache.Submit(ctx, "Trying again")
			require.ErrorIs(t, err, chat.ErrStore)
			server, err = backend.GetSession(ctx, active.ID)
			require.NoError(t, err)
			require.Len(t, server.Messages, 2)
			require.Equal(t, server.Messages, cache.Messages())

			list, err := backend.ListSessions(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			require.Len(t, cache.Sessions(), 1)
		})
	}
}
