// Package storetest is the behavioural contract every chat.Store backend
// must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/store"
)

// Factory builds an empty store reading time from clock.
type Factory func(t *testing.T, clock *store.Clock) chat.Store

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, newStore Factory)
	}{
		{"CreateSessionValidatesTitle", testCreateSessionValidatesTitle},
		{"LookupAndGetSession", testLookupAndGetSession},
		{"AppendAssignsStrictlyIncreasingTimestamps", testAppendOrdering},
		{"AppendRejectsBadInput", testAppendRejectsBadInput},
		{"ListMessagesPaginates", testListMessagesPaginates},
		{"RecentHistoryWindow", testRecentHistoryWindow},
		{"CountByRole", testCountByRole},
		{"ListSessionsOrderAndCounts", testListSessions},
		{"OwnerScoping", testOwnerScoping},
		{"TouchActivityNeverDecreases", testTouchActivity},
		{"UpdateTitle", testUpdateTitle},
		{"DeleteCascades", testDeleteCascades},
		{"GetSessionIsIdempotent", testGetSessionIdempotent},
		{"ConcurrentAppendsStayOrdered", testConcurrentAppends},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore)
		})
	}
}

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// frozenClock never advances on its own, so ordering comes from the clock's
// collision handling alone.
func frozenClock() *store.Clock {
	return store.NewClock(func() time.Time { return epoch })
}

func mustSession(t *testing.T, s chat.Store, owner, title string) *chat.Session {
	t.Helper()
	sess, err := s.CreateSession(context.Background(), owner, title)
	require.NoError(t, err)
	return sess
}

func mustAppend(t *testing.T, s chat.Store, sessionID string, role chat.Role, content string) *chat.Message {
	t.Helper()
	var meta *chat.Metadata
	if role == chat.RoleAssistant {
		meta = &chat.Metadata{Model: "test-model", TokenCount: 12, FinishReason: "stop"}
	}
	msg, err := s.AppendMessage(context.Background(), sessionID, role, content, meta)
	require.NoError(t, err)
	return msg
}

func testCreateSessionValidatesTitle(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "", "")
	require.ErrorIs(t, err, chat.ErrValidation)
	_, err = s.CreateSession(ctx, "", strings.Repeat("t", chat.MaxTitleLength+1))
	require.ErrorIs(t, err, chat.ErrValidation)

	sess, err := s.CreateSession(ctx, "", "Career Chat")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, "Career Chat", sess.Title)
	require.Equal(t, sess.CreatedAt, sess.LastMessageAt)
}

func testLookupAndGetSession(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "Lookup")
	mustAppend(t, s, sess.ID, chat.RoleUser, "hello")

	found, err := s.LookupSession(ctx, "", sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, found.ID)
	require.Empty(t, found.Messages)

	full, err := s.GetSession(ctx, "", sess.ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 1)

	_, err = s.GetSession(ctx, "", "missing")
	require.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.LookupSession(ctx, "", "missing")
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func testAppendOrdering(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "Ordering")

	user := mustAppend(t, s, sess.ID, chat.RoleUser, "How do I negotiate?")
	reply := mustAppend(t, s, sess.ID, chat.RoleAssistant, "Start with research.")
	require.True(t, reply.CreatedAt.After(user.CreatedAt))
	require.Nil(t, user.Metadata)
	require.NotNil(t, reply.Metadata)

	for i := range 5 {
		mustAppend(t, s, sess.ID, chat.RoleUser, fmt.Sprintf("follow-up %d", i))
	}

	msgs, err := s.ListMessages(ctx, sess.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 7)
	for i := 1; i < len(msgs); i++ {
		require.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt), "message %d not after %d", i, i-1)
	}
	require.Equal(t, user.ID, msgs[0].ID)
	require.Equal(t, "test-model", msgs[1].Metadata.Model)
	require.Equal(t, 12, msgs[1].Metadata.TokenCount)
	require.Equal(t, "stop", msgs[1].Metadata.FinishReason)
}

func testAppendRejectsBadInput(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "Bad input")

	_, err := s.AppendMessage(ctx, "missing", chat.RoleUser, "hi", nil)
	require.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.AppendMessage(ctx, sess.ID, chat.RoleUser, "   ", nil)
	require.ErrorIs(t, err, chat.ErrValidation)
	_, err = s.AppendMessage(ctx, sess.ID, chat.Role("system"), "hi", nil)
	require.ErrorIs(t, err, chat.ErrValidation)

	n, err := s.CountByRole(ctx, sess.ID, chat.RoleUser)
	require.NoError(t, err)
	require.Zero(t, n)
}

func testListMessagesPaginates(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "Pages")
	for i := range 12 {
		mustAppend(t, s, sess.ID, chat.RoleUser, fmt.Sprintf("m%02d", i))
	}

	page, err := s.ListMessages(ctx, sess.ID, 5, 5)
	require.NoError(t, err)
	require.Len(t, page, 5)
	require.Equal(t, "m05", page[0].Content)
	require.Equal(t, "m09", page[4].Content)

	tail, err := s.ListMessages(ctx, sess.ID, 5, 10)
	require.NoError(t, err)
	require.Len(t, tail, 2)

	past, err := s.ListMessages(ctx, sess.ID, 5, 50)
	require.NoError(t, err)
	require.Empty(t, past)

	_, err = s.ListMessages(ctx, sess.ID, 0, 0)
	require.ErrorIs(t, err, chat.ErrValidation)
	_, err = s.ListMessages(ctx, sess.ID, 101, 0)
	require.ErrorIs(t, err, chat.ErrValidation)
	_, err = s.ListMessages(ctx, sess.ID, 10, -1)
	require.ErrorIs(t, err, chat.ErrValidation)
	_, err = s.ListMessages(ctx, "missing", 10, 0)
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func testRecentHistoryWindow(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "History")
	for i := range 14 {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		mustAppend(t, s, sess.ID, role, fmt.Sprintf("m%02d", i))
	}

	hist, err := s.RecentHistory(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 10)
	require.Equal(t, "m04", hist[0].Content)
	require.Equal(t, "m13", hist[9].Content)
	for i := 1; i < len(hist); i++ {
		require.True(t, hist[i].CreatedAt.After(hist[i-1].CreatedAt))
	}

	short := mustSession(t, s, "", "Short")
	mustAppend(t, s, short.ID, chat.RoleUser, "only one")
	hist, err = s.RecentHistory(ctx, short.ID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	_, err = s.RecentHistory(ctx, short.ID, 0)
	require.ErrorIs(t, err, chat.ErrValidation)
}

func testCountByRole(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "Counting")
	mustAppend(t, s, sess.ID, chat.RoleUser, "one")
	mustAppend(t, s, sess.ID, chat.RoleAssistant, "reply")
	mustAppend(t, s, sess.ID, chat.RoleUser, "two")

	users, err := s.CountByRole(ctx, sess.ID, chat.RoleUser)
	require.NoError(t, err)
	require.Equal(t, 2, users)
	assistants, err := s.CountByRole(ctx, sess.ID, chat.RoleAssistant)
	require.NoError(t, err)
	require.Equal(t, 1, assistants)
}

func testListSessions(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	older := mustSession(t, s, "", "Older")
	newer := mustSession(t, s, "", "Newer")
	mustAppend(t, s, older.ID, chat.RoleUser, "bump")
	reply := mustAppend(t, s, older.ID, chat.RoleAssistant, "bumped")
	require.NoError(t, s.TouchActivity(ctx, older.ID, reply.CreatedAt))

	list, err := s.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, older.ID, list[0].ID)
	require.Equal(t, 2, list[0].MessageCount)
	require.Equal(t, reply.CreatedAt, list[0].LastMessageAt)
	require.Equal(t, newer.ID, list[1].ID)
	require.Zero(t, list[1].MessageCount)
}

func testOwnerScoping(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	alice := mustSession(t, s, "alice", "Alice's chat")
	mustSession(t, s, "bob", "Bob's chat")
	mustSession(t, s, "", "Shared chat")

	list, err := s.ListSessions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, alice.ID, list[0].ID)

	_, err = s.GetSession(ctx, "bob", alice.ID)
	require.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.UpdateTitle(ctx, "bob", alice.ID, "Hijacked")
	require.ErrorIs(t, err, chat.ErrNotFound)
	require.ErrorIs(t, s.DeleteSession(ctx, "", alice.ID), chat.ErrNotFound)

	still, err := s.GetSession(ctx, "alice", alice.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice's chat", still.Title)
}

func testTouchActivity(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "Touch")

	later := sess.LastMessageAt.Add(time.Minute)
	require.NoError(t, s.TouchActivity(ctx, sess.ID, later))
	require.NoError(t, s.TouchActivity(ctx, sess.ID, later.Add(-30*time.Second)))

	got, err := s.LookupSession(ctx, "", sess.ID)
	require.NoError(t, err)
	require.Equal(t, later, got.LastMessageAt)

	require.ErrorIs(t, s.TouchActivity(ctx, "missing", later), chat.ErrNotFound)
}

func testUpdateTitle(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "Before")

	updated, err := s.UpdateTitle(ctx, "", sess.ID, "After")
	require.NoError(t, err)
	require.Equal(t, "After", updated.Title)
	require.Equal(t, sess.LastMessageAt, updated.LastMessageAt)

	_, err = s.UpdateTitle(ctx, "", sess.ID, "")
	require.ErrorIs(t, err, chat.ErrValidation)
	_, err = s.UpdateTitle(ctx, "", "missing", "Whatever")
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func testDeleteCascades(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "Doomed")
	keep := mustSession(t, s, "", "Kept")
	mustAppend(t, s, sess.ID, chat.RoleUser, "bye")
	mustAppend(t, s, sess.ID, chat.RoleAssistant, "farewell")
	mustAppend(t, s, keep.ID, chat.RoleUser, "stay")

	require.NoError(t, s.DeleteSession(ctx, "", sess.ID))

	_, err := s.GetSession(ctx, "", sess.ID)
	require.ErrorIs(t, err, chat.ErrNotFound)
	n, err := s.CountByRole(ctx, sess.ID, chat.RoleUser)
	require.NoError(t, err)
	require.Zero(t, n)
	hist, err := s.RecentHistory(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Empty(t, hist)

	require.ErrorIs(t, s.DeleteSession(ctx, "", sess.ID), chat.ErrNotFound)

	kept, err := s.GetSession(ctx, "", keep.ID)
	require.NoError(t, err)
	require.Len(t, kept.Messages, 1)
}

func testGetSessionIdempotent(t *testing.T, newStore Factory) {
	s := newStore(t, frozenClock())
	ctx := context.Background()
	sess := mustSession(t, s, "", "Stable")
	mustAppend(t, s, sess.ID, chat.RoleUser, "q")
	mustAppend(t, s, sess.ID, chat.RoleAssistant, "a")

	first, err := s.GetSession(ctx, "", sess.ID)
	require.NoError(t, err)
	second, err := s.GetSession(ctx, "", sess.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func testConcurrentAppends(t *testing.T, newStore Factory) {
	s := newStore(t, store.NewClock(nil))
	ctx := context.Background()
	sess := mustSession(t, s, "", "Two tabs")

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				_, err := s.AppendMessage(ctx, sess.ID, chat.RoleUser, fmt.Sprintf("tab %d msg %d", w, i), nil)
				if err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	msgs, err := s.ListMessages(ctx, sess.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, msgs, writers*perWriter)
	for i := 1; i < len(msgs); i++ {
		require.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt))
	}
}
