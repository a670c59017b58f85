package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/store"
	"github.com/itsAakanksha/career-counselor-ai/internal/store/storetest"
)

func openTemp(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counselor.db")
	s, err := Open(context.Background(), DriverSQLite, path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock *store.Clock) chat.Store {
		return openTemp(t, WithClock(clock))
	})
}

func TestSQLiteInMemory(t *testing.T) {
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	sess, err := s.CreateSession(context.Background(), "", "In memory")
	require.NoError(t, err)
	_, err = s.AppendMessage(context.Background(), sess.ID, chat.RoleUser, "hello", nil)
	require.NoError(t, err)
}

func TestOpen_ReseedsClockFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()
	future := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := Open(ctx, DriverSQLite, path, WithClock(store.NewClock(func() time.Time { return future })))
	require.NoError(t, err)
	sess, err := first.CreateSession(ctx, "", "Persisted")
	require.NoError(t, err)
	old, err := first.AppendMessage(ctx, sess.ID, chat.RoleUser, "from the future", nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// a wall clock far behind the stored rows must not reorder new messages
	second, err := Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	defer second.Close()
	next, err := second.AppendMessage(ctx, sess.ID, chat.RoleUser, "from now", nil)
	require.NoError(t, err)
	require.True(t, next.CreatedAt.After(old.CreatedAt))

	got, err := second.GetSession(ctx, "", sess.ID)
	require.NoError(t, err)
	require.Equal(t, "Persisted", got.Title)
	require.Len(t, got.Messages, 2)
	require.Equal(t, old.CreatedAt, got.Messages[0].CreatedAt)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "whatever")
	require.ErrorContains(t, err, "unsupported driver")
}

func TestRebind(t *testing.T) {
	q := `UPDATE t SET a = ? WHERE b = ? AND c = ?`
	require.Equal(t, q, rebind(DriverSQLite, q))
	require.Equal(t, `UPDATE t SET a = $1 WHERE b = $2 AND c = $3`, rebind(DriverPostgres, q))
}
