// Package sqlstore persists sessions and messages through database/sql.
// SQLite (pure Go) and Postgres are supported; the schema is created on open.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
	"github.com/itsAakanksha/career-counselor-ai/internal/store"
)

type Store struct {
	db     *sql.DB
	driver string
	clock  *store.Clock
}

var _ chat.Store = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the timestamp source.
func WithClock(c *store.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open connects to the database, creates the schema if needed and seeds the
// clock from the newest persisted timestamp. For sqlite, dsn is a file path
// or ":memory:".
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil {
			// one connection: writes serialize and :memory: stays one database
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", chat.ErrStore, driver, err)
	}

	s := &Store{db: db, driver: driver, clock: store.NewClock(nil)}
	for _, o := range opts {
		o(s)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.seedClock(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.L.Info("sql store initialized", "driver", driver)
	return s, nil
}

func sqliteDSN(dsn string) string {
	if dsn == ":memory:" {
		return dsn
	}
	if strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return "file:" + dsn + "?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)"
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemas[s.driver] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create schema: %w", chat.ErrStore, err)
		}
	}
	return nil
}

func (s *Store) seedClock(ctx context.Context) error {
	var newest int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(ts), 0) FROM (
        SELECT MAX(created_at) AS ts FROM messages
        UNION ALL
        SELECT MAX(last_message_at) AS ts FROM chat_sessions
    ) AS t`).Scan(&newest)
	if err != nil {
		return fmt.Errorf("%w: seed clock: %w", chat.ErrStore, err)
	}
	if newest > 0 {
		s.clock.Seed(time.UnixMicro(newest))
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return rebind(s.driver, query)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", chat.ErrStore, op, err)
}

func notFound(id string) error {
	return fmt.Errorf("%w: session %s", chat.ErrNotFound, id)
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

const sessionColumns = `id, owner_id, title, created_at, last_message_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, extra ...any) (*chat.Session, error) {
	var (
		sess             chat.Session
		created, lastMsg int64
	)
	dest := append([]any{&sess.ID, &sess.OwnerID, &sess.Title, &created, &lastMsg}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	sess.CreatedAt = fromMicros(created)
	sess.LastMessageAt = fromMicros(lastMsg)
	return &sess, nil
}

func (s *Store) CreateSession(ctx context.Context, owner, title string) (*chat.Session, error) {
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
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO chat_sessions (id, owner_id, title, created_at, last_message_at) VALUES (?,?,?,?,?)`),
		sess.ID, sess.OwnerID, sess.Title, now.UnixMicro(), now.UnixMicro())
	if err != nil {
		return nil, storeErr("insert session", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, owner string) ([]chat.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT s.id, s.owner_id, s.title, s.created_at, s.last_message_at, COUNT(m.seq)
        FROM chat_sessions s
        LEFT JOIN messages m ON m.chat_session_id = s.id
        WHERE s.owner_id = ?
        GROUP BY s.id, s.owner_id, s.title, s.created_at, s.last_message_at
        ORDER BY s.last_message_at DESC, s.created_at DESC`), owner)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	defer rows.Close()

	out := []chat.SessionSummary{}
	for rows.Next() {
		var count int
		sess, err := scanSession(rows, &count)
		if err != nil {
			return nil, storeErr("scan session", err)
		}
		out = append(out, chat.SessionSummary{Session: *sess, MessageCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list sessions", err)
	}
	return out, nil
}

func (s *Store) LookupSession(ctx context.Context, owner, id string) (*chat.Session, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ? AND owner_id = ?`), id, owner)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storeErr("get session", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, owner, id string) (*chat.Session, error) {
	sess, err := s.LookupSession(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	sess.Messages, err = s.queryMessages(ctx, `WHERE chat_session_id = ? ORDER BY created_at ASC, seq ASC`, id)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) UpdateTitle(ctx context.Context, owner, id, title string) (*chat.Session, error) {
	if err := chat.ValidateTitle(title); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE chat_sessions SET title = ? WHERE id = ? AND owner_id = ?`), title, id, owner)
	if err != nil {
		return nil, storeErr("update title", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, storeErr("update title", err)
	} else if n == 0 {
		return nil, notFound(id)
	}
	return s.LookupSession(ctx, owner, id)
}

func (s *Store) TouchActivity(ctx context.Context, id string, at time.Time) error {
	ts := at.UTC().Truncate(store.Resolution).UnixMicro()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE chat_sessions
        SET last_message_at = CASE WHEN last_message_at < ? THEN ? ELSE last_message_at END
        WHERE id = ?`), ts, ts, id)
	if err != nil {
		return storeErr("touch session", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storeErr("touch session", err)
	} else if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, owner, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin delete", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM chat_sessions WHERE id = ? AND owner_id = ?`), id, owner)
	if err != nil {
		return storeErr("delete session", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storeErr("delete session", err)
	} else if n == 0 {
		return notFound(id)
	}
	// explicit so the cascade does not depend on foreign key enforcement
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM messages WHERE chat_session_id = ?`), id); err != nil {
		return storeErr("delete messages", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit delete", err)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string, meta *chat.Metadata) (*chat.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", chat.ErrValidation, role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content must not be empty", chat.ErrValidation)
	}

	var metaJSON sql.NullString
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return nil, storeErr("encode metadata", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin append", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM chat_sessions WHERE id = ?`), sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(sessionID)
	}
	if err != nil {
		return nil, storeErr("check session", err)
	}

	msg := &chat.Message{
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
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO messages (id, chat_session_id, role, content, created_at, metadata) VALUES (?,?,?,?,?,?)`),
		msg.ID, msg.ChatSessionID, string(msg.Role), msg.Content, msg.CreatedAt.UnixMicro(), metaJSON)
	if err != nil {
		return nil, storeErr("insert message", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit message", err)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]chat.Message, error) {
	if err := chat.ValidatePage(limit, offset); err != nil {
		return nil, err
	}
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.queryMessages(ctx, `WHERE chat_session_id = ? ORDER BY created_at ASC, seq ASC LIMIT ? OFFSET ?`, sessionID, limit, offset)
}

func (s *Store) RecentHistory(ctx context.Context, sessionID string, count int) ([]chat.Message, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: history window must be positive", chat.ErrValidation)
	}
	msgs, err := s.queryMessages(ctx, `WHERE chat_session_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`, sessionID, count)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) CountByRole(ctx context.Context, sessionID string, role chat.Role) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM messages WHERE chat_session_id = ? AND role = ?`), sessionID, string(role)).Scan(&n)
	if err != nil {
		return 0, storeErr("count messages", err)
	}
	return n, nil
}

func (s *Store) sessionExists(ctx context.Context, id string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM chat_sessions WHERE id = ?`), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return storeErr("check session", err)
	}
	return nil
}

func (s *Store) queryMessages(ctx context.Context, where string, args ...any) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, chat_session_id, role, content, created_at, metadata FROM messages `+where), args...)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer rows.Close()

	out := []chat.Message{}
	for rows.Next() {
		var (
			m        chat.Message
			role     string
			created  int64
			metaJSON sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ChatSessionID, &role, &m.Content, &created, &metaJSON); err != nil {
			return nil, storeErr("scan message", err)
		}
		m.Role = chat.Role(role)
		m.CreatedAt = fromMicros(created)
		if metaJSON.Valid && metaJSON.String != "" {
			var meta chat.Metadata
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
				return nil, storeErr("decode metadata", err)
			}
			m.Metadata = &meta
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list messages", err)
	}
	return out, nil
}
