package sqlstore

import (
	"strconv"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Timestamps are stored as unix microseconds so both engines compare and
// order them the same way.
var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS chat_sessions (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL DEFAULT '',
        title TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        last_message_at INTEGER NOT NULL
    );`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_owner_activity ON chat_sessions (owner_id, last_message_at);`,
		`CREATE TABLE IF NOT EXISTS messages (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        chat_session_id TEXT NOT NULL REFERENCES chat_sessions (id) ON DELETE CASCADE,
        role TEXT NOT NULL,
        content TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        metadata TEXT
    );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages (chat_session_id, created_at);`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS chat_sessions (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL DEFAULT '',
        title TEXT NOT NULL,
        created_at BIGINT NOT NULL,
        last_message_at BIGINT NOT NULL
    );`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_owner_activity ON chat_sessions (owner_id, last_message_at);`,
		`CREATE TABLE IF NOT EXISTS messages (
        seq BIGSERIAL PRIMARY KEY,
        id TEXT NOT NULL UNIQUE,
        chat_session_id TEXT NOT NULL REFERENCES chat_sessions (id) ON DELETE CASCADE,
        role TEXT NOT NULL,
        content TEXT NOT NULL,
        created_at BIGINT NOT NULL,
        metadata TEXT
    );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages (chat_session_id, created_at);`,
	},
}

// rebind rewrites ? placeholders into the driver's own syntax.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
