package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Metadata is attached to assistant messages only.
type Metadata struct {
	Model        string `json:"model"`
	TokenCount   int    `json:"tokens"`
	FinishReason string `json:"finishReason"`
}

// Message is a single entry of a session's conversation.
type Message struct {
	ID            string    `json:"id"`
	ChatSessionID string    `json:"chatSessionId"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
	Metadata      *Metadata `json:"metadata,omitempty"`
}

// Session is a named, ordered conversation. Messages is only populated by
// reads that ask for them.
type Session struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"ownerId,omitempty"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	Messages      []Message `json:"messages,omitempty"`
}

// SessionSummary is the sidebar projection of a session.
type SessionSummary struct {
	Session
	MessageCount int `json:"messageCount"`
}

// HistoryEntry is one prior turn handed to the responder as context.
type HistoryEntry struct {
	Role    Role
	Content string
}

// Reply is what the responder produced for a turn.
type Reply struct {
	Content  string
	Metadata Metadata
}

// HistoryFromMessages projects stored messages onto responder context.
func HistoryFromMessages(msgs []Message) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out
}
