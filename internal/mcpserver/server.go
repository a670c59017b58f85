// Package mcpserver exposes the conversation service as MCP tools so an MCP
// host can hold career counseling chats on a user's behalf.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/conversation"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
)

const serverName = "career-counselor"

// Service is the part of conversation.Service the tools need.
type Service interface {
	SendMessage(ctx context.Context, in conversation.SendMessageInput) (*chat.Message, error)
	CreateSession(ctx context.Context, title string) (*chat.Session, error)
	ListSessions(ctx context.Context) ([]chat.SessionSummary, error)
	GetSession(ctx context.Context, id string) (*chat.Session, error)
	UpdateSessionTitle(ctx context.Context, id, title string) (*chat.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]chat.Message, error)
}

type tools struct {
	svc Service
}

// New returns an MCP server with one tool per conversation operation.
func New(svc Service, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithInstructions("Career counseling chat. Send a message without session_id to start a new conversation."),
	)
	t := &tools{svc: svc}

	userID := mcp.WithString("user_id", mcp.Description("Identity of the user; required when the server scopes sessions per user"))
	sessionID := mcp.WithString("session_id", mcp.Required(), mcp.Description("Chat session id"))

	s.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to the career counselor and get its reply. Omitting session_id starts a new session."),
		mcp.WithString("content", mcp.Required(), mcp.Description("The user's message, up to 2000 characters")),
		mcp.WithString("session_id", mcp.Description("Existing chat session id")),
		mcp.WithString("title", mcp.Description("Title for a new session")),
		userID,
	), t.sendMessage)

	s.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create an empty chat session"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Session title, 1 to 100 characters")),
		userID,
	), t.createSession)

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List chat sessions, most recently active first"),
		userID,
	), t.listSessions)

	s.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get a chat session with all of its messages"),
		sessionID,
		userID,
	), t.getSession)

	s.AddTool(mcp.NewTool("list_messages",
		mcp.WithDescription("Page through a session's messages, oldest first"),
		sessionID,
		mcp.WithNumber("limit", mcp.Description("Page size, 1 to 100"), mcp.DefaultNumber(50)),
		mcp.WithNumber("offset", mcp.Description("Messages to skip"), mcp.DefaultNumber(0)),
		userID,
	), t.listMessages)

	s.AddTool(mcp.NewTool("rename_session",
		mcp.WithDescription("Change a chat session's title"),
		sessionID,
		mcp.WithString("title", mcp.Required(), mcp.Description("New title, 1 to 100 characters")),
		userID,
	), t.renameSession)

	s.AddTool(mcp.NewTool("delete_session",
		mcp.WithDescription("Delete a chat session and all of its messages"),
		sessionID,
		userID,
	), t.deleteSession)

	return s
}

func withUser(ctx context.Context, req mcp.CallToolRequest) context.Context {
	return chat.WithIdentity(ctx, req.GetString("user_id", ""))
}

func (t *tools) sendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msg, err := t.svc.SendMessage(withUser(ctx, req), conversation.SendMessageInput{
		SessionID: req.GetString("session_id", ""),
		Content:   content,
		Title:     req.GetString("title", ""),
	})
	return result(ctx, msg, err)
}

func (t *tools) createSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := t.svc.CreateSession(withUser(ctx, req), title)
	return result(ctx, sess, err)
}

func (t *tools) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := t.svc.ListSessions(withUser(ctx, req))
	return result(ctx, list, err)
}

func (t *tools) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := t.svc.GetSession(withUser(ctx, req), id)
	return result(ctx, sess, err)
}

func (t *tools) listMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs, err := t.svc.ListMessages(withUser(ctx, req), id, req.GetInt("limit", 50), req.GetInt("offset", 0))
	return result(ctx, msgs, err)
}

func (t *tools) renameSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := t.svc.UpdateSessionTitle(withUser(ctx, req), id, title)
	return result(ctx, sess, err)
}

func (t *tools) deleteSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.svc.DeleteSession(withUser(ctx, req), id); err != nil {
		return result(ctx, nil, err)
	}
	return mcp.NewToolResultText(`{"deleted":true}`), nil
}

// result renders v as JSON text, or err as a tool error the host can show.
// Store failures are reported without their cause.
func result(ctx context.Context, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrValidation), errors.Is(err, chat.ErrNotFound), errors.Is(err, chat.ErrUnauthenticated):
			return mcp.NewToolResultError(err.Error()), nil
		}
		logger.FromContext(ctx).Error("tool call failed", "error", err)
		if conversation.UserMessagePersisted(err) {
			return mcp.NewToolResultError("store failure: your message was saved but the reply could not be stored"), nil
		}
		return mcp.NewToolResultError("store failure: the conversation could not be saved"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
