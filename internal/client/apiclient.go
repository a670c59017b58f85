package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
)

// UserHeader carries the caller's identity on every request.
const UserHeader = "X-User-ID"

// APIError is a non-2xx answer from the server. It unwraps to the chat
// sentinel matching its status code.
type APIError struct {
	StatusCode           int
	Message              string
	Code                 string
	UserMessagePersisted bool
	// SessionID names the session a failed turn wrote to, when known.
	SessionID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return chat.ErrValidation
	case http.StatusUnauthorized:
		return chat.ErrUnauthenticated
	case http.StatusNotFound:
		return chat.ErrNotFound
	default:
		return chat.ErrStore
	}
}

// APIClient is a Backend served by the HTTP API.
type APIClient struct {
	baseURL string
	userID  string
	client  *http.Client
}

var _ Backend = (*APIClient)(nil)

// NewAPIClient creates a client for the server at baseURL. userID may be
// empty when the server runs in shared mode.
func NewAPIClient(baseURL, userID string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) SendMessage(ctx context.Context, sessionID, content string) (*chat.Message, error) {
	body := map[string]string{"content": content}
	path := "/api/messages"
	if sessionID != "" {
		path = "/api/sessions/" + url.PathEscape(sessionID) + "/messages"
	}
	var msg chat.Message
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *APIClient) CreateSession(ctx context.Context, title string) (*chat.Session, error) {
	var sess chat.Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"title": title}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *APIClient) ListSessions(ctx context.Context) ([]chat.SessionSummary, error) {
	var list []chat.SessionSummary
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *APIClient) GetSession(ctx context.Context, id string) (*chat.Session, error) {
	var sess chat.Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *APIClient) RenameSession(ctx context.Context, id, title string) (*chat.Session, error) {
	var sess chat.Session
	if err := c.do(ctx, http.MethodPatch, "/api/sessions/"+url.PathEscape(id), map[string]string{"title": title}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *APIClient) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// ListMessages pages through a session's messages, oldest first.
func (c *APIClient) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))
	var msgs []chat.Message
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/messages?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(UserHeader, c.userID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error                string `json:"error"`
			Code                 string `json:"code"`
			UserMessagePersisted bool   `json:"user_message_persisted"`
			SessionID            string `json:"session_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
			apiErr.UserMessagePersisted = payload.UserMessagePersisted
			apiErr.SessionID = payload.SessionID
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
