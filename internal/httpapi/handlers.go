package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/conversation"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
)

const defaultPageLimit = 50

type handler struct {
	svc Service
}

type sendMessageRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Title     string `json:"title"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type errorResponse struct {
	Error                string `json:"error"`
	Code                 string `json:"code"`
	UserMessagePersisted bool   `json:"user_message_persisted"`
	SessionID            string `json:"session_id,omitempty"`
}

// sessionResponse always carries the messages array, empty or not.
type sessionResponse struct {
	*chat.Session
	Messages []chat.Message `json:"messages"`
}

func (h *handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if !bind(c, &req) {
		return
	}
	h.runTurn(c, conversation.SendMessageInput{SessionID: req.SessionID, Content: req.Content, Title: req.Title})
}

func (h *handler) sendSessionMessage(c *gin.Context) {
	var req sendMessageRequest
	if !bind(c, &req) {
		return
	}
	h.runTurn(c, conversation.SendMessageInput{SessionID: c.Param("id"), Content: req.Content})
}

func (h *handler) runTurn(c *gin.Context, in conversation.SendMessageInput) {
	msg, err := h.svc.SendMessage(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *handler) createSession(c *gin.Context) {
	var req titleRequest
	if !bind(c, &req) {
		return
	}
	sess, err := h.svc.CreateSession(c.Request.Context(), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *handler) listSessions(c *gin.Context) {
	list, err := h.svc.ListSessions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) getSession(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := sessionResponse{Session: sess, Messages: sess.Messages}
	if resp.Messages == nil {
		resp.Messages = []chat.Message{}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) renameSession(c *gin.Context) {
	var req titleRequest
	if !bind(c, &req) {
		return
	}
	sess, err := h.svc.UpdateSessionTitle(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *handler) deleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) listMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		writeError(c, err)
		return
	}
	msgs, err := h.svc.ListMessages(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, fmt.Errorf("%w: invalid request body: %v", chat.ErrValidation, err))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", chat.ErrValidation, key)
	}
	return n, nil
}

// writeError maps a service error onto a status code and JSON body.
func writeError(c *gin.Context, err error) {
	log := logger.FromContext(c.Request.Context())
	switch {
	case errors.Is(err, chat.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation_error"})
	case errors.Is(err, chat.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: "unauthenticated"})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	default:
		persisted := conversation.UserMessagePersisted(err)
		log.Error("request failed", "error", err, "user_message_persisted", persisted)
		msg := "the conversation could not be saved, please try again"
		if persisted {
			msg = "your message was saved but the reply could not be stored, please try again"
		}
		resp := errorResponse{Error: msg, Code: "store_failure", UserMessagePersisted: persisted}
		var te *conversation.TurnError
		if errors.As(err, &te) {
			resp.SessionID = te.SessionID
		}
		c.JSON(http.StatusInternalServerError, resp)
	}
}
