// Package httpapi exposes the conversation service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/conversation"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
)

const (
	UserHeader      = "X-User-ID"
	RequestIDHeader = "X-Request-ID"
)

// Service is the part of conversation.Service the handlers need.
type Service interface {
	SendMessage(ctx context.Context, in conversation.SendMessageInput) (*chat.Message, error)
	CreateSession(ctx context.Context, title string) (*chat.Session, error)
	ListSessions(ctx context.Context) ([]chat.SessionSummary, error)
	GetSession(ctx context.Context, id string) (*chat.Session, error)
	UpdateSessionTitle(ctx context.Context, id, title string) (*chat.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]chat.Message, error)
}

var _ Service = (*conversation.Service)(nil)

// NewRouter builds the gin engine serving svc.
func NewRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestContext(), accessLog(), cors())

	h := &handler{svc: svc}
	api := router.Group("/api")
	{
		api.POST("/messages", h.sendMessage)

		api.POST("/sessions", h.createSession)
		api.GET("/sessions", h.listSessions)
		api.GET("/sessions/:id", h.getSession)
		api.PATCH("/sessions/:id", h.renameSession)
		api.DELETE("/sessions/:id", h.deleteSession)

		api.POST("/sessions/:id/messages", h.sendSessionMessage)
		api.GET("/sessions/:id/messages", h.listMessages)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	return router
}

// requestContext tags the request with an id and the caller's identity.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		ctx := logger.WithRequestID(c.Request.Context(), id)
		ctx = chat.WithIdentity(ctx, c.GetHeader(UserHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.FromContext(c.Request.Context()).Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserHeader+", "+RequestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
