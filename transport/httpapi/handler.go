// Package httpapi exposes a postbox.Service over JSON/HTTP using gin.
//
// Routes:
//
//	GET   /                           banner
//	GET   /health                     readiness
//	POST  /users                      create a user
//	GET   /users?id=&email=           list users, or filter by id or email
//	GET   /users/:id/profile          user with message counts
//	POST  /messages                   send a message
//	GET   /messages/sent/:email       sent view
//	GET   /messages/inbox/:email      inbox view
//	GET   /messages/unread/:email     unread inbox view
//	GET   /messages/all/:email        combined view
//	GET   /messages/:id               message detail
//	PATCH /messages/read/:id?recipient_email=
//	GET   /stats                      system statistics
//
// Errors are returned as {"detail": "..."}.
package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rbaliyan/postbox"
)

// Handler serves the HTTP API.
type Handler struct {
	svc    postbox.Service
	logger *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for request and failure logs.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a Handler for svc.
func New(svc postbox.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewEngine returns a gin engine with recovery, request logging and the API
// routes mounted at the root.
func NewEngine(svc postbox.Service, opts ...Option) *gin.Engine {
	h := New(svc, opts...)
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())
	h.Register(r)
	return r
}

// Register mounts the API routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "postbox"}) })
	r.GET("/health", h.health)

	users := r.Group("/users")
	{
		users.POST("", h.createUser)
		users.GET("", h.listUsers)
		users.GET("/:id/profile", h.userProfile)
	}

	messages := r.Group("/messages")
	{
		messages.POST("", h.sendMessage)
		messages.GET("/sent/:email", h.sentMessages)
		messages.GET("/inbox/:email", h.inboxMessages)
		messages.GET("/unread/:email", h.unreadMessages)
		messages.GET("/all/:email", h.allMessages)
		messages.PATCH("/read/:id", h.markRead)
		messages.GET("/:id", h.messageDetail)
	}

	r.GET("/stats", h.systemStats)
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (h *Handler) health(c *gin.Context) {
	if !h.svc.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail writes err with the given status. Server errors are logged and hidden.
func (h *Handler) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err)
		c.AbortWithStatusJSON(status, gin.H{"detail": internalErrorDetail})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail(err)})
}

// detail strips the package prefix from service error messages.
func detail(err error) string {
	return strings.TrimPrefix(err.Error(), "postbox: ")
}

type createUserRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}
	user, err := h.svc.CreateUser(c.Request.Context(), req.Email, req.Name)
	if err != nil {
		if _, ok := postbox.IsEventPublishError(err); !ok || user == nil {
			h.fail(c, statusFor(err), err)
			return
		}
		h.logger.Warn("user created but event not published", "user_id", user.ID, "error", err)
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) listUsers(c *gin.Context) {
	ctx := c.Request.Context()
	if email := c.Query("email"); email != "" {
		user, err := h.svc.GetUserByEmail(ctx, email)
		if err != nil {
			h.fail(c, statusFor(err), err)
			return
		}
		if user == nil {
			h.fail(c, http.StatusNotFound, postbox.ErrUnknownUser)
			return
		}
		c.JSON(http.StatusOK, []*postbox.User{user})
		return
	}

	users, err := h.svc.Users(ctx, c.Query("id"))
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, nonNil(users))
}

func (h *Handler) userProfile(c *gin.Context) {
	profile, err := h.svc.UserProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req postbox.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}
	msg, err := h.svc.SendMessage(c.Request.Context(), req)
	if err != nil {
		if _, ok := postbox.IsEventPublishError(err); ok && msg != nil {
			h.logger.Warn("message stored but event not published", "message_id", msg.ID, "error", err)
		} else {
			h.fail(c, sendStatusFor(err), err)
			return
		}
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) sentMessages(c *gin.Context) {
	msgs, err := h.svc.SentMessages(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, nonNil(msgs))
}

func (h *Handler) inboxMessages(c *gin.Context) {
	msgs, err := h.svc.InboxMessages(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, nonNil(msgs))
}

func (h *Handler) unreadMessages(c *gin.Context) {
	msgs, err := h.svc.UnreadMessages(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, nonNil(msgs))
}

func (h *Handler) allMessages(c *gin.Context) {
	msgs, err := h.svc.Messages(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, nonNil(msgs))
}

func (h *Handler) messageDetail(c *gin.Context) {
	msg, err := h.svc.MessageDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) markRead(c *gin.Context) {
	recipient := c.Query("recipient_email")
	if recipient == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "recipient_email query parameter is required"})
		return
	}
	err := h.svc.MarkRead(c.Request.Context(), c.Param("id"), recipient)
	if err != nil {
		if _, ok := postbox.IsEventPublishError(err); !ok {
			h.fail(c, statusFor(err), err)
			return
		}
		h.logger.Warn("read recorded but event not published", "message_id", c.Param("id"), "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Message marked as read successfully"})
}

func (h *Handler) systemStats(c *gin.Context) {
	stats, err := h.svc.SystemStats(c.Request.Context())
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// nonNil makes empty results encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
