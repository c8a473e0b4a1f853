// Package server exposes the messaging core over REST and mounts the
// websocket endpoint.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"skill-chat/auth"
	"skill-chat/contract"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"skill-chat/services"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	getOrCreatePath  = "/conversations:getOrCreate"
	getOrCreateRoute = "/conversations/get-or-create"
)

type PresenceReader interface {
	Presence(ctx context.Context, user domain.UserID) domain.PresenceStatus
}

type Dependencies struct {
	Conversations services.IConversationService
	Messages      services.IMessageService
	Identities    contract.IdentityValidator
	Directory     contract.ParticipantDirectory
	Presence      PresenceReader
	Socket        http.Handler
}

type Config struct {
	RequestTimeout time.Duration
}

// Router serves the REST API. It implements http.Handler.
type Router struct {
	engine *gin.Engine
	deps   Dependencies
	config Config
	log    *slog.Logger
}

func NewRouter(deps Dependencies, config Config, log *slog.Logger) *Router {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	gin.SetMode(gin.ReleaseMode)
	r := &Router{engine: gin.New(), deps: deps, config: config, log: log}
	r.engine.Use(gin.Recovery(), r.requestLog())

	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	if deps.Socket != nil {
		// The socket authenticates itself before upgrading
		r.engine.GET("/ws", gin.WrapH(deps.Socket))
	}

	api := r.engine.Group("/", r.authenticate(), r.timeout())
	api.POST(getOrCreateRoute, r.getOrCreateConversation)
	api.GET("/conversations", r.listConversations)
	api.GET("/conversations/:id/messages", r.listMessages)
	api.POST("/conversations/:id/messages", r.sendMessage)
	api.POST("/conversations/:id/read", r.markConversationRead)
	api.PATCH("/messages/:id/read", r.markReadUpTo)
	api.PATCH("/messages/:id", r.editMessage)
	api.DELETE("/messages/:id", r.removeMessage)
	api.GET("/users/:id/presence", r.presence)
	return r
}

// ServeHTTP maps the custom-method path onto a regular route before routing.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path == getOrCreatePath {
		req.URL.Path = getOrCreateRoute
		req.URL.RawPath = ""
	}
	r.engine.ServeHTTP(w, req)
}

func (r *Router) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// authenticate resolves the bearer credential. Nothing past it runs for an
// unknown caller.
func (r *Router) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.TrimSpace(header) == "" {
			r.renderError(c, errors.ErrUnauthenticated)
			return
		}
		user, err := r.deps.Identities.Validate(c.Request.Context(), header)
		if err != nil {
			r.renderError(c, err)
			return
		}
		c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), user))
		c.Next()
	}
}

func (r *Router) timeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), r.config.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func caller(c *gin.Context) domain.UserID {
	user, _ := auth.UserIDFrom(c.Request.Context())
	return user
}

// renderError writes {"error":{"kind","message"}}. Internal details are
// logged, not returned.
func (r *Router) renderError(c *gin.Context, err error) {
	kind := errors.KindOf(err)
	payload := event.NewErrorPayload(err)
	if kind == errors.KindInternal {
		r.log.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		payload.Message = "internal error"
	}
	c.AbortWithStatusJSON(errors.HTTPStatus(kind), gin.H{"error": payload})
}
