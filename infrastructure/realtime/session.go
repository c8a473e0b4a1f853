// Package realtime serves the websocket endpoint: it authenticates the
// socket, registers it with the hub and dispatches inbound events.
package realtime

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"skill-chat/contract"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"skill-chat/services"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// RoomHub is the part of the broadcast hub a socket session drives.
type RoomHub interface {
	Register(ctx context.Context, conn contract.Connection)
	Unregister(ctx context.Context, conn contract.Connection)
	JoinConversationRoom(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) error
	LeaveConversationRoom(conn contract.Connection, conversationID domain.ConversationID)
	PublishTyping(ctx context.Context, conversationID domain.ConversationID, user domain.UserID, isTyping bool) error
	SetStatus(ctx context.Context, user domain.UserID, status domain.PresenceStatus) error
}

type SessionConfig struct {
	BufferSize     int
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	MaxFrameSize   int64
	RateLimit      float64
	RateBurst      int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = 64 * 1024
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 40
	}
	return c
}

// Handler upgrades authenticated requests to websocket sessions.
type Handler struct {
	hub        RoomHub
	messages   services.IMessageService
	identities contract.IdentityValidator
	upgrader   websocket.Upgrader
	config     SessionConfig
	log        *slog.Logger
	sessions   sync.WaitGroup
}

func NewHandler(hub RoomHub, messages services.IMessageService, identities contract.IdentityValidator, config SessionConfig, log *slog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		messages:   messages,
		identities: identities,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		config: config.withDefaults(),
		log:    log,
	}
}

// credential reads the bearer token from the Authorization header, or from
// the token query parameter for browsers that cannot set headers on upgrade.
func credential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return header
	}
	return r.URL.Query().Get("token")
}

// ServeHTTP rejects unauthenticated requests before the upgrade so no
// socket ever exists for an unknown user.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.identities.Validate(r.Context(), credential(r))
	if err != nil {
		h.log.Debug("Socket authentication failed", "remote", r.RemoteAddr, "error", err)
		writeError(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response
		h.log.Debug("Upgrade failed", "user_id", user, "error", err)
		return
	}

	h.sessions.Add(1)
	defer h.sessions.Done()

	conn := NewConnection(user, ws, h.config.BufferSize, h.log)
	conn.Start()

	// The session outlives the upgrade request, only the hub calls use it.
	ctx := context.WithoutCancel(r.Context())
	h.hub.Register(ctx, conn)
	defer func() {
		h.hub.Unregister(ctx, conn)
		_ = conn.Close()
	}()

	h.reply(conn, event.Connected, "", "", event.PresencePayload{
		UserID: string(user),
		Status: string(domain.StatusOnline),
		At:     time.Now().UTC(),
	})
	h.readLoop(ctx, conn, ws)
}

// Wait blocks until every session has unregistered or ctx ends.
// Sessions only end once their socket is closed, see Hub.CloseAll.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *Connection, ws *websocket.Conn) {
	limiter := rate.NewLimiter(rate.Limit(h.config.RateLimit), h.config.RateBurst)

	ws.SetReadLimit(h.config.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!stderrors.Is(err, websocket.ErrCloseSent) {
				h.log.Debug("Socket read ended", "connection_id", conn.ID(), "user_id", conn.UserID(), "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))

		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.replyError(conn, event.Envelope{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
			continue
		}
		if !limiter.Allow() {
			h.replyError(conn, env, errors.ErrRateLimited)
			continue
		}
		h.dispatch(ctx, conn, env)
	}
}

func (h *Handler) dispatch(parent context.Context, conn *Connection, env event.Envelope) {
	ctx, cancel := context.WithTimeout(parent, h.config.RequestTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case event.JoinConversation:
		err = h.join(ctx, conn, env)
	case event.LeaveConversation:
		err = h.leave(conn, env)
	case event.SendMessage:
		err = h.sendMessage(ctx, conn, env)
	case event.TypingStart, event.TypingStop:
		err = h.typing(ctx, conn, env)
	case event.PresenceUpdate:
		err = h.presence(ctx, conn, env)
	default:
		err = fmt.Errorf("%w: unknown event %q", errors.ErrInvalidPayload, env.Event)
	}
	if err != nil {
		h.replyError(conn, env, err)
	}
}

func conversationOf(env event.Envelope) (domain.ConversationID, error) {
	id := strings.TrimSpace(env.ConversationID)
	if id == "" {
		return "", fmt.Errorf("%w: conversationId is required", errors.ErrInvalidPayload)
	}
	return domain.ConversationID(id), nil
}

func (h *Handler) join(ctx context.Context, conn *Connection, env event.Envelope) error {
	conversationID, err := conversationOf(env)
	if err != nil {
		return err
	}
	if err := h.hub.JoinConversationRoom(ctx, conn, conversationID); err != nil {
		return err
	}
	h.reply(conn, event.JoinedConversation, conversationID, env.Ref, nil)
	return nil
}

func (h *Handler) leave(conn *Connection, env event.Envelope) error {
	conversationID, err := conversationOf(env)
	if err != nil {
		return err
	}
	h.hub.LeaveConversationRoom(conn, conversationID)
	h.reply(conn, event.LeftConversation, conversationID, env.Ref, nil)
	return nil
}

func (h *Handler) sendMessage(ctx context.Context, conn *Connection, env event.Envelope) error {
	var payload event.SendMessagePayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	if err := event.Validate(payload); err != nil {
		return err
	}
	replyTo, err := event.ParseOptionalID(payload.ReplyTo)
	if err != nil {
		return err
	}
	conversationID := domain.ConversationID(payload.ConversationID)
	if conversationID == "" {
		conversationID = domain.ConversationID(env.ConversationID)
	}

	msg, err := h.messages.Send(ctx, services.SendInput{
		SenderID:           conn.UserID(),
		ConversationID:     conversationID,
		RecipientID:        domain.UserID(payload.RecipientID),
		Content:            payload.Content,
		Type:               domain.MessageType(payload.Type),
		ReplyTo:            replyTo,
		Attachments:        event.ToAttachments(payload.Attachments),
		OriginConnectionID: conn.ID(),
	})
	if err != nil {
		return err
	}
	h.reply(conn, event.MessageSent, msg.ConversationID, env.Ref, event.FromMessage(msg))
	return nil
}

func (h *Handler) typing(ctx context.Context, conn *Connection, env event.Envelope) error {
	conversationID, err := conversationOf(env)
	if err != nil {
		return err
	}
	return h.hub.PublishTyping(ctx, conversationID, conn.UserID(), env.Event == event.TypingStart)
}

func (h *Handler) presence(ctx context.Context, conn *Connection, env event.Envelope) error {
	var payload event.PresencePayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	status, err := domain.ParsePresenceStatus(payload.Status)
	if err != nil {
		return err
	}
	return h.hub.SetStatus(ctx, conn.UserID(), status)
}

func (h *Handler) reply(conn *Connection, name event.Name, conversationID domain.ConversationID, ref string, data any) {
	env, err := event.New(name, conversationID, data)
	if err != nil {
		h.log.Error("Cannot encode reply", "event", name, "error", err)
		return
	}
	if err := conn.Send(env.WithRef(ref)); err != nil {
		h.log.Debug("Reply dropped", "connection_id", conn.ID(), "event", name, "error", err)
	}
}

// replyError answers on the socket. Failures never close the session.
func (h *Handler) replyError(conn *Connection, cause event.Envelope, err error) {
	h.log.Debug("Socket event failed", "connection_id", conn.ID(), "user_id", conn.UserID(),
		"event", cause.Event, "error", err)
	h.reply(conn, event.Error, domain.ConversationID(cause.ConversationID), cause.Ref, event.NewErrorPayload(err))
}

func writeError(w http.ResponseWriter, err error) {
	kind := errors.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(map[string]event.ErrorPayload{"error": event.NewErrorPayload(err)})
}
