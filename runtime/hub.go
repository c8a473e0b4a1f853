package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"skill-chat/contract"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Hub fans events out to live connections grouped in rooms. Delivery is
// at-most-once to whoever is connected right now: there is no replay.
type Hub struct {
	registry  *Registry
	directory contract.ParticipantDirectory
	mirror    contract.PresenceMirror
	log       *slog.Logger
	now       func() time.Time

	// serializes presence announcements so the last one sent is the current status
	presenceMu sync.Mutex
}

// NewHub builds a hub. mirror may be nil on single-node deployments.
func NewHub(registry *Registry, directory contract.ParticipantDirectory, mirror contract.PresenceMirror, log *slog.Logger) *Hub {
	return &Hub{registry: registry, directory: directory, mirror: mirror, log: log, now: time.Now}
}

// Register admits an authenticated connection into its personal room.
// The user's first connection turns them online.
func (h *Hub) Register(ctx context.Context, conn contract.Connection) {
	changed := h.registry.Add(conn)
	h.log.Debug("Connection registered", "connection_id", conn.ID(), "user_id", conn.UserID())
	if changed {
		h.announce(ctx, conn.UserID())
	}
}

// Unregister drops every membership of the connection at once. Losing the
// user's last connection turns them offline.
func (h *Hub) Unregister(ctx context.Context, conn contract.Connection) {
	user, changed, ok := h.registry.Remove(conn.ID())
	if !ok {
		return
	}
	h.log.Debug("Connection unregistered", "connection_id", conn.ID(), "user_id", user)
	if changed {
		h.announce(ctx, user)
	}
}

// CloseAll closes every live connection. Each session then unregisters
// itself as its read loop ends.
func (h *Hub) CloseAll() int {
	conns := h.registry.All()
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			h.log.Debug("Close failed", "connection_id", conn.ID(), "error", err)
		}
	}
	return len(conns)
}

// JoinConversationRoom admits the connection only when its authenticated
// user is a participant of the conversation.
func (h *Hub) JoinConversationRoom(ctx context.Context, conn contract.Connection, conversationID domain.ConversationID) error {
	if err := h.requireParticipant(ctx, conversationID, conn.UserID()); err != nil {
		h.log.Warn("Join refused", "connection_id", conn.ID(), "user_id", conn.UserID(),
			"conversation_id", conversationID, "error", err)
		return err
	}
	if !h.registry.Join(conn.ID(), domain.ConversationRoom(conversationID)) {
		h.log.Debug("Already in room", "connection_id", conn.ID(), "conversation_id", conversationID)
	}
	return nil
}

// LeaveConversationRoom is idempotent.
func (h *Hub) LeaveConversationRoom(conn contract.Connection, conversationID domain.ConversationID) {
	h.registry.Leave(conn.ID(), domain.ConversationRoom(conversationID))
}

// PublishMessage delivers new-message to the conversation room and to the
// recipient's personal room, skipping the connection the message came from.
func (h *Hub) PublishMessage(msg domain.Message, peer domain.UserID, originConnectionID string) {
	env, err := event.New(event.NewMessage, msg.ConversationID, event.FromMessage(msg))
	if err != nil {
		h.log.Error("Cannot encode message", "message_id", msg.ID, "error", err)
		return
	}
	h.deliver(env, h.conversationAudience(msg.ConversationID, peer), func(c contract.Connection) bool {
		return c.ID() != originConnectionID
	})
}

func (h *Hub) PublishMessageUpdated(msg domain.Message, peer domain.UserID) {
	env, err := event.New(event.MessageUpdated, msg.ConversationID, event.FromMessage(msg))
	if err != nil {
		h.log.Error("Cannot encode message", "message_id", msg.ID, "error", err)
		return
	}
	h.deliver(env, h.conversationAudience(msg.ConversationID, peer), nil)
}

func (h *Hub) PublishMessageDeleted(msg domain.Message, peer domain.UserID, lastMessageRef *uuid.UUID) {
	payload := event.MessageDeletedPayload{ID: msg.ID.String(), ConversationID: string(msg.ConversationID)}
	if lastMessageRef != nil {
		payload.LastMessageRef = lo.ToPtr(lastMessageRef.String())
	}
	env, err := event.New(event.MessageDeleted, msg.ConversationID, payload)
	if err != nil {
		h.log.Error("Cannot encode deletion", "message_id", msg.ID, "error", err)
		return
	}
	h.deliver(env, h.conversationAudience(msg.ConversationID, peer), nil)
}

func (h *Hub) PublishMessagesRead(conversationID domain.ConversationID, reader, peer domain.UserID, ids []uuid.UUID) {
	env, err := event.New(event.MessagesRead, conversationID, event.MessagesReadPayload{
		ConversationID: string(conversationID),
		ReaderID:       string(reader),
		MessageIDs:     lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() }),
	})
	if err != nil {
		h.log.Error("Cannot encode read receipt", "conversation_id", conversationID, "error", err)
		return
	}
	h.deliver(env, h.conversationAudience(conversationID, peer), nil)
}

// PublishTyping is ephemeral. It reaches the conversation room minus every
// connection of the typing user.
func (h *Hub) PublishTyping(ctx context.Context, conversationID domain.ConversationID, user domain.UserID, isTyping bool) error {
	if err := h.requireParticipant(ctx, conversationID, user); err != nil {
		return err
	}
	env, err := event.New(event.UserTyping, conversationID, event.TypingPayload{
		ConversationID: string(conversationID),
		UserID:         string(user),
		IsTyping:       isTyping,
	})
	if err != nil {
		return err
	}
	h.deliver(env, h.registry.Members(domain.ConversationRoom(conversationID)), func(c contract.Connection) bool {
		return c.UserID() != user
	})
	return nil
}

// PublishPresence tells the users sharing a conversation with user about
// its new status. Nobody else learns about it.
func (h *Hub) PublishPresence(ctx context.Context, user domain.UserID, status domain.PresenceStatus) error {
	contacts, err := h.directory.Contacts(ctx, user)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		return nil
	}
	env, err := event.New(event.PresenceUpdate, "", event.PresencePayload{
		UserID: string(user),
		Status: string(status),
		At:     h.now().UTC(),
	})
	if err != nil {
		return err
	}
	rooms := lo.Map(contacts, func(c domain.UserID, _ int) domain.RoomID { return domain.PersonalRoom(c) })
	h.deliver(env, h.registry.Members(rooms...), nil)
	return nil
}

// SetStatus applies a status announced by the client, such as away.
// Offline is only reached by disconnecting.
func (h *Hub) SetStatus(ctx context.Context, user domain.UserID, status domain.PresenceStatus) error {
	if status == domain.StatusOffline {
		return fmt.Errorf("%w: offline cannot be announced", errors.ErrInvalidStatus)
	}
	if h.registry.ConnectionCount(user) == 0 {
		return fmt.Errorf("%w: %s", errors.ErrNotConnected, user)
	}
	if h.registry.SetStatus(user, status) {
		h.announce(ctx, user)
	}
	return nil
}

// announce mirrors and broadcasts the user's current status. Reading the
// status under presenceMu means a late announcement never restores a stale one.
func (h *Hub) announce(ctx context.Context, user domain.UserID) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	status := h.registry.Status(user)
	if h.mirror != nil {
		if err := h.mirror.SetStatus(ctx, user, status); err != nil {
			h.log.Warn("Presence mirror update failed", "user_id", user, "error", err)
		}
	}
	if err := h.PublishPresence(ctx, user, status); err != nil {
		h.log.Warn("Presence broadcast failed", "user_id", user, "error", err)
	}
}

// Presence returns the local status, falling back to the mirror for users
// connected to another node.
func (h *Hub) Presence(ctx context.Context, user domain.UserID) domain.PresenceStatus {
	if status := h.registry.Status(user); status != domain.StatusOffline || h.mirror == nil {
		return status
	}
	status, err := h.mirror.Status(ctx, user)
	if err != nil {
		h.log.Warn("Presence mirror lookup failed", "user_id", user, "error", err)
		return domain.StatusOffline
	}
	return status
}

// PresentUsers is the snapshot refreshed by the presence heartbeat.
func (h *Hub) PresentUsers() map[domain.UserID]domain.PresenceStatus {
	return h.registry.Present()
}

// IsViewing reports whether user has the conversation open on any device.
func (h *Hub) IsViewing(user domain.UserID, conversationID domain.ConversationID) bool {
	return h.registry.IsUserInRoom(user, domain.ConversationRoom(conversationID))
}

func (h *Hub) conversationAudience(conversationID domain.ConversationID, peer domain.UserID) []contract.Connection {
	return h.registry.Members(domain.ConversationRoom(conversationID), domain.PersonalRoom(peer))
}

func (h *Hub) requireParticipant(ctx context.Context, conversationID domain.ConversationID, user domain.UserID) error {
	ok, err := h.directory.IsParticipant(ctx, conversationID, user)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s in %s", errors.ErrNotParticipant, user, conversationID)
	}
	return nil
}

// deliver sends env to every connection accepted by keep. A connection that
// cannot take it is closing on its own.
func (h *Hub) deliver(env event.Envelope, conns []contract.Connection, keep func(contract.Connection) bool) {
	for _, conn := range conns {
		if keep != nil && !keep(conn) {
			continue
		}
		if err := conn.Send(env); err != nil {
			h.log.Debug("Delivery dropped", "connection_id", conn.ID(), "event", env.Event, "error", err)
		}
	}
}
