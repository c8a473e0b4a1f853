// Package event defines the realtime wire vocabulary shared by the hub, the
// socket handler, the REST layer and the client-side connection manager.
package event

import (
	"encoding/json"
	"fmt"
	"skill-chat/domain"
	"skill-chat/errors"
)

type Name string

// Client to server.
const (
	JoinConversation  Name = "join-conversation"
	LeaveConversation Name = "leave-conversation"
	SendMessage       Name = "send-message"
	TypingStart       Name = "typing-start"
	TypingStop        Name = "typing-stop"
)

// Server to client.
const (
	Connected          Name = "connected"
	JoinedConversation Name = "joined-conversation"
	LeftConversation   Name = "left-conversation"
	NewMessage         Name = "new-message"
	MessageSent        Name = "message-sent"
	MessageUpdated     Name = "message-updated"
	MessageDeleted     Name = "message-deleted"
	MessagesRead       Name = "messages-read"
	UserTyping         Name = "user-typing"
	Error              Name = "error"
)

// Both directions: clients announce away/online, the hub broadcasts updates.
const PresenceUpdate Name = "presence-update"

// Client-local lifecycle signals emitted by the connection manager.
const (
	Disconnected Name = "disconnected"
	ConnectError Name = "connect-error"
)

// Envelope is the single frame format exchanged over the socket.
// Ref is echoed back on acknowledgements so clients can correlate requests.
type Envelope struct {
	Event          Name            `json:"event"`
	ConversationID string          `json:"conversationId,omitempty"`
	Ref            string          `json:"ref,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

func New(name Name, conversationID domain.ConversationID, data any) (Envelope, error) {
	env := Envelope{Event: name, ConversationID: string(conversationID)}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", name, err)
	}
	env.Data = raw
	return env, nil
}

// WithRef returns a copy of the envelope carrying the correlation ref.
func (e Envelope) WithRef(ref string) Envelope {
	e.Ref = ref
	return e
}

func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", errors.ErrInvalidPayload, e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrInvalidPayload, e.Event, err)
	}
	return nil
}

// MessageDelivery is queued for the notification bridge once a message has
// been persisted and published.
type MessageDelivery struct {
	Message     domain.Message
	RecipientID domain.UserID
}
