package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationID is the deterministic key of a two-party conversation.
type ConversationID string

func (c ConversationID) String() string { return string(c) }

// Conversation is a two-party thread. It is created lazily on the first
// exchange and only mutated by message appends and soft-deactivation.
type Conversation struct {
	ID            ConversationID
	Participants  [2]UserID
	LastMessageID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	IsActive      bool
}

// NewConversation builds an active conversation for an already ordered pair.
func NewConversation(id ConversationID, first, second UserID, at time.Time) Conversation {
	return Conversation{
		ID:           id,
		Participants: [2]UserID{first, second},
		CreatedAt:    at,
		UpdatedAt:    at,
		IsActive:     true,
	}
}

func (c Conversation) HasParticipant(user UserID) bool {
	return c.Participants[0] == user || c.Participants[1] == user
}

// Peer returns the other participant of the conversation.
func (c Conversation) Peer(user UserID) (UserID, bool) {
	switch user {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	}
	return "", false
}
