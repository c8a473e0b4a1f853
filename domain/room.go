package domain

import "strings"

// RoomID names a broadcast group on the hub: either a user's personal room
// or a conversation room.
type RoomID string

const (
	personalRoomPrefix     = "user:"
	conversationRoomPrefix = "conversation:"
)

func PersonalRoom(user UserID) RoomID {
	return RoomID(personalRoomPrefix + string(user))
}

func ConversationRoom(id ConversationID) RoomID {
	return RoomID(conversationRoomPrefix + string(id))
}

// ConversationOf returns the conversation a room is scoped to, if any.
func (r RoomID) ConversationOf() (ConversationID, bool) {
	if !strings.HasPrefix(string(r), conversationRoomPrefix) {
		return "", false
	}
	return ConversationID(strings.TrimPrefix(string(r), conversationRoomPrefix)), true
}
