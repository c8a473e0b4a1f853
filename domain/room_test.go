package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoom_ConversationOf(t *testing.T) {
	req := require.New(t)

	convRoom := ConversationRoom("alice_bob")
	id, ok := convRoom.ConversationOf()
	req.True(ok)
	req.Equal(ConversationID("alice_bob"), id)

	_, ok = PersonalRoom("alice").ConversationOf()
	req.False(ok)
	req.Equal(RoomID("user:alice"), PersonalRoom("alice"))
}
