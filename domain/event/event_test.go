package event

import (
	"encoding/json"
	"testing"

	"skill-chat/domain"
	"skill-chat/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNew_Then_Decode(t *testing.T) {
	req := require.New(t)

	// Given a typing event
	env, err := New(UserTyping, "alice_bob", TypingPayload{ConversationID: "alice_bob", UserID: "alice", IsTyping: true})
	req.NoError(err)

	// When it crosses the wire
	raw, err := json.Marshal(env.WithRef("r-1"))
	req.NoError(err)
	var received Envelope
	req.NoError(json.Unmarshal(raw, &received))

	// Then name, ref and data survive
	req.Equal(UserTyping, received.Event)
	req.Equal("alice_bob", received.ConversationID)
	req.Equal("r-1", received.Ref)
	var payload TypingPayload
	req.NoError(received.Decode(&payload))
	req.True(payload.IsTyping)
}

func TestNew_Without_Data(t *testing.T) {
	req := require.New(t)
	env, err := New(JoinConversation, "alice_bob", nil)
	req.NoError(err)
	req.Empty(env.Data)

	var payload TypingPayload
	req.ErrorIs(env.Decode(&payload), errors.ErrInvalidPayload)
}

func TestDecode_Malformed(t *testing.T) {
	req := require.New(t)
	env := Envelope{Event: SendMessage, Data: json.RawMessage(`{"content": 12}`)}
	var payload SendMessagePayload
	req.ErrorIs(env.Decode(&payload), errors.ErrInvalidPayload)
}

func TestValidate_Attachments(t *testing.T) {
	req := require.New(t)

	valid := SendMessagePayload{Content: "see attached", Attachments: []AttachmentPayload{{URL: "https://cdn.example/a.png", Size: 12}}}
	req.NoError(Validate(valid))

	missingURL := SendMessagePayload{Content: "see attached", Attachments: []AttachmentPayload{{Name: "a.png"}}}
	req.ErrorIs(Validate(missingURL), errors.ErrInvalidPayload)

	negativeSize := SendMessagePayload{Content: "x", Attachments: []AttachmentPayload{{URL: "https://cdn.example/a", Size: -1}}}
	req.ErrorIs(Validate(negativeSize), errors.ErrInvalidPayload)
}

func TestMessagePayload_ToMessage(t *testing.T) {
	req := require.New(t)
	reply := uuid.New()
	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: "alice_bob",
		SenderID:       "alice",
		Content:        "hi",
		Type:           domain.MessageTypeText,
		ReadBy:         []domain.UserID{"alice"},
		ReplyTo:        &reply,
	}

	got, err := FromMessage(message).ToMessage()
	req.NoError(err)
	req.Equal(message.ID, got.ID)
	req.Equal(message.ReadBy, got.ReadBy)
	req.Equal(reply, *got.ReplyTo)

	_, err = MessagePayload{ID: "nope"}.ToMessage()
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestParseOptionalID(t *testing.T) {
	req := require.New(t)
	id, err := ParseOptionalID(nil)
	req.NoError(err)
	req.Nil(id)

	empty := ""
	id, err = ParseOptionalID(&empty)
	req.NoError(err)
	req.Nil(id)

	bad := "42"
	_, err = ParseOptionalID(&bad)
	req.ErrorIs(err, errors.ErrInvalidPayload)
}
