package projection

import (
	"skill-chat/domain"
	"skill-chat/domain/event"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func message(sender domain.UserID, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             uuid.New(),
		ConversationID: "alice_bob",
		SenderID:       sender,
		Content:        content,
		Type:           domain.MessageTypeText,
		CreatedAt:      at,
		ReadBy:         []domain.UserID{sender},
	}
}

func envelope(t *testing.T, name event.Name, data any) event.Envelope {
	env, err := event.New(name, "alice_bob", data)
	require.NoError(t, err)
	return env
}

func TestTimeline_Orders_By_Creation_Regardless_Of_Arrival(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice_bob")
	now := time.Now().UTC()
	hi := message("alice", "hi", now)
	hello := message("bob", "hello", now.Add(time.Millisecond))

	// Given bob's answer arrives on the socket before alice's message
	req.NoError(timeline.Consume(envelope(t, event.NewMessage, event.FromMessage(hello))))
	req.NoError(timeline.Consume(envelope(t, event.MessageSent, event.FromMessage(hi))))

	// Then the timeline still reads in creation order
	messages := timeline.Messages()
	req.Len(messages, 2)
	req.Equal("hi", messages[0].Content)
	req.Equal("hello", messages[1].Content)
}

func TestTimeline_Deduplicates_Live_And_History(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice_bob")
	now := time.Now().UTC()
	first := message("alice", "first", now)
	second := message("alice", "second", now.Add(time.Second))

	req.NoError(timeline.Consume(envelope(t, event.NewMessage, event.FromMessage(second))))

	// When a history page containing the same message is merged
	timeline.Merge(first, second)

	req.Equal(2, timeline.Len())
}

func TestTimeline_Applies_Updates_Deletes_And_Reads(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice_bob")
	now := time.Now().UTC()
	first := message("alice", "first", now)
	second := message("alice", "second", now.Add(time.Second))
	timeline.Merge(first, second)

	// Edit
	edited := first
	edited.Content = "first!"
	edited.IsEdited = true
	req.NoError(timeline.Consume(envelope(t, event.MessageUpdated, event.FromMessage(edited))))

	// A stale history copy does not undo the edit
	timeline.Merge(first)
	req.Equal("first!", timeline.Messages()[0].Content)

	// Read receipt
	req.NoError(timeline.Consume(envelope(t, event.MessagesRead, event.MessagesReadPayload{
		ConversationID: "alice_bob", ReaderID: "bob", MessageIDs: []string{first.ID.String()},
	})))
	req.True(timeline.Messages()[0].IsReadBy("bob"))

	// Delete, and the removed message does not come back from history
	req.NoError(timeline.Consume(envelope(t, event.MessageDeleted, event.MessageDeletedPayload{
		ID: second.ID.String(), ConversationID: "alice_bob",
	})))
	timeline.Merge(second)
	req.Equal(1, timeline.Len())
}

func TestTimeline_Ignores_Other_Conversations(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice_carol")

	req.NoError(timeline.Consume(envelope(t, event.NewMessage, event.FromMessage(message("alice", "x", time.Now())))))
	req.NoError(timeline.Consume(event.Envelope{Event: event.UserTyping, ConversationID: "alice_carol"}))

	req.Zero(timeline.Len())
}
