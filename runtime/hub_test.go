package runtime

import (
	"context"
	"errors"
	"log/slog"
	"skill-chat/domain"
	"skill-chat/domain/event"
	chaterrors "skill-chat/errors"
	"skill-chat/mocks"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// Conversations: alice_bob and alice_carol. Dave knows nobody.
func newTestHub(t *testing.T, mirror *mocks.MockPresenceMirror) *Hub {
	return newTestHubWithLogger(t, mirror, testLogger())
}

func newTestHubWithLogger(t *testing.T, mirror *mocks.MockPresenceMirror, log *slog.Logger) *Hub {
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockParticipantDirectory(ctrl)
	participants := map[domain.ConversationID][]domain.UserID{
		"alice_bob":   {"alice", "bob"},
		"alice_carol": {"alice", "carol"},
	}
	contacts := map[domain.UserID][]domain.UserID{
		"alice": {"bob", "carol"},
		"bob":   {"alice"},
		"carol": {"alice"},
	}
	directory.EXPECT().IsParticipant(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id domain.ConversationID, user domain.UserID) (bool, error) {
			for _, p := range participants[id] {
				if p == user {
					return true, nil
				}
			}
			return false, nil
		}).AnyTimes()
	directory.EXPECT().Contacts(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, user domain.UserID) ([]domain.UserID, error) {
			return contacts[user], nil
		}).AnyTimes()

	if mirror != nil {
		return NewHub(NewRegistry(), directory, mirror, log)
	}
	return NewHub(NewRegistry(), directory, nil, log)
}

func connect(hub *Hub, user domain.UserID) *recorder {
	conn := newRecorder(user)
	hub.Register(context.Background(), conn)
	return conn
}

func message(from domain.UserID, content string) domain.Message {
	return domain.Message{
		ID:             uuid.New(),
		ConversationID: "alice_bob",
		SenderID:       from,
		Content:        content,
		Type:           domain.MessageTypeText,
		CreatedAt:      time.Now().UTC(),
		ReadBy:         []domain.UserID{from},
	}
}

func TestHub_Join_Refuses_Non_Participants(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t, nil)
	alice := connect(hub, "alice")
	dave := connect(hub, "dave")

	// When dave tries to join a conversation whose key he guessed
	err := hub.JoinConversationRoom(ctx, dave, "alice_bob")

	// Then he is refused
	req.ErrorIs(err, chaterrors.ErrNotParticipant)
	req.NotContains(hub.registry.Rooms(dave.ID()), domain.ConversationRoom("alice_bob"))

	// And he never sees the conversation's traffic
	req.NoError(hub.JoinConversationRoom(ctx, alice, "alice_bob"))
	hub.PublishMessage(message("alice", "secret"), "bob", "")
	req.Empty(dave.received(event.NewMessage))
}

func TestHub_PublishMessage_Reaches_Recipient_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t, nil)
	alicePhone := connect(hub, "alice")
	aliceLaptop := connect(hub, "alice")
	bobViewing := connect(hub, "bob")
	bobElsewhere := connect(hub, "bob")
	req.NoError(hub.JoinConversationRoom(ctx, alicePhone, "alice_bob"))
	req.NoError(hub.JoinConversationRoom(ctx, aliceLaptop, "alice_bob"))
	req.NoError(hub.JoinConversationRoom(ctx, bobViewing, "alice_bob"))

	// When alice sends from her phone
	msg := message("alice", "hello")
	hub.PublishMessage(msg, "bob", alicePhone.ID())

	// Then bob's viewing device gets it once despite being in both rooms
	req.Len(bobViewing.received(event.NewMessage), 1)
	// And his other device gets it through the personal room
	req.Len(bobElsewhere.received(event.NewMessage), 1)
	// And alice's other device in the room stays in sync
	req.Len(aliceLaptop.received(event.NewMessage), 1)
	// But the sending connection is not echoed
	req.Empty(alicePhone.received(event.NewMessage))

	var payload event.MessagePayload
	req.NoError(bobElsewhere.received(event.NewMessage)[0].Decode(&payload))
	req.Equal("hello", payload.Content)
	req.Equal("alice", payload.SenderID)
	req.Equal(msg.ID.String(), payload.ID)
}

func TestHub_PublishTyping_Excludes_Originator(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t, nil)
	alicePhone := connect(hub, "alice")
	aliceLaptop := connect(hub, "alice")
	bob := connect(hub, "bob")
	for _, conn := range []*recorder{alicePhone, aliceLaptop, bob} {
		req.NoError(hub.JoinConversationRoom(ctx, conn, "alice_bob"))
	}

	req.NoError(hub.PublishTyping(ctx, "alice_bob", "alice", true))

	req.Empty(alicePhone.received(event.UserTyping))
	req.Empty(aliceLaptop.received(event.UserTyping))
	req.Len(bob.received(event.UserTyping), 1)

	var payload event.TypingPayload
	req.NoError(bob.received(event.UserTyping)[0].Decode(&payload))
	req.True(payload.IsTyping)

	// Outsiders cannot type into a conversation
	req.ErrorIs(hub.PublishTyping(ctx, "alice_bob", "dave", true), chaterrors.ErrNotParticipant)
}

func TestHub_Presence_Is_Scoped_To_Contacts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t, nil)
	bob := connect(hub, "bob")
	carol := connect(hub, "carol")
	dave := connect(hub, "dave")

	// When alice comes online
	alice := connect(hub, "alice")

	// Then only her contacts hear about it
	req.Len(bob.received(event.PresenceUpdate), 1)
	req.Len(carol.received(event.PresenceUpdate), 1)
	req.Empty(dave.received(event.PresenceUpdate))

	var payload event.PresencePayload
	req.NoError(bob.received(event.PresenceUpdate)[0].Decode(&payload))
	req.Equal("alice", payload.UserID)
	req.Equal(string(domain.StatusOnline), payload.Status)

	// When she steps away and then disconnects
	req.NoError(hub.SetStatus(ctx, "alice", domain.StatusAway))
	hub.Unregister(ctx, alice)

	// Then her contacts follow every change
	req.Len(bob.received(event.PresenceUpdate), 3)
	req.Equal(domain.StatusOffline, hub.Presence(ctx, "alice"))
	req.Empty(dave.received(event.PresenceUpdate))
}

func TestHub_Second_Connection_Does_Not_Repeat_Presence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t, nil)
	bob := connect(hub, "bob")
	phone := connect(hub, "alice")
	laptop := connect(hub, "alice")

	hub.Unregister(ctx, phone)

	// Only the first online and nothing for the closing phone
	req.Len(bob.received(event.PresenceUpdate), 1)
	req.Equal(domain.StatusOnline, hub.Presence(ctx, "alice"))

	hub.Unregister(ctx, laptop)
	req.Len(bob.received(event.PresenceUpdate), 2)
}

func TestHub_SetStatus_Validation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t, nil)

	req.ErrorIs(hub.SetStatus(ctx, "alice", domain.StatusAway), chaterrors.ErrNotConnected)
	connect(hub, "alice")
	req.ErrorIs(hub.SetStatus(ctx, "alice", domain.StatusOffline), chaterrors.ErrInvalidStatus)
}

func TestHub_Unregistered_Connection_Receives_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t, nil)
	bob := connect(hub, "bob")
	req.NoError(hub.JoinConversationRoom(ctx, bob, "alice_bob"))
	req.True(hub.IsViewing("bob", "alice_bob"))

	hub.Unregister(ctx, bob)

	hub.PublishMessage(message("alice", "anyone?"), "bob", "")
	req.Empty(bob.received(event.NewMessage))
	req.False(hub.IsViewing("bob", "alice_bob"))
}

func TestHub_Leave_Stops_Room_Traffic_But_Not_Personal(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t, nil)
	bob := connect(hub, "bob")
	req.NoError(hub.JoinConversationRoom(ctx, bob, "alice_bob"))

	hub.LeaveConversationRoom(bob, "alice_bob")
	hub.LeaveConversationRoom(bob, "alice_bob")

	req.False(hub.IsViewing("bob", "alice_bob"))
	hub.PublishMessage(message("alice", "ping"), "bob", "")
	req.Len(bob.received(event.NewMessage), 1)
}

func TestHub_Update_Events_Reach_Room_And_Peer(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, nil)
	bob := connect(hub, "bob")
	msg := message("alice", "edited")
	last := uuid.New()

	hub.PublishMessageUpdated(msg, "bob")
	hub.PublishMessageDeleted(msg, "bob", &last)
	hub.PublishMessagesRead("alice_bob", "alice", "bob", []uuid.UUID{msg.ID})

	req.Len(bob.received(event.MessageUpdated), 1)
	var deleted event.MessageDeletedPayload
	req.NoError(bob.received(event.MessageDeleted)[0].Decode(&deleted))
	req.Equal(last.String(), *deleted.LastMessageRef)
	var read event.MessagesReadPayload
	req.NoError(bob.received(event.MessagesRead)[0].Decode(&read))
	req.Equal([]string{msg.ID.String()}, read.MessageIDs)
}

func TestHub_Mirror_Failures_Are_Swallowed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	mirror := mocks.NewMockPresenceMirror(ctrl)
	hub := newTestHub(t, mirror)

	// Given a mirror that is down
	mirror.EXPECT().SetStatus(gomock.Any(), domain.UserID("alice"), domain.StatusOnline).Return(errors.New("redis down"))
	mirror.EXPECT().SetStatus(gomock.Any(), domain.UserID("bob"), domain.StatusOnline).Return(nil)

	// When users connect, nothing breaks
	connect(hub, "alice")
	bob := connect(hub, "bob")
	req.Equal(domain.StatusOnline, hub.Presence(ctx, "alice"))
	req.Len(bob.received(event.PresenceUpdate), 0)

	// And carol, connected to another node, is found through the mirror
	mirror.EXPECT().Status(gomock.Any(), domain.UserID("carol")).Return(domain.StatusAway, nil)
	req.Equal(domain.StatusAway, hub.Presence(ctx, "carol"))
}

// gatedHandler parks the first record carrying message until release is
// closed, so a test can interleave another call at that exact point.
type gatedHandler struct {
	slog.Handler
	message string
	entered chan struct{}
	release chan struct{}
	once    *sync.Once
}

func newGatedHandler(message string) *gatedHandler {
	return &gatedHandler{
		Handler: slog.DiscardHandler,
		message: message,
		entered: make(chan struct{}),
		release: make(chan struct{}),
		once:    &sync.Once{},
	}
}

func (h *gatedHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *gatedHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Message == h.message {
		h.once.Do(func() {
			close(h.entered)
			<-h.release
		})
	}
	return h.Handler.Handle(ctx, record)
}

func TestHub_Reconnect_During_Unregister_Stays_Online(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gate := newGatedHandler("Connection unregistered")
	hub := newTestHubWithLogger(t, nil, slog.New(gate))
	bob := connect(hub, "bob")
	old := connect(hub, "alice")

	// Given the old socket is half way through unregistering
	done := make(chan struct{})
	go func() {
		hub.Unregister(ctx, old)
		close(done)
	}()
	select {
	case <-gate.entered:
	case <-time.After(time.Second):
		t.Fatal("unregister never reached the gate")
	}

	// When the new socket registers before it finishes
	connect(hub, "alice")
	close(gate.release)
	<-done

	// Then alice is online with her live connection
	req.Equal(1, hub.registry.ConnectionCount("alice"))
	req.Equal(domain.StatusOnline, hub.Presence(ctx, "alice"))

	// And the last update her contact saw says so
	updates := bob.received(event.PresenceUpdate)
	req.NotEmpty(updates)
	var last event.PresencePayload
	req.NoError(updates[len(updates)-1].Decode(&last))
	req.Equal("alice", last.UserID)
	req.Equal(string(domain.StatusOnline), last.Status)
}

func TestHub_CloseAll_Closes_Every_Connection(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, nil)
	alice := connect(hub, "alice")
	bob := connect(hub, "bob")

	req.Equal(2, hub.CloseAll())

	req.True(alice.isClosed())
	req.True(bob.isClosed())
}
