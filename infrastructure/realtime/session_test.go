package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"skill-chat/auth"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"skill-chat/repositories"
	"skill-chat/runtime"
	"skill-chat/services"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const (
	secret = "test-secret"
	issuer = "skill-chat-test"
)

type discardOutbox struct{}

func (discardOutbox) Offer(event.MessageDelivery) bool { return true }

type testServer struct {
	url           string
	conversations *services.ConversationService
	hub           *runtime.Hub
	handler       *Handler
}

func newTestServer(t *testing.T, config SessionConfig) testServer {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	conversationRepository := repositories.NewConversationRepository(db, log, 5)
	messageRepository := repositories.NewMessageRepository(db, log, repositories.MessageRepositoryConfig{
		MaxRetries: 5, DefaultPageSize: 50, MaxPageSize: 100,
	})
	hub := runtime.NewHub(runtime.NewRegistry(), conversationRepository, nil, log)
	conversations := services.NewConversationService(conversationRepository, domain.LexicalOrdering, log)
	messages := services.NewMessageService(conversations, messageRepository, hub, discardOutbox{}, nil,
		services.MessageServiceConfig{MaxContentLength: 1000}, log)

	handler := NewHandler(hub, messages, auth.NewJWTValidator(secret, issuer), config, log)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return testServer{
		url:           "ws" + strings.TrimPrefix(server.URL, "http"),
		conversations: conversations,
		hub:           hub,
		handler:       handler,
	}
}

func dial(t *testing.T, url string, user domain.UserID) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateToken(secret, issuer, user, time.Hour)
	require.NoError(t, err)
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	readUntil(t, ws, event.Connected)
	return ws
}

func send(t *testing.T, ws *websocket.Conn, name event.Name, conversationID domain.ConversationID, ref string, data any) {
	t.Helper()
	env, err := event.New(name, conversationID, data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env.WithRef(ref)))
}

// readUntil skips unrelated frames, such as presence updates.
func readUntil(t *testing.T, ws *websocket.Conn, name event.Name) event.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env event.Envelope
		require.NoError(t, ws.ReadJSON(&env))
		if env.Event == name {
			return env
		}
	}
}

func TestHandler_Rejects_Missing_Credential(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t, SessionConfig{})

	_, resp, err := websocket.DefaultDialer.Dial(server.url, nil)

	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_Accepts_Token_Query_Parameter(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t, SessionConfig{})
	token, err := auth.GenerateToken(secret, issuer, "alice", time.Hour)
	req.NoError(err)

	ws, _, err := websocket.DefaultDialer.Dial(server.url+"?token="+token, nil)
	req.NoError(err)
	defer ws.Close()

	connected := readUntil(t, ws, event.Connected)
	var payload event.PresencePayload
	req.NoError(connected.Decode(&payload))
	req.Equal("alice", payload.UserID)
}

func TestHandler_Send_Message_Reaches_Peer_And_Acknowledges_Sender(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t, SessionConfig{})
	alice := dial(t, server.url, "alice")
	bob := dial(t, server.url, "bob")

	// When alice writes to bob without any prior conversation
	send(t, alice, event.SendMessage, "", "r1", event.SendMessagePayload{RecipientID: "bob", Content: "hello"})

	// Then alice gets the acknowledgement carrying her ref
	ack := readUntil(t, alice, event.MessageSent)
	req.Equal("r1", ack.Ref)
	req.Equal("alice_bob", ack.ConversationID)

	// And bob receives it in his personal room
	received := readUntil(t, bob, event.NewMessage)
	var msg event.MessagePayload
	req.NoError(received.Decode(&msg))
	req.Equal("hello", msg.Content)
	req.Equal("alice", msg.SenderID)
}

func TestHandler_Join_Refused_For_Outsider(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t, SessionConfig{})
	_, err := server.conversations.GetOrCreate(context.Background(), "alice", "alice", "bob")
	req.NoError(err)
	dave := dial(t, server.url, "dave")

	// When dave tries to join alice and bob's room
	send(t, dave, event.JoinConversation, "alice_bob", "j1", nil)

	// Then he gets a permission error and the socket stays open
	failure := readUntil(t, dave, event.Error)
	var payload event.ErrorPayload
	req.NoError(failure.Decode(&payload))
	req.Equal(string(errors.KindPermissionDenied), payload.Kind)
	req.Equal("j1", failure.Ref)

	send(t, dave, event.LeaveConversation, "alice_bob", "l1", nil)
	req.Equal("l1", readUntil(t, dave, event.LeftConversation).Ref)
}

func TestHandler_Typing_Reaches_Room_Members(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t, SessionConfig{})
	_, err := server.conversations.GetOrCreate(context.Background(), "alice", "alice", "bob")
	req.NoError(err)
	alice := dial(t, server.url, "alice")
	bob := dial(t, server.url, "bob")

	// Given bob has the conversation open
	send(t, bob, event.JoinConversation, "alice_bob", "j1", nil)
	readUntil(t, bob, event.JoinedConversation)

	// When alice starts typing
	send(t, alice, event.TypingStart, "alice_bob", "", nil)

	// Then bob sees it
	typing := readUntil(t, bob, event.UserTyping)
	var payload event.TypingPayload
	req.NoError(typing.Decode(&payload))
	req.Equal("alice", payload.UserID)
	req.True(payload.IsTyping)
}

func TestHandler_Reports_Malformed_Events(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t, SessionConfig{})
	alice := dial(t, server.url, "alice")

	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	failure := readUntil(t, alice, event.Error)
	var payload event.ErrorPayload
	req.NoError(failure.Decode(&payload))
	req.Equal(string(errors.KindValidation), payload.Kind)

	send(t, alice, "dance", "", "x", nil)
	req.Equal("x", readUntil(t, alice, event.Error).Ref)

	send(t, alice, event.PresenceUpdate, "", "p", event.PresencePayload{Status: "offline"})
	req.Equal("p", readUntil(t, alice, event.Error).Ref)
}

func TestHandler_Rate_Limits_Inbound_Events(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t, SessionConfig{RateLimit: 0.001, RateBurst: 1})
	alice := dial(t, server.url, "alice")

	// The first event consumes the burst, the second is refused
	send(t, alice, event.LeaveConversation, "alice_bob", "first", nil)
	send(t, alice, event.LeaveConversation, "alice_bob", "second", nil)

	req.Equal("first", readUntil(t, alice, event.LeftConversation).Ref)
	failure := readUntil(t, alice, event.Error)
	var payload event.ErrorPayload
	req.NoError(failure.Decode(&payload))
	req.Equal(string(errors.KindRateLimited), payload.Kind)
	req.Equal("second", failure.Ref)
}

func TestHandler_Wait_Returns_Once_Sockets_Are_Closed(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t, SessionConfig{})
	alice := dial(t, server.url, "alice")
	dial(t, server.url, "bob")

	// Given live sessions, waiting alone does not return
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req.ErrorIs(server.handler.Wait(ctx), context.DeadlineExceeded)

	// When the hub closes every socket
	req.Equal(2, server.hub.CloseAll())

	// Then the client sees a normal close and every session unregisters
	req.NoError(alice.SetReadDeadline(time.Now().Add(3 * time.Second)))
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure))
			break
		}
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer waitCancel()
	req.NoError(server.handler.Wait(waitCtx))
	req.Empty(server.hub.PresentUsers())
}
