package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHistoryClient_Latest_Retries_Server_Errors(t *testing.T) {
	req := require.New(t)
	msg := domain.Message{ID: uuid.New(), ConversationID: "alice_bob", SenderID: "alice", Content: "hi",
		Type: domain.MessageTypeText, CreatedAt: time.Now().UTC()}

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/conversations/alice_bob/messages", r.URL.Path)
		req.Equal("5", r.URL.Query().Get("pageSize"))
		req.Equal("Bearer token", r.Header.Get("Authorization"))
		// Given the first call hits a transient failure
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(historyPage{Messages: event.FromMessages([]domain.Message{msg})})
	}))
	defer server.Close()

	history := NewHistoryClient(server.URL, "token", 5*time.Second)
	messages, err := history.Latest(context.Background(), "alice_bob", 5)

	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(msg.ID, messages[0].ID)
	req.Equal(int32(2), calls.Load())
}

func TestHistoryClient_Latest_Does_Not_Retry_Refusals(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewHistoryClient(server.URL, "token", 5*time.Second).Latest(context.Background(), "alice_bob", 5)

	req.ErrorIs(err, errors.ErrNotParticipant)
	req.Equal(int32(1), calls.Load())
}
