package repositories

import (
	"context"
	"log/slog"
	"skill-chat/domain"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// seedConversation creates the conversation between a and b.
func seedConversation(t *testing.T, repository *ConversationRepository, a, b domain.UserID) domain.Conversation {
	t.Helper()
	id, err := domain.ConversationKey(a, b, domain.LexicalOrdering)
	require.NoError(t, err)
	first, second, err := domain.OrderPair(a, b, domain.LexicalOrdering)
	require.NoError(t, err)
	conversation, err := repository.Create(context.Background(), domain.NewConversation(id, first, second, time.Now()))
	require.NoError(t, err)
	return conversation
}

func contents(messages []domain.Message) []string {
	var result []string
	for _, m := range messages {
		result = append(result, m.Content)
	}
	return result
}
