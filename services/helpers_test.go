package services

import (
	"log/slog"
	"skill-chat/repositories"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type stores struct {
	conversations *repositories.ConversationRepository
	messages      *repositories.MessageRepository
}

func newStores(t *testing.T) stores {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := testLogger()
	return stores{
		conversations: repositories.NewConversationRepository(db, log, 5),
		messages: repositories.NewMessageRepository(db, log, repositories.MessageRepositoryConfig{
			MaxRetries: 5, DefaultPageSize: 50, MaxPageSize: 100,
		}),
	}
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}
