package repositories

import (
	"context"
	"skill-chat/errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestRetrier_Gives_Up_On_Persistent_Conflict(t *testing.T) {
	req := require.New(t)
	retry := newRetrier(2, testLogger())

	// Given an operation that always conflicts
	calls := 0
	err := retry.do(context.Background(), "conflicting", func() error {
		calls++
		return badger.ErrConflict
	})

	// Then it is attempted once plus the allowed retries
	req.Equal(3, calls)
	req.ErrorIs(err, errors.ErrTransientStore)
	req.Equal(errors.KindTransientStore, errors.KindOf(err))
}

func TestRetrier_Recovers_After_Conflict(t *testing.T) {
	req := require.New(t)
	retry := newRetrier(2, testLogger())

	calls := 0
	err := retry.do(context.Background(), "flaky", func() error {
		calls++
		if calls == 1 {
			return badger.ErrConflict
		}
		return nil
	})

	req.NoError(err)
	req.Equal(2, calls)
}

func TestRetrier_Does_Not_Retry_Domain_Errors(t *testing.T) {
	req := require.New(t)
	retry := newRetrier(5, testLogger())

	calls := 0
	err := retry.do(context.Background(), "forbidden", func() error {
		calls++
		return errors.ErrNotParticipant
	})

	req.Equal(1, calls)
	req.ErrorIs(err, errors.ErrNotParticipant)
}

func TestKeyLock_Releases_Entries(t *testing.T) {
	req := require.New(t)
	locks := newKeyLock()

	unlockA := locks.lock("a")
	unlockB := locks.lock("b")
	req.Equal(2, locks.size())

	unlockA()
	unlockB()
	req.Zero(locks.size())
}

func TestCursor_Round_Trip(t *testing.T) {
	req := require.New(t)
	prefix := messagePrefixFor("alice_bob")
	key := []byte("msg:alice_bob:1767323045000000000:6f1c2b4e-8a7d-4f0e-9b1a-2c3d4e5f6a7b")

	cursor := encodeCursor(key, prefix)
	suffix, err := decodeCursor(cursor)

	req.NoError(err)
	req.Equal(string(key[len(prefix):]), suffix)

	_, err = decodeCursor("bXNnOmZvbw")
	req.ErrorIs(err, errors.ErrInvalidCursor)
}
