package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"skill-chat/errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retrier re-runs a transaction on transient failures such as Badger
// write conflicts. Domain errors are returned untouched on first sight.
type retrier struct {
	maxRetries      int
	initialInterval time.Duration
	log             *slog.Logger
}

func newRetrier(maxRetries int, log *slog.Logger) retrier {
	return retrier{maxRetries: maxRetries, initialInterval: 5 * time.Millisecond, log: log}
}

func (r retrier) do(ctx context.Context, name string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		switch {
		case err == nil:
			return nil
		case !isTransient(err):
			return backoff.Permanent(err)
		default:
			r.log.Debug("Retrying store operation", "operation", name, "attempt", attempt, "error", err)
			return err
		}
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(r.maxRetries, 0))), ctx))

	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %s after %d attempts: %v", errors.ErrTransientStore, name, attempt, err)
	}
	return err
}

func isTransient(err error) bool {
	switch {
	case errors.IsPermanent(err),
		stderrors.Is(err, errCodec),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
