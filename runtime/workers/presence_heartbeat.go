package workers

import (
	"context"
	"log/slog"
	"skill-chat/contract"
	"skill-chat/domain"
	"time"
)

type presenceSource interface {
	PresentUsers() map[domain.UserID]domain.PresenceStatus
}

// PresenceHeartbeat periodically rewrites the status of locally connected
// users to the shared mirror so their entries do not expire.
type PresenceHeartbeat struct {
	log      *slog.Logger
	source   presenceSource
	mirror   contract.PresenceMirror
	interval time.Duration
}

func NewPresenceHeartbeat(log *slog.Logger, source presenceSource, mirror contract.PresenceMirror, interval time.Duration) *PresenceHeartbeat {
	return &PresenceHeartbeat{log: log, source: source, mirror: mirror, interval: interval}
}

func (w *PresenceHeartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *PresenceHeartbeat) refresh(ctx context.Context) {
	users := w.source.PresentUsers()
	failed := 0
	for user, status := range users {
		if err := w.mirror.SetStatus(ctx, user, status); err != nil {
			failed++
			w.log.Debug("Presence refresh failed", "user_id", user, "error", err)
		}
	}
	if failed > 0 {
		w.log.Warn("Presence refresh incomplete", "failed", failed, "total", len(users))
	}
}
