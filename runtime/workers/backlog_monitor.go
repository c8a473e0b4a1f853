package workers

import (
	"context"
	"log/slog"
	"time"
)

// Backlog exposes the fill level of a bounded queue.
type Backlog interface {
	Backlog() (length, capacity int)
}

type NamedBacklog struct {
	Name    string
	Backlog Backlog
}

// BacklogMonitor periodically samples queue lengths. Reading a channel length
// never blocks, so sampling does not interfere with producers or consumers.
// A queue filled above the warn ratio is reported as a warning.
type BacklogMonitor struct {
	log       *slog.Logger
	queues    []NamedBacklog
	interval  time.Duration
	warnRatio float64
}

func NewBacklogMonitor(log *slog.Logger, queues []NamedBacklog, interval time.Duration, warnRatio float64) *BacklogMonitor {
	return &BacklogMonitor{log: log, queues: queues, interval: interval, warnRatio: warnRatio}
}

func (w *BacklogMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping backlog monitor")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *BacklogMonitor) sample() {
	for _, q := range w.queues {
		length, capacity := q.Backlog.Backlog()
		if capacity > 0 && float64(length) >= w.warnRatio*float64(capacity) {
			w.log.Warn("Queue backlog high", "name", q.Name, "length", length, "capacity", capacity)
			continue
		}
		w.log.Debug("Queue backlog", "name", q.Name, "length", length, "capacity", capacity)
	}
}
