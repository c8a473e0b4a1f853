package workers

import (
	"context"
	"log/slog"
	"skill-chat/contract"
	"skill-chat/domain/event"
	"time"
)

// NotificationWorker drains the delivery outbox into the notification
// bridge, off the send path. The queue outlives restarts of the worker.
type NotificationWorker struct {
	log         *slog.Logger
	deliveries  chan event.MessageDelivery
	sink        contract.DeliverySink
	sinkTimeout time.Duration
}

func NewNotificationWorker(log *slog.Logger, sink contract.DeliverySink, bufferSize int, sinkTimeout time.Duration) *NotificationWorker {
	return &NotificationWorker{
		log:         log,
		deliveries:  make(chan event.MessageDelivery, bufferSize),
		sink:        sink,
		sinkTimeout: sinkTimeout,
	}
}

// Offer never blocks. It reports false when the queue is full.
func (w *NotificationWorker) Offer(delivery event.MessageDelivery) bool {
	select {
	case w.deliveries <- delivery:
		return true
	default:
		return false
	}
}

func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping notification worker", "pending", len(w.deliveries))
			return nil
		case delivery := <-w.deliveries:
			w.consume(ctx, delivery)
		}
	}
}

// consume bounds each delivery so a slow scheduler cannot stall the queue.
func (w *NotificationWorker) consume(ctx context.Context, delivery event.MessageDelivery) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := w.sink.Consume(sinkCtx, delivery); err != nil {
		w.log.Warn("Notification delivery failed",
			"conversation_id", delivery.Message.ConversationID,
			"message_id", delivery.Message.ID,
			"error", err)
	}
}

func (w *NotificationWorker) Backlog() (length, capacity int) {
	return len(w.deliveries), cap(w.deliveries)
}
