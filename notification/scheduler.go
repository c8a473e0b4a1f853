package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"skill-chat/domain"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskNewMessage     = "notification:new-message"
	QueueNotifications = "notifications"
)

// TaskPayload is the JSON body of a notification task, consumed by the
// push transport.
type TaskPayload struct {
	RecipientID string            `json:"recipientId"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data"`
}

func NewTask(n domain.Notification) (*asynq.Task, error) {
	payload, err := json.Marshal(TaskPayload{
		RecipientID: string(n.RecipientID),
		Title:       n.Title,
		Body:        n.Body,
		Data:        n.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return asynq.NewTask(TaskNewMessage, payload), nil
}

func ParseTask(task *asynq.Task) (TaskPayload, error) {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TaskPayload{}, fmt.Errorf("decode notification: %w", err)
	}
	return payload, nil
}

// AsynqScheduler enqueues notifications on Redis for the push transport.
type AsynqScheduler struct {
	client    *asynq.Client
	maxRetry  int
	retention time.Duration
}

func NewAsynqScheduler(redisURL string, maxRetry int) (*AsynqScheduler, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	return &AsynqScheduler{client: asynq.NewClient(opt), maxRetry: maxRetry, retention: time.Hour}, nil
}

// Schedule enqueues at most one task per message and recipient.
func (s *AsynqScheduler) Schedule(ctx context.Context, n domain.Notification) error {
	task, err := NewTask(n)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(s.maxRetry),
		asynq.Retention(s.retention),
		asynq.TaskID(n.Data["messageId"]+":"+string(n.RecipientID)),
	)
	return err
}

func (s *AsynqScheduler) Close() error {
	return s.client.Close()
}

// LogScheduler only logs notifications. It stands in when no queue is configured.
type LogScheduler struct {
	log *slog.Logger
}

func NewLogScheduler(log *slog.Logger) *LogScheduler {
	return &LogScheduler{log: log}
}

func (s *LogScheduler) Schedule(_ context.Context, n domain.Notification) error {
	s.log.Info("Notification", "user_id", n.RecipientID, "title", n.Title, "body", n.Body,
		"conversation_id", n.Data["conversationId"])
	return nil
}

// StaticNames resolves display names from a fixed table.
type StaticNames map[domain.UserID]string

func (n StaticNames) DisplayName(_ context.Context, user domain.UserID) (string, error) {
	if name, ok := n[user]; ok {
		return name, nil
	}
	return "", fmt.Errorf("no display name for %s", user)
}
