// Package notification decides, for each delivered message, whether the
// recipient needs an out-of-band alert and hands it to the push transport.
package notification

import (
	"context"
	"log/slog"
	"skill-chat/contract"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"unicode/utf8"
)

const (
	DefaultPreviewLength = 50
	ellipsis             = "..."
)

var fixedBodies = map[domain.MessageType]string{
	domain.MessageTypeImage:    "sent an image",
	domain.MessageTypeFile:     "sent a file",
	domain.MessageTypeLocation: "shared a location",
}

// Bridge never fails the delivery: every problem is logged and swallowed.
type Bridge struct {
	inspector     contract.RoomInspector
	names         contract.DisplayNameResolver
	scheduler     contract.NotificationScheduler
	previewLength int
	log           *slog.Logger
}

func NewBridge(
	inspector contract.RoomInspector,
	names contract.DisplayNameResolver,
	scheduler contract.NotificationScheduler,
	previewLength int,
	log *slog.Logger,
) *Bridge {
	if previewLength <= 0 {
		previewLength = DefaultPreviewLength
	}
	return &Bridge{inspector: inspector, names: names, scheduler: scheduler, previewLength: previewLength, log: log}
}

// Consume suppresses the notification when the recipient is looking at the
// conversation, otherwise schedules one.
func (b *Bridge) Consume(ctx context.Context, delivery event.MessageDelivery) error {
	msg := delivery.Message
	if delivery.RecipientID == "" || delivery.RecipientID == msg.SenderID {
		return nil
	}
	if b.inspector.IsViewing(delivery.RecipientID, msg.ConversationID) {
		b.log.Debug("Notification suppressed, recipient is viewing",
			"conversation_id", msg.ConversationID, "user_id", delivery.RecipientID)
		return nil
	}

	notification := b.Build(ctx, delivery)
	if err := b.scheduler.Schedule(ctx, notification); err != nil {
		b.log.Warn("Notification scheduling failed",
			"conversation_id", msg.ConversationID, "message_id", msg.ID,
			"user_id", delivery.RecipientID, "error", err)
	}
	return nil
}

// Build assembles the notification, falling back to the sender id when no
// display name can be resolved.
func (b *Bridge) Build(ctx context.Context, delivery event.MessageDelivery) domain.Notification {
	msg := delivery.Message
	title := string(msg.SenderID)
	if b.names != nil {
		name, err := b.names.DisplayName(ctx, msg.SenderID)
		switch {
		case err != nil:
			b.log.Debug("Display name unavailable", "user_id", msg.SenderID, "error", err)
		case name != "":
			title = name
		}
	}

	body, fixed := fixedBodies[msg.Type]
	if !fixed {
		body = Preview(msg.Content, b.previewLength)
	}
	return domain.Notification{
		RecipientID: delivery.RecipientID,
		Title:       title,
		Body:        body,
		Data: map[string]string{
			"conversationId": string(msg.ConversationID),
			"messageId":      msg.ID.String(),
			"senderId":       string(msg.SenderID),
			"type":           string(msg.Type),
		},
	}
}

// Preview keeps the first limit characters of content and marks the cut.
func Preview(content string, limit int) string {
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	return string([]rune(content)[:limit]) + ellipsis
}
