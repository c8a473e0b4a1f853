// Package domain contains core concepts of the messaging system.
// This file defines Message records and their validation rules.
package domain

import (
	"fmt"
	"skill-chat/domain/mimetypes"
	"skill-chat/errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeFile     MessageType = "file"
	MessageTypeLocation MessageType = "location"
)

// ParseMessageType defaults an empty type to text.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return MessageTypeText, nil
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeLocation:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidMessageType, s)
	}
}

// ResolveMessageType parses s. When s is empty and attachments are present the
// type is inferred from them: image when every attachment is an image, file otherwise.
func ResolveMessageType(s string, attachments []Attachment) (MessageType, error) {
	if strings.TrimSpace(s) != "" || len(attachments) == 0 {
		return ParseMessageType(s)
	}
	for _, a := range attachments {
		if !mimetypes.IsImage(a.MimeType) {
			return MessageTypeFile, nil
		}
	}
	return MessageTypeImage, nil
}

type Attachment struct {
	URL      string
	Name     string
	MimeType string
	Size     int64
}

// Message is a stored chat message. ConversationID and CreatedAt are assigned
// once by the store, ReadBy only grows and always contains SenderID.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Type           MessageType
	CreatedAt      time.Time
	ReadBy         []UserID
	IsEdited       bool
	EditedAt       *time.Time
	ReplyTo        *uuid.UUID
	Attachments    []Attachment
}

func (m Message) IsReadBy(user UserID) bool {
	return slices.Contains(m.ReadBy, user)
}

// ValidateContent enforces the 1..maxLength rune bound on message content.
func ValidateContent(content string, maxLength int) error {
	if strings.TrimSpace(content) == "" {
		return errors.ErrEmptyContent
	}
	if maxLength > 0 && utf8.RuneCountInString(content) > maxLength {
		return fmt.Errorf("%w: limit is %d characters", errors.ErrContentTooLong, maxLength)
	}
	return nil
}
