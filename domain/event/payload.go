package event

import (
	"fmt"
	"skill-chat/domain"
	"skill-chat/errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

// Validate checks the struct tags of an inbound payload.
func Validate(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

type AttachmentPayload struct {
	URL      string `json:"url" validate:"required,url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty" validate:"gte=0"`
}

type MessagePayload struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversationId"`
	SenderID       string              `json:"senderId"`
	Content        string              `json:"content"`
	Type           string              `json:"type"`
	CreatedAt      time.Time           `json:"createdAt"`
	ReadBy         []string            `json:"readBy"`
	IsEdited       bool                `json:"isEdited"`
	EditedAt       *time.Time          `json:"editedAt,omitempty"`
	ReplyTo        *string             `json:"replyTo,omitempty"`
	Attachments    []AttachmentPayload `json:"attachments,omitempty"`
}

func FromMessage(m domain.Message) MessagePayload {
	p := MessagePayload{
		ID:             m.ID.String(),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		Content:        m.Content,
		Type:           string(m.Type),
		CreatedAt:      m.CreatedAt,
		ReadBy:         lo.Map(m.ReadBy, func(u domain.UserID, _ int) string { return string(u) }),
		IsEdited:       m.IsEdited,
		EditedAt:       m.EditedAt,
		Attachments:    FromAttachments(m.Attachments),
	}
	if m.ReplyTo != nil {
		p.ReplyTo = lo.ToPtr(m.ReplyTo.String())
	}
	return p
}

func FromMessages(messages []domain.Message) []MessagePayload {
	return lo.Map(messages, func(m domain.Message, _ int) MessagePayload { return FromMessage(m) })
}

// ToMessage converts a received payload back into a domain message.
func (p MessagePayload) ToMessage() (domain.Message, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: message id %q", errors.ErrInvalidPayload, p.ID)
	}
	replyTo, err := ParseOptionalID(p.ReplyTo)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             id,
		ConversationID: domain.ConversationID(p.ConversationID),
		SenderID:       domain.UserID(p.SenderID),
		Content:        p.Content,
		Type:           domain.MessageType(p.Type),
		CreatedAt:      p.CreatedAt,
		ReadBy:         lo.Map(p.ReadBy, func(u string, _ int) domain.UserID { return domain.UserID(u) }),
		IsEdited:       p.IsEdited,
		EditedAt:       p.EditedAt,
		ReplyTo:        replyTo,
		Attachments:    ToAttachments(p.Attachments),
	}, nil
}

func FromAttachments(attachments []domain.Attachment) []AttachmentPayload {
	if len(attachments) == 0 {
		return nil
	}
	return lo.Map(attachments, func(a domain.Attachment, _ int) AttachmentPayload {
		return AttachmentPayload{URL: a.URL, Name: a.Name, MimeType: a.MimeType, Size: a.Size}
	})
}

func ToAttachments(attachments []AttachmentPayload) []domain.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	return lo.Map(attachments, func(a AttachmentPayload, _ int) domain.Attachment {
		return domain.Attachment{URL: a.URL, Name: a.Name, MimeType: a.MimeType, Size: a.Size}
	})
}

// ParseOptionalID parses an optional message reference.
func ParseOptionalID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: message id %q", errors.ErrInvalidPayload, *s)
	}
	return &id, nil
}

type ConversationPayload struct {
	ID             string    `json:"id"`
	Participants   []string  `json:"participants"`
	LastMessageRef *string   `json:"lastMessageRef"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	IsActive       bool      `json:"isActive"`
}

func FromConversation(c domain.Conversation) ConversationPayload {
	p := ConversationPayload{
		ID:           string(c.ID),
		Participants: []string{string(c.Participants[0]), string(c.Participants[1])},
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		IsActive:     c.IsActive,
	}
	if c.LastMessageID != nil {
		p.LastMessageRef = lo.ToPtr(c.LastMessageID.String())
	}
	return p
}

// SendMessagePayload carries either an existing conversation id or the
// recipient, in which case the conversation is resolved lazily.
type SendMessagePayload struct {
	ConversationID string              `json:"conversationId,omitempty"`
	RecipientID    string              `json:"recipientId,omitempty"`
	Content        string              `json:"content"`
	Type           string              `json:"type,omitempty"`
	ReplyTo        *string             `json:"replyTo,omitempty"`
	Attachments    []AttachmentPayload `json:"attachments,omitempty" validate:"omitempty,dive"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type PresencePayload struct {
	UserID string    `json:"userId"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

type MessageDeletedPayload struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversationId"`
	LastMessageRef *string `json:"lastMessageRef"`
}

type MessagesReadPayload struct {
	ConversationID string   `json:"conversationId"`
	ReaderID       string   `json:"readerId"`
	MessageIDs     []string `json:"messageIds"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewErrorPayload(err error) ErrorPayload {
	return ErrorPayload{Kind: string(errors.KindOf(err)), Message: err.Error()}
}
