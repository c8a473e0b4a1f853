package repositories

import (
	stderrors "errors"
	"fmt"
	"skill-chat/domain"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var errCodec = stderrors.New("record codec")

type conversationRecord struct {
	ID            string    `cbor:"id"`
	Participants  [2]string `cbor:"participants"`
	LastMessageID string    `cbor:"last_message_id,omitempty"`
	CreatedAt     int64     `cbor:"created_at"`
	UpdatedAt     int64     `cbor:"updated_at"`
	IsActive      bool      `cbor:"is_active"`
}

type attachmentRecord struct {
	URL      string `cbor:"url"`
	Name     string `cbor:"name,omitempty"`
	MimeType string `cbor:"mime_type,omitempty"`
	Size     int64  `cbor:"size,omitempty"`
}

type messageRecord struct {
	ID             string             `cbor:"id"`
	ConversationID string             `cbor:"conversation_id"`
	SenderID       string             `cbor:"sender_id"`
	Content        string             `cbor:"content"`
	Type           string             `cbor:"type"`
	CreatedAt      int64              `cbor:"created_at"`
	ReadBy         []string           `cbor:"read_by"`
	IsEdited       bool               `cbor:"is_edited,omitempty"`
	EditedAt       int64              `cbor:"edited_at,omitempty"`
	ReplyTo        string             `cbor:"reply_to,omitempty"`
	Attachments    []attachmentRecord `cbor:"attachments,omitempty"`
}

func encodeConversation(c domain.Conversation) ([]byte, error) {
	record := conversationRecord{
		ID:           string(c.ID),
		Participants: [2]string{string(c.Participants[0]), string(c.Participants[1])},
		CreatedAt:    c.CreatedAt.UnixNano(),
		UpdatedAt:    c.UpdatedAt.UnixNano(),
		IsActive:     c.IsActive,
	}
	if c.LastMessageID != nil {
		record.LastMessageID = c.LastMessageID.String()
	}
	bytes, err := cbor.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCodec, err)
	}
	return bytes, nil
}

func decodeConversation(bytes []byte) (domain.Conversation, error) {
	var record conversationRecord
	if err := cbor.Unmarshal(bytes, &record); err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: %v", errCodec, err)
	}
	lastMessageID, err := parseOptionalUUID(record.LastMessageID)
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:            domain.ConversationID(record.ID),
		Participants:  [2]domain.UserID{domain.UserID(record.Participants[0]), domain.UserID(record.Participants[1])},
		LastMessageID: lastMessageID,
		CreatedAt:     fromNanos(record.CreatedAt),
		UpdatedAt:     fromNanos(record.UpdatedAt),
		IsActive:      record.IsActive,
	}, nil
}

func encodeMessage(m domain.Message) ([]byte, error) {
	record := messageRecord{
		ID:             m.ID.String(),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		Content:        m.Content,
		Type:           string(m.Type),
		CreatedAt:      m.CreatedAt.UnixNano(),
		ReadBy:         lo.Map(m.ReadBy, func(u domain.UserID, _ int) string { return string(u) }),
		IsEdited:       m.IsEdited,
		Attachments: lo.Map(m.Attachments, func(a domain.Attachment, _ int) attachmentRecord {
			return attachmentRecord{URL: a.URL, Name: a.Name, MimeType: a.MimeType, Size: a.Size}
		}),
	}
	if m.EditedAt != nil {
		record.EditedAt = m.EditedAt.UnixNano()
	}
	if m.ReplyTo != nil {
		record.ReplyTo = m.ReplyTo.String()
	}
	bytes, err := cbor.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCodec, err)
	}
	return bytes, nil
}

func decodeMessage(bytes []byte) (domain.Message, error) {
	var record messageRecord
	if err := cbor.Unmarshal(bytes, &record); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errCodec, err)
	}
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errCodec, err)
	}
	replyTo, err := parseOptionalUUID(record.ReplyTo)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:             id,
		ConversationID: domain.ConversationID(record.ConversationID),
		SenderID:       domain.UserID(record.SenderID),
		Content:        record.Content,
		Type:           domain.MessageType(record.Type),
		CreatedAt:      fromNanos(record.CreatedAt),
		ReadBy:         lo.Map(record.ReadBy, func(u string, _ int) domain.UserID { return domain.UserID(u) }),
		IsEdited:       record.IsEdited,
		ReplyTo:        replyTo,
	}
	if record.EditedAt != 0 {
		message.EditedAt = lo.ToPtr(fromNanos(record.EditedAt))
	}
	if len(record.Attachments) > 0 {
		message.Attachments = lo.Map(record.Attachments, func(a attachmentRecord, _ int) domain.Attachment {
			return domain.Attachment{URL: a.URL, Name: a.Name, MimeType: a.MimeType, Size: a.Size}
		})
	}
	return message, nil
}

func parseOptionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCodec, err)
	}
	return &id, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// truncateToNanos drops the monotonic reading so stored and returned
// timestamps compare equal.
func truncateToNanos(t time.Time) time.Time {
	return fromNanos(t.UnixNano())
}
