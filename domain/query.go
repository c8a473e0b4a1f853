package domain

import "github.com/google/uuid"

// MessageDraft is what a sender submits. The store assigns id and timestamps.
type MessageDraft struct {
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Type           MessageType
	ReplyTo        *uuid.UUID
	Attachments    []Attachment
}

// ListQuery pages through a conversation newest-first.
// Cursor is opaque and empty for the most recent page.
type ListQuery struct {
	ConversationID ConversationID
	Requester      UserID
	Cursor         string
	PageSize       int
}

// MessagePage holds one page in chronological order.
// NextCursor is empty when no older message remains.
type MessagePage struct {
	Messages   []Message
	NextCursor string
}
