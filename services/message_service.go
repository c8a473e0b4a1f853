package services

import (
	"context"
	"fmt"
	"log/slog"
	"skill-chat/contract"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"

	"github.com/google/uuid"
)

type IMessageService interface {
	Send(ctx context.Context, input SendInput) (domain.Message, error)
	List(ctx context.Context, query domain.ListQuery) (domain.MessagePage, error)
	MarkRead(ctx context.Context, conversationID domain.ConversationID, reader domain.UserID) ([]uuid.UUID, error)
	MarkReadUpTo(ctx context.Context, messageID uuid.UUID, reader domain.UserID) ([]uuid.UUID, error)
	Edit(ctx context.Context, messageID uuid.UUID, editor domain.UserID, content string) (domain.Message, error)
	Remove(ctx context.Context, messageID uuid.UUID, requester domain.UserID) error
}

// SendInput targets either an existing conversation or, when ConversationID
// is empty, the conversation with RecipientID which is created if needed.
// OriginConnectionID is the socket that sent it, if any.
type SendInput struct {
	SenderID           domain.UserID
	ConversationID     domain.ConversationID
	RecipientID        domain.UserID
	Content            string
	Type               domain.MessageType
	ReplyTo            *uuid.UUID
	Attachments        []domain.Attachment
	OriginConnectionID string
}

type MessageServiceConfig struct {
	MaxContentLength int
}

// MessageService persists first and publishes after, so that anything
// delivered live can already be paged from history.
type MessageService struct {
	conversations IConversationService
	messages      contract.MessageRepository
	broadcaster   contract.Broadcaster
	outbox        contract.Outbox
	filter        contract.ContentFilter
	config        MessageServiceConfig
	log           *slog.Logger
}

// NewMessageService wires the send pipeline. filter may be nil.
func NewMessageService(
	conversations IConversationService,
	messages contract.MessageRepository,
	broadcaster contract.Broadcaster,
	outbox contract.Outbox,
	filter contract.ContentFilter,
	config MessageServiceConfig,
	log *slog.Logger,
) *MessageService {
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		broadcaster:   broadcaster,
		outbox:        outbox,
		filter:        filter,
		config:        config,
		log:           log,
	}
}

func (s *MessageService) Send(ctx context.Context, input SendInput) (domain.Message, error) {
	messageType, err := domain.ResolveMessageType(string(input.Type), input.Attachments)
	if err != nil {
		return domain.Message{}, err
	}
	content, err := s.prepareContent(input.Content)
	if err != nil {
		return domain.Message{}, err
	}

	var conversation domain.Conversation
	if input.ConversationID != "" {
		conversation, err = s.conversations.Get(ctx, input.SenderID, input.ConversationID)
	} else {
		conversation, err = s.conversations.GetOrCreate(ctx, input.SenderID, input.SenderID, input.RecipientID)
	}
	if err != nil {
		return domain.Message{}, err
	}

	message, err := s.messages.Append(ctx, domain.MessageDraft{
		ConversationID: conversation.ID,
		SenderID:       input.SenderID,
		Content:        content,
		Type:           messageType,
		ReplyTo:        input.ReplyTo,
		Attachments:    input.Attachments,
	})
	if err != nil {
		return domain.Message{}, err
	}

	peer, _ := conversation.Peer(input.SenderID)
	s.broadcaster.PublishMessage(message, peer, input.OriginConnectionID)
	if !s.outbox.Offer(event.MessageDelivery{Message: message, RecipientID: peer}) {
		s.log.Warn("Notification outbox full, delivery dropped",
			"conversation_id", message.ConversationID, "message_id", message.ID)
	}
	return message, nil
}

func (s *MessageService) List(ctx context.Context, query domain.ListQuery) (domain.MessagePage, error) {
	return s.messages.List(ctx, query)
}

// MarkRead marks every message of the conversation as read by reader.
func (s *MessageService) MarkRead(ctx context.Context, conversationID domain.ConversationID, reader domain.UserID) ([]uuid.UUID, error) {
	return s.markRead(ctx, conversationID, reader, nil)
}

// MarkReadUpTo marks the messages up to and including messageID.
func (s *MessageService) MarkReadUpTo(ctx context.Context, messageID uuid.UUID, reader domain.UserID) ([]uuid.UUID, error) {
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return s.markRead(ctx, message.ConversationID, reader, &messageID)
}

func (s *MessageService) markRead(ctx context.Context, conversationID domain.ConversationID, reader domain.UserID, upTo *uuid.UUID) ([]uuid.UUID, error) {
	conversation, err := s.conversations.Get(ctx, reader, conversationID)
	if err != nil {
		return nil, err
	}
	ids, err := s.messages.MarkRead(ctx, conversationID, reader, upTo)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		peer, _ := conversation.Peer(reader)
		s.broadcaster.PublishMessagesRead(conversationID, reader, peer, ids)
	}
	return ids, nil
}

func (s *MessageService) Edit(ctx context.Context, messageID uuid.UUID, editor domain.UserID, content string) (domain.Message, error) {
	content, err := s.prepareContent(content)
	if err != nil {
		return domain.Message{}, err
	}
	message, err := s.messages.Edit(ctx, messageID, editor, content)
	if err != nil {
		return domain.Message{}, err
	}
	peer, err := s.peerOf(ctx, message.ConversationID, editor)
	if err != nil {
		return domain.Message{}, err
	}
	s.broadcaster.PublishMessageUpdated(message, peer)
	return message, nil
}

func (s *MessageService) Remove(ctx context.Context, messageID uuid.UUID, requester domain.UserID) error {
	message, lastMessageRef, err := s.messages.Remove(ctx, messageID, requester)
	if err != nil {
		return err
	}
	peer, err := s.peerOf(ctx, message.ConversationID, requester)
	if err != nil {
		return err
	}
	s.broadcaster.PublishMessageDeleted(message, peer, lastMessageRef)
	return nil
}

func (s *MessageService) prepareContent(content string) (string, error) {
	if err := domain.ValidateContent(content, s.config.MaxContentLength); err != nil {
		return "", err
	}
	if s.filter == nil {
		return content, nil
	}
	censored, words := s.filter.Censor(content)
	if len(words) > 0 {
		s.log.Debug("Message content moderated", "words", len(words))
	}
	return censored, nil
}

func (s *MessageService) peerOf(ctx context.Context, conversationID domain.ConversationID, user domain.UserID) (domain.UserID, error) {
	conversation, err := s.conversations.Get(ctx, user, conversationID)
	if err != nil {
		return "", err
	}
	peer, ok := conversation.Peer(user)
	if !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrNotParticipant, user)
	}
	return peer, nil
}
