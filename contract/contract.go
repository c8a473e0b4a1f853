//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"skill-chat/domain"
	"skill-chat/domain/event"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker
// for supervision logs.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one authenticated realtime session of a user.
// Send never blocks, a connection that cannot keep up is closed.
type Connection interface {
	ID() string
	UserID() domain.UserID
	Send(env event.Envelope) error
	Close() error
}

// ParticipantDirectory answers membership questions for the hub.
type ParticipantDirectory interface {
	IsParticipant(ctx context.Context, conversationID domain.ConversationID, user domain.UserID) (bool, error)
	Contacts(ctx context.Context, user domain.UserID) ([]domain.UserID, error)
}

// IdentityValidator resolves a bearer credential issued by the identity collaborator.
type IdentityValidator interface {
	Validate(ctx context.Context, token string) (domain.UserID, error)
}

type ConversationRepository interface {
	Get(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
	Create(ctx context.Context, conversation domain.Conversation) (domain.Conversation, error)
	ListForUser(ctx context.Context, user domain.UserID) ([]domain.Conversation, error)
	Deactivate(ctx context.Context, id domain.ConversationID) error
}

type MessageRepository interface {
	Append(ctx context.Context, draft domain.MessageDraft) (domain.Message, error)
	List(ctx context.Context, query domain.ListQuery) (domain.MessagePage, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Message, error)
	MarkRead(ctx context.Context, conversationID domain.ConversationID, reader domain.UserID, upTo *uuid.UUID) ([]uuid.UUID, error)
	Edit(ctx context.Context, id uuid.UUID, editor domain.UserID, content string) (domain.Message, error)
	Remove(ctx context.Context, id uuid.UUID, requester domain.UserID) (domain.Message, *uuid.UUID, error)
}

// Broadcaster fans stored changes out to live connections.
// peer is the participant that did not cause the change.
type Broadcaster interface {
	PublishMessage(msg domain.Message, peer domain.UserID, originConnectionID string)
	PublishMessageUpdated(msg domain.Message, peer domain.UserID)
	PublishMessageDeleted(msg domain.Message, peer domain.UserID, lastMessageRef *uuid.UUID)
	PublishMessagesRead(conversationID domain.ConversationID, reader, peer domain.UserID, ids []uuid.UUID)
}

// RoomInspector tells whether a user currently has the conversation open.
type RoomInspector interface {
	IsViewing(user domain.UserID, conversationID domain.ConversationID) bool
}

// Outbox accepts deliveries without blocking the caller.
type Outbox interface {
	Offer(delivery event.MessageDelivery) bool
}

// DeliverySink consumes deliveries drained from the outbox.
type DeliverySink interface {
	Consume(ctx context.Context, delivery event.MessageDelivery) error
}

type NotificationScheduler interface {
	Schedule(ctx context.Context, notification domain.Notification) error
}

type DisplayNameResolver interface {
	DisplayName(ctx context.Context, user domain.UserID) (string, error)
}

// PresenceMirror shares presence across server nodes.
type PresenceMirror interface {
	SetStatus(ctx context.Context, user domain.UserID, status domain.PresenceStatus) error
	Status(ctx context.Context, user domain.UserID) (domain.PresenceStatus, error)
}

// HistoryFetcher reads the latest messages over REST while the socket is down.
type HistoryFetcher interface {
	Latest(ctx context.Context, conversationID domain.ConversationID, pageSize int) ([]domain.Message, error)
}

type ContentFilter interface {
	Censor(content string) (string, []string)
}
