package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"skill-chat/contract"
	"skill-chat/domain"
	"skill-chat/errors"
	"time"
)

type IConversationService interface {
	Resolve(a, b domain.UserID) (domain.ConversationID, error)
	GetOrCreate(ctx context.Context, caller, a, b domain.UserID) (domain.Conversation, error)
	Get(ctx context.Context, caller domain.UserID, id domain.ConversationID) (domain.Conversation, error)
	ListForUser(ctx context.Context, user domain.UserID) ([]domain.Conversation, error)
}

// ConversationService resolves an unordered pair of users to its single
// conversation, creating it on first contact.
type ConversationService struct {
	repository contract.ConversationRepository
	ordering   domain.Ordering
	log        *slog.Logger
	now        func() time.Time
}

func NewConversationService(repository contract.ConversationRepository, ordering domain.Ordering, log *slog.Logger) *ConversationService {
	if ordering == nil {
		ordering = domain.LexicalOrdering
	}
	return &ConversationService{repository: repository, ordering: ordering, log: log, now: time.Now}
}

func (s *ConversationService) Resolve(a, b domain.UserID) (domain.ConversationID, error) {
	return domain.ConversationKey(a, b, s.ordering)
}

// GetOrCreate returns the conversation of a and b. The caller must be one of
// them. Losing a creation race is not an error: the winner's record is
// returned instead.
func (s *ConversationService) GetOrCreate(ctx context.Context, caller, a, b domain.UserID) (domain.Conversation, error) {
	first, second, err := domain.OrderPair(a, b, s.ordering)
	if err != nil {
		return domain.Conversation{}, err
	}
	caller = s.ordering.Canonical(caller)
	if caller != first && caller != second {
		return domain.Conversation{}, fmt.Errorf("%w: %s is not part of the pair", errors.ErrInvalidParticipants, caller)
	}
	id := domain.ConversationID(string(first) + domain.KeySeparator + string(second))

	conversation, err := s.repository.Get(ctx, id)
	if err == nil {
		return conversation, nil
	}
	if !stderrors.Is(err, errors.ErrConversationNotFound) {
		return domain.Conversation{}, err
	}

	conversation, err = s.repository.Create(ctx, domain.NewConversation(id, first, second, s.now()))
	switch {
	case err == nil:
		s.log.Info("Conversation started", "conversation_id", id, "user_id", caller)
		return conversation, nil
	case stderrors.Is(err, errors.ErrConversationExists):
		s.log.Debug("Conversation created concurrently, reusing it", "conversation_id", id)
		return s.repository.Get(ctx, id)
	default:
		return domain.Conversation{}, err
	}
}

// Get returns a conversation to one of its participants.
func (s *ConversationService) Get(ctx context.Context, caller domain.UserID, id domain.ConversationID) (domain.Conversation, error) {
	caller = s.ordering.Canonical(caller)
	conversation, err := s.repository.Get(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.HasParticipant(caller) {
		return domain.Conversation{}, fmt.Errorf("%w: %s", errors.ErrNotParticipant, caller)
	}
	return conversation, nil
}

func (s *ConversationService) ListForUser(ctx context.Context, user domain.UserID) ([]domain.Conversation, error) {
	return s.repository.ListForUser(ctx, s.ordering.Canonical(user))
}
