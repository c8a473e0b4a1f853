package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"skill-chat/domain"
	"skill-chat/errors"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type ConversationRepository struct {
	db    *badger.DB
	log   *slog.Logger
	retry retrier
}

func NewConversationRepository(db *badger.DB, log *slog.Logger, maxRetries int) *ConversationRepository {
	return &ConversationRepository{db: db, log: log, retry: newRetrier(maxRetries, log)}
}

func (r *ConversationRepository) Get(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	var conversation domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conversation, err = getConversation(txn, id)
		return err
	})
	return conversation, err
}

// Create inserts the conversation and both participant index entries in one
// transaction. An existing record, including one committed by a concurrent
// writer, yields ErrConversationExists.
func (r *ConversationRepository) Create(ctx context.Context, conversation domain.Conversation) (domain.Conversation, error) {
	conversation.CreatedAt = truncateToNanos(conversation.CreatedAt)
	conversation.UpdatedAt = truncateToNanos(conversation.UpdatedAt)
	bytes, err := encodeConversation(conversation)
	if err != nil {
		return domain.Conversation{}, err
	}
	err = r.retry.do(ctx, "create conversation", func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(conversationKey(conversation.ID))
			switch {
			case err == nil:
				return fmt.Errorf("%w: %s", errors.ErrConversationExists, conversation.ID)
			case !stderrors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err = txn.Set(conversationKey(conversation.ID), bytes); err != nil {
				return err
			}
			for _, participant := range conversation.Participants {
				if err = txn.Set(userIndexKey(participant, conversation.ID), nil); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	r.log.Debug("Conversation created", "conversation_id", conversation.ID)
	return conversation, nil
}

// ListForUser returns the conversations of user, most recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, user domain.UserID) ([]domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := userIndexPrefixFor(user)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []domain.ConversationID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, domain.ConversationID(it.Item().Key()[len(prefix):]))
		}
		for _, id := range ids {
			conversation, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(conversations, func(a, b domain.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return conversations, nil
}

// Deactivate soft-deletes the conversation. History stays readable.
func (r *ConversationRepository) Deactivate(ctx context.Context, id domain.ConversationID) error {
	return r.retry.do(ctx, "deactivate conversation", func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			conversation, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			if !conversation.IsActive {
				return nil
			}
			conversation.IsActive = false
			return putConversation(txn, conversation)
		})
	})
}

// IsParticipant implements the hub's capability check.
func (r *ConversationRepository) IsParticipant(ctx context.Context, id domain.ConversationID, user domain.UserID) (bool, error) {
	conversation, err := r.Get(ctx, id)
	switch {
	case stderrors.Is(err, errors.ErrConversationNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return conversation.HasParticipant(user), nil
}

// Contacts lists every user sharing at least one conversation with user.
func (r *ConversationRepository) Contacts(ctx context.Context, user domain.UserID) ([]domain.UserID, error) {
	conversations, err := r.ListForUser(ctx, user)
	if err != nil {
		return nil, err
	}
	peers := lo.FilterMap(conversations, func(c domain.Conversation, _ int) (domain.UserID, bool) {
		return c.Peer(user)
	})
	return lo.Uniq(peers), nil
}

func getConversation(txn *badger.Txn, id domain.ConversationID) (domain.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("%w: %s", errors.ErrConversationNotFound, id)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var conversation domain.Conversation
	err = item.Value(func(value []byte) error {
		conversation, err = decodeConversation(value)
		return err
	})
	return conversation, err
}

func putConversation(txn *badger.Txn, conversation domain.Conversation) error {
	bytes, err := encodeConversation(conversation)
	if err != nil {
		return err
	}
	return txn.Set(conversationKey(conversation.ID), bytes)
}
