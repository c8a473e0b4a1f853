package repositories

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"skill-chat/domain"
	"skill-chat/errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type MessageRepositoryConfig struct {
	MaxRetries      int
	DefaultPageSize int
	MaxPageSize     int
}

// MessageRepository stores messages per conversation in BadgerDB.
// Every write of a conversation's messages runs under that conversation's
// key lock, so creation timestamps are strictly increasing.
type MessageRepository struct {
	db     *badger.DB
	log    *slog.Logger
	config MessageRepositoryConfig
	retry  retrier
	locks  *keyLock
	now    func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, config MessageRepositoryConfig) *MessageRepository {
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 50
	}
	if config.MaxPageSize < config.DefaultPageSize {
		config.MaxPageSize = config.DefaultPageSize
	}
	return &MessageRepository{
		db:     db,
		log:    log,
		config: config,
		retry:  newRetrier(config.MaxRetries, log),
		locks:  newKeyLock(),
		now:    time.Now,
	}
}

// Append persists a message and advances the conversation's lastMessageRef
// in the same transaction. The sender must be an active participant.
func (r *MessageRepository) Append(ctx context.Context, draft domain.MessageDraft) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	unlock := r.locks.lock(string(draft.ConversationID))
	defer unlock()

	var stored domain.Message
	err := r.retry.do(ctx, "append message", func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			conversation, err := getConversation(txn, draft.ConversationID)
			if err != nil {
				return err
			}
			if !conversation.HasParticipant(draft.SenderID) {
				return fmt.Errorf("%w: %s", errors.ErrNotParticipant, draft.SenderID)
			}
			if !conversation.IsActive {
				return fmt.Errorf("%w: %s", errors.ErrConversationInactive, conversation.ID)
			}
			createdAt, err := r.nextTimestamp(txn, conversation.ID)
			if err != nil {
				return err
			}
			stored = domain.Message{
				ID:             uuid.New(),
				ConversationID: conversation.ID,
				SenderID:       draft.SenderID,
				Content:        draft.Content,
				Type:           lo.CoalesceOrEmpty(draft.Type, domain.MessageTypeText),
				CreatedAt:      createdAt,
				ReadBy:         []domain.UserID{draft.SenderID},
				ReplyTo:        draft.ReplyTo,
				Attachments:    draft.Attachments,
			}
			key := messageKey(conversation.ID, stored.CreatedAt, stored.ID)
			if err = putMessage(txn, key, stored); err != nil {
				return err
			}
			if err = txn.Set(messageIDKey(stored.ID), key); err != nil {
				return err
			}
			conversation.LastMessageID = lo.ToPtr(stored.ID)
			conversation.UpdatedAt = stored.CreatedAt
			return putConversation(txn, conversation)
		})
	})
	if err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

// nextTimestamp returns now, pushed past the newest stored message when the
// clock has not advanced.
func (r *MessageRepository) nextTimestamp(txn *badger.Txn, id domain.ConversationID) (time.Time, error) {
	now := truncateToNanos(r.now())
	latest, ok, err := newestMessage(txn, id, nil)
	if err != nil || !ok {
		return now, err
	}
	if !now.After(latest.CreatedAt) {
		now = latest.CreatedAt.Add(time.Nanosecond)
	}
	return now, nil
}

// List returns one page of history in chronological order. The scan starts
// from the newest message, or just before the cursor when one is given.
func (r *MessageRepository) List(ctx context.Context, query domain.ListQuery) (domain.MessagePage, error) {
	if err := ctx.Err(); err != nil {
		return domain.MessagePage{}, err
	}
	pageSize := r.pageSize(query.PageSize)
	var cursor string
	if query.Cursor != "" {
		var err error
		if cursor, err = decodeCursor(query.Cursor); err != nil {
			return domain.MessagePage{}, err
		}
	}

	var page domain.MessagePage
	err := r.db.View(func(txn *badger.Txn) error {
		conversation, err := getConversation(txn, query.ConversationID)
		if err != nil {
			return err
		}
		if query.Requester != "" && !conversation.HasParticipant(query.Requester) {
			return fmt.Errorf("%w: %s", errors.ErrNotParticipant, query.Requester)
		}

		prefix := messagePrefixFor(conversation.ID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(slices.Clone(prefix), lo.CoalesceOrEmpty(cursor, newestSuffix)...)
		it.Seek(seekKey)
		// The cursor message itself was already returned. If it has been
		// removed since, the iterator already sits on the next older one.
		if cursor != "" && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		var oldestKey []byte
		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(page.Messages) == pageSize {
				page.NextCursor = encodeCursor(oldestKey, prefix)
				break
			}
			item := it.Item()
			oldestKey = item.KeyCopy(nil)
			var message domain.Message
			err = item.Value(func(value []byte) error {
				message, err = decodeMessage(value)
				return err
			})
			if err != nil {
				return err
			}
			page.Messages = append(page.Messages, message)
		}
		return nil
	})
	if err != nil {
		return domain.MessagePage{}, err
	}
	slices.Reverse(page.Messages)
	return page, nil
}

func (r *MessageRepository) pageSize(requested int) int {
	switch {
	case requested <= 0:
		return r.config.DefaultPageSize
	case requested > r.config.MaxPageSize:
		return r.config.MaxPageSize
	}
	return requested
}

func (r *MessageRepository) Get(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var message domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		message, _, err = getMessage(txn, id)
		return err
	})
	return message, err
}

// MarkRead adds reader to the readBy set of every message it did not author,
// optionally bounded to messages created up to and including upTo.
// Only newly marked ids are returned, so repeated calls return nothing.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID domain.ConversationID, reader domain.UserID, upTo *uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := r.locks.lock(string(conversationID))
	defer unlock()

	var marked []uuid.UUID
	err := r.retry.do(ctx, "mark read", func() error {
		marked = nil
		return r.db.Update(func(txn *badger.Txn) error {
			conversation, err := getConversation(txn, conversationID)
			if err != nil {
				return err
			}
			if !conversation.HasParticipant(reader) {
				return fmt.Errorf("%w: %s", errors.ErrNotParticipant, reader)
			}
			var bound []byte
			if upTo != nil {
				message, key, err := getMessage(txn, *upTo)
				if err != nil {
					return err
				}
				if message.ConversationID != conversationID {
					return fmt.Errorf("%w: %s", errors.ErrMessageNotFound, upTo)
				}
				bound = key
			}

			type update struct {
				key     []byte
				message domain.Message
			}
			var updates []update
			prefix := messagePrefixFor(conversationID)
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				if bound != nil && bytes.Compare(item.Key(), bound) > 0 {
					break
				}
				var message domain.Message
				err = item.Value(func(value []byte) error {
					message, err = decodeMessage(value)
					return err
				})
				if err != nil {
					it.Close()
					return err
				}
				if message.SenderID == reader || message.IsReadBy(reader) {
					continue
				}
				message.ReadBy = append(message.ReadBy, reader)
				updates = append(updates, update{key: item.KeyCopy(nil), message: message})
			}
			it.Close()

			for _, u := range updates {
				if err = putMessage(txn, u.key, u.message); err != nil {
					return err
				}
				marked = append(marked, u.message.ID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

// Edit replaces the content of a message. Only its sender may edit it.
func (r *MessageRepository) Edit(ctx context.Context, id uuid.UUID, editor domain.UserID, content string) (domain.Message, error) {
	conversationID, err := r.conversationOf(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	unlock := r.locks.lock(string(conversationID))
	defer unlock()

	var edited domain.Message
	err = r.retry.do(ctx, "edit message", func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			message, key, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if message.SenderID != editor {
				return fmt.Errorf("%w: %s", errors.ErrNotMessageOwner, id)
			}
			message.Content = content
			message.IsEdited = true
			message.EditedAt = lo.ToPtr(truncateToNanos(r.now()))
			if err = putMessage(txn, key, message); err != nil {
				return err
			}
			edited = message
			return nil
		})
	})
	if err != nil {
		return domain.Message{}, err
	}
	return edited, nil
}

// Remove deletes a message and points the conversation's lastMessageRef at
// the newest remaining message, nil when none is left.
func (r *MessageRepository) Remove(ctx context.Context, id uuid.UUID, requester domain.UserID) (domain.Message, *uuid.UUID, error) {
	conversationID, err := r.conversationOf(ctx, id)
	if err != nil {
		return domain.Message{}, nil, err
	}
	unlock := r.locks.lock(string(conversationID))
	defer unlock()

	var removed domain.Message
	var lastMessageRef *uuid.UUID
	err = r.retry.do(ctx, "remove message", func() error {
		return r.db.Update(func(txn *badger.Txn) error {
			message, key, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if message.SenderID != requester {
				return fmt.Errorf("%w: %s", errors.ErrNotMessageOwner, id)
			}
			if err = txn.Delete(key); err != nil {
				return err
			}
			if err = txn.Delete(messageIDKey(id)); err != nil {
				return err
			}
			conversation, err := getConversation(txn, message.ConversationID)
			if err != nil {
				return err
			}
			newest, ok, err := newestMessage(txn, conversation.ID, key)
			if err != nil {
				return err
			}
			conversation.LastMessageID = nil
			if ok {
				conversation.LastMessageID = lo.ToPtr(newest.ID)
			}
			if err = putConversation(txn, conversation); err != nil {
				return err
			}
			removed, lastMessageRef = message, conversation.LastMessageID
			return nil
		})
	})
	if err != nil {
		return domain.Message{}, nil, err
	}
	return removed, lastMessageRef, nil
}

func (r *MessageRepository) conversationOf(ctx context.Context, id uuid.UUID) (domain.ConversationID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var conversationID domain.ConversationID
	err := r.db.View(func(txn *badger.Txn) error {
		key, err := getMessageKey(txn, id)
		if err != nil {
			return err
		}
		var ok bool
		if conversationID, ok = conversationOfMessageKey(key); !ok {
			return fmt.Errorf("%w: malformed key %q", errCodec, key)
		}
		return nil
	})
	return conversationID, err
}

// newestMessage returns the latest message of the conversation, ignoring
// the key skip when set.
func newestMessage(txn *badger.Txn, id domain.ConversationID, skip []byte) (domain.Message, bool, error) {
	prefix := messagePrefixFor(id)
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	it := txn.NewIterator(options)
	defer it.Close()

	for it.Seek(append(slices.Clone(prefix), newestSuffix...)); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if skip != nil && bytes.Equal(item.Key(), skip) {
			continue
		}
		var message domain.Message
		err := item.Value(func(value []byte) error {
			var err error
			message, err = decodeMessage(value)
			return err
		})
		return message, err == nil, err
	}
	return domain.Message{}, false, nil
}

func getMessageKey(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageIDKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getMessage(txn *badger.Txn, id uuid.UUID) (domain.Message, []byte, error) {
	key, err := getMessageKey(txn, id)
	if err != nil {
		return domain.Message{}, nil, err
	}
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, nil, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, id)
	}
	if err != nil {
		return domain.Message{}, nil, err
	}
	var message domain.Message
	err = item.Value(func(value []byte) error {
		message, err = decodeMessage(value)
		return err
	})
	return message, key, err
}

func putMessage(txn *badger.Txn, key []byte, message domain.Message) error {
	bytes, err := encodeMessage(message)
	if err != nil {
		return err
	}
	return txn.Set(key, bytes)
}
