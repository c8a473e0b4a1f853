// Package projection builds the local timeline of one conversation from
// live events and history pages.
// Handles ordering and deduplication by message id.
// Does not emit events or interact with UI directly.
package projection

import (
	"skill-chat/domain"
	"skill-chat/domain/event"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Timeline holds the messages of one conversation, oldest first.
// A message seen live and again in a history page is kept once.
type Timeline struct {
	ConversationID domain.ConversationID

	mu       sync.Mutex
	messages map[uuid.UUID]domain.Message
	removed  map[uuid.UUID]struct{}
}

func NewTimeline(conversationID domain.ConversationID) *Timeline {
	return &Timeline{
		ConversationID: conversationID,
		messages:       make(map[uuid.UUID]domain.Message),
		removed:        make(map[uuid.UUID]struct{}),
	}
}

// Consume applies a realtime event. Events of other conversations and
// events the timeline does not track are ignored.
func (t *Timeline) Consume(env event.Envelope) error {
	if env.ConversationID != "" && domain.ConversationID(env.ConversationID) != t.ConversationID {
		return nil
	}
	switch env.Event {
	case event.NewMessage, event.MessageSent, event.MessageUpdated:
		var payload event.MessagePayload
		if err := env.Decode(&payload); err != nil {
			return err
		}
		msg, err := payload.ToMessage()
		if err != nil {
			return err
		}
		t.Merge(msg)
	case event.MessageDeleted:
		var payload event.MessageDeletedPayload
		if err := env.Decode(&payload); err != nil {
			return err
		}
		id, err := uuid.Parse(payload.ID)
		if err != nil {
			return err
		}
		t.remove(id)
	case event.MessagesRead:
		var payload event.MessagesReadPayload
		if err := env.Decode(&payload); err != nil {
			return err
		}
		t.markRead(domain.UserID(payload.ReaderID), payload.MessageIDs)
	}
	return nil
}

// Merge inserts or replaces messages. An edited version wins over an
// unedited one, and read receipts are never lost.
func (t *Timeline) Merge(messages ...domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, msg := range messages {
		if msg.ConversationID != t.ConversationID {
			continue
		}
		if _, gone := t.removed[msg.ID]; gone {
			continue
		}
		current, ok := t.messages[msg.ID]
		if ok && current.IsEdited && !msg.IsEdited {
			current.ReadBy = lo.Union(current.ReadBy, msg.ReadBy)
			t.messages[msg.ID] = current
			continue
		}
		if ok {
			msg.ReadBy = lo.Union(current.ReadBy, msg.ReadBy)
		}
		t.messages[msg.ID] = msg
	}
}

func (t *Timeline) remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.messages, id)
	t.removed[id] = struct{}{}
}

func (t *Timeline) markRead(reader domain.UserID, ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if msg, ok := t.messages[id]; ok && !msg.IsReadBy(reader) {
			msg.ReadBy = append(slices.Clone(msg.ReadBy), reader)
			t.messages[id] = msg
		}
	}
}

// Messages returns the timeline ordered by creation time, ties broken by id.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	messages := lo.Values(t.messages)
	slices.SortFunc(messages, func(a, b domain.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return messages
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
