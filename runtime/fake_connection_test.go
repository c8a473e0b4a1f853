package runtime

import (
	"skill-chat/domain"
	"skill-chat/domain/event"
	"sync"

	"github.com/google/uuid"
)

// recorder is an in-memory connection capturing what it is sent.
type recorder struct {
	id   string
	user domain.UserID

	mu     sync.Mutex
	events []event.Envelope
	closed bool
}

func newRecorder(user domain.UserID) *recorder {
	return &recorder{id: uuid.NewString(), user: user}
}

func (r *recorder) ID() string            { return r.id }
func (r *recorder) UserID() domain.UserID { return r.user }

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) Send(env event.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	return nil
}

func (r *recorder) received(name event.Name) []event.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matching []event.Envelope
	for _, e := range r.events {
		if e.Event == name {
			matching = append(matching, e)
		}
	}
	return matching
}
