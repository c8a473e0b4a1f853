package client

import (
	"context"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"sync"
)

// fakeSocket is the server side of a link held in memory.
type fakeSocket struct {
	inbound chan event.Envelope
	closed  chan struct{}
	once    sync.Once

	mu   sync.Mutex
	sent []event.Envelope
}

func newFakeSocket(acknowledge bool) *fakeSocket {
	s := &fakeSocket{inbound: make(chan event.Envelope, 16), closed: make(chan struct{})}
	if acknowledge {
		s.inbound <- event.Envelope{Event: event.Connected}
	}
	return s
}

func (s *fakeSocket) Send(env event.Envelope) error {
	select {
	case <-s.closed:
		return errors.ErrConnectionClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *fakeSocket) Receive() (event.Envelope, error) {
	select {
	case env := <-s.inbound:
		return env, nil
	case <-s.closed:
		return event.Envelope{}, errors.ErrConnectionClosed
	}
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) sentEvents(name event.Name) []event.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matching []event.Envelope
	for _, env := range s.sent {
		if env.Event == name {
			matching = append(matching, env)
		}
	}
	return matching
}

func (s *fakeSocket) joined() []domain.ConversationID {
	var rooms []domain.ConversationID
	for _, env := range s.sentEvents(event.JoinConversation) {
		rooms = append(rooms, domain.ConversationID(env.ConversationID))
	}
	return rooms
}

// lastMembership returns the last join or leave sent for the conversation.
func (s *fakeSocket) lastMembership(id domain.ConversationID) event.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last event.Name
	for _, env := range s.sent {
		if env.ConversationID != string(id) {
			continue
		}
		if env.Event == event.JoinConversation || env.Event == event.LeaveConversation {
			last = env.Event
		}
	}
	return last
}

type fakeDialer struct {
	mu       sync.Mutex
	failures int
	refuse   bool
	silent   bool
	dials    int
	sockets  []*fakeSocket
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.refuse {
		return nil, errors.ErrInvalidToken
	}
	if d.failures > 0 {
		d.failures--
		return nil, errors.ErrConnectionClosed
	}
	socket := newFakeSocket(!d.silent)
	d.sockets = append(d.sockets, socket)
	return socket, nil
}

func (d *fakeDialer) setFailures(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

func (d *fakeDialer) socketCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}
