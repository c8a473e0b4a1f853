// Package client holds the client side of the realtime link: a connection
// manager that authenticates, keeps focused rooms joined across reconnects
// and falls back to polling history when the socket cannot be restored.
package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"skill-chat/contract"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Socket is one established link to the server.
type Socket interface {
	Send(env event.Envelope) error
	// Receive blocks until a frame arrives or the socket fails.
	Receive() (event.Envelope, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, credential string) (Socket, error)
}

type Config struct {
	Credential      string
	ConnectTimeout  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
	PollInterval    time.Duration
	PollPageSize    int
	EventBuffer     int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.PollPageSize <= 0 {
		c.PollPageSize = 20
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

// Manager owns the socket of one signed-in user.
// Every event received, plus the lifecycle signals connected, disconnected
// and connect-error, is published on Events.
type Manager struct {
	dialer  Dialer
	history contract.HistoryFetcher
	config  Config
	log     *slog.Logger
	events  chan event.Envelope

	// held across a room decision and its join or leave, so they reach the
	// server in the order they were decided
	membership sync.Mutex

	mu         sync.Mutex
	state      State
	socket     Socket
	generation int
	rooms      map[domain.ConversationID]struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	stopPoll   context.CancelFunc
}

// NewManager builds an idle manager. history may be nil, degraded mode then
// only reports the failure.
func NewManager(dialer Dialer, history contract.HistoryFetcher, config Config, log *slog.Logger) *Manager {
	config = config.withDefaults()
	return &Manager{
		dialer:  dialer,
		history: history,
		config:  config,
		log:     log,
		events:  make(chan event.Envelope, config.EventBuffer),
		rooms:   make(map[domain.ConversationID]struct{}),
	}
}

func (m *Manager) Events() <-chan event.Envelope {
	return m.events
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Rooms returns the conversations currently focused.
func (m *Manager) Rooms() []domain.ConversationID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Keys(m.rooms)
}

// Start opens the first connection. A failed first attempt is returned and,
// unless the credential was refused, retried in the background like any
// later disconnect.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("manager already started (%s)", state)
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	err := m.connect(m.ctx)
	if err == nil {
		return nil
	}
	if errors.KindOf(err) == errors.KindUnauthenticated {
		m.terminate("credential refused")
		return err
	}
	m.lost(err)
	return err
}

// connect dials, waits for the server acknowledgement and re-joins the
// focused rooms.
func (m *Manager) connect(ctx context.Context) error {
	m.transition(StateIdle, StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()
	socket, err := m.dialer.Dial(dialCtx, m.config.Credential)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	m.transition(StateConnecting, StateAuthenticating)
	if err := m.awaitConnected(dialCtx, socket); err != nil {
		_ = socket.Close()
		return err
	}

	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		_ = socket.Close()
		return errors.ErrTerminated
	}
	m.state = StateConnected
	m.socket = socket
	m.generation++
	generation := m.generation
	rooms := lo.Keys(m.rooms)
	m.mu.Unlock()

	for _, id := range rooms {
		m.rejoin(socket, id)
	}
	m.emit(event.Envelope{Event: event.Connected})
	go m.readLoop(socket, generation)
	return nil
}

// rejoin sends the join only if the room is still focused, a Blur may have
// run since the snapshot was taken.
func (m *Manager) rejoin(socket Socket, id domain.ConversationID) {
	m.membership.Lock()
	defer m.membership.Unlock()

	m.mu.Lock()
	_, wanted := m.rooms[id]
	m.mu.Unlock()
	if !wanted {
		return
	}
	if err := m.send(socket, event.JoinConversation, id, nil); err != nil {
		m.log.Debug("Rejoin failed", "conversation_id", id, "error", err)
	}
}

// awaitConnected reads until the server acknowledges the session. Closing
// the socket on timeout unblocks the pending read.
func (m *Manager) awaitConnected(ctx context.Context, socket Socket) error {
	result := make(chan error, 1)
	go func() {
		for {
			env, err := socket.Receive()
			switch {
			case err != nil:
				result <- err
				return
			case env.Event == event.Connected:
				result <- nil
				return
			case env.Event == event.Error:
				var payload event.ErrorPayload
				_ = env.Decode(&payload)
				result <- fmt.Errorf("%w: %s", errors.ErrUnauthenticated, payload.Message)
				return
			}
		}
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		_ = socket.Close()
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.ErrHandshakeTimeout
		}
		return ctx.Err()
	}
}

func (m *Manager) readLoop(socket Socket, generation int) {
	for {
		env, err := socket.Receive()
		if err != nil {
			m.mu.Lock()
			current := m.generation == generation && m.state == StateConnected
			m.mu.Unlock()
			if current {
				m.lost(err)
			}
			return
		}
		m.emit(env)
	}
}

// lost handles an unexpected disconnect and starts the reconnection loop.
func (m *Manager) lost(cause error) {
	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.socket = nil
	ctx := m.ctx
	m.mu.Unlock()

	m.log.Info("Connection lost", "error", cause)
	m.emit(event.Envelope{Event: event.Disconnected})
	go m.reconnect(ctx)
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.config.InitialInterval
	b.MaxInterval = m.config.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// reconnect waits InitialInterval * 2^n before attempt n. Each disconnect
// starts a fresh loop so a success resets the counter.
func (m *Manager) reconnect(ctx context.Context) {
	b := m.newBackOff()
	var err error
	for attempt := 1; attempt <= m.config.MaxAttempts; attempt++ {
		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if !m.transition(StateDisconnected, StateReconnecting) {
			// terminated meanwhile
			return
		}
		m.log.Debug("Reconnecting", "attempt", attempt)
		if err = m.connect(ctx); err == nil {
			m.log.Info("Reconnected", "attempt", attempt)
			return
		}
		if errors.KindOf(err) == errors.KindUnauthenticated {
			m.terminate("credential refused")
			return
		}
		m.transition(StateReconnecting, StateDisconnected)
	}
	m.degrade(err)
}

// degrade surfaces the failure and polls the focused rooms until Reconnect
// or termination.
func (m *Manager) degrade(cause error) {
	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		return
	}
	m.state = StateDegraded
	pollCtx, stop := context.WithCancel(m.ctx)
	m.stopPoll = stop
	m.mu.Unlock()

	m.log.Warn("Reconnection attempts exhausted, polling history", "error", cause)
	env, err := event.New(event.ConnectError, "", event.NewErrorPayload(
		fmt.Errorf("%w: %v", errors.ErrReconnectExhausted, cause)))
	if err == nil {
		m.emit(env)
	}
	if m.history != nil {
		go m.poll(pollCtx)
	}
}

// poll emits each polled message once per degraded period.
func (m *Manager) poll(ctx context.Context) {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()
	seen := make(map[uuid.UUID]struct{})
	for {
		m.pollOnce(ctx, seen)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context, seen map[uuid.UUID]struct{}) {
	for _, id := range m.Rooms() {
		messages, err := m.history.Latest(ctx, id, m.config.PollPageSize)
		if err != nil {
			m.log.Debug("History poll failed", "conversation_id", id, "error", err)
			continue
		}
		for _, msg := range messages {
			if _, ok := seen[msg.ID]; ok {
				continue
			}
			env, err := event.New(event.NewMessage, id, event.FromMessage(msg))
			if err != nil {
				continue
			}
			seen[msg.ID] = struct{}{}
			m.emit(env)
		}
	}
}

// Reconnect leaves degraded mode with a single immediate attempt. On
// failure the manager stays degraded and keeps polling.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		return errors.ErrTerminated
	}
	if m.state != StateDegraded {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("cannot reconnect while %s", state)
	}
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
	m.state = StateReconnecting
	m.mu.Unlock()

	if err := m.connect(ctx); err != nil {
		m.degrade(err)
		return err
	}
	return nil
}

// Focus joins the conversation room. Focusing a room twice sends one join.
func (m *Manager) Focus(id domain.ConversationID) error {
	m.membership.Lock()
	defer m.membership.Unlock()

	m.mu.Lock()
	if _, ok := m.rooms[id]; ok {
		m.mu.Unlock()
		return nil
	}
	m.rooms[id] = struct{}{}
	socket := m.connectedSocket()
	m.mu.Unlock()

	if socket == nil {
		// joined on the next connection
		return nil
	}
	return m.send(socket, event.JoinConversation, id, nil)
}

func (m *Manager) Blur(id domain.ConversationID) error {
	m.membership.Lock()
	defer m.membership.Unlock()

	m.mu.Lock()
	if _, ok := m.rooms[id]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.rooms, id)
	socket := m.connectedSocket()
	m.mu.Unlock()

	if socket == nil {
		return nil
	}
	return m.send(socket, event.LeaveConversation, id, nil)
}

// SendMessage returns the ref the server echoes on message-sent.
func (m *Manager) SendMessage(payload event.SendMessagePayload) (string, error) {
	socket, err := m.requireConnected()
	if err != nil {
		return "", err
	}
	env, err := event.New(event.SendMessage, domain.ConversationID(payload.ConversationID), payload)
	if err != nil {
		return "", err
	}
	ref := uuid.NewString()
	return ref, socket.Send(env.WithRef(ref))
}

func (m *Manager) SendTyping(id domain.ConversationID, typing bool) error {
	socket, err := m.requireConnected()
	if err != nil {
		return err
	}
	name := event.TypingStop
	if typing {
		name = event.TypingStart
	}
	return m.send(socket, name, id, nil)
}

// SetAway toggles between away and online.
func (m *Manager) SetAway(away bool) error {
	socket, err := m.requireConnected()
	if err != nil {
		return err
	}
	status := domain.StatusOnline
	if away {
		status = domain.StatusAway
	}
	return m.send(socket, event.PresenceUpdate, "", event.PresencePayload{Status: string(status), At: time.Now().UTC()})
}

// Logout ends the session for good.
func (m *Manager) Logout() {
	m.terminate("logout")
}

// Background ends the session when the app leaves the foreground. A new
// manager is started on return.
func (m *Manager) Background() {
	m.terminate("background")
}

func (m *Manager) terminate(reason string) {
	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		return
	}
	m.state = StateTerminated
	socket := m.socket
	m.socket = nil
	m.rooms = make(map[domain.ConversationID]struct{})
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
	cancel := m.cancel
	m.mu.Unlock()

	if socket != nil {
		_ = socket.Close()
	}
	if cancel != nil {
		cancel()
	}
	m.log.Info("Connection terminated", "reason", reason)
}

func (m *Manager) requireConnected() (Socket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if socket := m.connectedSocket(); socket != nil {
		return socket, nil
	}
	if m.state == StateTerminated {
		return nil, errors.ErrTerminated
	}
	return nil, errors.ErrNotConnected
}

// connectedSocket must be called with mu held.
func (m *Manager) connectedSocket() Socket {
	if m.state != StateConnected {
		return nil
	}
	return m.socket
}

func (m *Manager) send(socket Socket, name event.Name, id domain.ConversationID, data any) error {
	env, err := event.New(name, id, data)
	if err != nil {
		return err
	}
	return socket.Send(env)
}

func (m *Manager) transition(from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return false
	}
	m.state = to
	return true
}

// emit blocks while the buffer is full, unless the manager is shut down.
func (m *Manager) emit(env event.Envelope) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		return
	}
	select {
	case m.events <- env:
	case <-ctx.Done():
	}
}
