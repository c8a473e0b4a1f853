package realtime

import (
	"encoding/json"
	"log/slog"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Connection wraps one authenticated websocket. Outbound frames go through a
// bounded buffer drained by a single write loop.
type Connection struct {
	id     string
	userID domain.UserID
	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
	log    *slog.Logger
}

func NewConnection(userID domain.UserID, ws *websocket.Conn, bufferSize int, log *slog.Logger) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, bufferSize),
		closed: make(chan struct{}),
		log:    log,
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) UserID() domain.UserID { return c.userID }

// Done is closed once the connection is closed, by either side.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// Start launches the write loop. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send never blocks. A client that lets its buffer fill up is disconnected.
func (c *Connection) Send(env event.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn("Send buffer full, closing connection", "connection_id", c.id, "user_id", c.userID)
		c.closeWith(websocket.ClosePolicyViolation, "send buffer full")
		return errors.ErrSlowConsumer
	}
}

func (c *Connection) Close() error {
	c.closeWith(websocket.CloseNormalClosure, "session closed")
	return nil
}

func (c *Connection) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.log.Debug("Write failed", "connection_id", c.id, "error", err)
				c.closeWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
