package client

import (
	"context"
	"fmt"
	"net/http"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketDialer opens sockets on the server's /ws endpoint.
type WebsocketDialer struct {
	url    string
	dialer *websocket.Dialer
}

func NewWebsocketDialer(url string) *WebsocketDialer {
	return &WebsocketDialer{url: url, dialer: websocket.DefaultDialer}
}

func (d *WebsocketDialer) Dial(ctx context.Context, credential string) (Socket, error) {
	header := http.Header{"Authorization": []string{"Bearer " + credential}}
	ws, resp, err := d.dialer.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: server refused the credential", errors.ErrInvalidToken)
		}
		return nil, err
	}
	return &websocketSocket{ws: ws}, nil
}

// gorilla allows one concurrent writer, reads happen on the manager's
// read loop only.
type websocketSocket struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (s *websocketSocket) Send(env event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteJSON(env)
}

func (s *websocketSocket) Receive() (event.Envelope, error) {
	var env event.Envelope
	err := s.ws.ReadJSON(&env)
	return env, err
}

func (s *websocketSocket) Close() error {
	return s.ws.Close()
}
