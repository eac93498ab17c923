package agent

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn abstracts the WebSocket connection the session dials, so tests can
// substitute an in-memory fake without opening a real socket. *websocket.Conn
// satisfies this directly.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn to url. DialWebSocket is the production Dialer; tests
// substitute a fake that never touches the network.
type Dialer func(ctx context.Context, url string) (Conn, error)

// DialWebSocket is the production Dialer, wrapping gorilla/websocket.
func DialWebSocket(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
