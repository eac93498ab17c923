package session

import (
	"time"

	"github.com/gorilla/websocket"
)

// Close codes for the three session-ending reasons a device connection can
// be torn down for.
const (
	CloseAuthFailed = 4001
	CloseSuperseded = 4002
	CloseIdle       = 4003
)

// Conn abstracts the server-side WebSocket connection to one device, the
// same narrow seam pkg/agent uses client-side: *websocket.Conn satisfies
// it via the wsConn wrapper below, and tests substitute an in-memory fake
// with no real socket.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
	CloseWithStatus(code int, reason string) error
}

// wsConn adapts *websocket.Conn to Conn, adding the close-with-status-code
// helper gorilla/websocket exposes only as a raw control-frame write.
type wsConn struct {
	*websocket.Conn
}

// NewWSConn wraps an upgraded *websocket.Conn as a Conn.
func NewWSConn(c *websocket.Conn) Conn {
	return wsConn{Conn: c}
}

func (c wsConn) CloseWithStatus(code int, reason string) error {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.Conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return c.Conn.Close()
}
