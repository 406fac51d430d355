package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ErrAuthRejected marks a handshake refused for credential reasons. The
// channel must not retry on it; a fresh token is required first.
var ErrAuthRejected = errors.New("websocket handshake rejected: invalid credentials")

// Conn is one established websocket connection.
type Conn interface {
	// ReadMessage blocks for the next data frame.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Ping sends a keepalive control frame.
	Ping() error
	Close() error
}

// Dialer establishes websocket connections. The production implementation
// wraps gorilla; tests substitute MemoryDialer.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

const controlWriteTimeout = 10 * time.Second

type wsDialer struct {
	dialer *websocket.Dialer
}

// NewDialer returns the production websocket dialer.
func NewDialer() Dialer {
	return &wsDialer{dialer: websocket.DefaultDialer}
}

func (d *wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuthRejected
		}
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteTimeout))
}

func (c *wsConn) Close() error {
	deadline := time.Now().Add(controlWriteTimeout)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}
