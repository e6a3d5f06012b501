package realtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Conn is the minimal transport surface a session needs. Satisfied by a
// gorilla websocket connection; tests substitute an in-memory fake.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens a Conn to the realtime endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) WriteJSON(v any) error { return c.ws.WriteJSON(v) }

func (c *wsConn) Close() error { return c.ws.Close() }

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, NewConnectionError(fmt.Sprintf("dial %s (status %d)", url, resp.StatusCode), err)
		}
		return nil, NewConnectionError("dial "+url, err)
	}
	return &wsConn{ws: ws}, nil
}
