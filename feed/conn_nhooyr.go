package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"nhooyr.io/websocket"
)

type nhooyrWebsocketConn struct {
	conn *websocket.Conn
}

// newNhooyrWebsocketConn dials u and returns the established connection.
func newNhooyrWebsocketConn(ctx context.Context, u url.URL, readLimit int64) (conn, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	c, _, err := websocket.Dial(ctxWithTimeout, u.String(), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Accept": []string{"*/*"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if readLimit > 0 {
		c.SetReadLimit(readLimit)
	}

	return &nhooyrWebsocketConn{conn: c}, nil
}

// close closes the websocket connection
func (c *nhooyrWebsocketConn) close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// ping sends a ping to the server
func (c *nhooyrWebsocketConn) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pongWait)
	defer cancel()

	return c.conn.Ping(pingCtx)
}

// readMessage blocks until it reads a single data message. Ping and pong
// frames are answered by the library and never surface here.
func (c *nhooyrWebsocketConn) readMessage(ctx context.Context) (messageType, []byte, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		if status := websocket.CloseStatus(err); status != -1 {
			return 0, nil, fmt.Errorf("%w: status %d", errPeerClosed, status)
		}
		return 0, nil, err
	}
	if typ == websocket.MessageText {
		return messageText, data, nil
	}
	return messageBinary, data, nil
}

// writeMessage writes a single binary message
func (c *nhooyrWebsocketConn) writeMessage(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	return c.conn.Write(writeCtx, websocket.MessageBinary, data)
}
