package feed

import (
	"context"
	"errors"
	"net/url"
	"time"
)

type messageType int

const (
	messageBinary messageType = iota + 1
	messageText
)

func (t messageType) String() string {
	switch t {
	case messageBinary:
		return "binary"
	case messageText:
		return "text"
	default:
		return "unknown"
	}
}

// errPeerClosed is returned by readMessage when the server closed the
// connection with a close frame.
var errPeerClosed = errors.New("connection closed by peer")

// conn represents a websocket connection between the feed server and the client
type conn interface {
	// close closes the websocket connection
	close() error
	// ping sends a ping to the server and waits for the pong
	ping(ctx context.Context) error
	// readMessage blocks until it reads a single data message
	readMessage(ctx context.Context) (messageType, []byte, error)
	// writeMessage writes a single binary message
	writeMessage(ctx context.Context, data []byte) error
}

type connCreator func(ctx context.Context, u url.URL, readLimit int64) (conn, error)

var (
	dialTimeout = 5 * time.Second  // Time allowed to complete the websocket handshake
	writeWait   = 5 * time.Second  // Time allowed to write a message to the peer
	pongWait    = 5 * time.Second  // Time allowed to read the next pong message from the peer
	pingPeriod  = 10 * time.Second // Send pings to peer with this period
)
