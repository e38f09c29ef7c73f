package feed

import (
	"context"
	"errors"
	"net/url"
	"sync"
)

var errClose = errors.New("closed")

type mockMessage struct {
	typ  messageType
	data []byte
	err  error
}

type mockConn struct {
	pingCh    chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	readCh    chan mockMessage
	writeCh   chan []byte
	writeErr  error
}

var _ conn = (*mockConn)(nil)

func newMockConn() *mockConn {
	return &mockConn{
		pingCh:  make(chan struct{}, 10),
		closeCh: make(chan struct{}),
		readCh:  make(chan mockMessage, 10),
		writeCh: make(chan []byte, 10),
	}
}

func (c *mockConn) close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	return nil
}

func (c *mockConn) ping(_ context.Context) error {
	select {
	case <-c.closeCh:
		return errClose
	default:
	}
	c.pingCh <- struct{}{}
	return nil
}

func (c *mockConn) readMessage(ctx context.Context) (messageType, []byte, error) {
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case m := <-c.readCh:
		return m.typ, m.data, m.err
	case <-c.closeCh:
		return 0, nil, errClose
	}
}

func (c *mockConn) writeMessage(_ context.Context, data []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	select {
	case <-c.closeCh:
		return errClose
	default:
	}
	c.writeCh <- data
	return nil
}

// sendBinary queues a binary frame for the client to read
func (c *mockConn) sendBinary(data []byte) {
	c.readCh <- mockMessage{typ: messageBinary, data: data}
}

// peerClose makes the next read report a close frame from the server
func (c *mockConn) peerClose() {
	c.readCh <- mockMessage{err: errPeerClosed}
}

func mockConnCreator(c *mockConn) connCreator {
	return func(_ context.Context, _ url.URL, _ int64) (conn, error) {
		return c, nil
	}
}
