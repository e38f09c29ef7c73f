package feed

import "errors"

var (
	// ErrAuth is returned when the authorize request fails or its response
	// does not carry a redirect URI. The session never opens.
	ErrAuth = errors.New("feed: authorization failed")
	// ErrConnection is returned when the websocket handshake or the subscribe
	// request fails.
	ErrConnection = errors.New("feed: connection failed")
	// ErrProtocol is returned when an inbound frame can not be decoded. The
	// frame has no side effects and the read loop terminates.
	ErrProtocol = errors.New("feed: undecodable frame")
	// ErrTransport is returned when reading from an established connection fails.
	ErrTransport = errors.New("feed: transport error")
	// ErrConnectCalledMultipleTimes is returned when Connect has been called multiple times on a single session
	ErrConnectCalledMultipleTimes = errors.New("feed: tried to call Connect multiple times")
	// ErrNotConnected is returned when Run is called before a successful Connect
	ErrNotConnected = errors.New("feed: session is not connected")
)

// IsRetriable reports whether a fresh session may succeed where the failed
// one did not.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTransport)
}
