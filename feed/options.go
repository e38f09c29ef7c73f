package feed

import (
	"net/http"
	"os"
	"time"

	"github.com/ltpalert/ltpalert/logging"
)

// DefaultAuthURL is the endpoint that hands out the websocket URI of the market data feed.
const DefaultAuthURL = "https://api.upstox.com/v2/feed/market-data-feed/authorize"

// Option is a configuration option for the Session
type Option interface {
	apply(*options)
}

type options struct {
	logger      logging.Logger
	authURL     string
	accessToken string
	httpClient  *http.Client
	authTimeout time.Duration
	pingPeriod  time.Duration
	readLimit   int64

	// for testing only
	connCreator connCreator
}

type funcOption struct {
	f func(*options)
}

func (fo *funcOption) apply(o *options) {
	fo.f(o)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithLogger configures the logger
func WithLogger(logger logging.Logger) Option {
	return newFuncOption(func(o *options) {
		o.logger = logger
	})
}

// WithAuthURL configures the authorize endpoint
func WithAuthURL(url string) Option {
	return newFuncOption(func(o *options) {
		o.authURL = url
	})
}

// WithAccessToken configures the bearer token sent to the authorize endpoint
func WithAccessToken(token string) Option {
	return newFuncOption(func(o *options) {
		if token != "" {
			o.accessToken = token
		}
	})
}

// WithHTTPClient configures the client used for the authorize request
func WithHTTPClient(client *http.Client) Option {
	return newFuncOption(func(o *options) {
		o.httpClient = client
	})
}

// WithAuthTimeout bounds the authorize request. Non-positive values keep the default.
func WithAuthTimeout(timeout time.Duration) Option {
	return newFuncOption(func(o *options) {
		if timeout > 0 {
			o.authTimeout = timeout
		}
	})
}

// WithPingPeriod configures how often the server is pinged. Zero disables pinging.
func WithPingPeriod(period time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.pingPeriod = period
	})
}

// WithReadLimit sets the maximum size in bytes of an inbound frame.
func WithReadLimit(limit int64) Option {
	return newFuncOption(func(o *options) {
		o.readLimit = limit
	})
}

func withConnCreator(creator connCreator) Option {
	return newFuncOption(func(o *options) {
		o.connCreator = creator
	})
}

// defaultOptions are the default options for a session.
func defaultOptions() *options {
	authURL := DefaultAuthURL
	if s := os.Getenv("LTPALERT_FEED_AUTH_URL"); s != "" {
		authURL = s
	}

	return &options{
		logger:      logging.Nop(),
		authURL:     authURL,
		accessToken: os.Getenv("LTPALERT_FEED_ACCESS_TOKEN"),
		httpClient:  &http.Client{},
		authTimeout: 10 * time.Second,
		pingPeriod:  pingPeriod,
		readLimit:   1 << 20,
		connCreator: newNhooyrWebsocketConn,
	}
}

func (o *options) applyAll(opts ...Option) {
	for _, opt := range opts {
		opt.apply(o)
	}
}
