// Package feed manages a streaming market-data session: it authorizes,
// subscribes to a set of instruments and hands every decoded frame to a
// BatchHandler, one frame at a time.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/google/uuid"

	"github.com/ltpalert/ltpalert/logging"
	"github.com/ltpalert/ltpalert/metrics"
)

// ModeLTPC subscribes to last-traded-price updates only.
const ModeLTPC = "ltpc"

const handleTimeWindow = 100

// KeySource supplies the instrument keys to subscribe to.
type KeySource interface {
	Keys() []string
}

// BatchHandler consumes decoded frames. Returning an error terminates the
// read loop.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch Batch) error
}

// BatchHandlerFunc adapts a function to BatchHandler.
type BatchHandlerFunc func(ctx context.Context, batch Batch) error

func (f BatchHandlerFunc) HandleBatch(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}

// Stats summarizes the frames a session has processed.
type Stats struct {
	Frames        int64
	TextFrames    int64
	Ticks         int64
	AvgHandleTime time.Duration
}

// Session is a single feed connection. Connect must succeed before Run is
// called, and a Session can not be reused once Run has returned.
type Session struct {
	logger      logging.Logger
	keys        KeySource
	guid        string
	authURL     string
	accessToken string
	httpClient  *http.Client
	authTimeout time.Duration
	pingPeriod  time.Duration
	readLimit   int64
	connCreator connCreator

	connectOnce sync.Once

	mu          sync.Mutex // guards conn, pingErr, stats and handleTimes
	conn        conn
	pingErr     error
	stats       Stats
	handleTimes *movingaverage.MovingAverage
}

// NewSession returns a Session that subscribes to every key of keys.
func NewSession(keys KeySource, opts ...Option) *Session {
	o := defaultOptions()
	o.applyAll(opts...)

	return &Session{
		logger:      o.logger,
		keys:        keys,
		guid:        uuid.NewString(),
		authURL:     o.authURL,
		accessToken: o.accessToken,
		httpClient:  o.httpClient,
		authTimeout: o.authTimeout,
		pingPeriod:  o.pingPeriod,
		readLimit:   o.readLimit,
		connCreator: o.connCreator,
		handleTimes: movingaverage.New(handleTimeWindow),
	}
}

// GUID returns the correlation identifier sent with the subscribe request.
func (s *Session) GUID() string {
	return s.guid
}

// Connect authorizes, opens the websocket and sends the subscribe request.
//
// **Should only be called once!**
func (s *Session) Connect(ctx context.Context) error {
	err := ErrConnectCalledMultipleTimes
	s.connectOnce.Do(func() {
		err = s.connect(ctx)
	})
	return err
}

func (s *Session) connect(ctx context.Context) error {
	u, err := s.authorize(ctx)
	if err != nil {
		return err
	}

	s.logger.Infof("feed: authorized, connecting to %s://%s%s", u.Scheme, u.Host, u.Path)
	c, err := s.connCreator(ctx, u, s.readLimit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if err := s.subscribe(ctx, c); err != nil {
		c.close()
		return fmt.Errorf("%w: subscribe: %v", ErrConnection, err)
	}

	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
	return nil
}

type subscribeRequest struct {
	GUID   string        `json:"guid"`
	Method string        `json:"method"`
	Data   subscribeData `json:"data"`
}

type subscribeData struct {
	Mode           string   `json:"mode"`
	InstrumentKeys []string `json:"instrumentKeys"`
}

func (s *Session) subscribeMessage() ([]byte, error) {
	keys := s.keys.Keys()
	if keys == nil {
		keys = []string{}
	}
	return json.Marshal(subscribeRequest{
		GUID:   s.guid,
		Method: "sub",
		Data: subscribeData{
			Mode:           ModeLTPC,
			InstrumentKeys: keys,
		},
	})
}

func (s *Session) subscribe(ctx context.Context, c conn) error {
	msg, err := s.subscribeMessage()
	if err != nil {
		return err
	}
	s.logger.Infof("feed: subscribing to %d instruments (guid %s)", len(s.keys.Keys()), s.guid)
	return c.writeMessage(ctx, msg)
}

var newPingTicker = func(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Run reads frames until the server closes the connection, ctx is done or
// an error occurs. Frames are decoded and handled strictly one at a time.
// A clean close and cancellation return nil.
func (s *Session) Run(ctx context.Context, handler BatchHandler) error {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}

	closeCh := make(chan struct{})
	wg := sync.WaitGroup{}
	if s.pingPeriod > 0 {
		wg.Add(1)
		go s.connPinger(ctx, c, &wg, closeCh)
	}
	defer func() {
		close(closeCh)
		s.Close()
		wg.Wait()
		st := s.Stats()
		s.logger.Infof("feed: session ended after %d frames, %d ticks, avg handling %s",
			st.Frames, st.Ticks, st.AvgHandleTime)
	}()

	for {
		typ, data, err := c.readMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Infof("feed: disconnected")
				return nil
			}
			if pingErr := s.pingError(); pingErr != nil {
				return fmt.Errorf("%w: ping: %v", ErrTransport, pingErr)
			}
			if errors.Is(err, errPeerClosed) {
				s.logger.Infof("feed: %v", err)
				return nil
			}
			s.logger.Errorf("feed: reading from conn failed, error: %v", err)
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		metrics.FramesTotal.WithLabelValues(typ.String()).Inc()

		if typ != messageBinary {
			s.mu.Lock()
			s.stats.TextFrames++
			s.mu.Unlock()
			s.logger.Debugf("feed: ignoring %s frame of %d bytes", typ, len(data))
			continue
		}

		if err := s.handleFrame(ctx, data, handler); err != nil {
			return err
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, data []byte, handler BatchHandler) error {
	start := time.Now()

	batch, err := Decode(data)
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		s.logger.Errorf("feed: %v", err)
		return err
	}
	for _, q := range batch.Quotes {
		metrics.TicksTotal.WithLabelValues(q.Kind().String()).Inc()
	}

	if err := handler.HandleBatch(ctx, batch); err != nil {
		return err
	}

	elapsed := time.Since(start)
	s.mu.Lock()
	s.stats.Frames++
	s.stats.Ticks += int64(len(batch.Quotes))
	s.handleTimes.Add(float64(elapsed.Microseconds()))
	s.mu.Unlock()
	return nil
}

// connPinger periodically pings the server. A failed ping closes the
// connection, which ends Run with a transport error.
func (s *Session) connPinger(ctx context.Context, c conn, wg *sync.WaitGroup, closeCh <-chan struct{}) {
	tick, stop := newPingTicker(s.pingPeriod)
	defer func() {
		stop()
		wg.Done()
	}()

	for {
		select {
		case <-closeCh:
			return
		case <-ctx.Done():
			return
		case <-tick:
			if err := c.ping(ctx); err != nil {
				if ctx.Err() == nil {
					s.logger.Errorf("feed: ping failed, error: %v", err)
					s.mu.Lock()
					s.pingErr = err
					s.mu.Unlock()
				}
				c.close()
				return
			}
		}
	}
}

func (s *Session) pingError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.AvgHandleTime = time.Duration(s.handleTimes.Avg() * float64(time.Microsecond))
	return st
}

// Close closes the underlying connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.close()
}
