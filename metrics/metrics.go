// Package metrics exposes prometheus counters for the feed and alert pipeline.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ltpalert/ltpalert/logging"
)

var (
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ltpalert_frames_total", Help: "Inbound feed frames by websocket message type"},
		[]string{"type"},
	)
	DecodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ltpalert_decode_errors_total", Help: "Frames that failed to decode"},
	)
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ltpalert_ticks_total", Help: "Decoded ticks by quote kind"},
		[]string{"kind"},
	)
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ltpalert_alerts_total", Help: "Triggered rules by outcome"},
		[]string{"outcome"},
	)
)

// Alert outcomes.
const (
	OutcomeSent       = "sent"
	OutcomeSuppressed = "suppressed"
	OutcomeNotFound   = "not_found"
	OutcomeFailed     = "failed"
)

func init() {
	prometheus.MustRegister(FramesTotal, DecodeErrorsTotal, TicksTotal, AlertsTotal)
}

// Serve starts a /metrics endpoint on addr in the background. Listen
// failures are reported through logger.
func Serve(addr string, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics: serving on %s failed, error: %v", addr, err)
		}
	}()
	return srv
}
