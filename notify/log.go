// Package notify has the alert.Notifier sinks: a log line, a Telegram chat
// and a fan-out over several sinks.
package notify

import (
	"context"
	"time"

	"github.com/ltpalert/ltpalert/alert"
	"github.com/ltpalert/ltpalert/logging"
)

// Log writes one line per event.
type Log struct {
	logger logging.Logger
}

var _ alert.Notifier = (*Log)(nil)

func NewLog(logger logging.Logger) *Log {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Log{logger: logger}
}

func (l *Log) Emit(_ context.Context, e alert.Event) error {
	l.logger.Infof("ALERT rule=%s symbol=%s key=%s price=%v direction=%s threshold=%v triggered_at=%s",
		e.RuleID, e.Symbol, e.InstrumentKey, e.Price, e.Direction, e.Threshold,
		e.TriggeredAt.UTC().Format(time.RFC3339Nano))
	return nil
}
