package alert

import (
	"time"

	"github.com/ltpalert/ltpalert/logging"
)

// EvaluatorOption configures an Evaluator.
type EvaluatorOption interface {
	apply(*evaluatorOptions)
}

type evaluatorOptions struct {
	logger     logging.Logger
	clock      func() time.Time
	retries    int
	retryDelay time.Duration
	matchOnKey bool
}

type funcOption struct {
	f func(*evaluatorOptions)
}

func (fo *funcOption) apply(o *evaluatorOptions) {
	fo.f(o)
}

func newFuncOption(f func(*evaluatorOptions)) *funcOption {
	return &funcOption{f: f}
}

// WithLogger configures the logger
func WithLogger(logger logging.Logger) EvaluatorOption {
	return newFuncOption(func(o *evaluatorOptions) {
		o.logger = logger
	})
}

// WithClock replaces time.Now as the source of trigger timestamps.
func WithClock(now func() time.Time) EvaluatorOption {
	return newFuncOption(func(o *evaluatorOptions) {
		o.clock = now
	})
}

// WithMarkRetries sets how many times a failing store call is attempted and
// the initial delay between attempts, which doubles after every failure.
func WithMarkRetries(attempts int, delay time.Duration) EvaluatorOption {
	return newFuncOption(func(o *evaluatorOptions) {
		if attempts > 0 {
			o.retries = attempts
		}
		if delay >= 0 {
			o.retryDelay = delay
		}
	})
}

// WithInstrumentKeyMatching also selects rules whose symbol is the raw
// instrument key, for rule stores that record feed keys instead of names.
func WithInstrumentKeyMatching(enabled bool) EvaluatorOption {
	return newFuncOption(func(o *evaluatorOptions) {
		o.matchOnKey = enabled
	})
}

func defaultEvaluatorOptions() *evaluatorOptions {
	return &evaluatorOptions{
		logger:     logging.Nop(),
		clock:      time.Now,
		retries:    3,
		retryDelay: 100 * time.Millisecond,
	}
}
