package alert

import (
	"context"
	"fmt"
	"time"
)

// Event is emitted once when a rule fires.
type Event struct {
	RuleID        string
	InstrumentKey string
	Symbol        string
	Direction     Direction
	Threshold     float64
	Price         float64
	TriggeredAt   time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("rule %s: %s (%s) %v %s %v at %s",
		e.RuleID, e.Symbol, e.InstrumentKey, e.Price, e.Direction, e.Threshold,
		e.TriggeredAt.UTC().Format(time.RFC3339))
}

// Notifier delivers events.
type Notifier interface {
	Emit(ctx context.Context, e Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event) error

func (f NotifierFunc) Emit(ctx context.Context, e Event) error {
	return f(ctx, e)
}
