// Package alert matches decoded ticks against threshold rules and fires each
// rule at most once.
package alert

import (
	"errors"
	"fmt"
	"time"
)

// Direction is the side of the threshold a price must reach to trigger a rule.
type Direction int

const (
	Above Direction = iota + 1
	Below
)

// DirectionFromAboveOrBelow maps the rule manager's above_or_below column
// (true = above) to a Direction.
func DirectionFromAboveOrBelow(above bool) Direction {
	if above {
		return Above
	}
	return Below
}

// AboveOrBelow is the inverse of DirectionFromAboveOrBelow.
func (d Direction) AboveOrBelow() bool {
	return d == Above
}

func (d Direction) String() string {
	switch d {
	case Above:
		return "above"
	case Below:
		return "below"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// MinThreshold is the smallest threshold the rule manager accepts.
const MinThreshold = 0.01

var errInvalidRule = errors.New("invalid rule")

// Rule is a one-shot price alert owned by the rule store.
type Rule struct {
	ID        string
	Symbol    string
	Threshold float64
	Direction Direction
	CreatedAt time.Time
	// SentAt is set once, when the rule fires. Rules with a non-nil SentAt are
	// never candidates again.
	SentAt *time.Time
}

// Active reports whether the rule has not fired yet.
func (r Rule) Active() bool {
	return r.SentAt == nil
}

// Validate checks the fields a store must reject on insert.
func (r Rule) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: empty id", errInvalidRule)
	case r.Symbol == "":
		return fmt.Errorf("%w: empty symbol", errInvalidRule)
	case r.Threshold < MinThreshold:
		return fmt.Errorf("%w: threshold %v below %v", errInvalidRule, r.Threshold, MinThreshold)
	case r.Direction != Above && r.Direction != Below:
		return fmt.Errorf("%w: %v", errInvalidRule, r.Direction)
	}
	return nil
}

// Triggers reports whether price reaches the rule's threshold.
func (r Rule) Triggers(price float64) bool {
	switch r.Direction {
	case Above:
		return price >= r.Threshold
	case Below:
		return price <= r.Threshold
	default:
		return false
	}
}
