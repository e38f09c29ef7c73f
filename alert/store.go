package alert

import (
	"context"
	"time"
)

// MarkResult is the outcome of a compare-and-set mark-sent write.
type MarkResult int

const (
	// MarkOK means this caller set SentAt and owns the notification.
	MarkOK MarkResult = iota + 1
	// MarkAlreadySent means another writer set SentAt first.
	MarkAlreadySent
	// MarkNotFound means the rule no longer exists.
	MarkNotFound
)

func (m MarkResult) String() string {
	switch m {
	case MarkOK:
		return "ok"
	case MarkAlreadySent:
		return "already_sent"
	case MarkNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// RuleStore is the external owner of rules.
type RuleStore interface {
	// ListActiveRules returns the rules for symbol that have not fired yet.
	ListActiveRules(ctx context.Context, symbol string) ([]Rule, error)
	// MarkSent sets SentAt to at only if it is still unset.
	MarkSent(ctx context.Context, id string, at time.Time) (MarkResult, error)
}
