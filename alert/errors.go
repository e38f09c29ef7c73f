package alert

import "errors"

var (
	// ErrRuleStore is returned when the rule store keeps failing. The trigger
	// is not considered sent.
	ErrRuleStore = errors.New("rule store error")
	// ErrNotify is returned when a claimed rule could not be delivered. The
	// rule is already marked sent and needs reconciliation.
	ErrNotify = errors.New("notify error")
)
