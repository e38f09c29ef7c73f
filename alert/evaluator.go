package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ltpalert/ltpalert/feed"
	"github.com/ltpalert/ltpalert/instrument"
	"github.com/ltpalert/ltpalert/internal/ctxtime"
	"github.com/ltpalert/ltpalert/logging"
	"github.com/ltpalert/ltpalert/metrics"
)

// Resolver maps feed instrument keys to instruments.
type Resolver interface {
	Lookup(key string) (instrument.Instrument, bool)
}

// Stats counts what the evaluator did with the ticks it was given.
type Stats struct {
	Evaluated  int64
	Ignored    int64
	Unknown    int64
	Sent       int64
	Suppressed int64
}

// Evaluator checks LTPC ticks against the active rules of their instrument
// and notifies once per rule.
type Evaluator struct {
	resolver Resolver
	store    RuleStore
	notifier Notifier

	logger     logging.Logger
	clock      func() time.Time
	retries    int
	retryDelay time.Duration
	matchOnKey bool

	mu    sync.Mutex
	stats Stats
}

var _ feed.BatchHandler = (*Evaluator)(nil)

// NewEvaluator returns an Evaluator reading instruments from resolver and
// rules from store.
func NewEvaluator(resolver Resolver, store RuleStore, notifier Notifier, opts ...EvaluatorOption) *Evaluator {
	o := defaultEvaluatorOptions()
	for _, opt := range opts {
		opt.apply(o)
	}
	return &Evaluator{
		resolver:   resolver,
		store:      store,
		notifier:   notifier,
		logger:     o.logger,
		clock:      o.clock,
		retries:    o.retries,
		retryDelay: o.retryDelay,
		matchOnKey: o.matchOnKey,
	}
}

// HandleBatch evaluates the LTPC ticks of batch in instrument key order.
// Store failures stop the batch. Notify failures do not stop it; they are
// joined and returned once every tick has been evaluated.
func (e *Evaluator) HandleBatch(ctx context.Context, batch feed.Batch) error {
	var notifyErrs []error
	for _, t := range batch.Ticks() {
		if t.Kind != feed.KindLTPC {
			e.count(func(s *Stats) { s.Ignored++ })
			e.logger.Debugf("alert: ignoring %s quote for %s", t.Kind, t.InstrumentKey)
			continue
		}
		if err := e.Evaluate(ctx, t.InstrumentKey, t.LastTradedPrice); err != nil {
			if errors.Is(err, ErrRuleStore) {
				return err
			}
			notifyErrs = append(notifyErrs, err)
		}
	}
	return errors.Join(notifyErrs...)
}

// Evaluate fires every active rule of the instrument behind key that price
// triggers. Unknown keys are skipped without error.
func (e *Evaluator) Evaluate(ctx context.Context, key string, price float64) error {
	inst, ok := e.resolver.Lookup(key)
	if !ok {
		e.count(func(s *Stats) { s.Unknown++ })
		e.logger.Debugf("alert: no instrument for key %s", key)
		return nil
	}
	e.count(func(s *Stats) { s.Evaluated++ })

	rules, err := e.candidates(ctx, inst)
	if err != nil {
		return err
	}

	var notifyErrs []error
	for _, r := range rules {
		if !r.Triggers(price) {
			continue
		}
		if err := e.fire(ctx, r, inst, price); err != nil {
			if errors.Is(err, ErrRuleStore) {
				return err
			}
			notifyErrs = append(notifyErrs, err)
		}
	}
	return errors.Join(notifyErrs...)
}

func (e *Evaluator) candidates(ctx context.Context, inst instrument.Instrument) ([]Rule, error) {
	symbols := []string{inst.Symbol}
	if e.matchOnKey && inst.Key != inst.Symbol {
		symbols = append(symbols, inst.Key)
	}

	seen := make(map[string]struct{})
	var rules []Rule
	for _, symbol := range symbols {
		var got []Rule
		err := ctxtime.Retry(ctx, e.retries, e.retryDelay, func() error {
			var err error
			got, err = e.store.ListActiveRules(ctx, symbol)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: list rules for %s: %v", ErrRuleStore, symbol, err)
		}
		for _, r := range got {
			if !r.Active() {
				continue
			}
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// fire claims the rule in the store and only then emits the event, so a
// rule claimed by another evaluator is never delivered twice.
func (e *Evaluator) fire(ctx context.Context, r Rule, inst instrument.Instrument, price float64) error {
	ev := Event{
		RuleID:        r.ID,
		InstrumentKey: inst.Key,
		Symbol:        inst.Symbol,
		Direction:     r.Direction,
		Threshold:     r.Threshold,
		Price:         price,
		TriggeredAt:   e.clock(),
	}

	var res MarkResult
	err := ctxtime.Retry(ctx, e.retries, e.retryDelay, func() error {
		var err error
		res, err = e.store.MarkSent(ctx, r.ID, ev.TriggeredAt)
		if err != nil {
			e.logger.Warnf("alert: mark sent for rule %s failed, error: %v", r.ID, err)
		}
		return err
	})
	if err != nil {
		metrics.AlertsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return fmt.Errorf("%w: mark rule %s sent: %v", ErrRuleStore, r.ID, err)
	}

	switch res {
	case MarkOK:
	case MarkAlreadySent:
		metrics.AlertsTotal.WithLabelValues(metrics.OutcomeSuppressed).Inc()
		e.count(func(s *Stats) { s.Suppressed++ })
		e.logger.Infof("alert: rule %s already sent elsewhere, suppressing", r.ID)
		return nil
	case MarkNotFound:
		metrics.AlertsTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		e.logger.Warnf("alert: rule %s disappeared before it could be marked sent", r.ID)
		return nil
	default:
		metrics.AlertsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return fmt.Errorf("%w: mark rule %s sent: unexpected result %v", ErrRuleStore, r.ID, res)
	}

	if err := e.notifier.Emit(ctx, ev); err != nil {
		metrics.AlertsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		e.logger.Errorf("alert: rule %s marked sent but not delivered: %s, error: %v", r.ID, ev, err)
		return fmt.Errorf("%w: %s: %v", ErrNotify, ev, err)
	}
	metrics.AlertsTotal.WithLabelValues(metrics.OutcomeSent).Inc()
	e.count(func(s *Stats) { s.Sent++ })
	return nil
}

func (e *Evaluator) count(f func(*Stats)) {
	e.mu.Lock()
	f(&e.stats)
	e.mu.Unlock()
}

// Stats returns a snapshot of the evaluator counters.
func (e *Evaluator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
