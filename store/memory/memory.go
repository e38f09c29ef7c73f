// Package memory is an in-process rule store, used by tests and single-node
// deployments that load rules at startup.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ltpalert/ltpalert/alert"
)

// Store keeps rules in a map guarded by a mutex.
type Store struct {
	mu    sync.Mutex
	rules map[string]alert.Rule
}

var _ alert.RuleStore = (*Store)(nil)

func New(rules ...alert.Rule) (*Store, error) {
	s := &Store{rules: make(map[string]alert.Rule, len(rules))}
	for _, r := range rules {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts or replaces a rule.
func (s *Store) Add(r alert.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = copyRule(r)
	return nil
}

// Get returns the rule with the given id.
func (s *Store) Get(id string) (alert.Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return alert.Rule{}, false
	}
	return copyRule(r), true
}

// ListActiveRules returns unsent rules for symbol, oldest first.
func (s *Store) ListActiveRules(ctx context.Context, symbol string) ([]alert.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []alert.Rule
	for _, r := range s.rules {
		if r.Symbol == symbol && r.Active() {
			res = append(res, copyRule(r))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// MarkSent sets SentAt if it is still unset.
func (s *Store) MarkSent(ctx context.Context, id string, at time.Time) (alert.MarkResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if at.IsZero() {
		return 0, fmt.Errorf("mark rule %s sent: zero timestamp", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return alert.MarkNotFound, nil
	}
	if !r.Active() {
		return alert.MarkAlreadySent, nil
	}
	r.SentAt = &at
	s.rules[id] = r
	return alert.MarkOK, nil
}

func copyRule(r alert.Rule) alert.Rule {
	if r.SentAt != nil {
		t := *r.SentAt
		r.SentAt = &t
	}
	return r
}
