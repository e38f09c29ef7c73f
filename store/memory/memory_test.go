package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ltpalert/ltpalert/alert"
)

var created = time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)

func rule(id, symbol string, threshold float64, d alert.Direction) alert.Rule {
	return alert.Rule{ID: id, Symbol: symbol, Threshold: threshold, Direction: d, CreatedAt: created}
}

func TestNewRejectsInvalidRule(t *testing.T) {
	_, err := New(rule("1", "FOO", 0, alert.Above))
	assert.Error(t, err)
}

func TestListActiveRules(t *testing.T) {
	sent := created.Add(time.Minute)
	fired := rule("3", "FOO", 10, alert.Below)
	fired.SentAt = &sent
	later := rule("0", "FOO", 200, alert.Above)
	later.CreatedAt = created.Add(time.Hour)

	s, err := New(
		rule("2", "FOO", 100, alert.Above),
		rule("1", "FOO", 50, alert.Below),
		fired,
		later,
		rule("4", "BAR", 1, alert.Above),
	)
	require.NoError(t, err)

	rules, err := s.ListActiveRules(context.Background(), "FOO")
	require.NoError(t, err)
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "2", "0"}, ids)

	rules, err = s.ListActiveRules(context.Background(), "BAZ")
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestMarkSent(t *testing.T) {
	s, err := New(rule("1", "FOO", 100, alert.Above))
	require.NoError(t, err)
	ctx := context.Background()
	at := created.Add(time.Minute)

	res, err := s.MarkSent(ctx, "1", at)
	require.NoError(t, err)
	assert.Equal(t, alert.MarkOK, res)

	r, ok := s.Get("1")
	require.True(t, ok)
	require.NotNil(t, r.SentAt)
	assert.True(t, at.Equal(*r.SentAt))

	res, err = s.MarkSent(ctx, "1", at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, alert.MarkAlreadySent, res)
	r, _ = s.Get("1")
	assert.True(t, at.Equal(*r.SentAt), "sent time must never change once set")

	res, err = s.MarkSent(ctx, "missing", at)
	require.NoError(t, err)
	assert.Equal(t, alert.MarkNotFound, res)

	rules, err := s.ListActiveRules(ctx, "FOO")
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestMarkSentConcurrent(t *testing.T) {
	s, err := New(rule("1", "FOO", 100, alert.Above))
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.MarkSent(context.Background(), "1", time.Now())
			assert.NoError(t, err)
			if res == alert.MarkOK {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, oks)
}

func TestGetReturnsCopy(t *testing.T) {
	s, err := New(rule("1", "FOO", 100, alert.Above))
	require.NoError(t, err)
	_, err = s.MarkSent(context.Background(), "1", created)
	require.NoError(t, err)

	r, _ := s.Get("1")
	*r.SentAt = created.Add(time.Hour)

	again, _ := s.Get("1")
	assert.True(t, created.Equal(*again.SentAt))
}

func TestCancelledContext(t *testing.T) {
	s, err := New(rule("1", "FOO", 100, alert.Above))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.ListActiveRules(ctx, "FOO")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.MarkSent(ctx, "1", created)
	assert.ErrorIs(t, err, context.Canceled)
}
