// Package sqlstore is a rule store over database/sql, backed by PostgreSQL
// (lib/pq) or SQLite (modernc.org/sqlite).
//
// Rules live in the records table written by the rule manager. The only
// write this package performs on existing rows is the conditional mark-sent
// update.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ltpalert/ltpalert/alert"
)

// ErrNotFound is returned by GetRule for unknown ids.
var ErrNotFound = errors.New("rule not found")

// Store implements alert.RuleStore.
type Store struct {
	db *sql.DB
	d  dialect
}

var _ alert.RuleStore = (*Store)(nil)

// Open connects to the database. driver is DriverPostgres or DriverSQLite.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch driver {
	case DriverSQLite:
		db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	case DriverPostgres:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db, d: d}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the records table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// CreateRule inserts r and returns it. An empty ID gets a fresh UUID and a
// zero CreatedAt is set to now.
func (s *Store) CreateRule(ctx context.Context, r alert.Rule) (alert.Rule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if err := r.Validate(); err != nil {
		return alert.Rule{}, err
	}

	var sent interface{}
	if r.SentAt != nil {
		sent = s.d.bindTime(*r.SentAt)
	}
	query := s.d.rebind(`
		INSERT INTO records (id, symbol, value, above_or_below, created, sent)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Symbol, r.Threshold, r.Direction.AboveOrBelow(), s.d.bindTime(r.CreatedAt), sent)
	if err != nil {
		return alert.Rule{}, fmt.Errorf("failed to insert rule %s: %w", r.ID, err)
	}
	return r, nil
}

// GetRule returns the rule with the given id or ErrNotFound.
func (s *Store) GetRule(ctx context.Context, id string) (alert.Rule, error) {
	query := s.d.rebind(`
		SELECT id, symbol, value, above_or_below, created, sent
		FROM records
		WHERE id = ?`)
	r, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Rule{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return alert.Rule{}, fmt.Errorf("failed to get rule %s: %w", id, err)
	}
	return r, nil
}

// ListActiveRules returns unsent rules for symbol, oldest first.
func (s *Store) ListActiveRules(ctx context.Context, symbol string) ([]alert.Rule, error) {
	query := s.d.rebind(`
		SELECT id, symbol, value, above_or_below, created, sent
		FROM records
		WHERE symbol = ? AND sent IS NULL
		ORDER BY created, id`)
	rows, err := s.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for %s: %w", symbol, err)
	}
	defer rows.Close()

	var rules []alert.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rules for %s: %w", symbol, err)
	}
	return rules, nil
}

// MarkSent sets sent only while it is still NULL. When no row changes, a
// second query tells a missing rule from one another writer already marked.
func (s *Store) MarkSent(ctx context.Context, id string, at time.Time) (alert.MarkResult, error) {
	query := s.d.rebind(`UPDATE records SET sent = ? WHERE id = ? AND sent IS NULL`)
	res, err := s.db.ExecContext(ctx, query, s.d.bindTime(at), id)
	if err != nil {
		return 0, fmt.Errorf("failed to mark rule %s sent: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark rule %s sent: %w", id, err)
	}
	if n == 1 {
		return alert.MarkOK, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, s.d.rebind(`SELECT 1 FROM records WHERE id = ?`), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.MarkNotFound, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check rule %s: %w", id, err)
	}
	return alert.MarkAlreadySent, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row scanner) (alert.Rule, error) {
	var (
		r       alert.Rule
		above   bool
		created timestamp
		sent    timestamp
	)
	if err := row.Scan(&r.ID, &r.Symbol, &r.Threshold, &above, &created, &sent); err != nil {
		return alert.Rule{}, err
	}
	r.Direction = alert.DirectionFromAboveOrBelow(above)
	r.CreatedAt = created.Time
	if sent.Valid {
		t := sent.Time
		r.SentAt = &t
	}
	return r, nil
}
