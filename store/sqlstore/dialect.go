package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type dialect struct {
	driver string
	schema []string
	// bindTime converts a timestamp to the column representation.
	bindTime func(time.Time) interface{}
	numbered bool
}

var dialects = map[string]dialect{
	DriverPostgres: {
		driver: DriverPostgres,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS records (
				id             TEXT PRIMARY KEY,
				symbol         TEXT NOT NULL,
				value          DOUBLE PRECISION NOT NULL CHECK (value >= 0.01),
				above_or_below BOOLEAN NOT NULL,
				created        TIMESTAMPTZ NOT NULL,
				sent           TIMESTAMPTZ
			)`,
			`CREATE INDEX IF NOT EXISTS idx_records_active ON records(symbol) WHERE sent IS NULL`,
		},
		bindTime: func(t time.Time) interface{} { return t.UTC() },
		numbered: true,
	},
	DriverSQLite: {
		driver: DriverSQLite,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS records (
				id             TEXT PRIMARY KEY,
				symbol         TEXT NOT NULL,
				value          REAL NOT NULL CHECK (value >= 0.01),
				above_or_below INTEGER NOT NULL,
				created        INTEGER NOT NULL,
				sent           INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_records_active ON records(symbol) WHERE sent IS NULL`,
		},
		bindTime: func(t time.Time) interface{} { return t.UnixNano() },
	},
}

func dialectFor(driver string) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
	return d, nil
}

// rebind rewrites ? placeholders to $1, $2 ... for drivers that need them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timestamp scans a native timestamp, unix nanoseconds or RFC 3339 text,
// which is how the rule manager writes sqlite rows.
type timestamp struct {
	Time  time.Time
	Valid bool
}

func (t *timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
	case int64:
		t.Time, t.Valid = time.Unix(0, v).UTC(), true
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
	return nil
}

func (t *timestamp) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("cannot scan %q into timestamp: %w", s, err)
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}
