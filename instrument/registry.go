// Package instrument holds the static instrument metadata the feed subscribes
// to and the alert evaluator resolves ticks against.
package instrument

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrParse is returned when the instrument source contains a malformed row.
var ErrParse = errors.New("instrument: parse error")

// Column order of the instrument source.
const (
	colName = iota
	colCount
	colValue
	colSecondaryName
	colKey

	columnCount
)

// Instrument is a single tradable instrument.
type Instrument struct {
	// Key is the feed-assigned identifier and the join field against ticks.
	Key string
	// Symbol is the human-readable display symbol.
	Symbol        string
	Count         int64
	Value         decimal.Decimal
	SecondaryName string
}

// Registry maps instrument keys to instruments. It is read-only once loaded
// and safe for concurrent readers.
type Registry struct {
	byKey map[string]Instrument
	keys  []string
}

// Load parses a comma separated source with the fixed column order
// (name, count, value, secondaryName, key). A repeated key overwrites the
// earlier row but keeps its original position in Keys.
func Load(r io.Reader, hasHeader bool) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = columnCount
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	reg := &Registry{byKey: make(map[string]Instrument)}
	for line := 1; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if line == 1 && hasHeader {
			continue
		}
		inst, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrParse, line, err)
		}
		if _, ok := reg.byKey[inst.Key]; !ok {
			reg.keys = append(reg.keys, inst.Key)
		}
		reg.byKey[inst.Key] = inst
	}
	return reg, nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string, hasHeader bool) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, hasHeader)
}

func parseRecord(record []string) (Instrument, error) {
	inst := Instrument{
		Symbol:        strings.TrimSpace(record[colName]),
		SecondaryName: strings.TrimSpace(record[colSecondaryName]),
		Key:           strings.TrimSpace(record[colKey]),
	}
	if inst.Key == "" {
		return Instrument{}, errors.New("empty instrument key")
	}

	if s := strings.TrimSpace(record[colCount]); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Instrument{}, fmt.Errorf("count %q: %w", s, err)
		}
		inst.Count = n
	}
	if s := strings.TrimSpace(record[colValue]); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return Instrument{}, fmt.Errorf("value %q: %w", s, err)
		}
		inst.Value = v
	}
	return inst, nil
}

// Lookup returns the instrument registered under key.
func (r *Registry) Lookup(key string) (Instrument, bool) {
	inst, ok := r.byKey[key]
	return inst, ok
}

// Keys returns every registered key in first-seen order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Len returns the number of distinct instruments.
func (r *Registry) Len() int {
	return len(r.keys)
}
