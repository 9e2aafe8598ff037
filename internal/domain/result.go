package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ResultSet is a materialized query result.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Value returns the named column of the first row.
func (r *ResultSet) Value(column string) (any, bool) {
	if r == nil || len(r.Rows) == 0 {
		return nil, false
	}
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) && i < len(r.Rows[0]) {
			return r.Rows[0][i], true
		}
	}
	return nil, false
}

// First returns the first column of the first row.
func (r *ResultSet) First() (any, bool) {
	if r == nil || len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return nil, false
	}
	return r.Rows[0][0], true
}

// FirstInt returns the first column of the first row as an integer.
func (r *ResultSet) FirstInt() (int64, bool) {
	v, ok := r.First()
	if !ok {
		return 0, false
	}
	return ToInt64(v)
}

// FirstRow returns the first row keyed by column name.
func (r *ResultSet) FirstRow() map[string]any {
	out := map[string]any{}
	if r == nil || len(r.Rows) == 0 {
		return out
	}
	for i, c := range r.Columns {
		if i < len(r.Rows[0]) {
			out[c] = r.Rows[0][i]
		}
	}
	return out
}

// Summary renders the first row as "col=value" pairs for diagnostics.
func (r *ResultSet) Summary() string {
	if r == nil || len(r.Rows) == 0 {
		return "<no rows>"
	}
	parts := make([]string, 0, len(r.Columns))
	for i, c := range r.Columns {
		if i < len(r.Rows[0]) {
			parts = append(parts, fmt.Sprintf("%s=%v", c, r.Rows[0][i]))
		}
	}
	return strings.Join(parts, ", ")
}

// ToInt64 converts the numeric types returned by the supported drivers.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case *big.Int:
		if n == nil || !n.IsInt64() {
			return 0, false
		}
		return n.Int64(), true
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
