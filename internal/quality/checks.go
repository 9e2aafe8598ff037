// Package quality implements the post-load data quality gate.
package quality

import (
	"fmt"

	"duckflow/internal/ddl"
	"duckflow/internal/domain"
)

// Names of the built-in checks. They double as the diagnostic prefix.
const (
	CheckTableNotEmpty   = "table_not_empty"
	CheckColumnNotNull   = "col_not_null"
	CheckRowCountAtLeast = "row_count_at_least"
)

// TableNotEmpty passes when table holds at least one row.
func TableNotEmpty(table string) (domain.QualityCheck, error) {
	q, err := ddl.CountRows(table)
	if err != nil {
		return domain.QualityCheck{}, err
	}
	return domain.QualityCheck{
		Name:      CheckTableNotEmpty,
		Target:    table,
		Query:     q,
		Predicate: countAbove(0),
	}, nil
}

// ColumnNotNull passes when no row of table has a NULL column.
func ColumnNotNull(table, column string) (domain.QualityCheck, error) {
	q, err := ddl.CountNulls(table, column)
	if err != nil {
		return domain.QualityCheck{}, err
	}
	return domain.QualityCheck{
		Name:   CheckColumnNotNull,
		Target: table + "." + column,
		Query:  q,
		Predicate: func(rs *domain.ResultSet) bool {
			n, ok := rs.FirstInt()
			return ok && n == 0
		},
	}, nil
}

// RowCountAtLeast passes when table holds at least min rows.
func RowCountAtLeast(table string, min int64) (domain.QualityCheck, error) {
	if min < 0 {
		return domain.QualityCheck{}, domain.ErrValidation("row_count_at_least: minimum must be >= 0, got %d", min)
	}
	q, err := ddl.CountRows(table)
	if err != nil {
		return domain.QualityCheck{}, err
	}
	return domain.QualityCheck{
		Name:       CheckRowCountAtLeast,
		Target:     table,
		Query:      q,
		Predicate:  countAbove(min - 1),
		Diagnostic: fmt.Sprintf("%s(%d) failed on %s", CheckRowCountAtLeast, min, table),
	}, nil
}

func countAbove(n int64) func(*domain.ResultSet) bool {
	return func(rs *domain.ResultSet) bool {
		got, ok := rs.FirstInt()
		return ok && got > n
	}
}

// Diagnostic returns the message reported when c fails.
func Diagnostic(c domain.QualityCheck) string {
	if c.Diagnostic != "" {
		return c.Diagnostic
	}
	if c.Target == "" {
		return c.Name + " failed"
	}
	return c.Name + " failed on " + c.Target
}
