// Package ddl builds the SQL statements the operators send to target stores.
// Every identifier is validated and every value is quoted here.
package ddl

import (
	"fmt"
	"strings"

	"duckflow/internal/domain"
)

// ClearTable returns the statement that empties table inside a transaction.
// Redshift commits TRUNCATE implicitly, so it gets DELETE FROM instead.
func ClearTable(dialect domain.Dialect, table string) (string, error) {
	qt, err := QualifiedName(table)
	if err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	switch dialect {
	case domain.DialectRedshift:
		return "DELETE FROM " + qt, nil
	case domain.DialectDuckDB, domain.DialectPostgres:
		return "TRUNCATE " + qt, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// InsertSelect returns INSERT INTO <table> <selectSQL>. A trailing semicolon
// on selectSQL is dropped.
func InsertSelect(table, selectSQL string) (string, error) {
	qt, err := QualifiedName(table)
	if err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	body := strings.TrimRight(strings.TrimSpace(selectSQL), "; \t\n")
	if body == "" {
		return "", fmt.Errorf("select statement is required")
	}
	return fmt.Sprintf("INSERT INTO %s\n%s", qt, body), nil
}

// CountRows returns SELECT COUNT(*) AS row_count FROM <table>.
func CountRows(table string) (string, error) {
	qt, err := QualifiedName(table)
	if err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return "SELECT COUNT(*) AS row_count FROM " + qt, nil
}

// CountNulls returns a query counting rows where column is NULL.
func CountNulls(table, column string) (string, error) {
	qt, err := QualifiedName(table)
	if err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("invalid column name: %w", err)
	}
	return fmt.Sprintf("SELECT COUNT(*) AS null_count FROM %s WHERE %s IS NULL", qt, QuoteIdentifier(column)), nil
}
