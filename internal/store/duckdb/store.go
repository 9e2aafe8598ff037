// Package duckdb implements a DuckDB target store over database/sql.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver

	"duckflow/internal/ddl"
	"duckflow/internal/domain"
	"duckflow/internal/store"
)

func init() {
	store.Register("duckdb", func(ctx context.Context, cfg store.Config) (domain.Store, error) {
		return Open(ctx, cfg.DSN, cfg.Extensions...)
	})
}

var _ domain.Store = (*Store)(nil)

// Store is a DuckDB-backed domain.Store.
type Store struct {
	db *sql.DB
}

// Open opens the database at path ("" = in-memory) and installs and loads
// the given extensions.
func Open(ctx context.Context, path string, extensions ...string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	s := &Store{db: db}
	if err := s.installExtensions(ctx, extensions); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open DuckDB handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) installExtensions(ctx context.Context, extensions []string) error {
	for _, ext := range extensions {
		if err := ddl.ValidateIdentifier(ext); err != nil {
			return domain.ErrValidation("invalid extension name %q: %v", ext, err)
		}
		stmt := fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("extension setup (%s): %w", ext, err)
		}
	}
	return nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect implements domain.Store.
func (s *Store) Dialect() domain.Dialect { return domain.DialectDuckDB }

// Exec implements domain.Execer.
func (s *Store) Exec(ctx context.Context, stmt string) (int64, error) {
	return exec(ctx, s.db, stmt)
}

// Query implements domain.Store.
func (s *Store) Query(ctx context.Context, stmt string) (*domain.ResultSet, error) {
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &domain.ResultSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs, rows.Err()
}

// InTx implements domain.Store. The transaction rolls back when fn fails or
// ctx is cancelled.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Execer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(txExecer{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close implements domain.Store.
func (s *Store) Close() error { return s.db.Close() }

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func exec(ctx context.Context, e sqlExecer, stmt string) (int64, error) {
	res, err := e.ExecContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil //nolint:nilerr
	}
	return n, nil
}

type txExecer struct {
	tx *sql.Tx
}

func (t txExecer) Exec(ctx context.Context, stmt string) (int64, error) {
	return exec(ctx, t.tx, stmt)
}
