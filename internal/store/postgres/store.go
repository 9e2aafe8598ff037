// Package postgres implements Postgres and Redshift target stores on pgx v5.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"duckflow/internal/domain"
	"duckflow/internal/store"
)

// newPool is a test hook that points to pgxpool.NewWithConfig by default.
var newPool = pgxpool.NewWithConfig

func init() {
	store.Register("postgres", func(ctx context.Context, cfg store.Config) (domain.Store, error) {
		return Open(ctx, cfg.DSN, domain.DialectPostgres, cfg.MaxConns)
	})
	store.Register("redshift", func(ctx context.Context, cfg store.Config) (domain.Store, error) {
		return Open(ctx, cfg.DSN, domain.DialectRedshift, cfg.MaxConns)
	})
}

var _ domain.Store = (*Store)(nil)

// Store is a pgxpool-backed domain.Store.
type Store struct {
	pool    *pgxpool.Pool
	dialect domain.Dialect
}

// Open connects a pool for dsn. Redshift connections use the simple query
// protocol since Redshift does not support extended-protocol statement caching.
func Open(ctx context.Context, dsn string, dialect domain.Dialect, maxConns int32) (*Store, error) {
	cfg, err := poolConfig(dsn, dialect, maxConns)
	if err != nil {
		return nil, err
	}
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &Store{pool: pool, dialect: dialect}, nil
}

func poolConfig(dsn string, dialect domain.Dialect, maxConns int32) (*pgxpool.Config, error) {
	if dsn == "" {
		return nil, domain.ErrValidation("%s store requires a DSN", dialect)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, domain.ErrValidation("parse %s DSN: %v", dialect, err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if dialect == domain.DialectRedshift {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	return cfg, nil
}

// Dialect implements domain.Store.
func (s *Store) Dialect() domain.Dialect { return s.dialect }

// Exec implements domain.Execer.
func (s *Store) Exec(ctx context.Context, stmt string) (int64, error) {
	tag, err := s.pool.Exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Query implements domain.Store.
func (s *Store) Query(ctx context.Context, stmt string) (*domain.ResultSet, error) {
	rows, err := s.pool.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	rs := &domain.ResultSet{Columns: make([]string, len(fields))}
	for i, f := range fields {
		rs.Columns[i] = f.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs, rows.Err()
}

// InTx implements domain.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Execer) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(txExecer{tx: tx})
	})
}

// Close implements domain.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type txExecer struct {
	tx pgx.Tx
}

func (t txExecer) Exec(ctx context.Context, stmt string) (int64, error) {
	tag, err := t.tx.Exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// normalize converts NUMERIC values, which Redshift returns for aggregates,
// into float64 so predicates can compare them.
func normalize(v any) any {
	n, ok := v.(pgtype.Numeric)
	if !ok {
		return v
	}
	if !n.Valid {
		return nil
	}
	if i, err := n.Int64Value(); err == nil && i.Valid {
		return i.Int64
	}
	if f, err := n.Float64Value(); err == nil && f.Valid {
		return f.Float64
	}
	return v
}
