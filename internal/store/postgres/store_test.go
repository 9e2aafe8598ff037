package postgres

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
)

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		dialect  domain.Dialect
		maxConns int32
		wantMode pgx.QueryExecMode
		wantErr  string
	}{
		{
			name:     "postgres keeps default mode",
			dsn:      "postgres://u:p@localhost:5432/dw",
			dialect:  domain.DialectPostgres,
			maxConns: 8,
			wantMode: pgx.QueryExecModeCacheStatement,
		},
		{
			name:     "redshift uses simple protocol",
			dsn:      "postgres://u:p@cluster.example.com:5439/dev",
			dialect:  domain.DialectRedshift,
			wantMode: pgx.QueryExecModeSimpleProtocol,
		},
		{name: "missing dsn", dialect: domain.DialectPostgres, wantErr: "requires a DSN"},
		{name: "bad dsn", dsn: "postgres://%zz", dialect: domain.DialectPostgres, wantErr: "parse postgres DSN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := poolConfig(tt.dsn, tt.dialect, tt.maxConns)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, cfg.ConnConfig.DefaultQueryExecMode)
			if tt.maxConns > 0 {
				assert.Equal(t, tt.maxConns, cfg.MaxConns)
			}
		})
	}
}

func TestOpen_PoolError(t *testing.T) {
	orig := newPool
	t.Cleanup(func() { newPool = orig })

	boom := errors.New("boom")
	newPool = func(context.Context, *pgxpool.Config) (*pgxpool.Pool, error) { return nil, boom }

	_, err := Open(context.Background(), "postgres://u:p@localhost/dw", domain.DialectRedshift, 0)
	require.ErrorIs(t, err, boom)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, int64(42), normalize(pgtype.Numeric{Int: big.NewInt(42), Exp: 0, Valid: true}))
	assert.Equal(t, 1.5, normalize(pgtype.Numeric{Int: big.NewInt(15), Exp: -1, Valid: true}))
	assert.Nil(t, normalize(pgtype.Numeric{}))
	assert.Equal(t, "x", normalize("x"))
}
