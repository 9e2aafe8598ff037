package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
)

func TestClearTable(t *testing.T) {
	tests := []struct {
		name    string
		dialect domain.Dialect
		table   string
		want    string
		wantErr string
	}{
		{name: "duckdb", dialect: domain.DialectDuckDB, table: "users", want: `TRUNCATE "users"`},
		{name: "postgres_schema", dialect: domain.DialectPostgres, table: "public.users", want: `TRUNCATE "public"."users"`},
		{name: "redshift_uses_delete", dialect: domain.DialectRedshift, table: "users", want: `DELETE FROM "users"`},
		{name: "unknown_dialect", dialect: "oracle", table: "users", wantErr: "unsupported dialect"},
		{name: "invalid_table", dialect: domain.DialectDuckDB, table: "users;--", wantErr: "invalid table name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClearTable(tt.dialect, tt.table)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInsertSelect(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		sel     string
		want    string
		wantErr string
	}{
		{
			name:  "valid",
			table: "songs",
			sel:   "SELECT DISTINCT song_id FROM staging_songs",
			want:  "INSERT INTO \"songs\"\nSELECT DISTINCT song_id FROM staging_songs",
		},
		{
			name:  "strips_trailing_semicolon",
			table: "songs",
			sel:   "  SELECT 1;  \n",
			want:  "INSERT INTO \"songs\"\nSELECT 1",
		},
		{name: "empty_select", table: "songs", sel: " ; ", wantErr: "select statement is required"},
		{name: "invalid_table", table: "", sel: "SELECT 1", wantErr: "invalid table name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InsertSelect(tt.table, tt.sel)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountQueries(t *testing.T) {
	got, err := CountRows("songplays")
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS row_count FROM "songplays"`, got)

	got, err = CountNulls("users", "first_name")
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS null_count FROM "users" WHERE "first_name" IS NULL`, got)

	_, err = CountNulls("users", "first name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")

	_, err = CountRows("a.b.c")
	require.Error(t, err)
}
