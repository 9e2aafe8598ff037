package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
)

func TestExpression(t *testing.T) {
	rs := &domain.ResultSet{
		Columns: []string{"N", "Ratio", "label", "missing"},
		Rows:    [][]any{{int64(120), 0.25, "ok", nil}},
	}

	tests := []struct {
		name string
		expr string
		rs   *domain.ResultSet
		want bool
	}{
		{name: "integer comparison", expr: "n >= 100", rs: rs, want: true},
		{name: "float comparison", expr: "ratio < 0.1", rs: rs, want: false},
		{name: "string and null", expr: "label == 'ok' and missing == None", rs: rs, want: true},
		{name: "row count", expr: "row_count == 1", rs: rs, want: true},
		{name: "no rows", expr: "row_count > 0", rs: &domain.ResultSet{Columns: []string{"n"}}, want: false},
		{name: "unknown name fails", expr: "nope > 1", rs: rs, want: false},
		{name: "non bool fails", expr: "n + 1", rs: rs, want: false},
		{name: "runaway loop fails", expr: "len([x for x in range(1000000)]) > 0", rs: rs, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Expression("custom", "SELECT 1", tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.Predicate(tc.rs))
		})
	}
}

func TestExpression_Rejects(t *testing.T) {
	_, err := Expression("bad", "SELECT 1", "n >=")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = Expression("noquery", " ", "true")
	require.ErrorAs(t, err, &ve)
}
