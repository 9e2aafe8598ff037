package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		// Valid cases
		{name: "simple", input: "songplays"},
		{name: "underscore_prefix", input: "_temp"},
		{name: "mixed_case", input: "SongPlays"},
		{name: "with_digits", input: "staging_events2"},
		{name: "max_length", input: strings.Repeat("a", 128)},

		// Invalid cases
		{name: "empty", input: "", wantErr: "name is required"},
		{name: "too_long", input: strings.Repeat("a", 129), wantErr: "at most 128 characters"},
		{name: "starts_with_digit", input: "1table", wantErr: "must match"},
		{name: "contains_space", input: "my table", wantErr: "must match"},
		{name: "contains_hyphen", input: "my-table", wantErr: "must match"},
		{name: "contains_dot", input: "schema.table", wantErr: "must match"},
		{name: "contains_semicolon", input: "foo;bar", wantErr: "must match"},
		{name: "contains_quote", input: `foo"bar`, wantErr: "must match"},
		{name: "sql_injection", input: "foo; DROP TABLE", wantErr: "must match"},
		{name: "contains_paren", input: "foo()", wantErr: "must match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "users", want: `"users"`},
		{name: "with_double_quote", input: `my"table`, want: `"my""table"`},
		{name: "multiple_quotes", input: `a"b"c`, want: `"a""b""c"`},
		{name: "empty", input: "", want: `""`},
		{name: "uppercase", input: "Users", want: `"Users"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuoteIdentifier(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoteLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "hello", want: "'hello'"},
		{name: "with_single_quote", input: "it's", want: "'it''s'"},
		{name: "multiple_quotes", input: "a'b'c", want: "'a''b''c'"},
		{name: "empty", input: "", want: "''"},
		{name: "with_backslash", input: `path\to\file`, want: `'path\to\file'`},
		{name: "s3_path", input: "s3://bucket/path", want: "'s3://bucket/path'"},
		{name: "path_with_quote", input: "/tmp/it's here/db", want: "'/tmp/it''s here/db'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuoteLiteral(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQualifiedName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "table", input: "songplays", want: `"songplays"`},
		{name: "schema_table", input: "public.users", want: `"public"."users"`},
		{name: "three_parts", input: "db.public.users", wantErr: "at most schema.table"},
		{name: "empty", input: "", wantErr: "name is required"},
		{name: "empty_schema", input: ".users", wantErr: "name is required"},
		{name: "injection", input: `users"; DROP TABLE x; --`, wantErr: "must match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QualifiedName(tt.input)
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
