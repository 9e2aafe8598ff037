package sqltemplate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
)

func TestRender_SQL(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		params  MapParams
		want    string
		wantErr string
	}{
		{
			name:   "literal",
			text:   "SELECT * FROM events WHERE ds = {ds}",
			params: MapParams{"ds": "2018-11-01"},
			want:   "SELECT * FROM events WHERE ds = '2018-11-01'",
		},
		{
			name:   "literal escapes quotes",
			text:   "SELECT {name}",
			params: MapParams{"name": "O'Brien"},
			want:   "SELECT 'O''Brien'",
		},
		{
			name:   "identifier",
			text:   "SELECT COUNT(*) FROM {table:ident}",
			params: MapParams{"table": "public.songs"},
			want:   `SELECT COUNT(*) FROM "public"."songs"`,
		},
		{
			name:    "identifier injection rejected",
			text:    "SELECT COUNT(*) FROM {table:ident}",
			params:  MapParams{"table": "songs; DROP TABLE users"},
			wantErr: "must match",
		},
		{
			name:    "missing parameter",
			text:    "SELECT {year}",
			params:  MapParams{},
			wantErr: "missing parameter",
		},
		{
			name:   "non-placeholder braces kept",
			text:   "SELECT '{not a param}', {{x}",
			params: MapParams{},
			want:   "SELECT '{not a param}', {x}",
		},
		{
			name:   "no placeholders",
			text:   "SELECT 1",
			params: nil,
			want:   "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse("q", KindSQL, tt.text)
			require.NoError(t, err)

			got, err := tmpl.Render(tt.params)
			if tt.wantErr != "" {
				require.Error(t, err)
				var resErr *domain.TemplateResolutionError
				require.ErrorAs(t, err, &resErr)
				assert.Equal(t, "q", resErr.Template)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_Location(t *testing.T) {
	tmpl, err := Parse("log_data", KindLocation, "s3://udacity-dend/log_data/{year}/{month}/")
	require.NoError(t, err)
	assert.Equal(t, []string{"month", "year"}, tmpl.Params())

	ec, err := domain.NewExecutionContext("run-1", "sparkify", time.Date(2018, time.November, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)

	got, err := tmpl.Render(ec)
	require.NoError(t, err)
	assert.Equal(t, "s3://udacity-dend/log_data/2018/11/", got)

	_, err = tmpl.Render(MapParams{"year": "2018", "month": "../secrets"})
	var resErr *domain.TemplateResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "month", resErr.Param)

	_, err = tmpl.Render(MapParams{"year": "2018", "month": "a/b"})
	require.ErrorAs(t, err, &resErr)
}

func TestParse_RejectsIdentInLocation(t *testing.T) {
	_, err := Parse("loc", KindLocation, "s3://b/{table:ident}/")
	var resErr *domain.TemplateResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestParse_RequiresName(t *testing.T) {
	_, err := Parse("", KindSQL, "SELECT 1")
	var valErr *domain.ValidationError
	require.ErrorAs(t, err, &valErr)
}
