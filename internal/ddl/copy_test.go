package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
)

func TestBulkCopy_Redshift(t *testing.T) {
	cred := &domain.StorageCredential{
		CredentialType: domain.CredentialTypeS3,
		KeyID:          "AKIAEXAMPLE",
		Secret:         "s3cr3t",
		Region:         "us-west-2",
	}

	tests := []struct {
		name string
		spec CopySpec
		want string
	}{
		{
			name: "csv_emits_delimiter_and_header",
			spec: CopySpec{
				Table:        "staging_songs",
				Location:     "s3://udacity-dend/song_data/",
				Format:       domain.DataFormatCSV,
				Delimiter:    "|",
				IgnoreHeader: 1,
				Credential:   cred,
			},
			want: "COPY \"staging_songs\"\n" +
				"FROM 's3://udacity-dend/song_data/'\n" +
				"ACCESS_KEY_ID 'AKIAEXAMPLE'\n" +
				"SECRET_ACCESS_KEY 's3cr3t'\n" +
				"REGION 'us-west-2'\n" +
				"FORMAT AS CSV\n" +
				"DELIMITER '|'\n" +
				"IGNOREHEADER 1",
		},
		{
			name: "json_paths_with_options_and_default_role",
			spec: CopySpec{
				Table:     "staging_events",
				Location:  "s3://udacity-dend/log_data/2018/11/",
				Format:    domain.DataFormatJSON,
				JSONPaths: "s3://udacity-dend/log_json_path.json",
				Options:   []domain.CopyOption{{Key: "timeformat", Value: "epochmillisecs"}, {Key: "BLANKSASNULL"}},
			},
			want: "COPY \"staging_events\"\n" +
				"FROM 's3://udacity-dend/log_data/2018/11/'\n" +
				"IAM_ROLE default\n" +
				"FORMAT AS JSON 's3://udacity-dend/log_json_path.json'\n" +
				"TIMEFORMAT 'epochmillisecs'\n" +
				"BLANKSASNULL",
		},
		{
			name: "numeric_option_unquoted",
			spec: CopySpec{
				Table:    "staging_events",
				Location: "s3://b/log_data/",
				Format:   domain.DataFormatJSON,
				Options:  []domain.CopyOption{{Key: "MAXERROR", Value: "10"}, {Key: "TIMEFORMAT", Value: "auto"}},
			},
			want: "COPY \"staging_events\"\n" +
				"FROM 's3://b/log_data/'\n" +
				"IAM_ROLE default\n" +
				"FORMAT AS JSON 'auto'\n" +
				"MAXERROR 10\n" +
				"TIMEFORMAT 'auto'",
		},
		{
			name: "json_defaults_to_auto",
			spec: CopySpec{Table: "staging_songs", Location: "s3://b/song_data/", Format: domain.DataFormatJSON},
			want: "COPY \"staging_songs\"\n" +
				"FROM 's3://b/song_data/'\n" +
				"IAM_ROLE default\n" +
				"FORMAT AS JSON 'auto'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BulkCopy(domain.DialectRedshift, tt.spec)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestBulkCopy_DuckDB(t *testing.T) {
	t.Run("csv_prefix_expands_to_glob", func(t *testing.T) {
		got, err := BulkCopy(domain.DialectDuckDB, CopySpec{
			Table:        "staging_songs",
			Location:     "data/song_data/",
			Format:       domain.DataFormatCSV,
			IgnoreHeader: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			`INSERT INTO "staging_songs" SELECT * FROM read_csv('data/song_data/**/*.csv', delim=',', header=false, skip=1)`,
		}, got)
	})

	t.Run("numeric_option_unquoted", func(t *testing.T) {
		got, err := BulkCopy(domain.DialectDuckDB, CopySpec{
			Table:    "staging_songs",
			Location: "data/songs.csv",
			Format:   domain.DataFormatCSV,
			Options:  []domain.CopyOption{{Key: "sample_size", Value: "20480"}, {Key: "dateformat", Value: "%Y-%m-%d"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			`INSERT INTO "staging_songs" SELECT * FROM read_csv('data/songs.csv', delim=',', header=false, sample_size=20480, dateformat='%Y-%m-%d')`,
		}, got)
	})

	t.Run("json_file_by_name", func(t *testing.T) {
		got, err := BulkCopy(domain.DialectDuckDB, CopySpec{
			Table:     "staging_events",
			Location:  "data/events.json",
			Format:    domain.DataFormatJSON,
			JSONPaths: domain.JSONPathsAuto,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			`INSERT INTO "staging_events" BY NAME SELECT * FROM read_json_auto('data/events.json')`,
		}, got)
	})

	t.Run("s3_credentials_create_scoped_secret", func(t *testing.T) {
		got, err := BulkCopy(domain.DialectDuckDB, CopySpec{
			Table:    "staging_events",
			Location: "s3://bucket/log_data/",
			Format:   domain.DataFormatJSON,
			Credential: &domain.StorageCredential{
				CredentialType: domain.CredentialTypeS3,
				KeyID:          "AKIA",
				Secret:         "shh",
				Region:         "us-west-2",
			},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Contains(t, got[0], `CREATE OR REPLACE TEMPORARY SECRET "duckflow_staging_events"`)
		assert.Contains(t, got[0], "KEY_ID 'AKIA'")
		assert.Contains(t, got[0], "SCOPE 's3://bucket/log_data/'")
		assert.Contains(t, got[1], "read_json_auto('s3://bucket/log_data/**/*.json')")
	})

	t.Run("jsonpaths_file_rejected", func(t *testing.T) {
		_, err := BulkCopy(domain.DialectDuckDB, CopySpec{
			Table:     "staging_events",
			Location:  "data/",
			Format:    domain.DataFormatJSON,
			JSONPaths: "s3://b/paths.json",
		})
		var valErr *domain.ValidationError
		require.ErrorAs(t, err, &valErr)
	})
}

func TestBulkCopy_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		dialect domain.Dialect
		spec    CopySpec
		wantErr string
	}{
		{"postgres", domain.DialectPostgres, CopySpec{Table: "t", Location: "s3://b/p", Format: domain.DataFormatCSV}, "not supported by the postgres dialect"},
		{"missing location", domain.DialectRedshift, CopySpec{Table: "t", Format: domain.DataFormatCSV}, "location is required"},
		{"bad option key", domain.DialectRedshift, CopySpec{Table: "t", Location: "s3://b/p", Format: domain.DataFormatCSV, Options: []domain.CopyOption{{Key: "X; DROP"}}}, "invalid option key"},
		{"bad format", domain.DialectRedshift, CopySpec{Table: "t", Location: "s3://b/p", Format: "avro"}, "unsupported format"},
		{"bad table", domain.DialectDuckDB, CopySpec{Table: "t t", Location: "s3://b/p", Format: domain.DataFormatCSV}, "must match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BulkCopy(tt.dialect, tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedact(t *testing.T) {
	cred := &domain.StorageCredential{KeyID: "AKIA", Secret: "it's-secret", SessionToken: "tok"}
	stmt := "ACCESS_KEY_ID 'AKIA' SECRET_ACCESS_KEY 'it''s-secret' SESSION_TOKEN 'tok'"

	got := Redact(stmt, cred)
	assert.Equal(t, "ACCESS_KEY_ID '***' SECRET_ACCESS_KEY '***' SESSION_TOKEN '***'", got)
	assert.Equal(t, stmt, Redact(stmt, nil))
}
