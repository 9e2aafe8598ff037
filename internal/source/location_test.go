package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Location
		wantErr string
	}{
		{
			name: "s3 prefix",
			raw:  "s3://udacity-dend/log_data/2018/11/",
			want: Location{Raw: "s3://udacity-dend/log_data/2018/11/", Scheme: SchemeS3, Bucket: "udacity-dend", Prefix: "log_data/2018/11/"},
		},
		{
			name: "s3 bucket root",
			raw:  "s3://bucket",
			want: Location{Raw: "s3://bucket", Scheme: SchemeS3, Bucket: "bucket"},
		},
		{
			name: "gcs",
			raw:  "gs://b/song_data",
			want: Location{Raw: "gs://b/song_data", Scheme: SchemeGCS, Bucket: "b", Prefix: "song_data"},
		},
		{
			name: "azure alias",
			raw:  "azure://container/p/",
			want: Location{Raw: "azure://container/p/", Scheme: SchemeAzure, Bucket: "container", Prefix: "p/"},
		},
		{
			name: "file url",
			raw:  "file:///data/songs",
			want: Location{Raw: "file:///data/songs", Scheme: SchemeFile, Prefix: "/data/songs"},
		},
		{
			name: "bare path",
			raw:  "testdata/events/*.json",
			want: Location{Raw: "testdata/events/*.json", Scheme: SchemeFile, Prefix: "testdata/events/*.json"},
		},
		{name: "empty", raw: "", wantErr: "location is required"},
		{name: "unsupported scheme", raw: "ftp://host/x", wantErr: "unsupported scheme"},
		{name: "missing bucket", raw: "s3:///x", wantErr: "empty bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
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
