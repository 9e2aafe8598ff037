package source

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
)

type fakeS3 struct {
	contents []types.Object
	err      error
	gotInput *s3.ListObjectsV2Input
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.gotInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.ListObjectsV2Output{Contents: f.contents}, nil
}

func newS3Prober(api *fakeS3, gotCred **domain.StorageCredential) *Prober {
	return NewProberWithBackends(slog.New(slog.DiscardHandler), map[string]Backend{
		SchemeS3: NewS3Backend(func(cred *domain.StorageCredential) S3API {
			if gotCred != nil {
				*gotCred = cred
			}
			return api
		}),
		SchemeFile: FileBackend{},
	})
}

func TestProbe_S3(t *testing.T) {
	ctx := context.Background()

	t.Run("objects present", func(t *testing.T) {
		api := &fakeS3{contents: []types.Object{{Key: aws.String("log_data/2018/11/a.json")}}}
		var gotCred *domain.StorageCredential
		cred := &domain.StorageCredential{Name: "aws", KeyID: "k", Secret: "s"}

		err := newS3Prober(api, &gotCred).Probe(ctx, "s3://udacity-dend/log_data/2018/11/", cred)
		require.NoError(t, err)
		assert.Same(t, cred, gotCred)
		assert.Equal(t, "udacity-dend", aws.ToString(api.gotInput.Bucket))
		assert.Equal(t, "log_data/2018/11/", aws.ToString(api.gotInput.Prefix))
		assert.Equal(t, int32(1), aws.ToInt32(api.gotInput.MaxKeys))
	})

	t.Run("empty prefix", func(t *testing.T) {
		err := newS3Prober(&fakeS3{}, nil).Probe(ctx, "s3://b/missing/", nil)
		var srcErr *domain.SourceUnavailableError
		require.ErrorAs(t, err, &srcErr)
		assert.Equal(t, "s3://b/missing/", srcErr.URI)
	})

	t.Run("access denied", func(t *testing.T) {
		denied := errors.New("AccessDenied")
		err := newS3Prober(&fakeS3{err: denied}, nil).Probe(ctx, "s3://b/p/", nil)
		var srcErr *domain.SourceUnavailableError
		require.ErrorAs(t, err, &srcErr)
		assert.ErrorIs(t, err, denied)
	})
}

func TestProbe_File(t *testing.T) {
	ctx := context.Background()
	p := newS3Prober(&fakeS3{}, nil)

	dir := t.TempDir()
	nested := filepath.Join(dir, "log_data", "2018", "11")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "events.json"), []byte(`{}`), 0o644))

	require.NoError(t, p.Probe(ctx, filepath.Join(dir, "log_data")+"/", nil))
	require.NoError(t, p.Probe(ctx, filepath.Join(nested, "events.json"), nil))
	require.NoError(t, p.Probe(ctx, filepath.Join(nested, "*.json"), nil))
	require.NoError(t, p.Probe(ctx, "file://"+nested, nil))

	var srcErr *domain.SourceUnavailableError
	require.ErrorAs(t, p.Probe(ctx, filepath.Join(dir, "empty"), nil), &srcErr)
	require.ErrorAs(t, p.Probe(ctx, filepath.Join(dir, "nope"), nil), &srcErr)
	require.ErrorAs(t, p.Probe(ctx, filepath.Join(nested, "*.csv"), nil), &srcErr)
}

func TestProbe_UnsupportedScheme(t *testing.T) {
	p := newS3Prober(&fakeS3{}, nil)

	err := p.Probe(context.Background(), "gs://bucket/p", nil)
	var valErr *domain.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, err.Error(), "no source backend")

	err = p.Probe(context.Background(), "ftp://host/p", nil)
	require.ErrorAs(t, err, &valErr)
}

func TestNewS3Client_Options(t *testing.T) {
	c := NewS3Client(&domain.StorageCredential{KeyID: "k", Secret: "s", Region: "eu-central-1", Endpoint: "fsn1.example.com"})
	opts := c.Options()
	assert.Equal(t, "eu-central-1", opts.Region)
	assert.Equal(t, "https://fsn1.example.com", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
	require.NotNil(t, opts.Credentials)
	creds, err := opts.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k", creds.AccessKeyID)
	assert.Equal(t, "s", creds.SecretAccessKey)

	// Anonymous clients carry no provider, so requests go unsigned.
	anon := NewS3Client(nil).Options()
	assert.Equal(t, defaultS3Region, anon.Region)
	assert.Nil(t, anon.Credentials)

	regionOnly := NewS3Client(&domain.StorageCredential{Region: "us-west-2"}).Options()
	assert.Equal(t, "us-west-2", regionOnly.Region)
	assert.Nil(t, regionOnly.Credentials)
}
