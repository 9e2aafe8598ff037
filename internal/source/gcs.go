package source

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"duckflow/internal/domain"
)

// GCSBackend probes gs:// locations.
type GCSBackend struct{}

// NewGCSBackend creates a GCS backend.
func NewGCSBackend() *GCSBackend { return &GCSBackend{} }

// Exists implements Backend. Credentials name a service-account key file;
// without one the bucket is read anonymously.
func (GCSBackend) Exists(ctx context.Context, loc Location, cred *domain.StorageCredential) (bool, error) {
	opt := option.WithoutAuthentication()
	if cred != nil && cred.GCSKeyFilePath != "" {
		opt = option.WithAuthCredentialsFile(option.ServiceAccount, cred.GCSKeyFilePath)
	}
	client, err := storage.NewClient(ctx, opt)
	if err != nil {
		return false, fmt.Errorf("create GCS client: %w", err)
	}
	defer client.Close() //nolint:errcheck

	it := client.Bucket(loc.Bucket).Objects(ctx, &storage.Query{Prefix: loc.Prefix})
	if _, err := it.Next(); err != nil {
		if errors.Is(err, iterator.Done) {
			return false, nil
		}
		return false, fmt.Errorf("list gs://%s/%s: %w", loc.Bucket, loc.Prefix, err)
	}
	return true, nil
}
