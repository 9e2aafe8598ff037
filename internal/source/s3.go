package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"duckflow/internal/domain"
)

const defaultS3Region = "us-east-1"

// S3API is the subset of the S3 client used for probing.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend probes s3:// locations.
type S3Backend struct {
	newClient func(cred *domain.StorageCredential) S3API
}

// NewS3Backend creates an S3 backend. A nil newClient builds real clients
// with NewS3Client.
func NewS3Backend(newClient func(cred *domain.StorageCredential) S3API) *S3Backend {
	if newClient == nil {
		newClient = func(cred *domain.StorageCredential) S3API { return NewS3Client(cred) }
	}
	return &S3Backend{newClient: newClient}
}

// NewS3Client builds an S3 client from a stored credential. A nil credential
// or one without keys gives anonymous access.
func NewS3Client(cred *domain.StorageCredential) *s3.Client {
	opts := s3.Options{
		Region:      defaultS3Region,
		Credentials: aws.AnonymousCredentials{},
	}
	if cred == nil {
		return s3.New(opts)
	}
	if cred.Region != "" {
		opts.Region = cred.Region
	}
	if cred.KeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cred.KeyID, cred.Secret, cred.SessionToken)
	}
	if cred.Endpoint != "" {
		endpoint := cred.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = fmt.Sprintf("https://%s", endpoint)
		}
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = cred.URLStyle != "vhost"
	}
	return s3.New(opts)
}

// Exists implements Backend.
func (b *S3Backend) Exists(ctx context.Context, loc Location, cred *domain.StorageCredential) (bool, error) {
	out, err := b.newClient(cred).ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(loc.Bucket),
		Prefix:  aws.String(loc.Prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list s3://%s/%s: %w", loc.Bucket, loc.Prefix, err)
	}
	return len(out.Contents) > 0, nil
}
