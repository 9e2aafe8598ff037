package source

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"duckflow/internal/domain"
)

// AzureBackend probes az:// locations. The storage account comes from the
// credential.
type AzureBackend struct{}

// NewAzureBackend creates an Azure backend.
func NewAzureBackend() *AzureBackend { return &AzureBackend{} }

// Exists implements Backend.
func (AzureBackend) Exists(ctx context.Context, loc Location, cred *domain.StorageCredential) (bool, error) {
	if cred == nil || cred.AzureAccountName == "" {
		return false, fmt.Errorf("azure locations require a credential with an account name")
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cred.AzureAccountName)

	var (
		client *azblob.Client
		err    error
	)
	if cred.AzureAccountKey != "" {
		sharedKeyCred, kerr := azblob.NewSharedKeyCredential(cred.AzureAccountName, cred.AzureAccountKey)
		if kerr != nil {
			return false, fmt.Errorf("create shared key credential: %w", kerr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, sharedKeyCred, nil)
	} else {
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	}
	if err != nil {
		return false, fmt.Errorf("create Azure blob client: %w", err)
	}

	maxResults := int32(1)
	pager := client.NewListBlobsFlatPager(loc.Bucket, &azblob.ListBlobsFlatOptions{
		Prefix:     &loc.Prefix,
		MaxResults: &maxResults,
	})
	if !pager.More() {
		return false, nil
	}
	page, err := pager.NextPage(ctx)
	if err != nil {
		return false, fmt.Errorf("list az://%s/%s: %w", loc.Bucket, loc.Prefix, err)
	}
	return page.Segment != nil && len(page.Segment.BlobItems) > 0, nil
}
