package domain

import "time"

// CredentialType identifies the object store a credential is for.
type CredentialType string

// Supported credential types.
const (
	CredentialTypeS3    CredentialType = "S3"
	CredentialTypeAzure CredentialType = "AZURE"
	CredentialTypeGCS   CredentialType = "GCS"
)

// StorageCredential holds object store credentials.
// Sensitive fields are stored encrypted at rest and decrypted in memory.
type StorageCredential struct {
	ID             string
	Name           string
	CredentialType CredentialType

	// S3 fields
	KeyID        string
	Secret       string
	SessionToken string
	Endpoint     string
	Region       string
	URLStyle     string // "path" or "vhost"

	// Azure fields
	AzureAccountName string
	AzureAccountKey  string

	// GCS fields
	GCSKeyFilePath string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks that the fields required by the credential type are set.
func (c *StorageCredential) Validate() error {
	if c.Name == "" {
		return ErrValidation("credential name is required")
	}
	switch c.CredentialType {
	case CredentialTypeS3:
		if (c.KeyID == "") != (c.Secret == "") {
			return ErrValidation("credential %s: key_id and secret must be set together", c.Name)
		}
	case CredentialTypeAzure:
		if c.AzureAccountName == "" || c.AzureAccountKey == "" {
			return ErrValidation("credential %s: azure account name and key are required", c.Name)
		}
	case CredentialTypeGCS:
		if c.GCSKeyFilePath == "" {
			return ErrValidation("credential %s: gcs key file path is required", c.Name)
		}
	default:
		return ErrValidation("credential %s: unsupported type %q", c.Name, c.CredentialType)
	}
	return nil
}
