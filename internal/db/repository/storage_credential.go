package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"duckflow/internal/db/crypto"
	"duckflow/internal/domain"
)

// Compile-time check.
var _ domain.StorageCredentialRepository = (*StorageCredentialRepo)(nil)

// StorageCredentialRepo implements StorageCredentialRepository using SQLite.
// Sensitive fields are sealed with the Encryptor before they are written.
type StorageCredentialRepo struct {
	db  *sql.DB
	enc *crypto.Encryptor
	now func() time.Time
}

// NewStorageCredentialRepo creates a new StorageCredentialRepo.
func NewStorageCredentialRepo(db *sql.DB, enc *crypto.Encryptor) *StorageCredentialRepo {
	return &StorageCredentialRepo{db: db, enc: enc, now: time.Now}
}

const credentialColumns = `id, name, credential_type, key_id_encrypted, secret_encrypted,
	session_token_encrypted, endpoint, region, url_style, azure_account_name,
	azure_account_key_encrypted, gcs_key_file_path, created_at, updated_at`

type sealedFields struct {
	keyID, secret, sessionToken, azureKey string
}

func (r *StorageCredentialRepo) seal(cred *domain.StorageCredential) (sealedFields, error) {
	var (
		out sealedFields
		err error
	)
	fields := []struct {
		label string
		in    string
		out   *string
	}{
		{"key_id", cred.KeyID, &out.keyID},
		{"secret", cred.Secret, &out.secret},
		{"session_token", cred.SessionToken, &out.sessionToken},
		{"azure_account_key", cred.AzureAccountKey, &out.azureKey},
	}
	for _, f := range fields {
		if *f.out, err = r.enc.Seal(cred.Name+"/"+f.label, f.in); err != nil {
			return sealedFields{}, fmt.Errorf("seal %s: %w", f.label, err)
		}
	}
	return out, nil
}

// Upsert creates the credential or replaces the one with the same name.
func (r *StorageCredentialRepo) Upsert(ctx context.Context, cred *domain.StorageCredential) (*domain.StorageCredential, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	sealed, err := r.seal(cred)
	if err != nil {
		return nil, err
	}
	now := formatTime(r.now())

	_, err = r.db.ExecContext(ctx, `INSERT INTO storage_credentials
		(id, name, credential_type, key_id_encrypted, secret_encrypted, session_token_encrypted,
		 endpoint, region, url_style, azure_account_name, azure_account_key_encrypted,
		 gcs_key_file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			credential_type = excluded.credential_type,
			key_id_encrypted = excluded.key_id_encrypted,
			secret_encrypted = excluded.secret_encrypted,
			session_token_encrypted = excluded.session_token_encrypted,
			endpoint = excluded.endpoint,
			region = excluded.region,
			url_style = excluded.url_style,
			azure_account_name = excluded.azure_account_name,
			azure_account_key_encrypted = excluded.azure_account_key_encrypted,
			gcs_key_file_path = excluded.gcs_key_file_path,
			updated_at = excluded.updated_at`,
		domain.NewID(), cred.Name, string(cred.CredentialType), sealed.keyID, sealed.secret, sealed.sessionToken,
		cred.Endpoint, cred.Region, cred.URLStyle, cred.AzureAccountName, sealed.azureKey,
		cred.GCSKeyFilePath, now, now)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByName(ctx, cred.Name)
}

// GetByName returns a decrypted credential by name.
func (r *StorageCredentialRepo) GetByName(ctx context.Context, name string) (*domain.StorageCredential, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM storage_credentials WHERE name = ?`, name)
	cred, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound("storage credential %q not found", name)
		}
		return nil, err
	}
	return cred, nil
}

// List returns a paginated list of decrypted credentials ordered by name.
func (r *StorageCredentialRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.StorageCredential, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM storage_credentials`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM storage_credentials
		ORDER BY name LIMIT ? OFFSET ?`, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.StorageCredential, 0)
	for rows.Next() {
		cred, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *cred)
	}
	return out, total, rows.Err()
}

// Delete removes a credential by name.
func (r *StorageCredentialRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM storage_credentials WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("storage credential %q not found", name)
	}
	return nil
}

func (r *StorageCredentialRepo) scan(s rowScanner) (*domain.StorageCredential, error) {
	var (
		cred                 domain.StorageCredential
		credType             string
		sealed               sealedFields
		createdAt, updatedAt string
	)
	if err := s.Scan(&cred.ID, &cred.Name, &credType, &sealed.keyID, &sealed.secret, &sealed.sessionToken,
		&cred.Endpoint, &cred.Region, &cred.URLStyle, &cred.AzureAccountName, &sealed.azureKey,
		&cred.GCSKeyFilePath, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	cred.CredentialType = domain.CredentialType(credType)
	cred.CreatedAt = parseTime(createdAt)
	cred.UpdatedAt = parseTime(updatedAt)

	var err error
	fields := []struct {
		label string
		in    string
		out   *string
	}{
		{"key_id", sealed.keyID, &cred.KeyID},
		{"secret", sealed.secret, &cred.Secret},
		{"session_token", sealed.sessionToken, &cred.SessionToken},
		{"azure_account_key", sealed.azureKey, &cred.AzureAccountKey},
	}
	for _, f := range fields {
		if *f.out, err = r.enc.Open(cred.Name+"/"+f.label, f.in); err != nil {
			return nil, err
		}
	}
	return &cred, nil
}
