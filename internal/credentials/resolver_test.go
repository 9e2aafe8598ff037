package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckflow/internal/domain"
	"duckflow/internal/testutil"
)

func TestStatic_Resolve(t *testing.T) {
	s := NewStatic(domain.StorageCredential{Name: "aws_credentials", CredentialType: domain.CredentialTypeS3, KeyID: "id"})
	s.Set(domain.StorageCredential{Name: "gcs", CredentialType: domain.CredentialTypeGCS})

	tests := []struct {
		name     string
		ref      string
		wantNil  bool
		wantErr  bool
		wantType domain.CredentialType
	}{
		{name: "empty ref is anonymous", ref: "", wantNil: true},
		{name: "known", ref: "aws_credentials", wantType: domain.CredentialTypeS3},
		{name: "added later", ref: "gcs", wantType: domain.CredentialTypeGCS},
		{name: "unknown", ref: "nope", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := s.Resolve(context.Background(), tc.ref)
			if tc.wantErr {
				var nf *domain.NotFoundError
				require.ErrorAs(t, err, &nf)
				return
			}
			require.NoError(t, err)
			if tc.wantNil {
				assert.Nil(t, cred)
				return
			}
			assert.Equal(t, tc.wantType, cred.CredentialType)
		})
	}
	assert.Equal(t, []string{"aws_credentials", "gcs"}, s.Names())
}

func TestRepositoryResolver(t *testing.T) {
	repo := &testutil.MockCredentialRepository{
		GetByNameFn: func(_ context.Context, name string) (*domain.StorageCredential, error) {
			if name == "lake" {
				return &domain.StorageCredential{Name: "lake"}, nil
			}
			return nil, domain.ErrNotFound("storage credential %q not found", name)
		},
	}
	r := NewRepositoryResolver(repo)

	cred, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, cred)

	cred, err = r.Resolve(context.Background(), "lake")
	require.NoError(t, err)
	assert.Equal(t, "lake", cred.Name)
}

func TestChain(t *testing.T) {
	boom := errors.New("metastore down")
	static := NewStatic(domain.StorageCredential{Name: "env"})
	failing := &testutil.MockCredentialResolver{
		ResolveFn: func(_ context.Context, ref string) (*domain.StorageCredential, error) {
			if ref == "broken" {
				return nil, boom
			}
			return nil, domain.ErrNotFound("credential %q not found", ref)
		},
	}
	chain := Chain{failing, static}

	cred, err := chain.Resolve(context.Background(), "env")
	require.NoError(t, err)
	assert.Equal(t, "env", cred.Name)

	_, err = chain.Resolve(context.Background(), "broken")
	require.ErrorIs(t, err, boom)

	_, err = chain.Resolve(context.Background(), "missing")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}
