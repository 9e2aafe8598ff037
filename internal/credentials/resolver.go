// Package credentials resolves the opaque credential references carried by
// staging tasks into storage credentials.
package credentials

import (
	"context"
	"errors"
	"sort"
	"sync"

	"duckflow/internal/domain"
)

var (
	_ domain.CredentialResolver = (*Static)(nil)
	_ domain.CredentialResolver = (*RepositoryResolver)(nil)
	_ domain.CredentialResolver = Chain(nil)
)

// Static resolves references from an in-memory set, typically built from
// the process environment at startup.
type Static struct {
	mu    sync.RWMutex
	creds map[string]domain.StorageCredential
}

// NewStatic creates a Static resolver holding creds keyed by name.
func NewStatic(creds ...domain.StorageCredential) *Static {
	s := &Static{creds: make(map[string]domain.StorageCredential, len(creds))}
	for _, c := range creds {
		s.creds[c.Name] = c
	}
	return s
}

// Set adds or replaces a credential.
func (s *Static) Set(cred domain.StorageCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Name] = cred
}

// Names returns the known credential names, sorted.
func (s *Static) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.creds))
	for n := range s.creds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve implements domain.CredentialResolver.
func (s *Static) Resolve(_ context.Context, ref string) (*domain.StorageCredential, error) {
	if ref == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[ref]
	if !ok {
		return nil, domain.ErrNotFound("credential %q not found", ref)
	}
	return &c, nil
}

// RepositoryResolver resolves references against the encrypted metastore.
type RepositoryResolver struct {
	repo domain.StorageCredentialRepository
}

// NewRepositoryResolver creates a resolver backed by repo.
func NewRepositoryResolver(repo domain.StorageCredentialRepository) *RepositoryResolver {
	return &RepositoryResolver{repo: repo}
}

// Resolve implements domain.CredentialResolver.
func (r *RepositoryResolver) Resolve(ctx context.Context, ref string) (*domain.StorageCredential, error) {
	if ref == "" {
		return nil, nil
	}
	return r.repo.GetByName(ctx, ref)
}

// Chain tries each resolver in order, moving on when one reports NotFound.
type Chain []domain.CredentialResolver

// Resolve implements domain.CredentialResolver.
func (c Chain) Resolve(ctx context.Context, ref string) (*domain.StorageCredential, error) {
	if ref == "" {
		return nil, nil
	}
	for _, r := range c {
		cred, err := r.Resolve(ctx, ref)
		if err == nil {
			return cred, nil
		}
		var nf *domain.NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}
	return nil, domain.ErrNotFound("credential %q not found", ref)
}
