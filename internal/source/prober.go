package source

import (
	"context"
	"errors"
	"log/slog"

	"duckflow/internal/domain"
)

var _ domain.SourceProber = (*Prober)(nil)

// errNoObjects reports an existing bucket with nothing under the prefix.
var errNoObjects = errors.New("no objects found under prefix")

// Backend checks a single location scheme.
type Backend interface {
	// Exists reports whether at least one object lives under loc.
	Exists(ctx context.Context, loc Location, cred *domain.StorageCredential) (bool, error)
}

// Prober dispatches probes to the backend registered for the location scheme.
type Prober struct {
	backends map[string]Backend
	logger   *slog.Logger
}

// NewProber creates a Prober with the S3, GCS, Azure and filesystem backends.
func NewProber(logger *slog.Logger) *Prober {
	return NewProberWithBackends(logger, map[string]Backend{
		SchemeS3:    NewS3Backend(nil),
		SchemeGCS:   NewGCSBackend(),
		SchemeAzure: NewAzureBackend(),
		SchemeFile:  FileBackend{},
	})
}

// NewProberWithBackends creates a Prober with explicit backends.
func NewProberWithBackends(logger *slog.Logger, backends map[string]Backend) *Prober {
	return &Prober{backends: backends, logger: logger}
}

// Probe implements domain.SourceProber. A missing, empty or unauthorized
// location yields a SourceUnavailableError.
func (p *Prober) Probe(ctx context.Context, location string, cred *domain.StorageCredential) error {
	loc, err := ParseLocation(location)
	if err != nil {
		return domain.ErrValidation("%v", err)
	}
	b, ok := p.backends[loc.Scheme]
	if !ok {
		return domain.ErrValidation("no source backend for scheme %q", loc.Scheme)
	}

	found, err := b.Exists(ctx, loc, cred)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug("source probe failed", "location", location, "error", err)
		return &domain.SourceUnavailableError{URI: location, Err: err}
	}
	if !found {
		return &domain.SourceUnavailableError{URI: location, Err: errNoObjects}
	}
	return nil
}
