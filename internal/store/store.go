// Package store opens target warehouses by kind. Backends register a factory
// from an init function; import store/all to enable every built-in backend.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"duckflow/internal/domain"
)

// Config holds connection settings for a target store.
type Config struct {
	Kind       string   // duckdb, postgres or redshift
	DSN        string   // file path for duckdb ("" = in-memory), connection string otherwise
	Extensions []string // duckdb extensions to install and load, e.g. httpfs
	MaxConns   int32
}

// Factory constructs a store from Config.
type Factory func(ctx context.Context, cfg Config) (domain.Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. A later registration for
// the same kind replaces the earlier one.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Open constructs the store registered for cfg.Kind.
func Open(ctx context.Context, cfg Config) (domain.Store, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, domain.ErrValidation("unknown store kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	s, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Kind, err)
	}
	return s, nil
}

// Kinds returns a sorted snapshot of the registered kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
