package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"duckflow/internal/domain"
)

// FileBackend probes local paths, directories and glob patterns.
type FileBackend struct{}

// Exists implements Backend. A directory exists when it holds at least one
// regular file at any depth.
func (FileBackend) Exists(ctx context.Context, loc Location, _ *domain.StorageCredential) (bool, error) {
	path := loc.Prefix
	if strings.ContainsAny(path, "*?[") {
		matches, err := filepath.Glob(path)
		if err != nil {
			return false, err
		}
		return len(matches) > 0, nil
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return true, nil
	}

	errFound := errors.New("found")
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Type().IsRegular() {
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return true, nil
	}
	return false, err
}
