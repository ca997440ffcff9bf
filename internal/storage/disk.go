package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
)

// LocalStore reads objects from a directory on the local filesystem. Object
// keys are slash-separated paths relative to the base directory. It cannot
// sign URLs.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a LocalStore rooted at baseDir, which must already
// exist.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to resolve absolute path for %q: %w", baseDir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: storage: base directory %q: %w", errdefs.ErrConfiguration, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: storage: %q is not a directory", errdefs.ErrConfiguration, abs)
	}
	return &LocalStore{baseDir: abs}, nil
}

// Fetch reads baseDir/key in full.
func (s *LocalStore) Fetch(_ context.Context, key string) ([]byte, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%w: storage: key %q escapes the base directory", errdefs.ErrFetch, key)
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: storage: %w: %s", errdefs.ErrFetch, ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: storage: read failed for %q: %w", errdefs.ErrFetch, key, err)
	}
	return data, nil
}

// SignURL always fails; local files have no signing concept.
func (s *LocalStore) SignURL(context.Context, *SignRequest) (*SignedURL, error) {
	return nil, ErrSigningUnsupported
}
