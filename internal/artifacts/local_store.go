package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/conduit/pkg/contract"
)

// Store is a payload backend. Metadata lives elsewhere (the repository's
// database); backends only move bytes.
type Store interface {
	Put(ctx context.Context, artifactID string, data []byte) error
	Get(ctx context.Context, artifactID string) ([]byte, error)
	Delete(ctx context.Context, artifactID string) error
	Close() error
}

// LocalStore stores artifact payloads on the local filesystem, one file per
// artifact, all directly under the base directory. Every operation validates
// the ID and then verifies the resolved path's ancestry before touching the
// file, as defense in depth against symlink and resolution tricks.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a local disk store rooted at basePath.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact directory: %w", err)
	}
	return &LocalStore{basePath: abs}, nil
}

// resolve maps an already-validated ID to its path and re-checks that the
// path stays inside the base directory.
func (s *LocalStore) resolve(artifactID string) (string, error) {
	if err := ValidateID(artifactID); err != nil {
		return "", err
	}
	path := filepath.Join(s.basePath, artifactID+".bin")

	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", contract.NewError(contract.ErrSecurity, "artifact path resolution failed")
	}
	if !strings.HasPrefix(resolved, s.basePath+string(filepath.Separator)) {
		return "", contract.NewError(contract.ErrSecurity, "artifact path escapes storage directory")
	}
	if base, err := filepath.EvalSymlinks(s.basePath); err == nil {
		if real, err := filepath.EvalSymlinks(filepath.Dir(resolved)); err == nil {
			if real != base && !strings.HasPrefix(real, base+string(filepath.Separator)) {
				return "", contract.NewError(contract.ErrSecurity, "artifact path escapes storage directory")
			}
		}
	}
	return resolved, nil
}

// Put writes the payload via a temp file and atomic rename.
func (s *LocalStore) Put(ctx context.Context, artifactID string, data []byte) error {
	path, err := s.resolve(artifactID)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// Get reads a payload.
func (s *LocalStore) Get(ctx context.Context, artifactID string) ([]byte, error) {
	path, err := s.resolve(artifactID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, contract.NewError(contract.ErrTool, "artifact not found: %s", artifactID)
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return data, nil
}

// Delete removes a payload file. Missing files are not an error.
func (s *LocalStore) Delete(ctx context.Context, artifactID string) error {
	path, err := s.resolve(artifactID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *LocalStore) Close() error {
	return nil
}
