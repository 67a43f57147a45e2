package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/silvergrain/gallery/internal/domain"
)

// LocalAdapter stores artifacts under a filesystem root.
type LocalAdapter struct {
	root string
}

// NewLocalAdapter creates a filesystem adapter rooted at root.
func NewLocalAdapter(root string) *LocalAdapter {
	return &LocalAdapter{root: root}
}

// resolve maps a logical slash-separated path onto the filesystem root.
func (a *LocalAdapter) resolve(path string) string {
	return filepath.Join(a.root, filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

// WriteFile writes data, creating parent directories as needed.
func (a *LocalAdapter) WriteFile(_ context.Context, path string, data []byte) error {
	full := a.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", full, err)
	}
	return nil
}

// ReadFile reads the file at path.
func (a *LocalAdapter) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(a.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// DeleteDirectory removes path recursively. A non-existent target is not an error.
func (a *LocalAdapter) DeleteDirectory(_ context.Context, path string) error {
	if err := os.RemoveAll(a.resolve(path)); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// EnsureDirectories creates the uploads root.
func (a *LocalAdapter) EnsureDirectories(_ context.Context) error {
	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", a.root, err)
	}
	return nil
}

// IsLocal reports true.
func (a *LocalAdapter) IsLocal() bool { return true }

// Backend returns the local backend tag.
func (a *LocalAdapter) Backend() domain.StorageBackend { return domain.BackendLocal }

// PublicURL resolves to the internal static-serving path.
func (a *LocalAdapter) PublicURL(path string) string {
	return "/uploads/" + strings.TrimPrefix(path, "/")
}

// Root returns the filesystem root the adapter operates on.
func (a *LocalAdapter) Root() string { return a.root }

// AbsPath returns the absolute filesystem location of a logical path.
func (a *LocalAdapter) AbsPath(path string) string { return a.resolve(path) }
