// Package storage provides byte-level access to artifact storage backends
// and logical path resolution for the upload pipeline.
package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/config"
	"github.com/silvergrain/gallery/internal/domain"
)

// Adapter is the uniform contract over a storage backend. Paths are logical,
// slash-separated and rooted at the backend's uploads root. Adapter errors
// propagate unmodified; retry policy, if any, belongs to the caller.
type Adapter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// DeleteDirectory removes everything under path. A missing target is not an error.
	DeleteDirectory(ctx context.Context, path string) error
	// EnsureDirectories prepares the backend for writes. Idempotent.
	EnsureDirectories(ctx context.Context) error
	IsLocal() bool
	Backend() domain.StorageBackend
	// PublicURL resolves a path to a publicly reachable URL, or "" when the
	// backend has no public base configured.
	PublicURL(path string) string
}

// NewAdapter selects the durable storage adapter once at startup.
// An s3 backend with incomplete credentials falls back to local.
func NewAdapter(cfg config.StorageConfig, logger *zap.Logger) (Adapter, error) {
	if cfg.Backend == "s3" {
		if cfg.S3Complete() {
			return NewS3Adapter(cfg.S3)
		}
		logger.Warn("s3 storage configured but credentials incomplete, falling back to local",
			zap.String("local_root", cfg.LocalRoot))
	}
	return NewLocalAdapter(cfg.LocalRoot), nil
}
