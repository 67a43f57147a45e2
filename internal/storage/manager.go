package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/config"
	"github.com/silvergrain/gallery/internal/domain"
)

// Manager is the single source of truth for the two logical storage areas:
// the staging directory (ephemeral upload intermediates, always on the local
// filesystem because pixel processing needs real paths) and the uploads root
// (durable per-image directories on the configured backend).
type Manager struct {
	durable    Adapter
	local      *LocalAdapter
	stagingDir string
	logger     *zap.Logger
}

// NewManager creates a Manager, selecting the durable adapter from config.
func NewManager(cfg config.StorageConfig, logger *zap.Logger) (*Manager, error) {
	durable, err := NewAdapter(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create storage adapter: %w", err)
	}

	local, ok := durable.(*LocalAdapter)
	if !ok {
		local = NewLocalAdapter(cfg.LocalRoot)
	}

	return &Manager{
		durable:    durable,
		local:      local,
		stagingDir: cfg.StagingDir,
		logger:     logger,
	}, nil
}

// EnsureDirectories prepares the staging directory and the durable backend.
// Idempotent, called at startup.
func (m *Manager) EnsureDirectories(ctx context.Context) error {
	if err := os.MkdirAll(m.stagingDir, 0o755); err != nil {
		return fmt.Errorf("mkdir staging %s: %w", m.stagingDir, err)
	}
	if err := m.durable.EnsureDirectories(ctx); err != nil {
		return fmt.Errorf("ensure uploads root: %w", err)
	}
	return nil
}

// Adapter returns the durable storage adapter selected at startup.
func (m *Manager) Adapter() Adapter { return m.durable }

// AdapterFor resolves the adapter for a version's recorded backend tag.
// Returns nil when the backend is not reachable from this process.
func (m *Manager) AdapterFor(backend domain.StorageBackend) Adapter {
	if m.durable.Backend() == backend {
		return m.durable
	}
	if backend == domain.BackendLocal {
		return m.local
	}
	return nil
}

// IsLocalStorage reports whether durable storage is the local filesystem.
func (m *Manager) IsLocalStorage() bool { return m.durable.IsLocal() }

// ImageDir returns the logical per-image directory on durable storage.
func (m *Manager) ImageDir(id uuid.UUID) string {
	return "/" + id.String()
}

// ImagePath returns the logical path of a file inside an image's directory.
func (m *Manager) ImagePath(id uuid.UUID, filename string) string {
	return "/" + id.String() + "/" + filepath.Base(filename)
}

// StagingDir returns the local staging directory.
func (m *Manager) StagingDir() string { return m.stagingDir }

// StagingImagePath returns the local staging path for a session's file.
// Staged names are "<sessionID>_<filename>"; session ids are UUIDs and so
// never contain an underscore, keeping the split unambiguous.
func (m *Manager) StagingImagePath(sessionID, filename string) string {
	return filepath.Join(m.stagingDir, sessionID+"_"+filepath.Base(filename))
}

// FindStagedFile scans the staging directory for the file belonging to the
// given session id. Returns domain.ErrSessionNotFound when the session was
// never staged, expired, or already consumed.
func (m *Manager) FindStagedFile(sessionID string) (string, error) {
	entries, err := os.ReadDir(m.stagingDir)
	if err != nil {
		return "", fmt.Errorf("read staging dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, _, found := strings.Cut(e.Name(), "_")
		if found && id == sessionID {
			return filepath.Join(m.stagingDir, e.Name()), nil
		}
	}
	return "", domain.ErrSessionNotFound
}

// PublicURLForVersion resolves the public URL of a version. Local versions
// map to the internal static-serving path; remote versions resolve through
// the adapter's public base URL, or "" when none is configured.
func (m *Manager) PublicURLForVersion(v domain.ImageVersion) string {
	adapter := m.AdapterFor(v.Backend)
	if adapter == nil {
		return ""
	}
	return adapter.PublicURL(v.Path)
}

// Reachable reports whether a version's bytes resolve to a public URL from
// this process. Versions on a backend without a public base URL are not.
func (m *Manager) Reachable(v domain.ImageVersion) bool {
	return m.PublicURLForVersion(v) != ""
}

// LocalVersionPath returns the absolute filesystem path of a version stored
// on the local backend, or false when the version's bytes are not local.
func (m *Manager) LocalVersionPath(v domain.ImageVersion) (string, bool) {
	if v.Backend != domain.BackendLocal {
		return "", false
	}
	return m.local.AbsPath(v.Path), true
}

// DeleteImageFiles removes the per-image directory on the backend a version
// set was recorded against. Errors propagate for the caller to log; the
// metadata delete stays authoritative.
func (m *Manager) DeleteImageFiles(ctx context.Context, backend domain.StorageBackend, id uuid.UUID) error {
	adapter := m.AdapterFor(backend)
	if adapter == nil {
		return fmt.Errorf("no adapter for backend %q", backend)
	}
	return adapter.DeleteDirectory(ctx, m.ImageDir(id))
}

// DeleteLocalImageDir removes one directory under the local uploads root.
func (m *Manager) DeleteLocalImageDir(ctx context.Context, name string) error {
	return m.local.DeleteDirectory(ctx, "/"+name)
}

// ListLocalImageDirs returns the image-id-named directories under the local
// uploads root. Used by the orphan sweep; remote backends are listed through
// their own adapter.
func (m *Manager) ListLocalImageDirs() ([]string, error) {
	entries, err := os.ReadDir(m.local.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read uploads root: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}
