package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/config"
	"github.com/silvergrain/gallery/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.StorageConfig{
		Backend:    "local",
		LocalRoot:  filepath.Join(t.TempDir(), "uploads"),
		StagingDir: filepath.Join(t.TempDir(), "staging"),
	}
	m, err := NewManager(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.EnsureDirectories(context.Background()); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	return m
}

func TestManager_FallsBackToLocalOnIncompleteS3(t *testing.T) {
	cfg := config.StorageConfig{
		Backend:    "s3",
		LocalRoot:  t.TempDir(),
		StagingDir: t.TempDir(),
		S3:         config.S3Config{Region: "eu-central-1"}, // no bucket, no creds
	}
	m, err := NewManager(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if !m.IsLocalStorage() {
		t.Error("expected fallback to local storage")
	}
}

func TestManager_ImagePaths(t *testing.T) {
	m := newTestManager(t)
	id := uuid.MustParse("7f9e0a3c-0000-4000-8000-000000000001")

	if got := m.ImageDir(id); got != "/"+id.String() {
		t.Errorf("unexpected image dir %q", got)
	}
	if got := m.ImagePath(id, "regular.jpg"); got != "/"+id.String()+"/regular.jpg" {
		t.Errorf("unexpected image path %q", got)
	}
}

func TestManager_FindStagedFile(t *testing.T) {
	m := newTestManager(t)
	session := uuid.NewString()

	path := m.StagingImagePath(session, "my_photo.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("stage file: %v", err)
	}

	found, err := m.FindStagedFile(session)
	if err != nil {
		t.Fatalf("find staged: %v", err)
	}
	if found != path {
		t.Errorf("found %q, want %q", found, path)
	}
}

func TestManager_FindStagedFile_UnknownSession(t *testing.T) {
	m := newTestManager(t)

	_, err := m.FindStagedFile(uuid.NewString())
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_FindStagedFile_DoesNotMatchPrefix(t *testing.T) {
	m := newTestManager(t)
	session := uuid.NewString()

	// A staged file whose session id merely starts with the probe id must not match.
	other := session + "0"
	if err := os.WriteFile(m.StagingImagePath(other, "a.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("stage file: %v", err)
	}

	if _, err := m.FindStagedFile(session); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for prefix collision, got %v", err)
	}
}

func TestManager_PublicURLForVersion(t *testing.T) {
	m := newTestManager(t)

	local := domain.ImageVersion{Backend: domain.BackendLocal, Path: "/img/thumb.jpg"}
	if got := m.PublicURLForVersion(local); got != "/uploads/img/thumb.jpg" {
		t.Errorf("unexpected local url %q", got)
	}

	remote := domain.ImageVersion{Backend: domain.BackendS3, Path: "/img/thumb.jpg"}
	if got := m.PublicURLForVersion(remote); got != "" {
		t.Errorf("expected empty url for unreachable backend, got %q", got)
	}
}

func TestManager_LocalVersionPath(t *testing.T) {
	m := newTestManager(t)

	local := domain.ImageVersion{Backend: domain.BackendLocal, Path: "/img/original.jpg"}
	path, ok := m.LocalVersionPath(local)
	if !ok {
		t.Fatal("expected local version to resolve")
	}
	if path != m.local.AbsPath("/img/original.jpg") {
		t.Errorf("unexpected path %q", path)
	}

	remote := domain.ImageVersion{Backend: domain.BackendS3, Path: "/img/original.jpg"}
	if _, ok := m.LocalVersionPath(remote); ok {
		t.Error("expected remote version not to resolve locally")
	}
}

func TestManager_DeleteLocalImageDir(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.local.WriteFile(ctx, "/stale/original.jpg", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.DeleteLocalImageDir(ctx, "stale"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(m.local.Root(), "stale")); !os.IsNotExist(err) {
		t.Fatalf("expected directory removed, stat err %v", err)
	}
}

func TestManager_ListLocalImageDirs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.local.WriteFile(ctx, "/img-a/original.jpg", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.local.WriteFile(ctx, "/img-b/original.jpg", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	dirs, err := m.ListLocalImageDirs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 dirs, got %d: %v", len(dirs), dirs)
	}
}
