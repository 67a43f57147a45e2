package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalAdapter_WriteRead(t *testing.T) {
	a := NewLocalAdapter(t.TempDir())
	ctx := context.Background()

	if err := a.WriteFile(ctx, "/img-1/original.jpg", []byte("pixels")); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := a.ReadFile(ctx, "/img-1/original.jpg")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "pixels" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestLocalAdapter_WriteCreatesParents(t *testing.T) {
	root := t.TempDir()
	a := NewLocalAdapter(root)

	if err := a.WriteFile(context.Background(), "/a/b/c.bin", []byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a", "b", "c.bin")); err != nil {
		t.Errorf("expected file on disk: %v", err)
	}
}

func TestLocalAdapter_DeleteDirectory(t *testing.T) {
	root := t.TempDir()
	a := NewLocalAdapter(root)
	ctx := context.Background()

	if err := a.WriteFile(ctx, "/img-2/thumb.jpg", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := a.DeleteDirectory(ctx, "/img-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "img-2")); !os.IsNotExist(err) {
		t.Error("expected directory removed")
	}
}

func TestLocalAdapter_DeleteMissingDirectoryIsNoError(t *testing.T) {
	a := NewLocalAdapter(t.TempDir())
	if err := a.DeleteDirectory(context.Background(), "/never-existed"); err != nil {
		t.Fatalf("expected nil for missing target, got %v", err)
	}
}

func TestLocalAdapter_PublicURL(t *testing.T) {
	a := NewLocalAdapter("/data")
	got := a.PublicURL("/img-3/tiny.jpg")
	if got != "/uploads/img-3/tiny.jpg" {
		t.Errorf("unexpected public url %q", got)
	}
}
