package artifacts

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/config"
	"github.com/silvergrain/gallery/internal/domain"
	"github.com/silvergrain/gallery/internal/storage"
)

func newTestGenerator(t *testing.T) (*Generator, *storage.Manager) {
	t.Helper()
	cfg := config.StorageConfig{
		Backend:    "local",
		LocalRoot:  filepath.Join(t.TempDir(), "uploads"),
		StagingDir: filepath.Join(t.TempDir(), "staging"),
	}
	m, err := storage.NewManager(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.EnsureDirectories(context.Background()); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	return NewGenerator(m, 85, zap.NewNop()), m
}

// stageImage writes a width x height JPEG into the staging dir and returns a Source.
func stageImage(t *testing.T, m *storage.Manager, width, height int) Source {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 120, G: 60, B: 20, A: 255})
	path := m.StagingImagePath(uuid.NewString(), "shot.jpg")
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save test image: %v", err)
	}
	return Source{Path: path, OriginalFilename: "shot.jpg", MimeType: "image/jpeg"}
}

func TestGenerate_ProducesAllFourTiers(t *testing.T) {
	g, m := newTestGenerator(t)
	src := stageImage(t, m, 3000, 2000)

	versions, err := g.Generate(context.Background(), uuid.New(), src)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(versions) != 4 {
		t.Fatalf("expected 4 versions, got %d", len(versions))
	}

	seen := map[domain.VersionType]domain.ImageVersion{}
	for _, v := range versions {
		if _, dup := seen[v.Type]; dup {
			t.Errorf("duplicate version type %s", v.Type)
		}
		seen[v.Type] = v
		if v.Width <= 0 || v.Height <= 0 || v.SizeBytes <= 0 {
			t.Errorf("%s: non-positive dimensions or size: %+v", v.Type, v)
		}
		if v.Backend != domain.BackendLocal {
			t.Errorf("%s: unexpected backend %s", v.Type, v.Backend)
		}
	}

	if v := seen[domain.VersionOriginal]; v.Width != 3000 || v.Height != 2000 {
		t.Errorf("original tier resized: %dx%d", v.Width, v.Height)
	}
	if v := seen[domain.VersionRegular]; v.Width != 2000 {
		t.Errorf("regular tier long edge: got %d, want 2000", v.Width)
	}
	if v := seen[domain.VersionThumbnail]; v.Width != 800 {
		t.Errorf("thumbnail tier long edge: got %d, want 800", v.Width)
	}
	if v := seen[domain.VersionTiny]; v.Width != 150 {
		t.Errorf("tiny tier long edge: got %d, want 150", v.Width)
	}
}

func TestGenerate_VerticalSourceKeepsOrientation(t *testing.T) {
	g, m := newTestGenerator(t)
	src := stageImage(t, m, 1200, 1800)

	versions, err := g.Generate(context.Background(), uuid.New(), src)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, v := range versions {
		if v.Height < v.Width {
			t.Errorf("%s: expected height >= width for vertical source, got %dx%d",
				v.Type, v.Width, v.Height)
		}
	}
}

func TestGenerate_NeverUpscales(t *testing.T) {
	g, m := newTestGenerator(t)
	src := stageImage(t, m, 400, 300) // smaller than regular and thumbnail tiers

	versions, err := g.Generate(context.Background(), uuid.New(), src)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, v := range versions {
		switch v.Type {
		case domain.VersionOriginal, domain.VersionRegular, domain.VersionThumbnail:
			if v.Width != 400 || v.Height != 300 {
				t.Errorf("%s: expected native 400x300, got %dx%d", v.Type, v.Width, v.Height)
			}
		case domain.VersionTiny:
			if v.Width != 150 {
				t.Errorf("tiny: expected 150 long edge, got %dx%d", v.Width, v.Height)
			}
		}
	}
}

func TestGenerate_CleansStagingAndSource(t *testing.T) {
	g, m := newTestGenerator(t)
	src := stageImage(t, m, 600, 400)

	if _, err := g.Generate(context.Background(), uuid.New(), src); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := os.Stat(src.Path); !os.IsNotExist(err) {
		t.Error("expected source file removed")
	}
	entries, err := os.ReadDir(m.StagingDir())
	if err != nil {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty staging dir, found %d entries", len(entries))
	}
}

func TestGenerate_UnreadableSourceFails(t *testing.T) {
	g, m := newTestGenerator(t)
	path := m.StagingImagePath(uuid.NewString(), "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := g.Generate(context.Background(), uuid.New(),
		Source{Path: path, OriginalFilename: "broken.jpg", MimeType: "image/jpeg"})
	if err == nil {
		t.Fatal("expected error for undecodable source")
	}
}
