// Package artifacts renders the four resolution tiers of an uploaded image
// and writes them to durable storage.
package artifacts

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/domain"
	"github.com/silvergrain/gallery/internal/storage"
)

// Long-edge targets for the downscale tiers, in pixels.
const (
	regularEdge   = 2000
	thumbnailEdge = 800
	tinyEdge      = 150
)

// Source describes the staged upload an image is generated from.
type Source struct {
	Path             string // local staging path
	OriginalFilename string
	MimeType         string
}

// Generator produces ImageVersion artifacts from a staged source file.
type Generator struct {
	storage     *storage.Manager
	jpegQuality int
	logger      *zap.Logger
}

// NewGenerator creates a Generator writing through the given storage manager.
func NewGenerator(st *storage.Manager, jpegQuality int, logger *zap.Logger) *Generator {
	return &Generator{storage: st, jpegQuality: jpegQuality, logger: logger}
}

// Generate renders all four tiers for imageID from src and writes each to
// durable storage. On success it returns exactly one version per tier with
// measured (not requested) pixel dimensions and byte sizes. Any processing
// or write failure aborts the whole set; the caller's transaction decides
// what happens to already persisted metadata. Staging intermediates and the
// source file are removed regardless of outcome.
func (g *Generator) Generate(ctx context.Context, imageID uuid.UUID, src Source) ([]domain.ImageVersion, error) {
	var temps []string
	defer func() {
		g.cleanup(append(temps, src.Path))
	}()

	// Bake any embedded rotation into the pixels so every tier is upright.
	oriented, err := imaging.Open(src.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open source image: %w", err)
	}

	ext := extensionFor(src.OriginalFilename, src.MimeType)

	rotatedPath := g.stagingTempPath(imageID, "oriented"+ext)
	if err := imaging.Save(oriented, rotatedPath, imaging.JPEGQuality(g.jpegQuality)); err != nil {
		return nil, fmt.Errorf("save oriented intermediate: %w", err)
	}
	temps = append(temps, rotatedPath)

	versions := make([]domain.ImageVersion, 0, len(domain.VersionTypes))
	for _, tier := range domain.VersionTypes {
		v, tmpPath, err := g.renderTier(ctx, imageID, tier, oriented, ext, src.MimeType)
		if tmpPath != "" {
			temps = append(temps, tmpPath)
		}
		if err != nil {
			return nil, fmt.Errorf("render %s tier: %w", tier, err)
		}
		versions = append(versions, v)
	}

	return versions, nil
}

// renderTier resizes (except for the original tier), encodes to a staging
// temp, and writes the bytes to durable storage.
func (g *Generator) renderTier(
	ctx context.Context, imageID uuid.UUID, tier domain.VersionType,
	oriented image.Image, ext, mimeType string,
) (domain.ImageVersion, string, error) {
	out := oriented
	if edge := tierEdge(tier); edge > 0 {
		// A square bounding box caps the long edge while preserving aspect
		// ratio. Fit never upscales: a source smaller than the tier keeps
		// its native size.
		out = imaging.Fit(oriented, edge, edge, imaging.Lanczos)
	}

	tmpPath := g.stagingTempPath(imageID, string(tier)+ext)
	if err := imaging.Save(out, tmpPath, imaging.JPEGQuality(g.jpegQuality)); err != nil {
		return domain.ImageVersion{}, tmpPath, fmt.Errorf("encode: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return domain.ImageVersion{}, tmpPath, fmt.Errorf("read encoded temp: %w", err)
	}

	destPath := g.storage.ImagePath(imageID, string(tier)+ext)
	if err := g.storage.Adapter().WriteFile(ctx, destPath, data); err != nil {
		return domain.ImageVersion{}, tmpPath, fmt.Errorf("write to storage: %w", err)
	}

	b := out.Bounds()
	return domain.ImageVersion{
		ID:        uuid.New(),
		ImageID:   imageID,
		Type:      tier,
		Width:     b.Dx(),
		Height:    b.Dy(),
		SizeBytes: int64(len(data)),
		MimeType:  mimeType,
		Backend:   g.storage.Adapter().Backend(),
		Path:      destPath,
	}, tmpPath, nil
}

// cleanup removes staging temps and the source file. Failures are logged
// but never fail the operation: persisted metadata stays authoritative.
func (g *Generator) cleanup(paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			g.logger.Warn("failed to remove staging temp", zap.String("path", p), zap.Error(err))
		}
	}
}

func (g *Generator) stagingTempPath(imageID uuid.UUID, name string) string {
	return filepath.Join(g.storage.StagingDir(), imageID.String()+"_"+name)
}

// tierEdge returns the long-edge target for a tier, 0 for the original tier.
func tierEdge(t domain.VersionType) int {
	switch t {
	case domain.VersionRegular:
		return regularEdge
	case domain.VersionThumbnail:
		return thumbnailEdge
	case domain.VersionTiny:
		return tinyEdge
	default:
		return 0
	}
}

// extensionFor picks the artifact file extension from the original filename,
// falling back to the MIME type.
func extensionFor(filename, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/tiff":
		return ".tif"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}
