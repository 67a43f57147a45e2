// Package ingest drives the upload lifecycle: review a staged file, confirm
// it into a persisted image with rendered versions, enrich it asynchronously
// with a caption and embedding, and sweep up what never completed.
package ingest

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/artifacts"
	"github.com/silvergrain/gallery/internal/domain"
)

// stagedUploadTTL is how long an unconfirmed staged upload survives before
// the janitor removes it.
const stagedUploadTTL = time.Hour

// ReviewResult is handed back to the caller for metadata editing before confirm.
type ReviewResult struct {
	SessionID string
	FilePath  string
	Metadata  domain.Metadata
}

// SweepReport summarizes one janitor run.
type SweepReport struct {
	Scanned int
	Deleted int
	Errors  int
}

// BackfillReport summarizes one enrichment backfill run.
type BackfillReport struct {
	Scanned    int
	Successful int
	Errors     int
}

// Service implements the ingestion state machine.
type Service struct {
	repo      Repository
	storage   Storage
	artifacts ArtifactGenerator
	inference Inference
	logger    *zap.Logger

	enriching sync.WaitGroup
}

// New creates an ingestion service.
func New(repo Repository, st Storage, gen ArtifactGenerator, inf Inference, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		storage:   st,
		artifacts: gen,
		inference: inf,
		logger:    logger,
	}
}

// Review stages the incoming file under a fresh session id, extracts embedded
// metadata for the caller to edit, and removes the incoming file.
func (s *Service) Review(ctx context.Context, incomingPath, originalFilename string, rules []domain.ReplacementRule) (ReviewResult, error) {
	filename := filepath.Base(originalFilename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return ReviewResult{}, fmt.Errorf("%w: missing original filename", domain.ErrValidation)
	}

	data, err := os.ReadFile(incomingPath)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("read incoming file: %w", err)
	}

	sessionID := uuid.NewString()
	staged := s.storage.StagingImagePath(sessionID, filename)
	if err := os.MkdirAll(filepath.Dir(staged), 0o755); err != nil {
		return ReviewResult{}, fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return ReviewResult{}, fmt.Errorf("stage upload: %w", err)
	}

	if err := os.Remove(incomingPath); err != nil {
		s.logger.Warn("failed to remove incoming file",
			zap.String("path", incomingPath), zap.Error(err))
	}

	meta := extractMetadata(staged, rules)
	meta.OriginalFilename = &filename

	s.logger.Info("upload reviewed",
		zap.String("session_id", sessionID),
		zap.String("filename", filename))

	return ReviewResult{SessionID: sessionID, FilePath: staged, Metadata: meta}, nil
}

// Confirm consumes a reviewed session: it renders the four version tiers from
// the staged file, persists the image with its versions in one transaction,
// and kicks off enrichment in the background. A session is consumed exactly
// once; a second confirm of the same id fails with the session-not-found error.
func (s *Service) Confirm(ctx context.Context, sessionID string, meta domain.Metadata) (domain.Image, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return domain.Image{}, fmt.Errorf("%w: malformed session id %q", domain.ErrValidation, sessionID)
	}

	stagedPath, err := s.storage.FindStagedFile(sessionID)
	if err != nil {
		return domain.Image{}, err
	}

	filename := stagedFilename(stagedPath, sessionID)
	if meta.OriginalFilename == nil {
		meta.OriginalFilename = &filename
	}

	imageID := uuid.New()
	versions, err := s.artifacts.Generate(ctx, imageID, artifacts.Source{
		Path:             stagedPath,
		OriginalFilename: filename,
		MimeType:         mimeTypeFor(filename),
	})
	if err != nil {
		return domain.Image{}, fmt.Errorf("generate artifacts: %w", err)
	}

	img := domain.Image{ID: imageID, Metadata: meta, Versions: versions}
	if err := s.repo.CreateWithVersions(ctx, &img); err != nil {
		return domain.Image{}, fmt.Errorf("persist image: %w", err)
	}

	s.logger.Info("upload confirmed",
		zap.String("session_id", sessionID),
		zap.String("image_id", imageID.String()))

	s.enriching.Add(1)
	go s.enrich(img)

	return img, nil
}

// UpdateMetadata applies a partial metadata update to an existing image.
func (s *Service) UpdateMetadata(ctx context.Context, id uuid.UUID, p domain.MetadataPatch) (domain.Image, error) {
	return s.repo.UpdateMetadata(ctx, id, p)
}

// Get fetches one image.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Image, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the newest images up to limit.
func (s *Service) List(ctx context.Context, limit int) ([]domain.Image, error) {
	return s.repo.List(ctx, limit)
}

// Delete removes the image record and its artifact files.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Wait blocks until all in-flight enrichment goroutines finish. Called during
// graceful shutdown.
func (s *Service) Wait() { s.enriching.Wait() }

// enrich generates a caption and embedding for a freshly confirmed image.
// It runs detached from the confirm request: failures are logged and left
// for a later backfill, never surfaced to the uploader.
func (s *Service) enrich(img domain.Image) {
	defer s.enriching.Done()
	ctx := context.Background()

	if err := s.enrichOne(ctx, img, true, true); err != nil {
		s.logger.Warn("enrichment incomplete",
			zap.String("image_id", img.ID.String()), zap.Error(err))
	}
}

// enrichOne captions and/or embeds one image from its original version.
func (s *Service) enrichOne(ctx context.Context, img domain.Image, caption, embedding bool) error {
	orig := img.Version(domain.VersionOriginal)
	if orig == nil {
		return fmt.Errorf("image %s has no original version", img.ID)
	}

	localPath, cleanup, err := s.localFileFor(ctx, *orig)
	if err != nil {
		return err
	}
	defer cleanup()

	var firstErr error
	if caption {
		text, err := s.inference.CaptionImage(ctx, localPath, false)
		if err != nil {
			firstErr = fmt.Errorf("caption: %w", err)
		} else if err := s.repo.SetCaption(ctx, img.ID, text); err != nil {
			firstErr = fmt.Errorf("store caption: %w", err)
		}
	}
	if embedding {
		vec, err := s.inference.EmbedImage(ctx, localPath, false)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("embed: %w", err)
		} else if err == nil {
			if err := s.repo.SetEmbedding(ctx, img.ID, vec); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("store embedding: %w", err)
			}
		}
	}
	return firstErr
}

// localFileFor produces a filesystem path for a version's bytes. Remote
// versions are copied through a staging temp file; the returned cleanup
// removes it. Local versions are used in place and cleanup is a no-op.
func (s *Service) localFileFor(ctx context.Context, v domain.ImageVersion) (string, func(), error) {
	if path, ok := s.storage.LocalVersionPath(v); ok {
		return path, func() {}, nil
	}

	adapter := s.storage.AdapterFor(v.Backend)
	if adapter == nil {
		return "", nil, fmt.Errorf("no adapter for backend %q", v.Backend)
	}
	data, err := adapter.ReadFile(ctx, v.Path)
	if err != nil {
		return "", nil, fmt.Errorf("fetch version bytes: %w", err)
	}

	temp := filepath.Join(s.storage.StagingDir(),
		fmt.Sprintf("enrich_%s%s", v.ImageID, filepath.Ext(v.Path)))
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("write enrichment temp: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(temp); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove enrichment temp",
				zap.String("path", temp), zap.Error(err))
		}
	}
	return temp, cleanup, nil
}

// BackfillCaptions re-captions images with a null caption, or all images
// when force is set. Per-image failures are counted, not fatal.
func (s *Service) BackfillCaptions(ctx context.Context, force bool) (BackfillReport, error) {
	imgs, err := s.repo.ListMissingCaption(ctx, force)
	if err != nil {
		return BackfillReport{}, err
	}
	return s.backfill(ctx, imgs, true, false), nil
}

// BackfillEmbeddings re-embeds images with a null embedding, or all images
// when force is set.
func (s *Service) BackfillEmbeddings(ctx context.Context, force bool) (BackfillReport, error) {
	imgs, err := s.repo.ListMissingEmbedding(ctx, force)
	if err != nil {
		return BackfillReport{}, err
	}
	return s.backfill(ctx, imgs, false, true), nil
}

func (s *Service) backfill(ctx context.Context, imgs []domain.Image, caption, embedding bool) BackfillReport {
	report := BackfillReport{Scanned: len(imgs)}
	for _, img := range imgs {
		if err := s.enrichOne(ctx, img, caption, embedding); err != nil {
			report.Errors++
			s.logger.Warn("backfill item failed",
				zap.String("image_id", img.ID.String()), zap.Error(err))
			continue
		}
		report.Successful++
	}
	return report
}

// CleanupStagedUploads deletes staged files older than the session TTL.
// Running it twice back to back deletes nothing the second time.
func (s *Service) CleanupStagedUploads(ctx context.Context) (SweepReport, error) {
	entries, err := os.ReadDir(s.storage.StagingDir())
	if err != nil {
		if os.IsNotExist(err) {
			return SweepReport{}, nil
		}
		return SweepReport{}, fmt.Errorf("read staging dir: %w", err)
	}

	cutoff := time.Now().Add(-stagedUploadTTL)
	var report SweepReport
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		report.Scanned++

		info, err := e.Info()
		if err != nil {
			report.Errors++
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.storage.StagingDir(), e.Name())
		if err := os.Remove(path); err != nil {
			report.Errors++
			s.logger.Warn("failed to delete staged upload",
				zap.String("path", path), zap.Error(err))
			continue
		}
		report.Deleted++
	}
	return report, nil
}

// CleanupOrphanedArtifacts removes local per-image directories that no longer
// have a matching image row.
func (s *Service) CleanupOrphanedArtifacts(ctx context.Context) (SweepReport, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return SweepReport{}, err
	}
	dirs, err := s.storage.ListLocalImageDirs()
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	for _, name := range dirs {
		report.Scanned++

		if id, err := uuid.Parse(name); err == nil {
			if _, ok := ids[id]; ok {
				continue
			}
		}
		if err := s.storage.DeleteLocalImageDir(ctx, name); err != nil {
			report.Errors++
			s.logger.Warn("failed to delete orphaned artifact dir",
				zap.String("dir", name), zap.Error(err))
			continue
		}
		report.Deleted++
	}
	return report, nil
}

// stagedFilename recovers the original filename from a staged path named
// "<sessionID>_<filename>".
func stagedFilename(stagedPath, sessionID string) string {
	base := filepath.Base(stagedPath)
	if rest, ok := strings.CutPrefix(base, sessionID+"_"); ok {
		return rest
	}
	return base
}

// mimeTypeFor infers a content type from the filename extension.
func mimeTypeFor(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}
