// Package images persists Image and ImageVersion records in Postgres and
// serves the vector-similarity and full-text read paths.
package images

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/domain"
)

// VersionFilter reports whether a version's bytes are publicly reachable.
// Versions that are not get filtered out of read results, and an image left
// with zero accessible versions is excluded from list/search results entirely.
type VersionFilter interface {
	Reachable(v domain.ImageVersion) bool
}

// FileDeleter removes an image's artifact files on its recorded backend.
type FileDeleter interface {
	DeleteImageFiles(ctx context.Context, backend domain.StorageBackend, id uuid.UUID) error
}

// Repository stores images and their versions.
type Repository struct {
	pool   *pgxpool.Pool
	reach  VersionFilter
	files  FileDeleter
	logger *zap.Logger
}

// New creates a Repository.
func New(pool *pgxpool.Pool, reach VersionFilter, files FileDeleter, logger *zap.Logger) *Repository {
	return &Repository{pool: pool, reach: reach, files: files, logger: logger}
}

const imageColumns = `id, camera, lens, aperture, shutter_speed, focal_length,
	focal_length_35mm, iso, taken_at, original_filename, caption, embedding,
	collection_id, collection_order, created_at, updated_at`

// CreateWithVersions inserts the image and all of its version rows in one
// transaction. Either everything persists or nothing does.
func (r *Repository) CreateWithVersions(ctx context.Context, img *domain.Image) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO images (id, camera, lens, aperture, shutter_speed, focal_length,
		                    focal_length_35mm, iso, taken_at, original_filename,
		                    collection_id, collection_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`,
		img.ID, img.Camera, img.Lens, img.Aperture, img.ShutterSpeed, img.FocalLength,
		img.FocalLength35mm, img.ISO, img.TakenAt, img.OriginalFilename,
		img.CollectionID, img.CollectionOrder,
	).Scan(&img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}

	for _, v := range img.Versions {
		_, err = tx.Exec(ctx, `
			INSERT INTO image_versions (id, image_id, type, width, height, size_bytes, mime_type, backend, path)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, v.ID, v.ImageID, v.Type, v.Width, v.Height, v.SizeBytes, v.MimeType, v.Backend, v.Path)
		if err != nil {
			return fmt.Errorf("insert %s version: %w", v.Type, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID fetches one image with its accessible versions.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Image, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+imageColumns+` FROM images WHERE id = $1`, id)
	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Image{}, domain.ErrNotFound
		}
		return domain.Image{}, fmt.Errorf("query image: %w", err)
	}

	if err := r.attachVersions(ctx, []*domain.Image{&img}); err != nil {
		return domain.Image{}, err
	}
	img.Versions = accessibleVersions(img.Versions, r.reach)
	return img, nil
}

// UpdateMetadata applies a partial metadata update. Nil patch fields are
// left unchanged.
func (r *Repository) UpdateMetadata(ctx context.Context, id uuid.UUID, p domain.MetadataPatch) (domain.Image, error) {
	sets, args := patchClauses(p)
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE images SET %s, updated_at = now() WHERE id = $%d`,
		joinClauses(sets), len(args),
	)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return domain.Image{}, fmt.Errorf("update image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Image{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// SetCaption stores an enrichment caption.
func (r *Repository) SetCaption(ctx context.Context, id uuid.UUID, caption string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE images SET caption = $1, updated_at = now() WHERE id = $2`, caption, id)
	if err != nil {
		return fmt.Errorf("set caption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetEmbedding stores an enrichment embedding.
func (r *Repository) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE images SET embedding = $1, updated_at = now() WHERE id = $2`,
		pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the image row (version rows cascade) and then best-effort
// removes the artifact files. File deletion happens outside the transaction:
// files are not transactional, and the record delete is the source of truth
// for "image no longer exists".
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	// Read the backend tag before the version rows cascade away.
	backend := domain.BackendLocal
	err := r.pool.QueryRow(ctx,
		`SELECT backend FROM image_versions WHERE image_id = $1 LIMIT 1`, id).Scan(&backend)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("query version backend: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := r.files.DeleteImageFiles(ctx, backend, id); err != nil {
		r.logger.Warn("failed to delete image files",
			zap.String("image_id", id.String()), zap.Error(err))
	}
	return nil
}

// List returns images newest first, capped at limit, with accessible
// versions attached. Images with no accessible version are excluded.
func (r *Repository) List(ctx context.Context, limit int) ([]domain.Image, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+imageColumns+` FROM images ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	return r.collectAccessible(ctx, rows)
}

// SearchSimilar returns images whose embedding's cosine similarity to the
// query vector exceeds minScore, descending, capped at limit.
func (r *Repository) SearchSimilar(ctx context.Context, query []float32, minScore float64, limit int) ([]domain.ScoredImage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+imageColumns+`, 1 - (embedding <=> $1) AS similarity
		FROM images
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) > $2
		ORDER BY similarity DESC
		LIMIT $3
	`, pgvector.NewVector(query), minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	return r.collectScored(ctx, rows)
}

// SearchText returns images ranked by full-text relevance over caption,
// camera and lens, descending, capped at limit.
func (r *Repository) SearchText(ctx context.Context, query string, limit int) ([]domain.ScoredImage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+imageColumns+`,
		       ts_rank(
		           to_tsvector('simple', coalesce(caption, '') || ' ' || coalesce(camera, '') || ' ' || coalesce(lens, '')),
		           plainto_tsquery('simple', $1)
		       ) AS rank
		FROM images
		WHERE to_tsvector('simple', coalesce(caption, '') || ' ' || coalesce(camera, '') || ' ' || coalesce(lens, ''))
		      @@ plainto_tsquery('simple', $1)
		ORDER BY rank DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("text query: %w", err)
	}
	return r.collectScored(ctx, rows)
}

// ListMissingCaption returns images without a caption; force includes all.
func (r *Repository) ListMissingCaption(ctx context.Context, force bool) ([]domain.Image, error) {
	return r.listMissing(ctx, "caption", force)
}

// ListMissingEmbedding returns images without an embedding; force includes all.
func (r *Repository) ListMissingEmbedding(ctx context.Context, force bool) ([]domain.Image, error) {
	return r.listMissing(ctx, "embedding", force)
}

func (r *Repository) listMissing(ctx context.Context, column string, force bool) ([]domain.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images`
	if !force {
		query += ` WHERE ` + column + ` IS NULL`
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query images missing %s: %w", column, err)
	}

	imgs, err := collectImages(rows, nil)
	if err != nil {
		return nil, err
	}
	if err := r.attachVersionsSlice(ctx, imgs); err != nil {
		return nil, err
	}
	return imgs, nil
}

// ListIDs returns the ids of all persisted images. Used by the orphan sweep.
func (r *Repository) ListIDs(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM images`)
	if err != nil {
		return nil, fmt.Errorf("query image ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// collectAccessible scans image rows, attaches versions, and applies the
// accessibility filter.
func (r *Repository) collectAccessible(ctx context.Context, rows pgx.Rows) ([]domain.Image, error) {
	imgs, err := collectImages(rows, nil)
	if err != nil {
		return nil, err
	}
	if err := r.attachVersionsSlice(ctx, imgs); err != nil {
		return nil, err
	}
	return filterAccessible(imgs, r.reach), nil
}

// collectScored is collectAccessible for rows carrying a trailing score column.
func (r *Repository) collectScored(ctx context.Context, rows pgx.Rows) ([]domain.ScoredImage, error) {
	var scores []float64
	imgs, err := collectImages(rows, &scores)
	if err != nil {
		return nil, err
	}
	if err := r.attachVersionsSlice(ctx, imgs); err != nil {
		return nil, err
	}

	scored := make([]domain.ScoredImage, 0, len(imgs))
	for i := range imgs {
		imgs[i].Versions = accessibleVersions(imgs[i].Versions, r.reach)
		if len(imgs[i].Versions) == 0 {
			continue
		}
		scored = append(scored, domain.ScoredImage{Image: imgs[i], Score: scores[i]})
	}
	return scored, nil
}

func (r *Repository) attachVersionsSlice(ctx context.Context, imgs []domain.Image) error {
	ptrs := make([]*domain.Image, len(imgs))
	for i := range imgs {
		ptrs[i] = &imgs[i]
	}
	return r.attachVersions(ctx, ptrs)
}

// attachVersions loads version rows for the given images in one query.
func (r *Repository) attachVersions(ctx context.Context, imgs []*domain.Image) error {
	if len(imgs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(imgs))
	byID := make(map[uuid.UUID]*domain.Image, len(imgs))
	for i, img := range imgs {
		ids[i] = img.ID
		byID[img.ID] = img
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, image_id, type, width, height, size_bytes, mime_type, backend, path
		FROM image_versions
		WHERE image_id = ANY($1)
		ORDER BY image_id, type
	`, ids)
	if err != nil {
		return fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.ImageVersion
		if err := rows.Scan(&v.ID, &v.ImageID, &v.Type, &v.Width, &v.Height,
			&v.SizeBytes, &v.MimeType, &v.Backend, &v.Path); err != nil {
			return fmt.Errorf("scan version: %w", err)
		}
		if img, ok := byID[v.ImageID]; ok {
			img.Versions = append(img.Versions, v)
		}
	}
	return rows.Err()
}
