package images

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS images (
		id                UUID PRIMARY KEY,
		camera            TEXT,
		lens              TEXT,
		aperture          DOUBLE PRECISION,
		shutter_speed     TEXT,
		focal_length      DOUBLE PRECISION,
		focal_length_35mm DOUBLE PRECISION,
		iso               INTEGER,
		taken_at          TIMESTAMPTZ,
		original_filename TEXT,
		caption           TEXT,
		embedding         vector(768),
		collection_id     UUID,
		collection_order  INTEGER,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (collection_id, collection_order)
	)`,
	`CREATE TABLE IF NOT EXISTS image_versions (
		id         UUID PRIMARY KEY,
		image_id   UUID NOT NULL REFERENCES images(id) ON DELETE CASCADE,
		type       TEXT NOT NULL,
		width      INTEGER NOT NULL,
		height     INTEGER NOT NULL,
		size_bytes BIGINT NOT NULL,
		mime_type  TEXT NOT NULL,
		backend    TEXT NOT NULL,
		path       TEXT NOT NULL,
		UNIQUE (image_id, type)
	)`,
	`CREATE INDEX IF NOT EXISTS image_versions_image_id_idx ON image_versions (image_id)`,
	`CREATE INDEX IF NOT EXISTS images_search_idx ON images USING GIN (
		to_tsvector('simple',
			coalesce(caption, '') || ' ' || coalesce(camera, '') || ' ' || coalesce(lens, ''))
	)`,
}

// Migrate creates the images schema. Idempotent, called at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
