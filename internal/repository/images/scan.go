package images

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/silvergrain/gallery/internal/domain"
)

// scanImage reads one image row laid out as imageColumns, with optional
// trailing extra columns (e.g. a score).
func scanImage(row pgx.Row, extra ...any) (domain.Image, error) {
	var (
		img domain.Image
		emb *pgvector.Vector
	)
	dest := []any{
		&img.ID, &img.Camera, &img.Lens, &img.Aperture, &img.ShutterSpeed,
		&img.FocalLength, &img.FocalLength35mm, &img.ISO, &img.TakenAt,
		&img.OriginalFilename, &img.Caption, &emb,
		&img.CollectionID, &img.CollectionOrder, &img.CreatedAt, &img.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Image{}, err
	}
	if emb != nil {
		img.Embedding = emb.Slice()
	}
	return img, nil
}

// collectImages drains rows into images. When scores is non-nil each row is
// expected to carry one extra float column, appended to *scores.
func collectImages(rows pgx.Rows, scores *[]float64) ([]domain.Image, error) {
	defer rows.Close()

	var imgs []domain.Image
	for rows.Next() {
		var (
			img domain.Image
			err error
		)
		if scores != nil {
			var score float64
			img, err = scanImage(rows, &score)
			if err == nil {
				*scores = append(*scores, score)
			}
		} else {
			img, err = scanImage(rows)
		}
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		imgs = append(imgs, img)
	}
	return imgs, rows.Err()
}

// patchClauses turns a metadata patch into SET clauses and their arguments.
// Placeholders are numbered from $1.
func patchClauses(p domain.MetadataPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Camera != nil {
		add("camera", *p.Camera)
	}
	if p.Lens != nil {
		add("lens", *p.Lens)
	}
	if p.Aperture != nil {
		add("aperture", *p.Aperture)
	}
	if p.ShutterSpeed != nil {
		add("shutter_speed", *p.ShutterSpeed)
	}
	if p.FocalLength != nil {
		add("focal_length", *p.FocalLength)
	}
	if p.FocalLength35mm != nil {
		add("focal_length_35mm", *p.FocalLength35mm)
	}
	if p.ISO != nil {
		add("iso", *p.ISO)
	}
	if p.TakenAt != nil {
		add("taken_at", *p.TakenAt)
	}
	if p.OriginalFilename != nil {
		add("original_filename", *p.OriginalFilename)
	}
	return sets, args
}

func joinClauses(sets []string) string {
	return strings.Join(sets, ", ")
}

// accessibleVersions keeps only versions whose bytes are reachable.
func accessibleVersions(versions []domain.ImageVersion, reach VersionFilter) []domain.ImageVersion {
	out := versions[:0:0]
	for _, v := range versions {
		if reach.Reachable(v) {
			out = append(out, v)
		}
	}
	return out
}

// filterAccessible drops unreachable versions and excludes images left with
// no accessible version at all.
func filterAccessible(imgs []domain.Image, reach VersionFilter) []domain.Image {
	out := imgs[:0:0]
	for _, img := range imgs {
		img.Versions = accessibleVersions(img.Versions, reach)
		if len(img.Versions) == 0 {
			continue
		}
		out = append(out, img)
	}
	return out
}
