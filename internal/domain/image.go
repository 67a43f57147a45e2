package domain

import (
	"time"

	"github.com/google/uuid"
)

// VersionType identifies one of the four rendered resolutions of an image.
type VersionType string

const (
	// VersionOriginal keeps the native pixel dimensions.
	VersionOriginal VersionType = "original"
	// VersionRegular is downscaled to a 2000px long edge.
	VersionRegular VersionType = "regular"
	// VersionThumbnail is downscaled to an 800px long edge.
	VersionThumbnail VersionType = "thumbnail"
	// VersionTiny is downscaled to a 150px long edge.
	VersionTiny VersionType = "tiny"
)

// VersionTypes lists all version types in generation order.
var VersionTypes = []VersionType{VersionOriginal, VersionRegular, VersionThumbnail, VersionTiny}

// StorageBackend tags where a version's bytes live.
type StorageBackend string

const (
	// BackendLocal is the local filesystem backend.
	BackendLocal StorageBackend = "local"
	// BackendS3 is the S3-compatible object storage backend.
	BackendS3 StorageBackend = "s3"
)

// EmbeddingDim is the fixed dimension of image and text embeddings.
const EmbeddingDim = 768

// Metadata holds the optional photographic attributes of an image.
// Every field is independently settable and nullable.
type Metadata struct {
	Camera           *string
	Lens             *string
	Aperture         *float64
	ShutterSpeed     *string
	FocalLength      *float64
	FocalLength35mm  *float64
	ISO              *int
	TakenAt          *time.Time
	OriginalFilename *string
}

// MetadataPatch is a partial metadata update. Nil fields are left unchanged.
type MetadataPatch struct {
	Camera           *string
	Lens             *string
	Aperture         *float64
	ShutterSpeed     *string
	FocalLength      *float64
	FocalLength35mm  *float64
	ISO              *int
	TakenAt          *time.Time
	OriginalFilename *string
}

// Image is one logical photograph with its rendered versions.
type Image struct {
	ID uuid.UUID

	Metadata

	// Caption and Embedding are filled asynchronously by enrichment
	// and stay nil until it completes.
	Caption   *string
	Embedding []float32

	// CollectionID and CollectionOrder are both set or both nil.
	// The pair is unique across images when set.
	CollectionID    *uuid.UUID
	CollectionOrder *int

	CreatedAt time.Time
	UpdatedAt time.Time

	Versions []ImageVersion
}

// Version returns the version with the given type, or nil.
func (i *Image) Version(t VersionType) *ImageVersion {
	for idx := range i.Versions {
		if i.Versions[idx].Type == t {
			return &i.Versions[idx]
		}
	}
	return nil
}

// ImageVersion is one rendered resolution of an image. At most one version
// exists per (image, type) pair and versions are deleted with their image.
type ImageVersion struct {
	ID        uuid.UUID
	ImageID   uuid.UUID
	Type      VersionType
	Width     int
	Height    int
	SizeBytes int64
	MimeType  string
	Backend   StorageBackend
	Path      string
}

// ScoredImage is an image paired with a query score (similarity or text rank).
type ScoredImage struct {
	Image Image
	Score float64
}

// ReplacementRule rewrites a substring of an extracted camera or lens name.
type ReplacementRule struct {
	From string
	To   string
}
