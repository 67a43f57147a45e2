package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/silvergrain/gallery/internal/artifacts"
	"github.com/silvergrain/gallery/internal/domain"
	"github.com/silvergrain/gallery/internal/storage"
)

// Repository defines the storage contract for images.
type Repository interface {
	CreateWithVersions(ctx context.Context, img *domain.Image) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Image, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, p domain.MetadataPatch) (domain.Image, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit int) ([]domain.Image, error)
	SetCaption(ctx context.Context, id uuid.UUID, caption string) error
	SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	ListMissingCaption(ctx context.Context, force bool) ([]domain.Image, error)
	ListMissingEmbedding(ctx context.Context, force bool) ([]domain.Image, error)
	ListIDs(ctx context.Context) (map[uuid.UUID]struct{}, error)
}

// ArtifactGenerator renders the four version tiers for a source file.
type ArtifactGenerator interface {
	Generate(ctx context.Context, imageID uuid.UUID, src artifacts.Source) ([]domain.ImageVersion, error)
}

// Inference produces captions and embeddings for local image files.
type Inference interface {
	CaptionImage(ctx context.Context, path string, highPriority bool) (string, error)
	EmbedImage(ctx context.Context, path string, highPriority bool) ([]float32, error)
}

// Storage is the slice of the storage manager the ingestion flow uses.
type Storage interface {
	StagingDir() string
	StagingImagePath(sessionID, filename string) string
	FindStagedFile(sessionID string) (string, error)
	LocalVersionPath(v domain.ImageVersion) (string, bool)
	AdapterFor(backend domain.StorageBackend) storage.Adapter
	ListLocalImageDirs() ([]string, error)
	DeleteLocalImageDir(ctx context.Context, name string) error
}
