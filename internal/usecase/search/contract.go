package search

import (
	"context"

	"github.com/silvergrain/gallery/internal/domain"
)

// ImageSearcher exposes the two retrieval primitives of the image store.
type ImageSearcher interface {
	SearchSimilar(ctx context.Context, query []float32, minScore float64, limit int) ([]domain.ScoredImage, error)
	SearchText(ctx context.Context, query string, limit int) ([]domain.ScoredImage, error)
}

// QueryEmbedder vectorizes the free-text query.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string, highPriority bool) ([]float32, error)
}
