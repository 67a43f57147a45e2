// Package search answers free-text queries by fusing vector-similarity and
// full-text lookups into one ranked result list.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/silvergrain/gallery/internal/domain"
)

const (
	defaultLimit  = 50
	minSimilarity = 0.25
)

// Service runs hybrid retrieval.
type Service struct {
	repo     ImageSearcher
	embedder QueryEmbedder
	logger   *zap.Logger
}

// New creates a search service.
func New(repo ImageSearcher, embedder QueryEmbedder, logger *zap.Logger) *Service {
	return &Service{repo: repo, embedder: embedder, logger: logger}
}

// Search embeds the query and runs the similarity and full-text lookups
// concurrently, then fuses the two lists. A failure in either lookup aborts
// the whole search; no partial results are returned.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	var (
		byEmbedding []domain.ScoredImage
		byText      []domain.ScoredImage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := s.embedder.EmbedText(gctx, query, true)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		byEmbedding, err = s.repo.SearchSimilar(gctx, vec, minSimilarity, limit)
		if err != nil {
			return fmt.Errorf("similarity search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		byText, err = s.repo.SearchText(gctx, query, limit)
		if err != nil {
			return fmt.Errorf("text search: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := fuse(byEmbedding, byText)
	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("embedding_hits", len(byEmbedding)),
		zap.Int("text_hits", len(byText)),
		zap.Int("fused", len(results)))

	return results, nil
}
