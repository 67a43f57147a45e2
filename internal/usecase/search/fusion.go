package search

import (
	"sort"

	"github.com/google/uuid"

	"github.com/silvergrain/gallery/internal/domain"
)

const (
	embeddingWeight = 0.7
	textWeight      = 0.3
	rankBonusFactor = 0.1
)

// Source tags which lookup(s) produced a fused result.
type Source string

const (
	// SourceEmbedding marks a result found only by vector similarity.
	SourceEmbedding Source = "embedding"
	// SourceText marks a result found only by full-text search.
	SourceText Source = "text"
	// SourceHybrid marks a result found by both lookups.
	SourceHybrid Source = "hybrid"
)

// Breakdown records each contribution to a final score for debuggability.
type Breakdown struct {
	Embedding float64
	Text      float64
	RankBonus float64
}

// Result is one fused search hit.
type Result struct {
	Image      domain.Image
	FinalScore float64
	Source     Source
	Breakdown  Breakdown
}

// rankBonus rewards items that rank high within their own list, independent
// of raw score magnitude: (N - index) / N * factor for a 0-based index.
func rankBonus(index, listLen int) float64 {
	return float64(listLen-index) / float64(listLen) * rankBonusFactor
}

// fuse merges the similarity and full-text result lists into one ranked list.
// Items in both lists combine both weighted scores and keep the text list's
// rank bonus, not the sum of both bonuses.
func fuse(embedding, text []domain.ScoredImage) []Result {
	merged := make(map[uuid.UUID]*Result, len(embedding)+len(text))
	order := make([]uuid.UUID, 0, len(embedding)+len(text))

	for i, r := range embedding {
		bonus := rankBonus(i, len(embedding))
		contribution := r.Score * embeddingWeight
		merged[r.Image.ID] = &Result{
			Image:      r.Image,
			FinalScore: contribution + bonus,
			Source:     SourceEmbedding,
			Breakdown:  Breakdown{Embedding: contribution, RankBonus: bonus},
		}
		order = append(order, r.Image.ID)
	}

	for i, r := range text {
		bonus := rankBonus(i, len(text))
		contribution := r.Score * textWeight
		if existing, ok := merged[r.Image.ID]; ok {
			existing.Breakdown.Text = contribution
			existing.Breakdown.RankBonus = bonus
			existing.FinalScore = existing.Breakdown.Embedding + contribution + bonus
			existing.Source = SourceHybrid
			continue
		}
		merged[r.Image.ID] = &Result{
			Image:      r.Image,
			FinalScore: contribution + bonus,
			Source:     SourceText,
			Breakdown:  Breakdown{Text: contribution, RankBonus: bonus},
		}
		order = append(order, r.Image.ID)
	}

	results := make([]Result, 0, len(merged))
	for _, id := range order {
		results = append(results, *merged[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	return results
}
