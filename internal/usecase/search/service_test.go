package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/domain"
)

// --- Mocks ---

type mockSearcher struct {
	similar     []domain.ScoredImage
	similarErr  error
	text        []domain.ScoredImage
	textErr     error
	gotVector   []float32
	gotMinScore float64
	gotLimit    int
}

func (m *mockSearcher) SearchSimilar(_ context.Context, query []float32, minScore float64, limit int) ([]domain.ScoredImage, error) {
	m.gotVector = query
	m.gotMinScore = minScore
	m.gotLimit = limit
	return m.similar, m.similarErr
}

func (m *mockSearcher) SearchText(_ context.Context, _ string, _ int) ([]domain.ScoredImage, error) {
	return m.text, m.textErr
}

type mockEmbedder struct {
	vec             []float32
	err             error
	gotHighPriority bool
}

func (m *mockEmbedder) EmbedText(_ context.Context, _ string, highPriority bool) ([]float32, error) {
	m.gotHighPriority = highPriority
	return m.vec, m.err
}

// --- Tests ---

func TestService_Search_FusesBothLookups(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	repo := &mockSearcher{
		similar: []domain.ScoredImage{scoredImage(a, 0.9)},
		text:    []domain.ScoredImage{scoredImage(b, 0.8)},
	}
	emb := &mockEmbedder{vec: []float32{0.1, 0.2}}
	svc := New(repo, emb, zap.NewNop())

	results, err := svc.Search(context.Background(), "mountain lake", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !emb.gotHighPriority {
		t.Error("query embedding should be high priority")
	}
	if repo.gotMinScore != 0.25 {
		t.Errorf("similarity floor = %v, want 0.25", repo.gotMinScore)
	}
	if repo.gotLimit != 10 {
		t.Errorf("limit = %d, want 10", repo.gotLimit)
	}
}

func TestService_Search_DefaultLimit(t *testing.T) {
	repo := &mockSearcher{}
	svc := New(repo, &mockEmbedder{vec: []float32{0.1}}, zap.NewNop())

	if _, err := svc.Search(context.Background(), "sunset", 0); err != nil {
		t.Fatalf("search: %v", err)
	}
	if repo.gotLimit != defaultLimit {
		t.Errorf("limit = %d, want %d", repo.gotLimit, defaultLimit)
	}
}

func TestService_Search_EmptyQuery(t *testing.T) {
	svc := New(&mockSearcher{}, &mockEmbedder{}, zap.NewNop())

	_, err := svc.Search(context.Background(), "", 10)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestService_Search_EitherLookupFailureAborts(t *testing.T) {
	repo := &mockSearcher{textErr: errors.New("index offline")}
	svc := New(repo, &mockEmbedder{vec: []float32{0.1}}, zap.NewNop())

	if _, err := svc.Search(context.Background(), "snow", 10); err == nil {
		t.Fatal("expected text lookup failure to abort the search")
	}

	repo = &mockSearcher{}
	svc = New(repo, &mockEmbedder{err: domain.ErrServiceUnavailable}, zap.NewNop())

	_, err := svc.Search(context.Background(), "snow", 10)
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected embedding failure to propagate, got %v", err)
	}
}

func TestService_Search_TruncatesToLimit(t *testing.T) {
	var similar []domain.ScoredImage
	for i := 0; i < 5; i++ {
		similar = append(similar, scoredImage(uuid.New(), 0.9-float64(i)*0.1))
	}
	repo := &mockSearcher{similar: similar}
	svc := New(repo, &mockEmbedder{vec: []float32{0.1}}, zap.NewNop())

	results, err := svc.Search(context.Background(), "trees", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}
