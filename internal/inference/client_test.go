package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/config"
	"github.com/silvergrain/gallery/internal/domain"
)

func testClientConfig(baseURL string) config.InferenceConfig {
	return config.InferenceConfig{
		BaseURL:             baseURL,
		TimeoutSec:          5,
		MaxRetries:          0,
		FailureThreshold:    2,
		CircuitCooldownSec:  1,
		QueueCooldownMillis: 1,
		HealthTTLSec:        30,
	}
}

func newTestClient(t *testing.T, cfg config.InferenceConfig) (*Client, *State) {
	t.Helper()
	state := NewState(cfg.FailureThreshold,
		time.Duration(cfg.CircuitCooldownSec)*time.Second,
		time.Duration(cfg.HealthTTLSec)*time.Second)
	c := NewClient(cfg, state, zap.NewNop())
	t.Cleanup(c.Close)
	return c, state
}

func TestClient_CaptionImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/caption" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["path"] != "/tmp/img.jpg" {
			t.Errorf("unexpected payload %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"caption": "a red bicycle"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testClientConfig(srv.URL))

	caption, err := c.CaptionImage(context.Background(), "/tmp/img.jpg", false)
	if err != nil {
		t.Fatalf("caption: %v", err)
	}
	if caption != "a red bicycle" {
		t.Errorf("unexpected caption %q", caption)
	}
}

func TestClient_EmbedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/text" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testClientConfig(srv.URL))

	vec, err := c.EmbedText(context.Background(), "sunset over water", true)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, state := newTestClient(t, testClientConfig(srv.URL))

	// Threshold is 2: two failing calls open the circuit.
	for i := 0; i < 2; i++ {
		if _, err := c.CaptionImage(context.Background(), "/x.jpg", false); err == nil {
			t.Fatal("expected failure")
		}
	}
	if !state.CircuitOpen(time.Now()) {
		t.Fatal("expected open circuit")
	}

	before := hits.Load()
	_, err := c.CaptionImage(context.Background(), "/x.jpg", false)
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if hits.Load() != before {
		t.Error("open circuit must not make network contact")
	}

	// After the cooldown window the next call is attempted again.
	time.Sleep(1100 * time.Millisecond)
	_, _ = c.CaptionImage(context.Background(), "/x.jpg", false)
	if hits.Load() == before {
		t.Error("expected a new attempt after cooldown expiry")
	}
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"caption": "recovered"})
	}))
	defer srv.Close()

	cfg := testClientConfig(srv.URL)
	cfg.MaxRetries = 2
	cfg.FailureThreshold = 10
	c, _ := newTestClient(t, cfg)

	caption, err := c.CaptionImage(context.Background(), "/x.jpg", false)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if caption != "recovered" {
		t.Errorf("unexpected caption %q", caption)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", hits.Load())
	}
}

func TestClient_OfflineStubs(t *testing.T) {
	c, _ := newTestClient(t, testClientConfig(""))

	if !c.Offline() {
		t.Fatal("expected offline mode")
	}

	caption, err := c.CaptionImage(context.Background(), "/x.jpg", false)
	if err != nil || caption != stubCaption {
		t.Errorf("unexpected stub caption %q err %v", caption, err)
	}

	vec, err := c.EmbedImage(context.Background(), "/x.jpg", false)
	if err != nil || len(vec) != domain.EmbeddingDim {
		t.Errorf("expected zero vector of dim %d, got len %d err %v", domain.EmbeddingDim, len(vec), err)
	}
	for _, f := range vec {
		if f != 0 {
			t.Error("expected zero-filled stub vector")
			break
		}
	}

	if !c.Healthy(context.Background()) {
		t.Error("offline client reports healthy")
	}
}

func TestClient_HealthProbeCached(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ready": true})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testClientConfig(srv.URL))

	if !c.Healthy(context.Background()) {
		t.Fatal("expected healthy")
	}
	if !c.Healthy(context.Background()) {
		t.Fatal("expected healthy from cache")
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 probe, got %d", hits.Load())
	}
}

func TestClient_UnreadyProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ready": false})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testClientConfig(srv.URL))
	if c.Healthy(context.Background()) {
		t.Error("payload asserting not-ready must mark service unhealthy")
	}
}
