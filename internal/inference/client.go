// Package inference provides bounded, resilient access to the external
// captioning/embedding service: a single-flight priority queue, a circuit
// breaker, per-call timeouts with retry, and an offline stub mode.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/config"
	"github.com/silvergrain/gallery/internal/domain"
	"github.com/silvergrain/gallery/internal/metrics"
)

// Request kinds, used as metric labels.
const (
	kindCaption        = "caption"
	kindImageEmbedding = "image_embedding"
	kindTextEmbedding  = "text_embedding"
)

const (
	retryBaseDelay     = 500 * time.Millisecond
	healthProbeTimeout = 5 * time.Second
	// stubCaption is returned for every image in offline mode.
	stubCaption = "A photograph."
)

// Client talks to the model-serving process over HTTP. All calls funnel
// through a single-flight queue; an empty base URL enables offline stub mode
// where calls return deterministic fixed-shape values without network contact.
type Client struct {
	baseURL     string
	httpc       *http.Client
	q           *queue
	state       *State
	callTimeout time.Duration
	maxRetries  int
	logger      *zap.Logger
}

// NewClient creates a Client from config, sharing the given State.
func NewClient(cfg config.InferenceConfig, state *State, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		httpc:       &http.Client{},
		q:           newQueue(time.Duration(cfg.QueueCooldownMillis) * time.Millisecond),
		state:       state,
		callTimeout: time.Duration(cfg.TimeoutSec) * time.Second,
		maxRetries:  cfg.MaxRetries,
		logger:      logger,
	}
}

// Offline reports whether the client runs without a configured upstream.
func (c *Client) Offline() bool { return c.baseURL == "" }

// Close stops the dispatch queue.
func (c *Client) Close() { c.q.Close() }

// CaptionImage generates a caption for the image at the given local path.
func (c *Client) CaptionImage(ctx context.Context, path string, highPriority bool) (string, error) {
	if c.Offline() {
		return stubCaption, nil
	}
	var out struct {
		Caption string `json:"caption"`
	}
	if err := c.call(ctx, kindCaption, highPriority, "/caption", map[string]string{"path": path}, &out); err != nil {
		return "", err
	}
	return out.Caption, nil
}

// EmbedImage generates an embedding for the image at the given local path.
func (c *Client) EmbedImage(ctx context.Context, path string, highPriority bool) ([]float32, error) {
	if c.Offline() {
		return make([]float32, domain.EmbeddingDim), nil
	}
	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.call(ctx, kindImageEmbedding, highPriority, "/embed/image", map[string]string{"path": path}, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// EmbedText generates an embedding for free text.
func (c *Client) EmbedText(ctx context.Context, text string, highPriority bool) ([]float32, error) {
	if c.Offline() {
		return make([]float32, domain.EmbeddingDim), nil
	}
	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.call(ctx, kindTextEmbedding, highPriority, "/embed/text", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// call funnels one request through the queue with circuit-breaker and retry
// handling. Fails fast without enqueueing while the circuit is open.
func (c *Client) call(ctx context.Context, kind string, highPriority bool, endpoint string, body, out any) error {
	if c.state.CircuitOpen(time.Now()) {
		return fmt.Errorf("circuit open: %w", domain.ErrServiceUnavailable)
	}

	var callErr error
	if err := c.q.Do(ctx, highPriority, func() {
		callErr = c.attempt(ctx, kind, endpoint, body, out)
	}); err != nil {
		return fmt.Errorf("waiting for inference queue: %w", err)
	}
	return callErr
}

// attempt runs the retry loop inside the queue's single-flight slot.
// Everything except an open circuit is retryable, with exponential backoff.
func (c *Client) attempt(ctx context.Context, kind, endpoint string, body, out any) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := c.doRequest(ctx, endpoint, body, out)
		if err == nil {
			c.state.RecordSuccess()
			metrics.InferenceRequestsTotal.WithLabelValues(kind, "success").Inc()
			metrics.InferenceRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
			return nil
		}

		metrics.InferenceRequestsTotal.WithLabelValues(kind, "error").Inc()
		if c.state.RecordFailure(time.Now()) {
			metrics.InferenceCircuitOpens.Inc()
			c.logger.Warn("inference circuit breaker opened",
				zap.Int("consecutive_failures", c.state.ConsecutiveFailures()))
		}

		if attempt >= c.maxRetries || c.state.CircuitOpen(time.Now()) {
			return err
		}

		backoff := retryBaseDelay << attempt
		c.logger.Debug("retrying inference call",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
}

// doRequest executes one HTTP round trip with the per-call timeout, mapping
// failures to the error kinds callers distinguish on.
func (c *Client) doRequest(ctx context.Context, endpoint string, body, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("inference call %s: %w", endpoint, domain.ErrTimeout)
		}
		return fmt.Errorf("inference call %s: %v: %w", endpoint, err, domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("inference API status %d: %s: %w",
				resp.StatusCode, strings.TrimSpace(string(detail)), domain.ErrServiceUnavailable)
		}
		return fmt.Errorf("inference API status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Healthy probes the service's readiness endpoint, caching the result for
// the configured TTL so callers do not probe on every request.
func (c *Client) Healthy(ctx context.Context) bool {
	if c.Offline() {
		return true
	}

	now := time.Now()
	if healthy, fresh := c.state.CachedHealth(now); fresh {
		return healthy
	}

	healthy := c.probe(ctx)
	c.state.SetHealth(healthy, time.Now())
	return healthy
}

func (c *Client) probe(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}

	var status struct {
		Ready bool `json:"ready"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Ready
}
