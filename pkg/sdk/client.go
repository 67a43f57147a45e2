package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Minute

// Client talks to a gallery API server.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent on mutating requests.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Review uploads an image for metadata review. The returned session id must
// be passed to Confirm within an hour or the staged file is reaped.
func (c *Client) Review(ctx context.Context, file io.Reader, filename string, rules []ReplacementRule) (Review, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Review{}, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Review{}, fmt.Errorf("copy file: %w", err)
	}
	if len(rules) > 0 {
		raw, err := json.Marshal(rules)
		if err != nil {
			return Review{}, fmt.Errorf("encode rules: %w", err)
		}
		if err := mw.WriteField("replacements", string(raw)); err != nil {
			return Review{}, fmt.Errorf("write rules field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Review{}, fmt.Errorf("finish multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/images/review", &body)
	if err != nil {
		return Review{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out Review
	if err := c.do(req, &out); err != nil {
		return Review{}, err
	}
	return out, nil
}

// Confirm turns a reviewed session into a persisted image.
func (c *Client) Confirm(ctx context.Context, sessionID string, meta Metadata) (Image, error) {
	payload := struct {
		SessionID string   `json:"session_id"`
		Metadata  Metadata `json:"metadata"`
	}{SessionID: sessionID, Metadata: meta}

	var out Image
	if err := c.doJSON(ctx, http.MethodPost, "/api/images/confirm", payload, &out); err != nil {
		return Image{}, err
	}
	return out, nil
}

// Image fetches one image by id.
func (c *Client) Image(ctx context.Context, id string) (Image, error) {
	var out Image
	if err := c.doJSON(ctx, http.MethodGet, "/api/images/"+url.PathEscape(id), nil, &out); err != nil {
		return Image{}, err
	}
	return out, nil
}

// Images lists images, newest first. limit <= 0 uses the server default.
func (c *Client) Images(ctx context.Context, limit int) ([]Image, error) {
	path := "/api/images"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []Image `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// UpdateMetadata applies a partial metadata update.
func (c *Client) UpdateMetadata(ctx context.Context, id string, patch Metadata) (Image, error) {
	var out Image
	if err := c.doJSON(ctx, http.MethodPatch, "/api/images/"+url.PathEscape(id), patch, &out); err != nil {
		return Image{}, err
	}
	return out, nil
}

// Delete removes an image with all its versions and files.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/images/"+url.PathEscape(id), nil, nil)
}

// Search runs a hybrid free-text search. limit <= 0 uses the server default.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	params := url.Values{"q": {query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Items []SearchResult `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/search?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// BackfillCaptions re-captions images with a missing caption.
func (c *Client) BackfillCaptions(ctx context.Context, force bool) (Report, error) {
	return c.doReport(ctx, "/api/admin/backfill/captions?force="+strconv.FormatBool(force))
}

// BackfillEmbeddings re-embeds images with a missing embedding.
func (c *Client) BackfillEmbeddings(ctx context.Context, force bool) (Report, error) {
	return c.doReport(ctx, "/api/admin/backfill/embeddings?force="+strconv.FormatBool(force))
}

// CleanupStagedUploads reaps staged uploads past their TTL.
func (c *Client) CleanupStagedUploads(ctx context.Context) (Report, error) {
	return c.doReport(ctx, "/api/admin/cleanup/staged")
}

// CleanupOrphanedArtifacts removes artifact directories with no matching image.
func (c *Client) CleanupOrphanedArtifacts(ctx context.Context) (Report, error) {
	return c.doReport(ctx, "/api/admin/cleanup/orphans")
}

// Health fetches the aggregated service health. A degraded service answers
// 503 but still returns a report, so that status is not an error here.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("gallery api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return Health{}, &APIError{Status: resp.StatusCode}
	}
	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Health{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c *Client) doReport(ctx context.Context, path string) (Report, error) {
	var out Report
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return Report{}, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("gallery api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
