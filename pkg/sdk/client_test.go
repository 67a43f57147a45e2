package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_Review_SendsMultipart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/images/review" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "beach.jpg" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		var rules []ReplacementRule
		if err := json.Unmarshal([]byte(r.FormValue("replacements")), &rules); err != nil || len(rules) != 1 {
			t.Errorf("replacements not carried: %v %v", rules, err)
		}

		_ = json.NewEncoder(w).Encode(Review{SessionID: "abc", FilePath: "/staging/abc_beach.jpg"})
	}))
	defer ts.Close()

	client := New(ts.URL)
	review, err := client.Review(context.Background(), strings.NewReader("bytes"), "beach.jpg",
		[]ReplacementRule{{From: "SONY", To: "Sony"}})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if review.SessionID != "abc" {
		t.Errorf("unexpected session id %q", review.SessionID)
	}
}

func TestClient_Confirm_SendsBearerToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID != "abc" {
			t.Errorf("session id not carried: %v %v", req, err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Image{ID: "img-1"})
	}))
	defer ts.Close()

	client := New(ts.URL, WithAPIKey("secret"))
	img, err := client.Confirm(context.Background(), "abc", Metadata{})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if img.ID != "img-1" {
		t.Errorf("unexpected image id %q", img.ID)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	}))
	defer ts.Close()

	client := New(ts.URL)
	_, err := client.Image(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected APIError with 404, got %v", err)
	}
}

func TestClient_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "red barn" {
			t.Errorf("unexpected query %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("unexpected limit %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []SearchResult{{FinalScore: 0.73, Source: "embedding"}},
		})
	}))
	defer ts.Close()

	client := New(ts.URL)
	results, err := client.Search(context.Background(), "red barn", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Source != "embedding" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestClient_Health_DegradedIsNotAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(Health{
			Status: "degraded",
			Checks: map[string]string{"database": "ok", "inference": "error"},
		})
	}))
	defer ts.Close()

	client := New(ts.URL)
	h, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Status != "degraded" || h.Checks["inference"] != "error" {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestClient_Delete_NoContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	if err := New(ts.URL).Delete(context.Background(), "img-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
