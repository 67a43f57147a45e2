// Package chi exposes the gallery pipeline over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/domain"
	healthuc "github.com/silvergrain/gallery/internal/usecase/health"
	ingestuc "github.com/silvergrain/gallery/internal/usecase/ingest"
	searchuc "github.com/silvergrain/gallery/internal/usecase/search"
)

// maxUploadBytes caps the multipart memory buffer for review uploads.
const maxUploadBytes = 64 << 20

const defaultListLimit = 100

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the usecases to the HTTP surface.
type Server struct {
	ingest        *ingestuc.Service
	search        *searchuc.Service
	health        *healthuc.Service
	urls          URLResolver
	uploadsRoot   string // non-empty enables static serving of local artifacts
	stagingDir    string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. uploadsRoot may be empty when the
// durable backend is remote; local artifact serving is then disabled.
func NewServer(
	ingest *ingestuc.Service,
	search *searchuc.Service,
	health *healthuc.Service,
	urls URLResolver,
	uploadsRoot string,
	stagingDir string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:      ingest,
		search:      search,
		health:      health,
		urls:        urls,
		uploadsRoot: uploadsRoot,
		stagingDir:  stagingDir,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest),
		sentinelHandler(domain.ErrServiceUnavailable, http.StatusServiceUnavailable),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout),
	}
	return s
}

// Router builds the chi router with all routes. Cross-cutting middleware
// (recovery, request ids, metrics) is composed by the caller.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if s.uploadsRoot != "" {
		fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadsRoot)))
		r.Get("/uploads/*", fileServer.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/images", s.handleListImages)
		r.Get("/images/{id}", s.handleGetImage)
		r.Get("/search", s.handleSearch)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiKeys))

			r.Post("/images/review", s.handleReview)
			r.Post("/images/confirm", s.handleConfirm)
			r.Patch("/images/{id}", s.handleUpdateMetadata)
			r.Delete("/images/{id}", s.handleDeleteImage)

			r.Post("/admin/backfill/captions", s.handleBackfillCaptions)
			r.Post("/admin/backfill/embeddings", s.handleBackfillEmbeddings)
			r.Post("/admin/cleanup/staged", s.handleCleanupStaged)
			r.Post("/admin/cleanup/orphans", s.handleCleanupOrphans)
		})
	})

	return r
}

// handleReview accepts a multipart upload, spools it to a temp file, and
// runs the review step against it.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	rules, err := parseReplacementRules(r.FormValue("replacements"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid replacements: "+err.Error())
		return
	}

	incoming, err := s.spoolUpload(file)
	if err != nil {
		s.handleDomainError(w, fmt.Errorf("spool upload: %w", err))
		return
	}

	res, err := s.ingest.Review(r.Context(), incoming, header.Filename, rules)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewResponse{
		SessionID: res.SessionID,
		FilePath:  res.FilePath,
		Metadata:  metadataToPayload(res.Metadata),
	})
}

// spoolUpload writes the request body stream to a temp file in staging so the
// pipeline works with filesystem paths.
func (s *Server) spoolUpload(file io.Reader) (string, error) {
	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.stagingDir, "incoming-*")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func parseReplacementRules(raw string) ([]domain.ReplacementRule, error) {
	if raw == "" {
		return nil, nil
	}
	var rules []domain.ReplacementRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	meta, err := metadataFromPayload(req.Metadata)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid taken_at date: "+err.Error())
		return
	}

	img, err := s.ingest.Confirm(r.Context(), req.SessionID, meta)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, imageToPayload(img, s.urls))
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.imageID(w, r)
	if !ok {
		return
	}
	img, err := s.ingest.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imageToPayload(img, s.urls))
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	imgs, err := s.ingest.List(r.Context(), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]imagePayload, 0, len(imgs))
	for _, img := range imgs {
		items = append(items, imageToPayload(img, s.urls))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := s.imageID(w, r)
	if !ok {
		return
	}
	var payload metadataPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	patch, err := patchFromPayload(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid taken_at date: "+err.Error())
		return
	}

	img, err := s.ingest.UpdateMetadata(r.Context(), id, patch)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imageToPayload(img, s.urls))
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.imageID(w, r)
	if !ok {
		return
	}
	if err := s.ingest.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 0)

	results, err := s.search.Search(r.Context(), query, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultPayload, 0, len(results))
	for _, res := range results {
		items = append(items, searchResultToPayload(res, s.urls))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleBackfillCaptions(w http.ResponseWriter, r *http.Request) {
	report, err := s.ingest.BackfillCaptions(r.Context(), queryBool(r, "force"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportPayload{
		Scanned: report.Scanned, Successful: report.Successful, Errors: report.Errors,
	})
}

func (s *Server) handleBackfillEmbeddings(w http.ResponseWriter, r *http.Request) {
	report, err := s.ingest.BackfillEmbeddings(r.Context(), queryBool(r, "force"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportPayload{
		Scanned: report.Scanned, Successful: report.Successful, Errors: report.Errors,
	})
}

func (s *Server) handleCleanupStaged(w http.ResponseWriter, r *http.Request) {
	report, err := s.ingest.CleanupStagedUploads(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportPayload{
		Scanned: report.Scanned, Deleted: report.Deleted, Errors: report.Errors,
	})
}

func (s *Server) handleCleanupOrphans(w http.ResponseWriter, r *http.Request) {
	report, err := s.ingest.CleanupOrphanedArtifacts(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportPayload{
		Scanned: report.Scanned, Deleted: report.Deleted, Errors: report.Errors,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// imageID parses the {id} route parameter, writing a 400 on malformed input.
func (s *Server) imageID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed image id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrSessionNotFound,
		domain.ErrNotFound,
		domain.ErrValidation,
		domain.ErrServiceUnavailable,
		domain.ErrTimeout,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			s.logger.Warn("request failed", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
