package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/silvergrain/gallery/internal/artifacts"
	"github.com/silvergrain/gallery/internal/config"
	"github.com/silvergrain/gallery/internal/inference"
	logpkg "github.com/silvergrain/gallery/internal/logger"
	"github.com/silvergrain/gallery/internal/metrics"
	imagerepo "github.com/silvergrain/gallery/internal/repository/images"
	"github.com/silvergrain/gallery/internal/storage"
	chiTransport "github.com/silvergrain/gallery/internal/transport/chi"
	healthuc "github.com/silvergrain/gallery/internal/usecase/health"
	ingestuc "github.com/silvergrain/gallery/internal/usecase/ingest"
	searchuc "github.com/silvergrain/gallery/internal/usecase/search"
	"github.com/silvergrain/gallery/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting gallery API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	if err := imagerepo.Migrate(ctx, pool); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterInferenceMetrics()

	// Composition root
	store, err := storage.NewManager(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to create storage manager", zap.Error(err))
	}
	if err := store.EnsureDirectories(ctx); err != nil {
		logger.Fatal("Failed to prepare storage directories", zap.Error(err))
	}

	inferenceState := inference.NewState(
		cfg.Inference.FailureThreshold,
		time.Duration(cfg.Inference.CircuitCooldownSec)*time.Second,
		time.Duration(cfg.Inference.HealthTTLSec)*time.Second,
	)
	inferenceClient := inference.NewClient(cfg.Inference, inferenceState, logger)
	defer inferenceClient.Close()
	if inferenceClient.Offline() {
		logger.Warn("No inference base URL configured, running with stub captions and embeddings")
	}

	repo := imagerepo.New(pool, store, store, logger)
	generator := artifacts.NewGenerator(store, cfg.Images.JPEGQuality, logger)

	ingestSvc := ingestuc.New(repo, store, generator, inferenceClient, logger)
	searchSvc := searchuc.New(repo, inferenceClient, logger)

	var inferenceChecker healthuc.InferenceChecker
	if !inferenceClient.Offline() {
		inferenceChecker = inferenceClient
	}
	healthSvc := healthuc.New(pool, inferenceChecker)

	server := chiTransport.NewServer(
		ingestSvc, searchSvc, healthSvc,
		store, localUploadsRoot(store), store.StagingDir(), logger,
	)

	handler := chain(server.Router(cfg.HTTP.APIKeys),
		metrics.Middleware(),
		wideEventMiddleware(logger),
		chiMiddleware.RequestID,
		jsonRecoverer(logger),
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Let in-flight enrichment finish writing captions and embeddings.
	ingestSvc.Wait()

	logger.Info("Server stopped gracefully")
}

// localUploadsRoot returns the static-serving root when the durable backend
// is the local filesystem, or "" to disable static serving.
func localUploadsRoot(store *storage.Manager) string {
	if !store.IsLocalStorage() {
		return ""
	}
	local, ok := store.Adapter().(*storage.LocalAdapter)
	if !ok {
		return ""
	}
	return local.Root()
}

// chain applies middleware so the first listed runs innermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for _, mw := range mws {
		h = mw(h)
	}
	return h
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
