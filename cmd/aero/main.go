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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/aero-edu/aero/internal/chunker"
	"github.com/aero-edu/aero/internal/config"
	dbRedis "github.com/aero-edu/aero/internal/db/redis"
	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/index"
	logpkg "github.com/aero-edu/aero/internal/logger"
	"github.com/aero-edu/aero/internal/metrics"
	activityrepo "github.com/aero-edu/aero/internal/repository/activity"
	cacherepo "github.com/aero-edu/aero/internal/repository/cache"
	documentrepo "github.com/aero-edu/aero/internal/repository/document"
	"github.com/aero-edu/aero/internal/repository/embcache"
	chiTransport "github.com/aero-edu/aero/internal/transport/chi"
	openaiTransport "github.com/aero-edu/aero/internal/transport/openai"
	activityuc "github.com/aero-edu/aero/internal/usecase/activity"
	cacheuc "github.com/aero-edu/aero/internal/usecase/cache"
	healthuc "github.com/aero-edu/aero/internal/usecase/health"
	ingestuc "github.com/aero-edu/aero/internal/usecase/ingest"
	queryuc "github.com/aero-edu/aero/internal/usecase/query"
	"github.com/aero-edu/aero/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting aero core service",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	prefix := cfg.Database.KeyPrefix

	// Embedder chain: OpenAI provider wrapped in the embedding cache.
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	embedder = embcache.New(embedder, store, prefix, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		Timeout: time.Duration(cfg.Completion.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	// Repositories
	docRepo := documentrepo.New(store, prefix)
	cacheRepo := cacherepo.New(store, prefix)
	activitySink := activityrepo.NewSink(store, prefix)

	// Vector index and response cache
	idx := index.New()
	respCache := cacheuc.New(cacheRepo, cfg.Cache.LocalSize,
		time.Duration(cfg.Cache.TTLSec)*time.Second, logger)

	recorder := activityuc.NewAsyncRecorder(activitySink, cfg.Activity.BufferSize, logger)
	defer recorder.Close()

	// Use case services
	ingestSvc := ingestuc.New(
		docRepo,
		chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		embedder,
		idx,
		respCache,
		cfg.Embedding.MaxRetries,
		cfg.Embedding.BatchSize,
		logger,
	)
	defer ingestSvc.Close()

	querySvc := queryuc.New(
		respCache, embedder, idx, docRepo, completer, recorder,
		queryuc.Config{
			TopK:        cfg.Retrieval.TopK,
			ScoreFloor:  cfg.Retrieval.ScoreFloor,
			MaxTokens:   cfg.Completion.MaxTokens,
			Temperature: cfg.Completion.Temperature,
		},
		logger,
	)

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder), idx)

	// Warm the index from whatever is already in the document store.
	if err := ingestSvc.Rebuild(ctx); err != nil {
		logger.Warn("Initial index build failed, serving with empty index", zap.Error(err))
		idx.MarkStale()
		ingestSvc.ScheduleRebuild()
	}

	// Create chi server
	server := chiTransport.NewServer(querySvc, ingestSvc, activitySink, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
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

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
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
						"code":    "internal_error",
						"message": "internal error",
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

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
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
