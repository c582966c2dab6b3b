package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aero-edu/aero/internal/domain"
	logpkg "github.com/aero-edu/aero/internal/logger"
	healthuc "github.com/aero-edu/aero/internal/usecase/health"
	ingestuc "github.com/aero-edu/aero/internal/usecase/ingest"
	queryuc "github.com/aero-edu/aero/internal/usecase/query"
)

const maxIngestBytes = 16 << 20 // raw text payloads, not file uploads

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// ActivityReader serves the recent-activity endpoint.
type ActivityReader interface {
	Recent(ctx context.Context, n int64) ([]domain.ActivityEvent, error)
}

// Server hand-routes the HTTP API onto the usecase services.
type Server struct {
	query         *queryuc.Service
	ingest        *ingestuc.Service
	activity      ActivityReader
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	query *queryuc.Service,
	ingest *ingestuc.Service,
	activity ActivityReader,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		query:    query,
		ingest:   ingest,
		activity: activity,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound),
		sentinelHandler(domain.ErrScopeDenied, http.StatusForbidden, codeForbidden),
		sentinelHandler(domain.ErrIngestion, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrEmptyDocument, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrInvalidStatusTransition, http.StatusConflict, codeBadRequest),
	}
	return s
}

// Register mounts all API routes on r. Middleware is the caller's business.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/documents", s.handleIngest)
		r.Get("/documents/{id}", s.handleDocumentStatus)
		r.Delete("/documents/{id}", s.handleDocumentDelete)
		r.Post("/index/rebuild", s.handleRebuild)
		r.Get("/activity/recent", s.handleActivityRecent)
	})
}

// handleQuery handles POST /v1/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := s.query.Answer(r.Context(), queryuc.Request{
		UserID:        req.UserID,
		Role:          domain.Role(req.Role),
		Scope:         req.Scope,
		GrantedScopes: req.GrantedScopes,
		Query:         req.Query,
	})
	if err != nil {
		// Answer only errors on request validation; everything
		// recoverable comes back as a degraded answer.
		if errors.Is(err, domain.ErrScopeDenied) {
			writeError(w, http.StatusForbidden, codeForbidden, domain.ErrScopeDenied.Error())
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toQueryResponse(resp))
}

// handleIngest handles POST /v1/documents.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Scope == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "scope is required")
		return
	}

	doc, err := s.ingest.Ingest(r.Context(), ingestuc.Request{
		DocumentID: req.DocumentID,
		Title:      req.Title,
		Source:     domain.SourceType(req.SourceType),
		Scope:      req.Scope,
		Text:       req.Text,
	})
	if err != nil {
		// Pipeline failures leave a failed document record behind; the
		// client can see the reason from the returned status.
		if doc.ID != "" && doc.Status == domain.StatusFailed {
			writeJSON(w, http.StatusUnprocessableEntity, toDocumentResponse(doc))
			return
		}
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// handleDocumentStatus handles GET /v1/documents/{id}.
func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := s.ingest.Status(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// handleDocumentDelete handles DELETE /v1/documents/{id}.
func (s *Server) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.ingest.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRebuild handles POST /v1/index/rebuild. The rebuild itself runs in
// the background worker; this just queues it.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.ingest.ScheduleRebuild()
	w.WriteHeader(http.StatusAccepted)
}

// handleActivityRecent handles GET /v1/activity/recent.
func (s *Server) handleActivityRecent(w http.ResponseWriter, r *http.Request) {
	var limit int64 = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	events, err := s.activity.Recent(r.Context(), limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityResponse(events))
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:     string(report.Status),
		Checks:     checks,
		IndexSize:  report.IndexSize,
		IndexStale: report.IndexStale,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrScopeDenied,
		domain.ErrIngestion,
		domain.ErrEmptyDocument,
		domain.ErrInvalidStatusTransition,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	// The request-scoped logger carries the request ID set by the
	// wide-event middleware.
	logpkg.FromContext(r.Context()).Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
