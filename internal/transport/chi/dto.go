package chi

import (
	"time"

	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/usecase/query"
)

// Error codes returned to API clients.
const (
	codeBadRequest       = "bad_request"
	codeUnauthorized     = "unauthorized"
	codeForbidden        = "scope_denied"
	codeDocumentNotFound = "document_not_found"
	codeInternal         = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type queryRequest struct {
	UserID        string   `json:"user_id"`
	Role          string   `json:"role"`
	Scope         string   `json:"scope"`
	GrantedScopes []string `json:"granted_scopes,omitempty"`
	Query         string   `json:"query"`
}

type queryResponse struct {
	Answer            string   `json:"answer"`
	SourceDocumentIDs []string `json:"source_document_ids"`
	CacheHit          bool     `json:"cache_hit"`
	LatencyMs         int64    `json:"latency_ms"`
}

func toQueryResponse(r query.Response) queryResponse {
	ids := r.SourceDocumentIDs
	if ids == nil {
		ids = []string{}
	}
	return queryResponse{
		Answer:            r.Answer,
		SourceDocumentIDs: ids,
		CacheHit:          r.CacheHit,
		LatencyMs:         r.Latency.Milliseconds(),
	}
}

type ingestRequest struct {
	DocumentID string `json:"document_id,omitempty"`
	Title      string `json:"title"`
	SourceType string `json:"source_type"`
	Scope      string `json:"scope"`
	Text       string `json:"text"`
}

type documentResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	SourceType string    `json:"source_type"`
	Scope      string    `json:"scope"`
	TextLen    int       `json:"text_len"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toDocumentResponse(d domain.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Title:      d.Title,
		SourceType: string(d.Source),
		Scope:      d.Scope,
		TextLen:    d.TextLen,
		Status:     string(d.Status),
		FailReason: d.FailReason,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type activityResponse struct {
	Events []activityEvent `json:"events"`
}

type activityEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	Scope       string    `json:"scope"`
	Fingerprint string    `json:"fingerprint"`
	Outcome     string    `json:"outcome"`
	CacheHit    bool      `json:"cache_hit"`
	LatencyMs   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

func toActivityResponse(events []domain.ActivityEvent) activityResponse {
	out := activityResponse{Events: make([]activityEvent, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, activityEvent{
			ID:          e.ID,
			UserID:      e.UserID,
			Role:        string(e.Role),
			Scope:       e.Scope,
			Fingerprint: e.Fingerprint,
			Outcome:     string(e.Outcome),
			CacheHit:    e.CacheHit,
			LatencyMs:   e.LatencyMs,
			Timestamp:   e.Timestamp,
		})
	}
	return out
}

type healthResponse struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks"`
	IndexSize  int               `json:"index_size"`
	IndexStale bool              `json:"index_stale"`
}
