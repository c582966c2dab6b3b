package aero

import "time"

// Role identifies who is asking.
type Role string

// Roles understood by the service.
const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

// SourceType identifies where a document's raw text came from.
type SourceType string

// Supported document sources.
const (
	SourcePDF     SourceType = "pdf"
	SourceVideo   SourceType = "video"
	SourceYouTube SourceType = "youtube"
)

// QueryRequest asks the assistant a question within a scope.
type QueryRequest struct {
	UserID        string   `json:"user_id"`
	Role          Role     `json:"role"`
	Scope         string   `json:"scope"`
	GrantedScopes []string `json:"granted_scopes,omitempty"`
	Query         string   `json:"query"`
}

// QueryResponse is the served answer with its provenance.
type QueryResponse struct {
	Answer            string   `json:"answer"`
	SourceDocumentIDs []string `json:"source_document_ids"`
	CacheHit          bool     `json:"cache_hit"`
	LatencyMs         int64    `json:"latency_ms"`
}

// IngestRequest submits extracted document text for ingestion.
type IngestRequest struct {
	DocumentID string     `json:"document_id,omitempty"`
	Title      string     `json:"title"`
	SourceType SourceType `json:"source_type"`
	Scope      string     `json:"scope"`
	Text       string     `json:"text"`
}

// Document is a knowledge-base document record.
type Document struct {
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

// ActivityEvent is one recorded query.
type ActivityEvent struct {
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

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks"`
	IndexSize  int               `json:"index_size"`
	IndexStale bool              `json:"index_stale"`
}
