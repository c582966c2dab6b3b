package domain

import "time"

// SourceType identifies where a document's raw text came from.
type SourceType string

// Supported document sources.
const (
	SourcePDF     SourceType = "pdf"
	SourceVideo   SourceType = "video"
	SourceYouTube SourceType = "youtube"
)

// ValidSourceType reports whether s is a known source type.
func ValidSourceType(s SourceType) bool {
	switch s {
	case SourcePDF, SourceVideo, SourceYouTube:
		return true
	}
	return false
}

// IngestStatus is a document's position in the ingestion state machine.
type IngestStatus string

// Ingestion states. The happy path is pending -> chunking -> embedding ->
// ready; any state may transition to failed on unrecoverable error.
const (
	StatusPending   IngestStatus = "pending"
	StatusChunking  IngestStatus = "chunking"
	StatusEmbedding IngestStatus = "embedding"
	StatusReady     IngestStatus = "ready"
	StatusFailed    IngestStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal step.
func (s IngestStatus) CanTransition(next IngestStatus) bool {
	if next == StatusFailed {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusChunking
	case StatusChunking:
		return next == StatusEmbedding
	case StatusEmbedding:
		return next == StatusReady
	case StatusReady, StatusFailed:
		return false
	}
	return false
}

// Document is an ingested knowledge-base source.
type Document struct {
	ID         string
	Title      string
	Source     SourceType
	Scope      string
	TextLen    int
	Status     IngestStatus
	FailReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk is a bounded text span of a document, the unit of retrieval.
// Seq is the insertion order within the document; it is significant for
// deterministic context ordering and for search tie-breaks.
type Chunk struct {
	ID           string
	DocumentID   string
	Seq          int
	Text         string
	Vector       []float32
	ModelVersion string
}
