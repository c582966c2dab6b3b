package domain

import "errors"

var (
	// ErrIngestion signals bad or empty source input; the document is marked
	// failed and is not retried automatically.
	ErrIngestion = errors.New("ingestion failed")
	// ErrEmptyDocument signals source text that is empty after extraction.
	ErrEmptyDocument = errors.New("document text is empty")
	// ErrEmbedding signals an embedding backend or model failure.
	ErrEmbedding = errors.New("embedding failed")
	// ErrIndexInconsistent signals embedding-model version skew or a missing
	// chunk in the vector index; the index must be rebuilt.
	ErrIndexInconsistent = errors.New("vector index inconsistent")
	// ErrCompletionTimeout signals the completion provider did not answer in time.
	ErrCompletionTimeout = errors.New("completion timed out")
	// ErrCompletionUnavailable signals a rate limit or server failure at the
	// completion provider.
	ErrCompletionUnavailable = errors.New("completion unavailable")
	// ErrCacheUnavailable signals the durable cache tier is unreachable.
	// Treated as a forced miss, never as a query failure.
	ErrCacheUnavailable = errors.New("response cache unavailable")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrScopeDenied signals a role is not allowed to query the requested scope.
	ErrScopeDenied = errors.New("scope denied")
	// ErrInvalidStatusTransition signals an ingestion state-machine violation.
	ErrInvalidStatusTransition = errors.New("invalid ingestion status transition")
)
