package ingest

import (
	"context"

	"github.com/aero-edu/aero/internal/chunker"
	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/index"
)

// DocumentStore is the durable document contract (implemented by
// repository/document).
type DocumentStore interface {
	Create(ctx context.Context, doc domain.Document) error
	Get(ctx context.Context, id string) (domain.Document, error)
	SetStatus(ctx context.Context, id string, next domain.IngestStatus, failReason string) error
	PutChunks(ctx context.Context, docID string, chunks []domain.Chunk) error
	Chunks(ctx context.Context, docID string) ([]domain.Chunk, error)
	Delete(ctx context.Context, id string) ([]string, error)
	ListReady(ctx context.Context) ([]domain.Document, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Chunker splits raw text into ordered windows.
type Chunker interface {
	Split(text string) ([]chunker.Window, error)
}

// VectorIndex is the in-process index contract.
type VectorIndex interface {
	Add(modelVersion string, entries ...index.Entry) error
	Contains(chunkID string) bool
	RemoveDocument(documentID string)
	Rebuild(modelVersion string, entries []index.Entry)
	MarkStale()
	Stale() bool
	Size() int
	Writes() uint64
}

// ResponseCache invalidates cached answers when documents change.
type ResponseCache interface {
	InvalidateChunks(ctx context.Context, chunkIDs []string) error
	FlushScope(ctx context.Context, scope string) error
}
