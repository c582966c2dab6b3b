package query

import (
	"context"
	"time"

	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/index"
	cacherepo "github.com/aero-edu/aero/internal/repository/cache"
)

// ResponseCache is the two-tier cache contract.
type ResponseCache interface {
	Get(ctx context.Context, scope, fingerprint string) (cacherepo.Entry, bool)
	Put(ctx context.Context, e cacherepo.Entry) error
	TTL() time.Duration
}

// VectorIndex serves similarity search. Read-only from the pipeline's side.
type VectorIndex interface {
	Search(queryVector []float32, k int, scope string) []index.Hit
}

// DocumentReader filters hits on document liveness and loads chunk texts.
type DocumentReader interface {
	ReadyDocs(ctx context.Context, ids []string) (map[string]bool, error)
	GetChunks(ctx context.Context, chunkIDs []string) ([]domain.Chunk, error)
}

// Recorder receives exactly one activity event per served query.
type Recorder interface {
	Record(e domain.ActivityEvent)
}
