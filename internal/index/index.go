// Package index is the in-process nearest-neighbor index over chunk vectors.
// Readers are lock-free: every mutation publishes a fresh immutable
// generation through an atomic pointer, so searches never observe a
// half-built index and rebuilds swap in atomically.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/aero-edu/aero/internal/domain"
)

// Entry is one (chunk, vector) pair to be indexed. The index references
// chunks by identifier only and never outlives the document data it was
// built from.
type Entry struct {
	ChunkID    string
	DocumentID string
	Scope      string
	Vector     []float32
}

// Hit is a single search result.
type Hit struct {
	ChunkID    string
	DocumentID string
	Score      float64
}

type indexEntry struct {
	chunkID    string
	documentID string
	scope      string
	vector     []float32 // unit-normalized
}

// generation is an immutable snapshot. entries keep insertion order, which
// is the deterministic tie-break for equal scores.
type generation struct {
	modelVersion string
	entries      []indexEntry
	byChunk      map[string]int
}

func emptyGeneration() *generation {
	return &generation{byChunk: map[string]int{}}
}

// Index holds chunk vectors for cosine-similarity search.
type Index struct {
	mu     sync.Mutex // serializes writers; readers go through gen only
	gen    atomic.Pointer[generation]
	stale  atomic.Bool
	writes atomic.Uint64
}

// New creates an empty index.
func New() *Index {
	idx := &Index{}
	idx.gen.Store(emptyGeneration())
	return idx
}

// Add inserts entries embedded with the given model version. All vectors in
// the index share one model version; a mismatch returns ErrIndexInconsistent
// and the caller is expected to schedule a rebuild.
func (x *Index) Add(modelVersion string, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.gen.Load()
	if cur.modelVersion != "" && cur.modelVersion != modelVersion {
		return fmt.Errorf("%w: index has model %q, got %q",
			domain.ErrIndexInconsistent, cur.modelVersion, modelVersion)
	}

	next := &generation{
		modelVersion: modelVersion,
		entries:      make([]indexEntry, 0, len(cur.entries)+len(entries)),
		byChunk:      make(map[string]int, len(cur.byChunk)+len(entries)),
	}
	next.entries = append(next.entries, cur.entries...)
	for k, v := range cur.byChunk {
		next.byChunk[k] = v
	}

	for _, e := range entries {
		if i, ok := next.byChunk[e.ChunkID]; ok {
			next.entries[i].vector = normalize(e.Vector)
			continue
		}
		next.byChunk[e.ChunkID] = len(next.entries)
		next.entries = append(next.entries, indexEntry{
			chunkID:    e.ChunkID,
			documentID: e.DocumentID,
			scope:      e.Scope,
			vector:     normalize(e.Vector),
		})
	}

	x.gen.Store(next)
	x.writes.Add(1)
	return nil
}

// Remove drops a single chunk from the index. Unknown chunks are a no-op.
func (x *Index) Remove(chunkID string) {
	x.removeWhere(func(e indexEntry) bool { return e.chunkID == chunkID })
}

// RemoveDocument drops every chunk belonging to the document.
func (x *Index) RemoveDocument(documentID string) {
	x.removeWhere(func(e indexEntry) bool { return e.documentID == documentID })
}

func (x *Index) removeWhere(drop func(indexEntry) bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.gen.Load()
	next := &generation{
		modelVersion: cur.modelVersion,
		entries:      make([]indexEntry, 0, len(cur.entries)),
		byChunk:      make(map[string]int, len(cur.byChunk)),
	}
	for _, e := range cur.entries {
		if drop(e) {
			continue
		}
		next.byChunk[e.chunkID] = len(next.entries)
		next.entries = append(next.entries, e)
	}
	x.gen.Store(next)
	x.writes.Add(1)
}

// Search returns up to k hits in the given scope ranked by descending cosine
// similarity. Equal scores keep chunk insertion order, so identical inputs
// always produce identical results. Safe for unlimited concurrent callers.
func (x *Index) Search(queryVector []float32, k int, scope string) []Hit {
	if k <= 0 {
		return nil
	}

	gen := x.gen.Load()
	q := normalize(queryVector)

	hits := make([]Hit, 0, len(gen.entries))
	for _, e := range gen.entries {
		if scope != "" && e.scope != scope {
			continue
		}
		if len(e.vector) != len(q) {
			continue
		}
		hits = append(hits, Hit{
			ChunkID:    e.chunkID,
			DocumentID: e.documentID,
			Score:      dot(e.vector, q),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Rebuild replaces the whole index with a freshly built generation and
// clears the stale flag. Concurrent searches keep reading the previous
// generation until the swap.
func (x *Index) Rebuild(modelVersion string, entries []Entry) {
	next := &generation{
		modelVersion: modelVersion,
		entries:      make([]indexEntry, 0, len(entries)),
		byChunk:      make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, ok := next.byChunk[e.ChunkID]; ok {
			continue
		}
		next.byChunk[e.ChunkID] = len(next.entries)
		next.entries = append(next.entries, indexEntry{
			chunkID:    e.ChunkID,
			documentID: e.DocumentID,
			scope:      e.Scope,
			vector:     normalize(e.Vector),
		})
	}

	x.mu.Lock()
	x.gen.Store(next)
	x.stale.Store(false)
	x.mu.Unlock()
}

// Writes returns a counter that advances on every Add or remove. A rebuild
// compares it across its snapshot window to detect writers whose mutations
// the generation swap would otherwise discard.
func (x *Index) Writes() uint64 { return x.writes.Load() }

// MarkStale flags the index for rebuild after an unconfirmed mutation.
func (x *Index) MarkStale() { x.stale.Store(true) }

// Stale reports whether a rebuild is pending.
func (x *Index) Stale() bool { return x.stale.Load() }

// Size returns the number of indexed chunks.
func (x *Index) Size() int { return len(x.gen.Load().entries) }

// ModelVersion returns the embedding model version of the current generation,
// or "" for an empty index.
func (x *Index) ModelVersion() string { return x.gen.Load().modelVersion }

// Contains reports whether a chunk is indexed.
func (x *Index) Contains(chunkID string) bool {
	_, ok := x.gen.Load().byChunk[chunkID]
	return ok
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
