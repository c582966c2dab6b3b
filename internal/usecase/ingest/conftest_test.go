package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/index"
)

// fakeDocs is an in-memory DocumentStore. The rebuild worker touches it from
// its own goroutine, so every method locks.
type fakeDocs struct {
	mu          sync.Mutex
	docs        map[string]domain.Document
	chunks      map[string][]domain.Chunk
	transitions map[string][]domain.IngestStatus
	deleted     []string

	createErr    error
	setStatusErr error
	putChunksErr error
	existsErr    error

	// Hooks fire after the store mutex is released so they may call back
	// into the store or the index without deadlocking.
	onChunks    func(docID string)
	onSetStatus func(id string, next domain.IngestStatus)
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		docs:        map[string]domain.Document{},
		chunks:      map[string][]domain.Chunk{},
		transitions: map[string][]domain.IngestStatus{},
	}
}

func (f *fakeDocs) Create(_ context.Context, doc domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocs) Get(_ context.Context, id string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrDocumentNotFound)
	}
	return doc, nil
}

func (f *fakeDocs) SetStatus(_ context.Context, id string, next domain.IngestStatus, failReason string) error {
	f.mu.Lock()
	if f.setStatusErr != nil {
		f.mu.Unlock()
		return f.setStatusErr
	}
	doc, ok := f.docs[id]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("document %s: %w", id, domain.ErrDocumentNotFound)
	}
	doc.Status = next
	doc.FailReason = failReason
	f.docs[id] = doc
	f.transitions[id] = append(f.transitions[id], next)
	hook := f.onSetStatus
	f.mu.Unlock()
	if hook != nil {
		hook(id, next)
	}
	return nil
}

func (f *fakeDocs) PutChunks(_ context.Context, docID string, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putChunksErr != nil {
		return f.putChunksErr
	}
	f.chunks[docID] = chunks
	return nil
}

func (f *fakeDocs) Chunks(_ context.Context, docID string) ([]domain.Chunk, error) {
	f.mu.Lock()
	chunks := f.chunks[docID]
	hook := f.onChunks
	f.mu.Unlock()
	if hook != nil {
		hook(docID)
	}
	return chunks, nil
}

func (f *fakeDocs) Delete(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrDocumentNotFound)
	}
	ids := make([]string, len(f.chunks[id]))
	for i, c := range f.chunks[id] {
		ids[i] = c.ID
	}
	delete(f.docs, id)
	delete(f.chunks, id)
	f.deleted = append(f.deleted, id)
	return ids, nil
}

func (f *fakeDocs) ListReady(_ context.Context) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.Status == domain.StatusReady {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeDocs) Exists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.docs[id]
	return ok, nil
}

func (f *fakeDocs) statusHistory(id string) []domain.IngestStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.IngestStatus, len(f.transitions[id]))
	copy(out, f.transitions[id])
	return out
}

type fakeIndex struct {
	mu       sync.Mutex
	entries  map[string]index.Entry
	removed  []string
	rebuilds int
	writes   uint64
	stale    bool
	addErr   error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: map[string]index.Entry{}}
}

func (f *fakeIndex) Add(_ string, entries ...index.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	for _, e := range entries {
		f.entries[e.ChunkID] = e
	}
	f.writes++
	return nil
}

func (f *fakeIndex) RemoveDocument(documentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, documentID)
	f.writes++
	for id, e := range f.entries {
		if e.DocumentID == documentID {
			delete(f.entries, id)
		}
	}
}

func (f *fakeIndex) Rebuild(_ string, entries []index.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = map[string]index.Entry{}
	for _, e := range entries {
		f.entries[e.ChunkID] = e
	}
	f.rebuilds++
	f.stale = false
}

func (f *fakeIndex) MarkStale() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale = true
}

func (f *fakeIndex) Stale() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale
}

func (f *fakeIndex) Contains(chunkID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[chunkID]
	return ok
}

func (f *fakeIndex) Writes() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeIndex) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeIndex) rebuildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rebuilds
}

type fakeCache struct {
	mu            sync.Mutex
	invalidated   [][]string
	flushed       []string
	invalidateErr error
	flushErr      error
}

func (f *fakeCache) InvalidateChunks(_ context.Context, chunkIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invalidateErr != nil {
		return f.invalidateErr
	}
	f.invalidated = append(f.invalidated, chunkIDs)
	return nil
}

func (f *fakeCache) FlushScope(_ context.Context, scope string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushErr != nil {
		return f.flushErr
	}
	f.flushed = append(f.flushed, scope)
	return nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	version string
	embedFn func(text string) (domain.EmbeddingResult, error)
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.mu.Lock()
	f.calls++
	fn := f.embedFn
	f.mu.Unlock()
	if fn != nil {
		return fn(text)
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

func (f *fakeEmbedder) ModelVersion() string {
	if f.version != "" {
		return f.version
	}
	return "test-model/3"
}

func (f *fakeEmbedder) embedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
