package chi

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	chiv5 "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aero-edu/aero/internal/chunker"
	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/index"
	cacherepo "github.com/aero-edu/aero/internal/repository/cache"
	healthuc "github.com/aero-edu/aero/internal/usecase/health"
	ingestuc "github.com/aero-edu/aero/internal/usecase/ingest"
	queryuc "github.com/aero-edu/aero/internal/usecase/query"
)

// memDocs is an in-memory document store shared by the ingest and query
// services under test.
type memDocs struct {
	mu     sync.Mutex
	docs   map[string]domain.Document
	chunks map[string][]domain.Chunk
}

func newMemDocs() *memDocs {
	return &memDocs{docs: map[string]domain.Document{}, chunks: map[string][]domain.Chunk{}}
}

func (m *memDocs) Create(_ context.Context, doc domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *memDocs) Get(_ context.Context, id string) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrDocumentNotFound)
	}
	return doc, nil
}

func (m *memDocs) SetStatus(_ context.Context, id string, next domain.IngestStatus, failReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrDocumentNotFound)
	}
	doc.Status = next
	doc.FailReason = failReason
	m.docs[id] = doc
	return nil
}

func (m *memDocs) PutChunks(_ context.Context, docID string, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[docID] = chunks
	return nil
}

func (m *memDocs) Chunks(_ context.Context, docID string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[docID], nil
}

func (m *memDocs) Delete(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrDocumentNotFound)
	}
	ids := make([]string, len(m.chunks[id]))
	for i, c := range m.chunks[id] {
		ids[i] = c.ID
	}
	delete(m.docs, id)
	delete(m.chunks, id)
	return ids, nil
}

func (m *memDocs) ListReady(_ context.Context) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Document
	for _, doc := range m.docs {
		if doc.Status == domain.StatusReady {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memDocs) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[id]
	return ok, nil
}

func (m *memDocs) ReadyDocs(_ context.Context, ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ready := make(map[string]bool, len(ids))
	for _, id := range ids {
		doc, ok := m.docs[id]
		ready[id] = ok && doc.Status == domain.StatusReady
	}
	return ready, nil
}

func (m *memDocs) GetChunks(_ context.Context, chunkIDs []string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Chunk
	for _, id := range chunkIDs {
		for _, chunks := range m.chunks {
			for _, c := range chunks {
				if c.ID == id {
					out = append(out, c)
				}
			}
		}
	}
	return out, nil
}

// memCache is an in-memory response cache serving both the query service's
// read side and the ingest service's invalidation side.
type memCache struct {
	mu      sync.Mutex
	entries map[string]cacherepo.Entry
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]cacherepo.Entry{}}
}

func (m *memCache) Get(_ context.Context, scope, fingerprint string) (cacherepo.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[scope+"/"+fingerprint]
	return e, ok
}

func (m *memCache) Put(_ context.Context, e cacherepo.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Scope+"/"+e.Fingerprint] = e
	return nil
}

func (m *memCache) TTL() time.Duration { return time.Hour }

func (m *memCache) InvalidateChunks(_ context.Context, chunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	victims := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		victims[id] = struct{}{}
	}
	for key, e := range m.entries {
		for _, id := range e.ChunkIDs {
			if _, ok := victims[id]; ok {
				delete(m.entries, key)
				break
			}
		}
	}
	return nil
}

func (m *memCache) FlushScope(_ context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.Scope == scope {
			delete(m.entries, key)
		}
	}
	return nil
}

// memActivity records events and serves them back newest-last.
type memActivity struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
	err    error
}

func (m *memActivity) Record(e domain.ActivityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *memActivity) Recent(_ context.Context, n int64) ([]domain.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if int64(len(m.events)) <= n {
		return append([]domain.ActivityEvent(nil), m.events...), nil
	}
	return append([]domain.ActivityEvent(nil), m.events[int64(len(m.events))-n:]...), nil
}

// stubEmbedder maps every text to the same unit vector, which makes any
// ingested chunk a perfect match for any query.
type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

func (stubEmbedder) ModelVersion() string { return "test-model/3" }

func (stubEmbedder) HealthCheck(context.Context) error { return nil }

type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, domain.CompletionRequest) (domain.CompletionResult, error) {
	return domain.CompletionResult{Answer: "a synthesized answer"}, nil
}

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	router   chiv5.Router
	docs     *memDocs
	cache    *memCache
	activity *memActivity
	idx      *index.Index
	pinger   *stubPinger
	ingest   *ingestuc.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	env := &testEnv{
		docs:     newMemDocs(),
		cache:    newMemCache(),
		activity: &memActivity{},
		idx:      index.New(),
		pinger:   &stubPinger{},
	}

	env.ingest = ingestuc.New(env.docs, chunker.New(200, 0.1), stubEmbedder{}, env.idx, env.cache, 1, 64, logger)
	t.Cleanup(env.ingest.Close)

	querySvc := queryuc.New(
		env.cache, stubEmbedder{}, env.idx, env.docs, stubCompleter{}, env.activity,
		queryuc.Config{TopK: 5, ScoreFloor: 0.25}, logger,
	)
	healthSvc := healthuc.New(env.pinger, stubEmbedder{}, env.idx)

	srv := NewServer(querySvc, env.ingest, env.activity, healthSvc, logger)
	r := chiv5.NewRouter()
	srv.Register(r)
	env.router = r
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
