// Package document is the durable store for documents and their chunks.
// It is the source of truth the vector index is rebuilt from.
package document

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aero-edu/aero/internal/db"
	"github.com/aero-edu/aero/internal/domain"
)

// store is the consumer interface for document persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Repo implements the DocumentStore contracts of the ingest and query services.
type Repo struct {
	store  store
	prefix string
}

// New creates a document repository. prefix namespaces all keys.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) docKey(id string) string      { return r.prefix + "doc:" + id }
func (r *Repo) chunkKey(id string) string    { return r.prefix + "chunk:" + id }
func (r *Repo) allDocsKey() string           { return r.prefix + "docs" }
func (r *Repo) scopeKey(scope string) string { return r.prefix + "scope:" + scope + ":docs" }

// Create stores a new document record and registers it in the scope sets.
func (r *Repo) Create(ctx context.Context, doc domain.Document) error {
	if err := r.store.HSet(ctx, r.docKey(doc.ID), buildDocFields(doc)); err != nil {
		return fmt.Errorf("store document %s: %w", doc.ID, err)
	}
	if err := r.store.SAdd(ctx, r.allDocsKey(), doc.ID); err != nil {
		return fmt.Errorf("register document %s: %w", doc.ID, err)
	}
	if err := r.store.SAdd(ctx, r.scopeKey(doc.Scope), doc.ID); err != nil {
		return fmt.Errorf("register document %s in scope: %w", doc.ID, err)
	}
	return nil
}

// Get returns a document by id.
func (r *Repo) Get(ctx context.Context, id string) (domain.Document, error) {
	m, err := r.store.HGetAll(ctx, r.docKey(id))
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return parseDocFields(id, m), nil
}

// SetStatus advances the ingestion state machine. Illegal transitions return
// ErrInvalidStatusTransition; any state may move to failed with a reason.
func (r *Repo) SetStatus(ctx context.Context, id string, next domain.IngestStatus, failReason string) error {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !doc.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, doc.Status, next)
	}

	fields := map[string]string{
		fieldStatus:    string(next),
		fieldUpdatedAt: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if next == domain.StatusFailed {
		fields[fieldFailReason] = failReason
	}
	if err := r.store.HSet(ctx, r.docKey(id), fields); err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	return nil
}

// PutChunks stores all chunks of a document in one pipelined write and
// records the chunk count on the document record.
func (r *Repo) PutChunks(ctx context.Context, docID string, chunks []domain.Chunk) error {
	items := make([]db.HashSetItem, len(chunks))
	for i, c := range chunks {
		items[i] = db.HashSetItem{Key: r.chunkKey(c.ID), Fields: buildChunkFields(c)}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store chunks of %s: %w", docID, err)
	}

	fields := map[string]string{
		fieldChunkCount: strconv.Itoa(len(chunks)),
		fieldUpdatedAt:  strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if err := r.store.HSet(ctx, r.docKey(docID), fields); err != nil {
		return fmt.Errorf("record chunk count of %s: %w", docID, err)
	}
	return nil
}

// Chunks loads all chunks of a document ordered by sequence.
func (r *Repo) Chunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	m, err := r.store.HGetAll(ctx, r.docKey(docID))
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", docID, err)
	}
	if len(m) == 0 {
		return nil, domain.ErrDocumentNotFound
	}
	count, _ := strconv.Atoi(m[fieldChunkCount])
	if count == 0 {
		return nil, nil
	}

	keys := make([]string, count)
	ids := make([]string, count)
	for i := 0; i < count; i++ {
		ids[i] = ChunkID(docID, i)
		keys[i] = r.chunkKey(ids[i])
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load chunks of %s: %w", docID, err)
	}

	chunks := make([]domain.Chunk, 0, count)
	for i, fields := range maps {
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: chunk %s missing", domain.ErrIndexInconsistent, ids[i])
		}
		chunks = append(chunks, parseChunkFields(ids[i], fields))
	}
	return chunks, nil
}

// GetChunks loads specific chunks by id in one pipelined read. Missing
// chunks are skipped: the index may briefly reference chunks that a
// concurrent delete already removed, and the caller filters on liveness
// anyway.
func (r *Repo) GetChunks(ctx context.Context, chunkIDs []string) ([]domain.Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		keys[i] = r.chunkKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(chunkIDs))
	for i, fields := range maps {
		if len(fields) == 0 {
			continue
		}
		chunks = append(chunks, parseChunkFields(chunkIDs[i], fields))
	}
	return chunks, nil
}

// Delete removes a document and all of its chunks in a single multi-key DEL,
// so the cascade is atomic: either every record goes or none does. Returns
// the removed chunk ids for index and cache invalidation.
func (r *Repo) Delete(ctx context.Context, id string) ([]string, error) {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m, err := r.store.HGetAll(ctx, r.docKey(id))
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	count, _ := strconv.Atoi(m[fieldChunkCount])

	chunkIDs := make([]string, count)
	keys := make([]string, 0, count+1)
	keys = append(keys, r.docKey(id))
	for i := 0; i < count; i++ {
		chunkIDs[i] = ChunkID(id, i)
		keys = append(keys, r.chunkKey(chunkIDs[i]))
	}

	if err := r.store.Del(ctx, keys...); err != nil {
		return nil, fmt.Errorf("delete document %s: %w", id, err)
	}
	if err := r.store.SRem(ctx, r.allDocsKey(), id); err != nil {
		return nil, fmt.Errorf("unregister document %s: %w", id, err)
	}
	if err := r.store.SRem(ctx, r.scopeKey(doc.Scope), id); err != nil {
		return nil, fmt.Errorf("unregister document %s from scope: %w", id, err)
	}
	return chunkIDs, nil
}

// ListReady returns all documents currently in ready state. Failed and
// in-flight documents are excluded from search until re-ingested.
func (r *Repo) ListReady(ctx context.Context) ([]domain.Document, error) {
	ids, err := r.store.SMembers(ctx, r.allDocsKey())
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	var docs []domain.Document
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		doc := parseDocFields(ids[i], m)
		if doc.Status == domain.StatusReady {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// ReadyDocs reports, for each id, whether the document exists and is ready.
// The query pipeline uses it to filter index hits whose document was deleted
// or re-ingested between index updates.
func (r *Repo) ReadyDocs(ctx context.Context, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load document statuses: %w", err)
	}

	ready := make(map[string]bool, len(ids))
	for i, m := range maps {
		ready[ids[i]] = len(m) > 0 && domain.IngestStatus(m[fieldStatus]) == domain.StatusReady
	}
	return ready, nil
}

// Exists reports whether a document record is present.
func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := r.store.Exists(ctx, r.docKey(id))
	if err != nil {
		return false, fmt.Errorf("check document %s: %w", id, err)
	}
	return ok, nil
}

// IsNotFound reports whether err is the missing-document sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrDocumentNotFound)
}
