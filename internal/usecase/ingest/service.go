// Package ingest drives document ingestion: chunking, embedding, durable
// storage and vector-index updates. Ingestion runs independently of query
// serving and communicates with it only through document status transitions
// and index rebuild scheduling.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/index"
	"github.com/aero-edu/aero/internal/metrics"
	"github.com/aero-edu/aero/internal/repository/document"
)

// Request is what the external extraction stage hands over: raw text plus
// source metadata. PDF/video/caption extraction happens upstream.
type Request struct {
	DocumentID string
	Title      string
	Source     domain.SourceType
	Scope      string
	Text       string
}

// Service orchestrates ingestion and document deletion.
type Service struct {
	docs     DocumentStore
	chunks   Chunker
	embedder domain.Embedder
	idx      VectorIndex
	cache    ResponseCache
	logger   *zap.Logger

	maxRetries int
	batchSize  int
	rebuilds   chan struct{}
	done       chan struct{}
}

// New creates an ingest service and starts its rebuild worker.
func New(
	docs DocumentStore,
	chunks Chunker,
	embedder domain.Embedder,
	idx VectorIndex,
	cache ResponseCache,
	maxRetries, batchSize int,
	logger *zap.Logger,
) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	s := &Service{
		docs:       docs,
		chunks:     chunks,
		embedder:   embedder,
		idx:        idx,
		cache:      cache,
		logger:     logger,
		maxRetries: maxRetries,
		batchSize:  batchSize,
		rebuilds:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go s.rebuildLoop()
	return s
}

// Close stops the rebuild worker.
func (s *Service) Close() {
	close(s.rebuilds)
	<-s.done
}

// Ingest runs a document through the full pipeline. The returned document
// carries the final ingestion status; callers poll Status for async flows.
func (s *Service) Ingest(ctx context.Context, req Request) (domain.Document, error) {
	if !domain.ValidSourceType(req.Source) {
		return domain.Document{}, fmt.Errorf("%w: unknown source type %q", domain.ErrIngestion, req.Source)
	}

	id := req.DocumentID
	if id == "" {
		id = uuid.NewString()
	}

	// Re-ingestion replaces the previous version entirely. An Exists
	// failure must not be read as absence: skipping the delete cascade
	// would strand the prior version's chunks and index entries.
	ok, err := s.docs.Exists(ctx, id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("check document %s: %w", id, err)
	}
	if ok {
		if err := s.Delete(ctx, id); err != nil && !document.IsNotFound(err) {
			return domain.Document{}, fmt.Errorf("replace document %s: %w", id, err)
		}
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:        id,
		Title:     req.Title,
		Source:    req.Source,
		Scope:     req.Scope,
		TextLen:   len(req.Text),
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}

	if err := s.run(ctx, &doc, req.Text); err != nil {
		s.fail(ctx, &doc, err)
		return doc, err
	}

	metrics.IngestDocumentsTotal.WithLabelValues(string(domain.StatusReady)).Inc()
	metrics.IndexSize.Set(float64(s.idx.Size()))
	return doc, nil
}

func (s *Service) run(ctx context.Context, doc *domain.Document, text string) error {
	if err := s.docs.SetStatus(ctx, doc.ID, domain.StatusChunking, ""); err != nil {
		return err
	}
	doc.Status = domain.StatusChunking

	windows, err := s.chunks.Split(text)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIngestion, err)
	}

	if err := s.docs.SetStatus(ctx, doc.ID, domain.StatusEmbedding, ""); err != nil {
		return err
	}
	doc.Status = domain.StatusEmbedding

	texts := make([]string, len(windows))
	for i, w := range windows {
		texts[i] = w.Text
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	version := s.embedder.ModelVersion()
	chunks := make([]domain.Chunk, len(windows))
	entries := make([]index.Entry, len(windows))
	for i, w := range windows {
		chunks[i] = domain.Chunk{
			ID:           document.ChunkID(doc.ID, w.Seq),
			DocumentID:   doc.ID,
			Seq:          w.Seq,
			Text:         w.Text,
			Vector:       vectors[i],
			ModelVersion: version,
		}
		entries[i] = index.Entry{
			ChunkID:    chunks[i].ID,
			DocumentID: doc.ID,
			Scope:      doc.Scope,
			Vector:     vectors[i],
		}
	}

	if err := s.docs.PutChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	indexed := true
	if err := s.idx.Add(version, entries...); err != nil {
		if errors.Is(err, domain.ErrIndexInconsistent) {
			// Version skew: the document data is durable, so mark the
			// index stale and let the rebuild pick everything up.
			s.logger.Warn("index version skew, scheduling rebuild",
				zap.String("document_id", doc.ID), zap.Error(err))
			s.idx.MarkStale()
			s.ScheduleRebuild()
			indexed = false
		} else {
			return fmt.Errorf("index chunks: %w", err)
		}
	}

	if err := s.docs.SetStatus(ctx, doc.ID, domain.StatusReady, ""); err != nil {
		return err
	}
	doc.Status = domain.StatusReady
	doc.UpdatedAt = time.Now().UTC()

	// A rebuild whose store snapshot predates this document may have
	// swapped our entries away between Add and here. Now that the store
	// says ready, a fresh rebuild is guaranteed to pick the document up.
	if indexed && !s.idx.Contains(entries[0].ChunkID) {
		s.logger.Warn("index entries lost to a concurrent rebuild, rescheduling",
			zap.String("document_id", doc.ID))
		s.idx.MarkStale()
		s.ScheduleRebuild()
	}
	return nil
}

// embedAll embeds chunk texts in provider-sized batches with bounded
// exponential backoff. After maxRetries the document ingestion fails.
func (s *Service) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (s *Service) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	backoff := 250 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var res domain.BatchEmbeddingResult
		var err error
		if be, ok := s.embedder.(domain.BatchEmbedder); ok {
			res, err = be.BatchEmbed(ctx, texts)
		} else {
			res, err = domain.BatchFallback(ctx, s.embedder, texts)
		}
		if err == nil {
			return res.Embeddings, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrEmbedding) {
			break
		}
		s.logger.Warn("embedding attempt failed",
			zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, fmt.Errorf("embed chunks after %d attempts: %w", s.maxRetries, lastErr)
}

func (s *Service) fail(ctx context.Context, doc *domain.Document, cause error) {
	metrics.IngestDocumentsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
	if err := s.docs.SetStatus(ctx, doc.ID, domain.StatusFailed, cause.Error()); err != nil {
		s.logger.Error("failed to mark document failed",
			zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	doc.Status = domain.StatusFailed
	doc.FailReason = cause.Error()
}

// Status returns the document record, including its ingestion status.
func (s *Service) Status(ctx context.Context, id string) (domain.Document, error) {
	return s.docs.Get(ctx, id)
}

// Delete removes a document, its chunks, its index entries and every cached
// answer built from it. If cache invalidation cannot be confirmed the whole
// scope is flushed instead, and if even that fails the index is marked stale
// and a rebuild is scheduled rather than leaving things inconsistent.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}

	chunkIDs, err := s.docs.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}

	s.idx.RemoveDocument(id)
	metrics.IndexSize.Set(float64(s.idx.Size()))

	if err := s.cache.InvalidateChunks(ctx, chunkIDs); err != nil {
		s.logger.Warn("exact cache invalidation failed, flushing scope",
			zap.String("document_id", id), zap.String("scope", doc.Scope), zap.Error(err))
		if err := s.cache.FlushScope(ctx, doc.Scope); err != nil {
			s.logger.Error("scope flush failed, scheduling index rebuild",
				zap.String("scope", doc.Scope), zap.Error(err))
			s.idx.MarkStale()
			s.ScheduleRebuild()
		}
	}
	return nil
}

// ScheduleRebuild requests a background index rebuild. Coalesces: at most
// one request is queued at a time.
func (s *Service) ScheduleRebuild() {
	select {
	case s.rebuilds <- struct{}{}:
	default:
	}
}

func (s *Service) rebuildLoop() {
	defer close(s.done)
	for range s.rebuilds {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if err := s.Rebuild(ctx); err != nil {
			s.logger.Error("index rebuild failed", zap.Error(err))
		}
		cancel()
	}
}

// Rebuild reconstructs the index from the document store snapshot. Readers
// keep searching the previous generation until the atomic swap. The store
// read is slow; writers that land inside the snapshot window would be wiped
// by the swap, so the write counter is compared across it and another
// rebuild is scheduled when anyone raced us.
func (s *Service) Rebuild(ctx context.Context) error {
	writesBefore := s.idx.Writes()

	docs, err := s.docs.ListReady(ctx)
	if err != nil {
		return fmt.Errorf("snapshot documents: %w", err)
	}

	var entries []index.Entry
	version := s.embedder.ModelVersion()
	for _, doc := range docs {
		chunks, err := s.docs.Chunks(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("snapshot chunks of %s: %w", doc.ID, err)
		}
		for _, c := range chunks {
			// Chunks from an older embedding model wait for
			// re-ingestion; mixing versions would corrupt scores.
			if c.ModelVersion != version {
				s.logger.Warn("skipping chunk with stale model version",
					zap.String("chunk_id", c.ID),
					zap.String("model_version", c.ModelVersion))
				continue
			}
			entries = append(entries, index.Entry{
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				Scope:      doc.Scope,
				Vector:     c.Vector,
			})
		}
	}

	s.idx.Rebuild(version, entries)
	metrics.IndexRebuildsTotal.Inc()
	metrics.IndexSize.Set(float64(len(entries)))
	s.logger.Info("index rebuilt",
		zap.Int("documents", len(docs)), zap.Int("chunks", len(entries)))

	if s.idx.Writes() != writesBefore {
		s.logger.Warn("index written during rebuild snapshot, scheduling another",
			zap.Int("documents", len(docs)))
		s.idx.MarkStale()
		s.ScheduleRebuild()
	}
	return nil
}
