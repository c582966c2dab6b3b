// Package query is the retrieval-and-response pipeline: cache check, vector
// retrieval, answer synthesis via the completion API, cache write and
// activity recording. One slow completion call never stalls other queries;
// the only shared state touched is the lock-free index generation and the
// caches.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/metrics"
	cacherepo "github.com/aero-edu/aero/internal/repository/cache"
)

// Degraded answers shown to end users. Internal detail stays in the logs.
const (
	// InsufficientContextAnswer is returned without calling the completion
	// API when the corpus has no relevant content for the query.
	InsufficientContextAnswer = "I could not find enough relevant material in the knowledge base to answer that. " +
		"Try rephrasing the question, or ask for the topic to be added."
	// UnavailableAnswer is returned when answer synthesis repeatedly fails.
	UnavailableAnswer = "The assistant is temporarily unavailable. Please try again in a moment."
)

// completionRetryBackoff is the pause before the single completion retry.
const completionRetryBackoff = 500 * time.Millisecond

// Request is the sole entry point the UI layer calls.
type Request struct {
	UserID        string
	Role          domain.Role
	Scope         string
	GrantedScopes []string
	Query         string
}

// Response is the served answer with its provenance.
type Response struct {
	Answer            string
	SourceDocumentIDs []string
	CacheHit          bool
	Latency           time.Duration
}

// Service is the retrieval pipeline. All collaborators are explicit handles
// passed at construction; there are no process-wide singletons.
type Service struct {
	cache     ResponseCache
	embedder  domain.Embedder
	idx       VectorIndex
	docs      DocumentReader
	completer domain.Completer
	recorder  Recorder
	logger    *zap.Logger

	topK        int
	scoreFloor  float64
	maxTokens   int
	temperature float32
}

// Config holds pipeline tuning knobs.
type Config struct {
	TopK        int
	ScoreFloor  float64
	MaxTokens   int
	Temperature float32
}

// New creates the pipeline service.
func New(
	cache ResponseCache,
	embedder domain.Embedder,
	idx VectorIndex,
	docs DocumentReader,
	completer domain.Completer,
	recorder Recorder,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &Service{
		cache:       cache,
		embedder:    embedder,
		idx:         idx,
		docs:        docs,
		completer:   completer,
		recorder:    recorder,
		logger:      logger,
		topK:        cfg.TopK,
		scoreFloor:  cfg.ScoreFloor,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Answer serves one query. Exactly one activity event is emitted regardless
// of outcome. Recoverable failures surface as friendly degraded answers with
// a nil error; only request validation problems return an error.
func (s *Service) Answer(ctx context.Context, req Request) (Response, error) {
	if !domain.ValidRole(req.Role) {
		return Response{}, fmt.Errorf("unknown role %q", req.Role)
	}
	if domain.NormalizeQuery(req.Query) == "" {
		return Response{}, fmt.Errorf("empty query")
	}
	if !req.Role.CanQuery(req.Scope, req.GrantedScopes) {
		return Response{}, fmt.Errorf("role %s, scope %s: %w", req.Role, req.Scope, domain.ErrScopeDenied)
	}

	start := time.Now()
	fp := domain.NewFingerprint(req.Scope, req.Query, s.topK, s.scoreFloor, s.embedder.ModelVersion())
	key := fp.Key()

	outcome := domain.OutcomeFailed
	defer func() {
		latency := time.Since(start)
		metrics.QueriesTotal.WithLabelValues(string(outcome)).Inc()
		metrics.QueryDuration.WithLabelValues(string(outcome)).Observe(latency.Seconds())
		s.recorder.Record(domain.ActivityEvent{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			Role:        req.Role,
			Scope:       req.Scope,
			Fingerprint: key,
			Outcome:     outcome,
			CacheHit:    outcome == domain.OutcomeCacheHit,
			LatencyMs:   latency.Milliseconds(),
			Timestamp:   time.Now().UTC(),
		})
	}()

	if e, ok := s.cache.Get(ctx, req.Scope, key); ok {
		outcome = domain.OutcomeCacheHit
		return Response{
			Answer:            e.Answer,
			SourceDocumentIDs: e.DocumentIDs,
			CacheHit:          true,
			Latency:           time.Since(start),
		}, nil
	}

	chunks, err := s.retrieve(ctx, req.Scope, req.Query)
	if err != nil {
		s.logger.Error("retrieval failed",
			zap.String("scope", req.Scope), zap.Error(err))
		return Response{Answer: UnavailableAnswer, Latency: time.Since(start)}, nil
	}

	if len(chunks) == 0 {
		// Nothing relevant: answer without spending a completion call.
		outcome = domain.OutcomeInsufficient
		return Response{Answer: InsufficientContextAnswer, Latency: time.Since(start)}, nil
	}

	answer, err := s.synthesize(ctx, req.Query, chunks)
	if err != nil {
		s.logger.Error("answer synthesis failed",
			zap.String("scope", req.Scope), zap.Error(err))
		return Response{Answer: UnavailableAnswer, Latency: time.Since(start)}, nil
	}

	chunkIDs := make([]string, len(chunks))
	docIDs := make([]string, 0, len(chunks))
	seenDocs := map[string]struct{}{}
	for i, c := range chunks {
		chunkIDs[i] = c.ID
		if _, ok := seenDocs[c.DocumentID]; !ok {
			seenDocs[c.DocumentID] = struct{}{}
			docIDs = append(docIDs, c.DocumentID)
		}
	}

	// Best-effort: a cache write failure degrades nothing but hit rate.
	if err := s.cache.Put(ctx, cacherepo.Entry{
		Fingerprint: key,
		Scope:       req.Scope,
		Answer:      answer,
		ChunkIDs:    chunkIDs,
		DocumentIDs: docIDs,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("response cache write failed", zap.Error(err))
	}

	outcome = domain.OutcomeCacheMiss
	return Response{
		Answer:            answer,
		SourceDocumentIDs: docIDs,
		CacheHit:          false,
		Latency:           time.Since(start),
	}, nil
}

// retrieve embeds the query and returns the top chunks above the score
// floor, at most one per document, filtered against live documents so a
// deleted document never leaks into an answer even before a rebuild.
func (s *Service) retrieve(ctx context.Context, scope, query string) ([]domain.Chunk, error) {
	emb, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// Over-fetch so liveness filtering and per-document dedup still leave
	// up to topK usable hits.
	hits := s.idx.Search(emb, s.topK*3, scope)

	var docIDs []string
	for _, h := range hits {
		if h.Score >= s.scoreFloor {
			docIDs = append(docIDs, h.DocumentID)
		}
	}
	if len(docIDs) == 0 {
		return nil, nil
	}
	ready, err := s.docs.ReadyDocs(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("check document liveness: %w", err)
	}

	var chunkIDs []string
	seenDocs := map[string]struct{}{}
	for _, h := range hits {
		if h.Score < s.scoreFloor || !ready[h.DocumentID] {
			continue
		}
		if _, ok := seenDocs[h.DocumentID]; ok {
			continue
		}
		seenDocs[h.DocumentID] = struct{}{}
		chunkIDs = append(chunkIDs, h.ChunkID)
		if len(chunkIDs) == s.topK {
			break
		}
	}
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	chunks, err := s.docs.GetChunks(ctx, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("load chunk texts: %w", err)
	}

	// Preserve score order: GetChunks keeps input order but may skip
	// chunks deleted mid-flight.
	return chunks, nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	res, err := s.embedder.Embed(ctx, query)
	if err == nil {
		return res.Embedding, nil
	}
	if !errors.Is(err, domain.ErrEmbedding) {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(200 * time.Millisecond):
	}
	res, err = s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return res.Embedding, nil
}

// synthesize calls the completion API with a timeout; transient failures get
// one retry with backoff, then the query degrades.
func (s *Service) synthesize(ctx context.Context, query string, chunks []domain.Chunk) (string, error) {
	req := domain.CompletionRequest{
		Prompt:      buildPrompt(query, chunks),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	res, err := s.completer.Complete(ctx, req)
	if err == nil {
		return res.Answer, nil
	}
	if !errors.Is(err, domain.ErrCompletionTimeout) && !errors.Is(err, domain.ErrCompletionUnavailable) {
		return "", err
	}

	s.logger.Warn("completion failed, retrying once", zap.Error(err))
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(completionRetryBackoff):
	}

	res, err = s.completer.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion retry: %w", err)
	}
	return res.Answer, nil
}
