// Package cache is the two-tier response cache: a bounded in-process LRU in
// front of the shared durable tier. The durable tier being down degrades
// performance, never correctness; local-tier problems are swallowed.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	cacherepo "github.com/aero-edu/aero/internal/repository/cache"

	"github.com/aero-edu/aero/internal/metrics"
)

// DurableTier is the shared cache contract (ISP, implemented by
// repository/cache over the key-value store).
type DurableTier interface {
	Get(ctx context.Context, scope, fingerprint string) (cacherepo.Entry, bool, error)
	Put(ctx context.Context, e cacherepo.Entry, ttl time.Duration) error
	InvalidateChunks(ctx context.Context, chunkIDs []string) (int, error)
	FlushScope(ctx context.Context, scope string) error
}

// Cache combines the local and durable tiers.
type Cache struct {
	local   *lru.LRU[string, cacherepo.Entry]
	durable DurableTier
	ttl     time.Duration
	logger  *zap.Logger
}

// New creates a two-tier cache. localSize bounds the in-process tier; ttl is
// the answer time-to-live applied to both tiers.
func New(durable DurableTier, localSize int, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		// The LRU's own expiry is a cap only; the real TTL check is
		// Entry.Expired, so a locally repopulated entry can never
		// outlive the durable one.
		local:   lru.NewLRU[string, cacherepo.Entry](localSize, nil, ttl),
		durable: durable,
		ttl:     ttl,
		logger:  logger,
	}
}

// TTL returns the configured answer time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get checks the local tier first, then the durable tier, populating the
// local tier on a durable hit. An unreachable durable tier is a miss.
func (c *Cache) Get(ctx context.Context, scope, fingerprint string) (cacherepo.Entry, bool) {
	now := time.Now()

	if e, ok := c.local.Get(fingerprint); ok {
		if !e.Expired(now) {
			metrics.ResponseCacheTotal.WithLabelValues("local", "hit").Inc()
			return e, true
		}
		c.local.Remove(fingerprint)
	}
	metrics.ResponseCacheTotal.WithLabelValues("local", "miss").Inc()

	e, ok, err := c.durable.Get(ctx, scope, fingerprint)
	if err != nil {
		metrics.ResponseCacheTotal.WithLabelValues("durable", "error").Inc()
		c.logger.Warn("durable cache tier unavailable, treating as miss", zap.Error(err))
		return cacherepo.Entry{}, false
	}
	if !ok || e.Expired(now) {
		metrics.ResponseCacheTotal.WithLabelValues("durable", "miss").Inc()
		return cacherepo.Entry{}, false
	}

	metrics.ResponseCacheTotal.WithLabelValues("durable", "hit").Inc()
	c.local.Add(fingerprint, e)
	return e, true
}

// Put writes to both tiers. Best-effort: a durable write failure is logged
// and reported but must not fail the query that produced the answer.
// Concurrent Puts for the same fingerprint race last-write-wins.
func (c *Cache) Put(ctx context.Context, e cacherepo.Entry) error {
	e.TTLSec = int(c.ttl.Seconds())
	c.local.Add(e.Fingerprint, e)

	if err := c.durable.Put(ctx, e, c.ttl); err != nil {
		return err
	}
	return nil
}

// InvalidateChunks removes every durable entry built from the given chunks,
// then purges the whole local tier: the local tier cannot cheaply map chunks
// to fingerprints, and repopulating it from the durable tier is cheap.
func (c *Cache) InvalidateChunks(ctx context.Context, chunkIDs []string) error {
	n, err := c.durable.InvalidateChunks(ctx, chunkIDs)
	if err != nil {
		return err
	}
	c.local.Purge()
	if n > 0 {
		c.logger.Info("invalidated cached answers", zap.Int("entries", n), zap.Int("chunks", len(chunkIDs)))
	}
	return nil
}

// FlushScope is the conservative fallback: drop every entry in a scope.
func (c *Cache) FlushScope(ctx context.Context, scope string) error {
	if err := c.durable.FlushScope(ctx, scope); err != nil {
		return err
	}
	c.local.Purge()
	return nil
}
