// Package cache is the durable (shared) tier of the response cache, backed
// by the network key-value store. It owns TTL enforcement via native key
// expiry and the chunk -> fingerprint reverse index used for exact
// invalidation when documents change.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aero-edu/aero/internal/db"
	"github.com/aero-edu/aero/internal/domain"
)

// reverseTTLMargin keeps reverse-index sets alive slightly longer than the
// entries they point to, so invalidation never misses a live entry.
const reverseTTLMargin = 5 * time.Minute

// Entry is a cached synthesized answer with its provenance.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Scope       string    `json:"scope"`
	Answer      string    `json:"answer"`
	ChunkIDs    []string  `json:"chunk_ids"`
	DocumentIDs []string  `json:"document_ids"`
	CreatedAt   time.Time `json:"created_at"`
	TTLSec      int       `json:"ttl_sec"`
}

// Expired reports whether the entry has outlived its TTL at time now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(time.Duration(e.TTLSec) * time.Second))
}

// store is the consumer interface for the durable cache tier (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Repo implements the durable tier of the response cache.
type Repo struct {
	store  store
	prefix string
}

// New creates the durable cache repository. prefix namespaces all keys.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) entryKey(scope, fingerprint string) string {
	return r.prefix + "resp:" + scope + ":" + fingerprint
}

func (r *Repo) reverseKey(chunkID string) string {
	return r.prefix + "respidx:" + chunkID
}

// Get returns the cached entry for a fingerprint, or found=false on miss.
// A store failure is wrapped with ErrCacheUnavailable so the caller can
// degrade to a miss instead of failing the query.
func (r *Repo) Get(ctx context.Context, scope, fingerprint string) (Entry, bool, error) {
	data, err := r.store.Get(ctx, r.entryKey(scope, fingerprint))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupt entry: treat as a miss, next Put overwrites it.
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put stores an entry with native TTL expiry and links every source chunk to
// it in the reverse index. The reverse links go in first and the entry last:
// a failure partway through leaves dangling links that expire on their own,
// never a serveable entry that InvalidateChunks cannot find.
func (r *Repo) Put(ctx context.Context, e Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	key := r.entryKey(e.Scope, e.Fingerprint)
	for _, chunkID := range e.ChunkIDs {
		rk := r.reverseKey(chunkID)
		if err := r.store.SAdd(ctx, rk, key); err != nil {
			return fmt.Errorf("%w: index entry by chunk: %w", domain.ErrCacheUnavailable, err)
		}
		if err := r.store.Expire(ctx, rk, ttl+reverseTTLMargin); err != nil {
			return fmt.Errorf("%w: expire reverse index: %w", domain.ErrCacheUnavailable, err)
		}
	}

	if err := r.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// InvalidateChunks deletes every cached entry whose source chunks intersect
// the given set, plus the reverse-index keys themselves. Returns the number
// of entries removed.
func (r *Repo) InvalidateChunks(ctx context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	seen := map[string]struct{}{}
	var victims []string
	for _, chunkID := range chunkIDs {
		rk := r.reverseKey(chunkID)
		keys, err := r.store.SMembers(ctx, rk)
		if err != nil {
			return 0, fmt.Errorf("%w: read reverse index: %w", domain.ErrCacheUnavailable, err)
		}
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				victims = append(victims, k)
			}
		}
		victims = append(victims, rk)
		seen[rk] = struct{}{}
	}

	if err := r.store.Del(ctx, victims...); err != nil {
		return 0, fmt.Errorf("%w: delete entries: %w", domain.ErrCacheUnavailable, err)
	}
	return len(victims) - len(chunkIDs), nil
}

// FlushScope drops every cached entry in a scope. Conservative fallback for
// when exact chunk tracking is unavailable.
func (r *Repo) FlushScope(ctx context.Context, scope string) error {
	keys, err := r.store.Scan(ctx, r.prefix+"resp:"+scope+":*")
	if err != nil {
		return fmt.Errorf("%w: scan scope: %w", domain.ErrCacheUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%w: flush scope: %w", domain.ErrCacheUnavailable, err)
	}
	return nil
}
