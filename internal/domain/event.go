package domain

import "time"

// QueryOutcome classifies how a query was served.
type QueryOutcome string

// Query outcomes recorded in activity events.
const (
	OutcomeCacheHit     QueryOutcome = "cache_hit"
	OutcomeCacheMiss    QueryOutcome = "cache_miss"
	OutcomeInsufficient QueryOutcome = "insufficient_context"
	OutcomeFailed       QueryOutcome = "failed"
)

// ActivityEvent is an append-only record of one served query. It is emitted
// exactly once per query and never mutated after emission.
type ActivityEvent struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Role        Role         `json:"role"`
	Scope       string       `json:"scope"`
	Fingerprint string       `json:"fingerprint"`
	Outcome     QueryOutcome `json:"outcome"`
	CacheHit    bool         `json:"cache_hit"`
	LatencyMs   int64        `json:"latency_ms"`
	Timestamp   time.Time    `json:"timestamp"`
}
