package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckStale indicates the vector index awaits a rebuild.
	CheckStale CheckResult = "stale"
)

// Report aggregates health check results.
type Report struct {
	Status     Status
	Checks     map[string]CheckResult
	IndexSize  int
	IndexStale bool
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	idx       IndexReader
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, embedding EmbeddingChecker, idx IndexReader) *Service {
	return &Service{db: db, embedding: embedding, idx: idx}
}

// Check runs health checks against all components. A degraded report still
// serves traffic: the durable cache being down is a performance problem,
// not a correctness one.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	report := Report{Checks: checks, Status: Healthy}
	if s.idx != nil {
		report.IndexSize = s.idx.Size()
		report.IndexStale = s.idx.Stale()
		if report.IndexStale {
			checks["index"] = CheckStale
		} else {
			checks["index"] = CheckOK
		}
	}

	for _, v := range checks {
		if v != CheckOK {
			report.Status = Degraded
			break
		}
	}

	return report
}
