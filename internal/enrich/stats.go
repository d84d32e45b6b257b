package enrich

import "sync/atomic"

// Stats tracks pipeline counters.
type Stats struct {
	enqueued atomic.Int64
	enriched atomic.Int64
	failed   atomic.Int64
	inFlight atomic.Int64
}

// StatsSnapshot is a point-in-time view of the pipeline counters.
type StatsSnapshot struct {
	Enqueued int64 `json:"enqueued"`
	Enriched int64 `json:"enriched"`
	Failed   int64 `json:"failed"`
	InFlight int64 `json:"in_flight"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Enqueued: s.enqueued.Load(),
		Enriched: s.enriched.Load(),
		Failed:   s.failed.Load(),
		InFlight: s.inFlight.Load(),
	}
}
