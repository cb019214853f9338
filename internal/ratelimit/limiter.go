package ratelimit

import (
	"fmt"
	"sync"

	"github.com/toller892/adcp-salesagent/internal/observability"
)

// Config holds the per-principal rate limiting configuration.
type Config struct {
	Capacity   int  // burst allowance per principal
	RefillRate int  // tokens added per second
	Enabled    bool // rate limiting is skipped entirely when false
}

// PrincipalLimiter applies one token bucket per principal at skill dispatch.
// Buckets are created lazily on first access. Anonymous discovery calls are
// not limited; they carry no principal id.
type PrincipalLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
}

func NewPrincipalLimiter(config Config, metrics observability.MetricsRegistry) *PrincipalLimiter {
	if metrics == nil {
		metrics = &observability.NoOpRegistry{}
	}
	return &PrincipalLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Allow reports whether the principal may make another request now. Always
// true when limiting is disabled or no principal is identified.
func (pl *PrincipalLimiter) Allow(principalID string) bool {
	if pl == nil || !pl.config.Enabled || principalID == "" {
		return true
	}

	pl.metrics.IncrementRateLimitRequests(principalID)

	pl.mu.RLock()
	bucket, exists := pl.buckets[principalID]
	pl.mu.RUnlock()

	if !exists {
		// Double-checked locking so concurrent first requests share a bucket.
		pl.mu.Lock()
		bucket, exists = pl.buckets[principalID]
		if !exists {
			bucket = NewTokenBucket(pl.config.Capacity, pl.config.RefillRate)
			pl.buckets[principalID] = bucket
		}
		pl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		pl.metrics.IncrementRateLimitHits(principalID)
	}
	return allowed
}

// Stats contains rate limiting counters for a single principal.
type Stats struct {
	PrincipalID string  `json:"principal_id"`
	Hits        int64   `json:"hits"`
	Total       int64   `json:"total"`
	HitRate     float64 `json:"hit_rate"`
}

func (s Stats) String() string {
	return fmt.Sprintf("Principal %s: %d/%d hits (%.2f%%)",
		s.PrincipalID, s.Hits, s.Total, s.HitRate*100)
}

// GetStats snapshots counters for every principal seen so far.
func (pl *PrincipalLimiter) GetStats() map[string]Stats {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	stats := make(map[string]Stats, len(pl.buckets))
	for principalID, bucket := range pl.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[principalID] = Stats{
			PrincipalID: principalID,
			Hits:        hits,
			Total:       total,
			HitRate:     hitRate,
		}
	}
	return stats
}
