package ratelimit

import (
	"testing"
	"time"

	"github.com/toller892/adcp-salesagent/internal/observability"
)

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(5, 1) // 5 tokens, refill 1 per second

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	if bucket.Allow() {
		t.Error("Expected 6th request to be blocked")
	}

	hits, total := bucket.Stats()
	if hits != 1 {
		t.Errorf("Expected 1 hit, got %d", hits)
	}
	if total != 6 {
		t.Errorf("Expected 6 total requests, got %d", total)
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	bucket := NewTokenBucket(2, 10) // 2 tokens, refill 10 per second

	bucket.Allow()
	bucket.Allow()

	if bucket.Allow() {
		t.Error("Expected request to be blocked")
	}

	time.Sleep(200 * time.Millisecond) // 0.2s * 10 tokens/sec = 2 tokens

	if !bucket.Allow() {
		t.Error("Expected request to be allowed after refill")
	}
}

func TestPrincipalLimiter_Isolation(t *testing.T) {
	limiter := NewPrincipalLimiter(Config{Capacity: 2, RefillRate: 1, Enabled: true}, observability.NewNoOpRegistry())

	// Exhaust buyer-1's bucket.
	limiter.Allow("buyer-1")
	limiter.Allow("buyer-1")
	if limiter.Allow("buyer-1") {
		t.Error("Expected buyer-1 to be limited")
	}

	// buyer-2 has its own bucket.
	if !limiter.Allow("buyer-2") {
		t.Error("Expected buyer-2 to be allowed")
	}
}

func TestPrincipalLimiter_DisabledAndAnonymous(t *testing.T) {
	disabled := NewPrincipalLimiter(Config{Capacity: 0, RefillRate: 0, Enabled: false}, observability.NewNoOpRegistry())
	for i := 0; i < 10; i++ {
		if !disabled.Allow("buyer-1") {
			t.Fatal("Disabled limiter must always allow")
		}
	}

	enabled := NewPrincipalLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: true}, observability.NewNoOpRegistry())
	for i := 0; i < 10; i++ {
		if !enabled.Allow("") {
			t.Fatal("Anonymous requests must not be limited")
		}
	}
}

func TestPrincipalLimiter_Stats(t *testing.T) {
	limiter := NewPrincipalLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: true}, observability.NewNoOpRegistry())

	limiter.Allow("buyer-1")
	limiter.Allow("buyer-1") // blocked

	stats := limiter.GetStats()
	s, ok := stats["buyer-1"]
	if !ok {
		t.Fatal("Expected stats for buyer-1")
	}
	if s.Total != 2 || s.Hits != 1 {
		t.Errorf("Stats = %+v, want total 2 hits 1", s)
	}
	if s.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", s.HitRate)
	}
}
