package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrUnhealthy is returned without touching the database while the circuit
// breaker is open. Callers should surface it as a retryable server error.
var ErrUnhealthy = errors.New("database circuit breaker open")

// breakerCoolOff is how long the breaker stays open after a connection
// failure before requests are allowed to probe again.
const breakerCoolOff = 10 * time.Second

// breaker keeps the database from being hammered while it is down. A
// connection-class failure opens it; requests fail fast with ErrUnhealthy
// until the cool-off elapses or a health check succeeds.
type breaker struct {
	mu       sync.Mutex
	open     bool
	openedAt time.Time
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open && time.Since(b.openedAt) < breakerCoolOff {
		return ErrUnhealthy
	}
	return nil
}

func (b *breaker) trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = true
	b.openedAt = time.Now()
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
}

func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.openedAt) < breakerCoolOff
}

// isConnErr reports whether an error is a connection-class failure worth
// retrying, as opposed to a query or constraint error that will fail again.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exceptions; 57P01 is admin shutdown,
		// which PgBouncer restarts produce.
		return strings.HasPrefix(string(pqErr.Code), "08") || pqErr.Code == "57P01"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}

// retryBackoff is slept before each retry attempt, in order.
var retryBackoff = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// run executes fn behind the breaker, retrying connection-class failures
// with backoff. Query errors pass through untouched on the first attempt.
func (p *Postgres) run(ctx context.Context, op string, fn func() error) error {
	if err := p.breaker.allow(); err != nil {
		return err
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			p.breaker.reset()
			return nil
		}
		if !isConnErr(err) {
			return err
		}
		if attempt >= len(retryBackoff) {
			break
		}
		p.metrics.IncrementDBRetries()
		zap.L().Warn("Retrying after database connection error",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff[attempt]):
		}
	}
	p.breaker.trip()
	p.metrics.IncrementBreakerTrips()
	zap.L().Error("Database circuit breaker opened",
		zap.String("op", op),
		zap.Duration("cool_off", breakerCoolOff),
		zap.Error(err))
	return err
}

// CheckHealth probes the database. A successful ping closes the breaker
// immediately instead of waiting out the cool-off.
func (p *Postgres) CheckHealth(ctx context.Context) error {
	if err := p.DB.PingContext(ctx); err != nil {
		p.breaker.trip()
		return err
	}
	p.breaker.reset()
	return nil
}

// Healthy reports whether the breaker currently admits requests.
func (p *Postgres) Healthy() bool {
	return !p.breaker.isOpen()
}

// PoolStats is the point-in-time view of the connection pool surfaced by
// the debug endpoint.
type PoolStats struct {
	Size       int `json:"size"`
	CheckedIn  int `json:"checked_in"`
	CheckedOut int `json:"checked_out"`
	Overflow   int `json:"overflow"`
	Total      int `json:"total"`
}

// Stats snapshots the pool. Overflow is clamped at zero; database/sql never
// opens past the limit but the pool size can be lowered at runtime.
func (p *Postgres) Stats() PoolStats {
	s := p.DB.Stats()
	overflow := s.OpenConnections - p.poolSize
	if overflow < 0 {
		overflow = 0
	}
	return PoolStats{
		Size:       p.poolSize,
		CheckedIn:  s.Idle,
		CheckedOut: s.InUse,
		Overflow:   overflow,
		Total:      s.OpenConnections,
	}
}

// PublishPoolStats pushes the current pool gauges to the metrics registry.
func (p *Postgres) PublishPoolStats() {
	st := p.Stats()
	p.metrics.SetDBPoolStat("size", float64(st.Size))
	p.metrics.SetDBPoolStat("checked_in", float64(st.CheckedIn))
	p.metrics.SetDBPoolStat("checked_out", float64(st.CheckedOut))
	p.metrics.SetDBPoolStat("overflow", float64(st.Overflow))
	p.metrics.SetDBPoolStat("total", float64(st.Total))
}

// ResetPool drops idle connections and closes the breaker so the next
// request dials fresh. Used by the admin endpoint after a pooler restart.
func (p *Postgres) ResetPool() {
	p.DB.SetMaxIdleConns(0)
	p.DB.SetMaxIdleConns(p.maxIdle)
	p.breaker.reset()
	zap.L().Info("Database pool reset", zap.Int("max_idle_conns", p.maxIdle))
}
