// Package ratelimit provides the soft-threshold backpressure instruments
// used at the sequencer's local queue and at gateway order submission:
// no hard caps, just CPU-aware logging when growth crosses a configured
// line, plus a conventional token-bucket limiter for outbound order flow.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Logger is the minimal sink QueueGuard needs. internal/logging provides
// zap- and zerolog-backed adapters so both the deterministic core and
// the I/O-bound edge can share this package without it depending on
// either logging library directly.
type Logger interface {
	Warn(msg string, fields map[string]any)
}

// QueueGuard watches a queue's depth against a configurable soft
// threshold. Crossing it never blocks or drops work, it only produces a
// log line, annotated with the most recently sampled host CPU percentage
// so an operator can tell growth-from-slow-consumer apart from
// growth-from-host-pressure.
type QueueGuard struct {
	threshold int
	log       Logger

	lastCPU   atomic.Value // float64
	above     atomic.Bool
}

// NewQueueGuard constructs a guard for the given soft threshold. A
// threshold <= 0 disables logging entirely (useful in tests).
func NewQueueGuard(threshold int, log Logger) *QueueGuard {
	g := &QueueGuard{threshold: threshold, log: log}
	g.lastCPU.Store(0.0)
	return g
}

// Observe reports the current queue depth. Call it once per enqueue (or
// per tick) from the sequencer's single owning goroutine; QueueGuard
// itself is safe for that single-writer use and for concurrent reads of
// its CPU sample from the background sampler below.
func (g *QueueGuard) Observe(depth int) {
	if g.threshold <= 0 {
		return
	}
	if depth > g.threshold {
		if !g.above.Swap(true) {
			g.log.Warn("queue depth crossed soft threshold", map[string]any{
				"depth":     depth,
				"threshold": g.threshold,
				"cpu_pct":   g.lastCPU.Load().(float64),
			})
		}
		return
	}
	g.above.Store(false)
}

// StartCPUSampling periodically samples host CPU utilization so Observe
// can annotate its log line. It returns once ctx is cancelled.
func (g *QueueGuard) StartCPUSampling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percents, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil || len(percents) == 0 {
				continue
			}
			g.lastCPU.Store(percents[0])
		}
	}
}
