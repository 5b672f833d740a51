package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	mu          sync.Mutex
	transitions map[string]map[string]uint64
}

func New() *Collector {
	return &Collector{transitions: map[string]map[string]uint64{}}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordTransition counts one lifecycle operation by its outcome (ok, busy, rejected...).
func (c *Collector) RecordTransition(op, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byOutcome, ok := c.transitions[op]
	if !ok {
		byOutcome = map[string]uint64{}
		c.transitions[op] = byOutcome
	}
	byOutcome[outcome]++
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":    total,
		"errorsTotal":      errs,
		"rateLimitedTotal": limited,
		"avgDurationMs":    avg,
		"totalDurationMs":  totalMs,
		"transitions":      c.transitionSnapshot(),
	}
}

func (c *Collector) transitionSnapshot() map[string]map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := make([]string, 0, len(c.transitions))
	for op := range c.transitions {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	out := make(map[string]map[string]uint64, len(ops))
	for _, op := range ops {
		copied := make(map[string]uint64, len(c.transitions[op]))
		for outcome, n := range c.transitions[op] {
			copied[outcome] = n
		}
		out[op] = copied
	}
	return out
}
