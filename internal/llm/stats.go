package llm

import (
	"context"
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
	failed     bool
}

// StatsSnapshot is a point-in-time aggregate of provider latency samples.
type StatsSnapshot struct {
	Count  int     `json:"count"`
	Errors int     `json:"errors"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Stats tracks recent provider call latencies per operation within a rolling
// window.
type Stats struct {
	mu      sync.Mutex
	samples map[string][]sample
	maxAge  time.Duration
}

func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{
		samples: make(map[string][]sample),
		maxAge:  maxAge,
	}
}

// Record adds one call of op that took durationMs.
func (s *Stats) Record(op string, durationMs int64, failed bool) {
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(op, now)
	s.samples[op] = append(s.samples[op], sample{
		timestamp:  now,
		durationMs: durationMs,
		failed:     failed,
	})
}

// Snapshot aggregates every operation seen within the window.
func (s *Stats) Snapshot() map[string]StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]StatsSnapshot, len(s.samples))
	for op := range s.samples {
		s.pruneLocked(op, now)
		out[op] = aggregate(s.samples[op])
	}
	return out
}

func aggregate(samples []sample) StatsSnapshot {
	if len(samples) == 0 {
		return StatsSnapshot{}
	}
	values := make([]int64, 0, len(samples))
	var sum int64
	errs := 0
	for _, sm := range samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		if sm.failed {
			errs++
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return StatsSnapshot{
		Count:  len(values),
		Errors: errs,
		MinMs:  values[0],
		MaxMs:  values[len(values)-1],
		AvgMs:  float64(sum) / float64(len(values)),
		P50Ms:  percentile(values, 50),
		P95Ms:  percentile(values, 95),
		P99Ms:  percentile(values, 99),
	}
}

func (s *Stats) pruneLocked(op string, now time.Time) {
	cutoff := now.Add(-s.maxAge)
	list := s.samples[op]
	writeIdx := 0
	for _, sm := range list {
		if !sm.timestamp.Before(cutoff) {
			list[writeIdx] = sm
			writeIdx++
		}
	}
	s.samples[op] = list[:writeIdx]
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}

// InstrumentedCompleter records latency for every Complete call.
type InstrumentedCompleter struct {
	Completer
	Stats *Stats
}

func (c InstrumentedCompleter) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := c.Completer.Complete(ctx, req)
	c.Stats.Record(c.Completer.Name()+".complete", time.Since(start).Milliseconds(), err != nil)
	return out, err
}

// InstrumentedEmbedder records latency for every Embed call.
type InstrumentedEmbedder struct {
	Embedder
	Stats *Stats
}

func (e InstrumentedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	out, err := e.Embedder.Embed(ctx, texts)
	e.Stats.Record(e.Embedder.Name()+".embed", time.Since(start).Milliseconds(), err != nil)
	return out, err
}
