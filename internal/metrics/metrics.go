// Package metrics provides lightweight performance counters for the
// detection engine.
//
// Counters use sync/atomic so the scan hot path incurs no mutex
// contention. Latency statistics take a single mutex per dimension and are
// updated at most once per cycle.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"pii-span-detector/internal/span"
)

// Metrics holds all runtime counters for a running detector instance.
// Use New(); the zero value lacks the per-label maps.
type Metrics struct {
	// Scan cycle counters
	ScansTotal      atomic.Int64
	ScansSuperseded atomic.Int64 // stale cycles discarded by a newer edit
	ScansCancelled  atomic.Int64 // cycles abandoned on blur/removal

	// Span volume
	SpansPattern    atomic.Int64
	SpansFuzzy      atomic.Int64
	SpansSuppressed atomic.Int64 // removed by the processed-content tracker

	// Fuzzy backend counters
	FuzzyDispatches atomic.Int64
	FuzzyErrors     atomic.Int64
	FuzzyFallbacks  atomic.Int64

	// Detector failures isolated during pattern scanning
	PatternErrors atomic.Int64

	// User actions recorded by the tracker
	ActionsRecorded atomic.Int64

	// Per-label detection counts. The map is written only in New();
	// concurrent reads of the atomic values need no lock.
	perLabel map[span.Label]*atomic.Int64

	scanMu   sync.Mutex
	scanStat latencyStats

	fuzzyMu   sync.Mutex
	fuzzyStat latencyStats

	startTime time.Time
}

// New returns a Metrics with per-label counters pre-populated for every
// known label.
func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		perLabel:  make(map[span.Label]*atomic.Int64, len(span.AllLabels)),
	}
	for _, l := range span.AllLabels {
		m.perLabel[l] = new(atomic.Int64)
	}
	return m
}

// RecordSpan bumps the per-label detection counter. Unknown labels are
// ignored.
func (m *Metrics) RecordSpan(l span.Label) {
	if c, ok := m.perLabel[l]; ok {
		c.Add(1)
	}
}

// RecordScanLatency records the duration of one full detection cycle.
func (m *Metrics) RecordScanLatency(d time.Duration) {
	m.scanMu.Lock()
	m.scanStat.record(float64(d.Microseconds()) / 1000.0)
	m.scanMu.Unlock()
}

// RecordFuzzyLatency records the duration of one fuzzy backend pass.
func (m *Metrics) RecordFuzzyLatency(d time.Duration) {
	m.fuzzyMu.Lock()
	m.fuzzyStat.record(float64(d.Microseconds()) / 1000.0)
	m.fuzzyMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON
// encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.scanMu.Lock()
	scan := m.scanStat.snapshot()
	m.scanMu.Unlock()

	m.fuzzyMu.Lock()
	fuzzy := m.fuzzyStat.snapshot()
	m.fuzzyMu.Unlock()

	perLabel := make(map[string]int64, len(m.perLabel))
	for l, c := range m.perLabel {
		if n := c.Load(); n > 0 {
			perLabel[string(l)] = n
		}
	}

	return Snapshot{
		Scans: ScanSnapshot{
			Total:      m.ScansTotal.Load(),
			Superseded: m.ScansSuperseded.Load(),
			Cancelled:  m.ScansCancelled.Load(),
		},
		Spans: SpanSnapshot{
			Pattern:    m.SpansPattern.Load(),
			Fuzzy:      m.SpansFuzzy.Load(),
			Suppressed: m.SpansSuppressed.Load(),
			PerLabel:   perLabel,
		},
		Fuzzy: FuzzySnapshot{
			Dispatches: m.FuzzyDispatches.Load(),
			Errors:     m.FuzzyErrors.Load(),
			Fallbacks:  m.FuzzyFallbacks.Load(),
		},
		PatternErrors:   m.PatternErrors.Load(),
		ActionsRecorded: m.ActionsRecorded.Load(),
		Latency: LatencyGroup{
			ScanMs:  scan,
			FuzzyMs: fuzzy,
		},
		UptimeSecs: time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Scans           ScanSnapshot  `json:"scans"`
	Spans           SpanSnapshot  `json:"spans"`
	Fuzzy           FuzzySnapshot `json:"fuzzy"`
	PatternErrors   int64         `json:"patternErrors"`
	ActionsRecorded int64         `json:"actionsRecorded"`
	Latency         LatencyGroup  `json:"latency"`
	UptimeSecs      float64       `json:"uptimeSecs"`
}

// ScanSnapshot holds scan cycle counters.
type ScanSnapshot struct {
	Total      int64 `json:"total"`
	Superseded int64 `json:"superseded"`
	Cancelled  int64 `json:"cancelled"`
}

// SpanSnapshot holds span volume counters.
type SpanSnapshot struct {
	Pattern    int64            `json:"pattern"`
	Fuzzy      int64            `json:"fuzzy"`
	Suppressed int64            `json:"suppressed"`
	PerLabel   map[string]int64 `json:"perLabel,omitempty"`
}

// FuzzySnapshot holds fuzzy backend counters.
type FuzzySnapshot struct {
	Dispatches int64 `json:"dispatches"`
	Errors     int64 `json:"errors"`
	Fallbacks  int64 `json:"fallbacks"`
}

// LatencyGroup groups the two latency dimensions.
type LatencyGroup struct {
	ScanMs  LatencySnapshot `json:"scanMs"`
	FuzzyMs LatencySnapshot `json:"fuzzyMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
