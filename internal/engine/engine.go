// Package engine wires the detection stages into the single entry point
// the UI layer calls per edit cycle:
//
//	text → pattern scan → ambiguity enrichment → fuzzy detect →
//	reconcile → processed-content filter → ordered span list
//
// The pattern scan, ambiguity resolution and reconciliation are
// synchronous and never block; only the fuzzy backend call may suspend.
// Cycles are keyed by element identity and carry a monotonically
// increasing edit sequence: a result arriving after a newer edit started
// is discarded, so stale slow results never overwrite fresher ones.
package engine

import (
	"context"
	"sync"
	"time"

	"pii-span-detector/internal/ambiguity"
	"pii-span-detector/internal/fuzzy"
	"pii-span-detector/internal/logger"
	"pii-span-detector/internal/metrics"
	"pii-span-detector/internal/reconcile"
	"pii-span-detector/internal/scan"
	"pii-span-detector/internal/span"
	"pii-span-detector/internal/tracker"
)

// Preferences is the read-only per-cycle configuration the external
// caller threads into every scan. The engine never writes preferences.
type Preferences struct {
	Enabled      bool
	Categories   map[span.Label]bool
	FakeData     map[span.Label]string
	SkipRemoved  bool
	SkipReplaced bool
}

// Request is one detection cycle's input.
type Request struct {
	// ElementID identifies the input field. Empty means a one-shot scan
	// with no supersession tracking and no processed-content filtering.
	ElementID string

	// Text is the field's full current content.
	Text string

	// Seq is the caller's edit sequence for this element. Zero lets the
	// engine assign the next sequence itself.
	Seq uint64

	Prefs Preferences
}

// Result is one detection cycle's output.
type Result struct {
	Spans []span.Span

	// Seq is the edit sequence this result belongs to.
	Seq uint64

	// Superseded is true when a newer edit started while this cycle was
	// in flight; Spans is nil and the result must be discarded.
	Superseded bool
}

type fieldState struct {
	seq    uint64
	cancel context.CancelFunc
}

// Engine runs detection cycles.
type Engine struct {
	scanner *scan.Scanner
	fuzzy   *fuzzy.Adapter // nil = pattern scanning only
	tracker *tracker.Tracker
	metrics *metrics.Metrics
	log     *logger.Logger

	mu     sync.Mutex
	fields map[string]*fieldState
}

// New assembles an Engine. fuzzyAdapter and m may be nil.
func New(scanner *scan.Scanner, fuzzyAdapter *fuzzy.Adapter, tr *tracker.Tracker, m *metrics.Metrics, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.New("ENGINE", "info")
	}
	if tr == nil {
		tr = tracker.New(nil, log)
	}
	return &Engine{
		scanner: scanner,
		fuzzy:   fuzzyAdapter,
		tracker: tr,
		metrics: m,
		log:     log,
		fields:  make(map[string]*fieldState),
	}
}

// ScanText runs one full detection cycle. It is safe to call concurrently
// for different elements; concurrent calls for the same element race on
// the edit sequence and only the newest one's result survives.
func (e *Engine) ScanText(ctx context.Context, req Request) (Result, error) {
	if !req.Prefs.Enabled || req.Text == "" {
		return Result{Seq: req.Seq}, nil
	}

	started := time.Now()
	seq, ctx, cancel := e.beginCycle(ctx, req.ElementID, req.Seq)
	defer cancel()
	if e.metrics != nil {
		e.metrics.ScansTotal.Add(1)
	}

	// Stage 1: pattern scan (synchronous, never blocks).
	patternSpans := e.scanner.Scan(req.Text, req.Prefs.Categories)
	for i := range patternSpans {
		ambiguity.Apply(&patternSpans[i], "")
	}

	// Stage 2: fuzzy detection over the not-yet-covered regions.
	var fuzzySpans []span.Span
	if e.fuzzy != nil {
		fuzzyStart := time.Now()
		fuzzySpans = e.fuzzy.Detect(ctx, req.Text, patternSpans, req.Prefs.Categories)
		if e.metrics != nil {
			e.metrics.RecordFuzzyLatency(time.Since(fuzzyStart))
		}
	}
	if err := ctx.Err(); err != nil {
		if e.metrics != nil {
			e.metrics.ScansCancelled.Add(1)
		}
		return Result{Seq: seq}, err
	}

	// Stage 3: reconcile into one ordered, non-conflicting list.
	merged := reconcile.Merge(patternSpans, fuzzySpans)

	// Stage 4: drop spans the user already acted upon.
	filtered := merged
	if req.ElementID != "" {
		filtered = e.tracker.Filter(req.ElementID, merged, req.Text, tracker.Policy{
			SkipRemoved:  req.Prefs.SkipRemoved,
			SkipReplaced: req.Prefs.SkipReplaced,
		})
	}

	if e.stale(req.ElementID, seq) {
		if e.metrics != nil {
			e.metrics.ScansSuperseded.Add(1)
		}
		e.log.Debugf("cycle_superseded", "%s seq=%d", req.ElementID, seq)
		return Result{Seq: seq, Superseded: true}, nil
	}

	e.count(patternSpans, fuzzySpans, len(merged)-len(filtered))
	if e.metrics != nil {
		e.metrics.RecordScanLatency(time.Since(started))
	}
	return Result{Spans: filtered, Seq: seq}, nil
}

// OnUserAction records a user decision on spans of an element. The
// tracker is updated synchronously before this returns. fieldText is the
// element content after the action was applied.
func (e *Engine) OnUserAction(elementID string, action tracker.Action, spans []span.Span, fieldText string, prefs Preferences) {
	e.tracker.Record(elementID, fieldText, spans, action, prefs.FakeData)
	if e.metrics != nil {
		e.metrics.ActionsRecorded.Add(int64(len(spans)))
	}
}

// Cancel abandons any in-flight cycle for elementID (focus loss). The
// element's history is kept.
func (e *Engine) Cancel(elementID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fs, ok := e.fields[elementID]; ok && fs.cancel != nil {
		fs.cancel()
		fs.cancel = nil
	}
}

// Remove abandons any in-flight cycle and drops all state for elementID
// (element removed from the page).
func (e *Engine) Remove(elementID string) {
	e.mu.Lock()
	fs, ok := e.fields[elementID]
	if ok {
		if fs.cancel != nil {
			fs.cancel()
		}
		delete(e.fields, elementID)
	}
	e.mu.Unlock()
	e.tracker.Forget(elementID)
}

// RunPruner periodically drops idle tracker records until ctx ends.
func (e *Engine) RunPruner(ctx context.Context, every, maxIdle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.tracker.Prune(maxIdle)
		}
	}
}

// beginCycle registers a new cycle for the element, superseding and
// cancelling any previous one, and returns the effective sequence and a
// derived context the caller must cancel.
func (e *Engine) beginCycle(ctx context.Context, elementID string, reqSeq uint64) (uint64, context.Context, context.CancelFunc) {
	if elementID == "" {
		return reqSeq, ctx, func() {}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fs, ok := e.fields[elementID]
	if !ok {
		fs = &fieldState{}
		e.fields[elementID] = fs
	}
	if fs.cancel != nil {
		fs.cancel() // the older cycle is now stale
	}
	seq := reqSeq
	if seq == 0 || seq <= fs.seq {
		seq = fs.seq + 1
	}
	fs.seq = seq

	cctx, cancel := context.WithCancel(ctx)
	fs.cancel = cancel
	return seq, cctx, cancel
}

// stale reports whether a newer cycle has started for the element.
func (e *Engine) stale(elementID string, seq uint64) bool {
	if elementID == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fs, ok := e.fields[elementID]
	return ok && fs.seq != seq
}

func (e *Engine) count(patternSpans, fuzzySpans []span.Span, suppressed int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SpansPattern.Add(int64(len(patternSpans)))
	e.metrics.SpansFuzzy.Add(int64(len(fuzzySpans)))
	if suppressed > 0 {
		e.metrics.SpansSuppressed.Add(int64(suppressed))
	}
	for _, s := range patternSpans {
		e.metrics.RecordSpan(s.Label)
	}
	for _, s := range fuzzySpans {
		e.metrics.RecordSpan(s.Label)
	}
}
