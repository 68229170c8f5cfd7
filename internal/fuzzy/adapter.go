// Package fuzzy adapts the black-box entity detector to the span pipeline.
//
// The adapter owns everything around the model call: skipping work the
// pattern scanner already did (masking, redundancy checks), chunking long
// input, re-mapping offsets and labels, confidence filtering, and the
// local heuristic fallback when the backend is unreachable. Backend
// failures never propagate to the caller; the worst case is fewer
// detections for one cycle.
package fuzzy

import (
	"context"
	"fmt"

	"pii-span-detector/internal/ambiguity"
	"pii-span-detector/internal/logger"
	"pii-span-detector/internal/metrics"
	"pii-span-detector/internal/span"
)

// Default thresholds carried over from the inference service contract.
const (
	DefaultThreshold    = 0.65
	DefaultAddressFloor = 0.70
	DefaultMaxLen       = 256

	// confidentBar: an existing span at or above this confidence counts as
	// already covering its category for redundancy avoidance.
	confidentBar = 0.8
)

// Options tunes the adapter.
type Options struct {
	Threshold   float64                // global confidence floor
	PerLabel    map[span.Label]float64 // per-category overrides
	MaxLen      int                    // backend tokenizer max length
	ChunkWindow int                    // character window for long input
	StrideChars int                    // overlap between windows
}

// DefaultOptions returns the tuned defaults. ADDRESS gets a stricter floor
// than NAME.
func DefaultOptions() Options {
	return Options{
		Threshold: DefaultThreshold,
		PerLabel: map[span.Label]float64{
			span.LabelAddress: DefaultAddressFloor,
		},
		MaxLen:      DefaultMaxLen,
		ChunkWindow: DefaultChunkWindow,
		StrideChars: DefaultStrideChars,
	}
}

// Adapter wraps a Backend and produces pipeline spans.
type Adapter struct {
	backend Backend
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics // nil = no metrics
}

// New creates an Adapter. metrics may be nil.
func New(backend Backend, opts Options, log *logger.Logger, m *metrics.Metrics) *Adapter {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = DefaultMaxLen
	}
	if opts.ChunkWindow <= 0 {
		opts.ChunkWindow = DefaultChunkWindow
	}
	if opts.StrideChars <= 0 {
		opts.StrideChars = DefaultStrideChars
	}
	if log == nil {
		log = logger.New("FUZZY", "info")
	}
	return &Adapter{backend: backend, opts: opts, log: log, metrics: m}
}

// Healthy probes the backend.
func (a *Adapter) Healthy(ctx context.Context) bool {
	if a.backend == nil {
		return false
	}
	return a.backend.Healthy(ctx)
}

// Detect runs fuzzy detection over text, avoiding regions already covered
// by existing spans. enabled gates which categories may be returned; nil
// means all. Returned spans are already ambiguity-resolved and carry
// offsets into the original text.
func (a *Adapter) Detect(ctx context.Context, text string, existing []span.Span, enabled map[span.Label]bool) []span.Span {
	if text == "" {
		return nil
	}

	fuzzyEnabled := enabledFuzzyLabels(enabled)
	if len(fuzzyEnabled) == 0 {
		return nil
	}
	if coveredConfidently(fuzzyEnabled, existing) {
		a.log.Debug("skip_backend", "all fuzzy categories already confidently covered")
		return nil
	}

	masked := maskRegions(text, existing)

	raw, err := a.detectChunked(ctx, masked)
	if err != nil {
		a.log.Warnf("backend_fallback", "fuzzy backend unavailable: %v", err)
		if a.metrics != nil {
			a.metrics.FuzzyErrors.Add(1)
			a.metrics.FuzzyFallbacks.Add(1)
		}
		return a.finish(fallbackSpans(masked, text, fuzzyEnabled, existing), "fallback heuristic (backend unavailable)")
	}

	return a.finish(a.convert(raw, text, masked, existing, fuzzyEnabled), "detected by fuzzy model")
}

// detectChunked runs the backend over each window of the masked text and
// returns merged raw spans in global offsets.
func (a *Adapter) detectChunked(ctx context.Context, masked string) ([]RawSpan, error) {
	chunks := splitChunks(masked, a.opts.ChunkWindow, a.opts.StrideChars)

	var all []RawSpan
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if a.metrics != nil {
			a.metrics.FuzzyDispatches.Add(1)
		}
		resp, err := a.backend.Detect(ctx, Request{
			Text:              c.text,
			Threshold:         a.opts.Threshold,
			PerLabelThreshold: a.wireThresholds(),
			MaxLen:            a.opts.MaxLen,
			StrideChars:       a.opts.StrideChars,
		})
		if err != nil {
			return nil, fmt.Errorf("chunk at %d: %w", c.offset, err)
		}
		for _, rs := range resp.Spans {
			rs.Start += c.offset
			rs.End += c.offset
			all = append(all, rs)
		}
	}
	return mergeRaw(all), nil
}

// convert turns raw backend spans into pipeline spans: label remap, bounds
// checks, masked-region and placeholder rejection, confidence filtering.
// Malformed spans are dropped individually, never the whole response.
func (a *Adapter) convert(raw []RawSpan, text, masked string, existing []span.Span, enabled map[span.Label]bool) []span.Span {
	var out []span.Span
	for _, rs := range raw {
		label, ok := remapLabel(rs.Label)
		if !ok {
			a.log.Debugf("drop_span", "unknown backend label %q", rs.Label)
			continue
		}
		if !enabled[label] {
			continue
		}
		if rs.Start < 0 || rs.End > len(text) || rs.Start >= rs.End {
			a.log.Debugf("drop_span", "offsets [%d,%d) out of bounds", rs.Start, rs.End)
			continue
		}
		if insideMasked(rs.Start, rs.End, existing) || allPlaceholder(masked[rs.Start:rs.End]) {
			continue
		}
		if rs.Score < a.floor(label) {
			continue
		}
		out = append(out, span.Span{
			Start:      rs.Start,
			End:        rs.End,
			Label:      label,
			Confidence: rs.Score,
			Text:       text[rs.Start:rs.End],
			Source:     span.SourceFuzzy,
		})
	}
	return out
}

// finish runs the ambiguity resolver over every surviving span.
func (a *Adapter) finish(spans []span.Span, reasonSuffix string) []span.Span {
	for i := range spans {
		ambiguity.Apply(&spans[i], reasonSuffix)
	}
	return spans
}

// fallbackSpans runs the heuristic pass on the masked text, then re-slices
// each hit from the original text and drops anything landing in a masked
// region.
func fallbackSpans(masked, text string, enabled map[span.Label]bool, existing []span.Span) []span.Span {
	var out []span.Span
	for _, s := range fallbackDetect(masked, enabled) {
		if insideMasked(s.Start, s.End, existing) || allPlaceholder(s.Text) {
			continue
		}
		s.Reslice(text)
		out = append(out, s)
	}
	return out
}

// floor returns the confidence floor for a label.
func (a *Adapter) floor(l span.Label) float64 {
	if f, ok := a.opts.PerLabel[l]; ok && f > a.opts.Threshold {
		return f
	}
	return a.opts.Threshold
}

// wireThresholds builds the per_label_threshold payload in the backend's
// label spelling.
func (a *Adapter) wireThresholds() map[string]float64 {
	return map[string]float64{
		"NAME": a.floor(span.LabelName),
		"ADDR": a.floor(span.LabelAddress),
	}
}

// remapLabel translates backend label spellings to pipeline labels.
func remapLabel(s string) (span.Label, bool) {
	switch s {
	case "PER", "NAME":
		return span.LabelName, true
	case "ADDR", "ADDRESS":
		return span.LabelAddress, true
	}
	return "", false
}

// enabledFuzzyLabels returns the fuzzy-only categories switched on in the
// given set. nil means everything is enabled.
func enabledFuzzyLabels(enabled map[span.Label]bool) map[span.Label]bool {
	out := make(map[span.Label]bool, len(span.FuzzyOnlyLabels))
	for _, l := range span.FuzzyOnlyLabels {
		if enabled == nil || enabled[l] {
			out[l] = true
		}
	}
	return out
}

// coveredConfidently reports whether existing spans already cover every
// enabled fuzzy category at or above the confidence bar. Purely a cost
// optimization: skipping the backend call loses nothing the scanner has
// not already found.
func coveredConfidently(enabled map[span.Label]bool, existing []span.Span) bool {
	if len(enabled) == 0 {
		return false
	}
	for l := range enabled {
		found := false
		for _, s := range existing {
			if s.Label == l && s.Confidence >= confidentBar {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
