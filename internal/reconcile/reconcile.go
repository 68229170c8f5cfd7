// Package reconcile merges pattern-scanner spans and fuzzy-detector spans
// into the single ordered list handed to the UI layer.
package reconcile

import "pii-span-detector/internal/span"

// Merge removes every fuzzy span that overlaps a pattern span (pattern
// matches are deterministic format hits and win on conflict), then returns
// the concatenation of both lists sorted by start ascending, ties broken
// by end ascending.
//
// The fuzzy adapter already masks regions covered by pattern spans, so in
// the common case nothing is dropped here. Fallback heuristics and model
// spans merged across chunk boundaries can still straddle a pattern hit.
func Merge(patternSpans, fuzzySpans []span.Span) []span.Span {
	out := make([]span.Span, 0, len(patternSpans)+len(fuzzySpans))
	out = append(out, patternSpans...)

	for _, f := range fuzzySpans {
		if overlapsAny(f, patternSpans) {
			continue
		}
		out = append(out, f)
	}

	span.SortSpans(out)
	return out
}

func overlapsAny(s span.Span, list []span.Span) bool {
	for _, p := range list {
		if s.Overlaps(p) {
			return true
		}
	}
	return false
}
