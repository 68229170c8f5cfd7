// Package fuzzy — fallback.go
//
// Deterministic local heuristics used when the backend is unreachable.
// Coverage is intentionally narrow: capitalized name shapes and street
// address shapes. Every span carries the fuzzy-fallback provenance tag
// with a visibly lower confidence, so the UI can present it as a weaker
// signal.
package fuzzy

import (
	"regexp"

	"pii-span-detector/internal/span"
)

// FallbackConfidence is assigned to every heuristic span.
const FallbackConfidence = 0.5

type heuristic struct {
	re    *regexp.Regexp
	label span.Label
}

var heuristics = []heuristic{
	{
		// Honorific followed by capitalized words.
		re:    regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`),
		label: span.LabelName,
	},
	{
		// Two or three capitalized words after a naming cue.
		re:    regexp.MustCompile(`(?:\bmy name is\s+|\bI am\s+|\bI'm\s+|\bcontact\s+)([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
		label: span.LabelName,
	},
	{
		// Street address: number + words + street keyword.
		re:    regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z][A-Za-z\s]{1,40}?(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Crescent|Cres|Way)\b\.?`),
		label: span.LabelAddress,
	},
	{
		// Unit/block form common in local addresses: #12-345.
		re:    regexp.MustCompile(`#\d{1,3}-\d{1,4}\b`),
		label: span.LabelAddress,
	},
}

// fallbackDetect runs the heuristic pass over (possibly masked) text and
// returns spans restricted to the enabled labels. Matches that land in
// masked regions are skipped by the caller's normal filtering.
func fallbackDetect(text string, enabled map[span.Label]bool) []span.Span {
	var out []span.Span
	for _, h := range heuristics {
		if enabled != nil && !enabled[h.label] {
			continue
		}
		for _, loc := range h.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			// Prefer the capture group when present: the cue words
			// ("my name is") are not part of the entity.
			if len(loc) >= 4 && loc[2] >= 0 {
				start, end = loc[2], loc[3]
			}
			if start == end {
				continue
			}
			out = append(out, span.Span{
				Start:      start,
				End:        end,
				Label:      h.label,
				Confidence: FallbackConfidence,
				Text:       text[start:end],
				Source:     span.SourceFuzzyFallback,
			})
		}
	}
	return out
}
