// Package fuzzy — mask.go
//
// Region masking: character ranges already covered by pattern spans are
// replaced with same-length placeholder runs before the text reaches the
// backend, so the fuzzy detector cannot re-flag text the scanner already
// handled. Offsets are unchanged by masking, so results map one-to-one
// back onto the original text.
package fuzzy

import "pii-span-detector/internal/span"

// placeholder is the masking character. Single-byte so byte offsets stay
// aligned between masked and original text.
const placeholder = '*'

// maskRegions returns text with every [Start,End) range of spans replaced
// by placeholder characters. Out-of-bounds spans are clipped.
func maskRegions(text string, spans []span.Span) string {
	if len(spans) == 0 {
		return text
	}
	buf := []byte(text)
	for _, s := range spans {
		start, end := s.Start, s.End
		if start < 0 {
			start = 0
		}
		if end > len(buf) {
			end = len(buf)
		}
		for i := start; i < end; i++ {
			buf[i] = placeholder
		}
	}
	return string(buf)
}

// insideMasked reports whether [start,end) falls entirely inside one of
// the masked ranges.
func insideMasked(start, end int, spans []span.Span) bool {
	for _, s := range spans {
		if start >= s.Start && end <= s.End {
			return true
		}
	}
	return false
}

// allPlaceholder reports whether s consists only of placeholder characters
// and whitespace, meaning the detection covers nothing but masked text.
func allPlaceholder(s string) bool {
	if s == "" {
		return true
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case placeholder, ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}
