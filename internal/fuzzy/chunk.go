// Package fuzzy — chunk.go
//
// Long-input chunking. Text beyond the backend's comfortable context is
// split into overlapping fixed-size character windows; each window is
// detected independently, spans are shifted back to global offsets, and
// same-label spans meeting at a window boundary are coalesced into one.
package fuzzy

import "sort"

// Chunking constants: 2000-character windows advanced by window minus
// stride, giving a 512-character overlap between consecutive windows.
const (
	DefaultChunkWindow = 2000
	DefaultStrideChars = 512
)

// chunk is one window of the input text.
type chunk struct {
	offset int
	text   string
}

// splitChunks cuts text into overlapping windows. Texts that fit in a
// single window come back as one chunk at offset 0.
func splitChunks(text string, window, stride int) []chunk {
	if window <= 0 {
		window = DefaultChunkWindow
	}
	if len(text) <= window {
		return []chunk{{offset: 0, text: text}}
	}
	step := window - stride
	if step < 1 {
		step = 1
	}
	var chunks []chunk
	for i := 0; i < len(text); i += step {
		end := i + window
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, chunk{offset: i, text: text[i:end]})
		if end == len(text) {
			break
		}
	}
	return chunks
}

// mergeRaw sorts raw spans by (start, end) and coalesces consecutive
// same-label spans whose ranges touch or overlap, keeping the max end and
// max score. Offsets must already be global.
func mergeRaw(spans []RawSpan) []RawSpan {
	if len(spans) < 2 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Label == last.Label && s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			if s.Score > last.Score {
				last.Score = s.Score
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
