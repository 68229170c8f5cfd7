// Package scan applies the fixed detector table to input text and emits
// raw pattern spans. A failing detector (validator panic, bad pattern)
// drops only that detector's contribution for the cycle; all others
// proceed.
package scan

import (
	"pii-span-detector/internal/logger"
	"pii-span-detector/internal/metrics"
	"pii-span-detector/internal/span"
)

// Scanner runs the detector table over input text.
type Scanner struct {
	table   []Detector
	log     *logger.Logger
	metrics *metrics.Metrics // nil = no metrics
}

// New creates a Scanner over the given table.
func New(table []Detector, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.New("SCANNER", "info")
	}
	return &Scanner{table: table, log: log}
}

// SetMetrics attaches runtime counters for detector failures.
func (s *Scanner) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Scan runs every enabled detector against text and returns the raw spans,
// in detector-table order then match order. enabled == nil means all
// detectors run. Overlapping spans from different detectors are expected;
// resolution happens downstream in the reconciler.
func (s *Scanner) Scan(text string, enabled map[span.Label]bool) []span.Span {
	if text == "" {
		return nil
	}
	var out []span.Span
	for _, d := range s.table {
		if enabled != nil && !enabled[d.Label()] {
			continue
		}
		out = append(out, s.runDetector(d, text)...)
	}
	return out
}

// runDetector applies one detector, isolating any panic from its pattern
// or validator so the rest of the scan survives.
func (s *Scanner) runDetector(d Detector, text string) (spans []span.Span) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warnf("detector_error", "%s: %v (detector skipped this cycle)", d.Name, r)
			if s.metrics != nil {
				s.metrics.PatternErrors.Add(1)
			}
			spans = nil
		}
	}()

	it := newMatchIter(d.Pattern, text)
	for {
		m, ok := it.next()
		if !ok {
			return spans
		}
		full := text[m.start:m.end]
		group := ""
		if m.groupStart >= 0 {
			group = text[m.groupStart:m.groupEnd]
		}
		if d.Validate != nil && !d.Validate(full, group) {
			continue
		}

		start, end := m.start, m.end
		if d.EmitGroup && m.groupStart >= 0 {
			start, end = m.groupStart, m.groupEnd
		}
		label := d.Label()
		if d.Relabel != nil {
			label = d.Relabel(full)
		}
		spans = append(spans, span.Span{
			Start:      start,
			End:        end,
			Label:      label,
			Confidence: span.PatternConfidence,
			Text:       text[start:end],
			Source:     span.SourcePattern,
		})
	}
}
