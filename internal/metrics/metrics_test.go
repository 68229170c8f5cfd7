package metrics

import (
	"encoding/json"
	"testing"
	"time"

	"pii-span-detector/internal/span"
)

func TestSnapshotCounters(t *testing.T) {
	m := New()
	m.ScansTotal.Add(3)
	m.ScansSuperseded.Add(1)
	m.SpansPattern.Add(5)
	m.SpansSuppressed.Add(2)
	m.FuzzyErrors.Add(1)
	m.ActionsRecorded.Add(4)
	m.RecordSpan(span.LabelEmail)
	m.RecordSpan(span.LabelEmail)
	m.RecordSpan(span.LabelNRIC)
	m.RecordSpan(span.Label("BOGUS")) // ignored

	s := m.Snapshot()
	if s.Scans.Total != 3 || s.Scans.Superseded != 1 {
		t.Errorf("scan counters = %+v", s.Scans)
	}
	if s.Spans.Pattern != 5 || s.Spans.Suppressed != 2 {
		t.Errorf("span counters = %+v", s.Spans)
	}
	if s.Fuzzy.Errors != 1 {
		t.Errorf("fuzzy counters = %+v", s.Fuzzy)
	}
	if s.ActionsRecorded != 4 {
		t.Errorf("ActionsRecorded = %d", s.ActionsRecorded)
	}
	if s.Spans.PerLabel["EMAIL"] != 2 || s.Spans.PerLabel["NRIC"] != 1 {
		t.Errorf("per-label counts = %v", s.Spans.PerLabel)
	}
	if _, ok := s.Spans.PerLabel["BOGUS"]; ok {
		t.Error("unknown label counted")
	}
	if _, ok := s.Spans.PerLabel["CARD"]; ok {
		t.Error("zero-count label present in snapshot")
	}
}

func TestLatencyStats(t *testing.T) {
	m := New()
	m.RecordScanLatency(2 * time.Millisecond)
	m.RecordScanLatency(6 * time.Millisecond)
	m.RecordScanLatency(4 * time.Millisecond)

	s := m.Snapshot().Latency.ScanMs
	if s.Count != 3 {
		t.Fatalf("count = %d, want 3", s.Count)
	}
	if s.MinMs != 2 || s.MaxMs != 6 || s.MeanMs != 4 {
		t.Errorf("min/mean/max = %v/%v/%v, want 2/4/6", s.MinMs, s.MeanMs, s.MaxMs)
	}
	if empty := m.Snapshot().Latency.FuzzyMs; empty.Count != 0 || empty.MinMs != 0 {
		t.Errorf("untouched dimension = %+v", empty)
	}
}

func TestSnapshotJSONShape(t *testing.T) {
	m := New()
	m.ScansTotal.Add(1)
	m.RecordSpan(span.LabelCard)

	data, err := json.Marshal(m.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"scans", "spans", "fuzzy", "latency", "uptimeSecs"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("snapshot JSON missing %q", key)
		}
	}
}
