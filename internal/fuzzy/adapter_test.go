package fuzzy

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"pii-span-detector/internal/logger"
	"pii-span-detector/internal/metrics"
	"pii-span-detector/internal/span"
)

// stubBackend answers Detect with a caller-supplied function and counts
// calls.
type stubBackend struct {
	detect func(req Request) (Response, error)
	calls  int
}

func (s *stubBackend) Detect(_ context.Context, req Request) (Response, error) {
	s.calls++
	return s.detect(req)
}

func (s *stubBackend) Healthy(context.Context) bool { return true }

// regexBackend matches pattern in each request and returns every hit as a
// NAME span at the given score.
func regexBackend(pattern string, score float64) *stubBackend {
	re := regexp.MustCompile(pattern)
	return &stubBackend{detect: func(req Request) (Response, error) {
		var resp Response
		for _, loc := range re.FindAllStringIndex(req.Text, -1) {
			resp.Spans = append(resp.Spans, RawSpan{
				Start: loc[0], End: loc[1], Label: "NAME", Score: score,
				Text: req.Text[loc[0]:loc[1]],
			})
		}
		return resp, nil
	}}
}

func newTestAdapter(b Backend) *Adapter {
	return New(b, DefaultOptions(), logger.New("FUZZY", "error"), nil)
}

func TestDetectEntityAcrossChunkBoundary(t *testing.T) {
	// "John Smith" straddles the 2000-character window edge: the first
	// window sees only "John", the overlapping second window sees the whole
	// name. The merged result must be a single span over the full name.
	text := strings.Repeat("x", 1995) + "John Smith" + strings.Repeat("x", 595)
	backend := regexBackend(`John(?: Smith)?|Smith`, 0.9)

	got := newTestAdapter(backend).Detect(context.Background(), text, nil, nil)

	if backend.calls != 2 {
		t.Errorf("backend called %d times, want 2 windows", backend.calls)
	}
	if len(got) != 1 {
		t.Fatalf("got %d spans, want exactly 1: %v", len(got), got)
	}
	s := got[0]
	if s.Start != 1995 || s.End != 2005 || s.Label != span.LabelName {
		t.Errorf("merged span = %+v, want NAME [1995,2005)", s)
	}
	if s.Text != "John Smith" {
		t.Errorf("span text = %q, want %q", s.Text, "John Smith")
	}
}

func TestDetectMasksExistingSpans(t *testing.T) {
	text := "reach john@example.com or ask for John Smith"
	email := span.Span{Start: 6, End: 22, Label: span.LabelEmail, Confidence: 0.95, Source: span.SourcePattern}

	var sawMasked bool
	backend := &stubBackend{detect: func(req Request) (Response, error) {
		sawMasked = strings.Contains(req.Text, strings.Repeat("*", 16))
		return Response{Spans: []RawSpan{
			{Start: 6, End: 22, Label: "NAME", Score: 0.9},  // inside the masked email
			{Start: 34, End: 44, Label: "NAME", Score: 0.9}, // John Smith
		}}, nil
	}}

	got := newTestAdapter(backend).Detect(context.Background(), text, []span.Span{email}, nil)

	if !sawMasked {
		t.Error("backend saw unmasked email text")
	}
	if len(got) != 1 || got[0].Text != "John Smith" {
		t.Fatalf("got %v, want only the John Smith span", got)
	}
	if got[0].Source != span.SourceFuzzy {
		t.Errorf("source = %q, want %q", got[0].Source, span.SourceFuzzy)
	}
}

func TestDetectConfidenceFloors(t *testing.T) {
	text := "John Smith lives at 42 Baker Street with Mary Jones"
	backend := &stubBackend{detect: func(Request) (Response, error) {
		return Response{Spans: []RawSpan{
			{Start: 0, End: 10, Label: "NAME", Score: 0.5},  // below global floor
			{Start: 20, End: 35, Label: "ADDR", Score: 0.67}, // above global, below ADDRESS floor
			{Start: 41, End: 51, Label: "NAME", Score: 0.7},  // keeps
		}}, nil
	}}

	got := newTestAdapter(backend).Detect(context.Background(), text, nil, nil)

	if len(got) != 1 {
		t.Fatalf("got %d spans, want 1: %v", len(got), got)
	}
	if got[0].Text != "Mary Jones" {
		t.Errorf("kept span = %q, want %q", got[0].Text, "Mary Jones")
	}
}

func TestDetectDropsMalformedSpans(t *testing.T) {
	text := "talk to John Smith today"
	backend := &stubBackend{detect: func(Request) (Response, error) {
		return Response{Spans: []RawSpan{
			{Start: 0, End: 4, Label: "ORG", Score: 0.9},    // unknown label
			{Start: -3, End: 4, Label: "NAME", Score: 0.9},  // negative start
			{Start: 5, End: 500, Label: "NAME", Score: 0.9}, // past end of text
			{Start: 10, End: 10, Label: "NAME", Score: 0.9}, // empty range
			{Start: 8, End: 18, Label: "PER", Score: 0.9},   // valid, PER remaps to NAME
		}}, nil
	}}

	got := newTestAdapter(backend).Detect(context.Background(), text, nil, nil)

	if len(got) != 1 {
		t.Fatalf("got %d spans, want 1: %v", len(got), got)
	}
	if got[0].Label != span.LabelName || got[0].Text != "John Smith" {
		t.Errorf("surviving span = %+v", got[0])
	}
}

func TestDetectFallbackOnBackendError(t *testing.T) {
	text := "my name is John Smith and I live at #12-345"
	backend := &stubBackend{detect: func(Request) (Response, error) {
		return Response{}, errors.New("connection refused")
	}}
	m := metrics.New()
	a := New(backend, DefaultOptions(), logger.New("FUZZY", "error"), m)

	got := a.Detect(context.Background(), text, nil, nil)

	if len(got) != 2 {
		t.Fatalf("got %d fallback spans, want 2: %v", len(got), got)
	}
	for _, s := range got {
		if s.Source != span.SourceFuzzyFallback {
			t.Errorf("span %q source = %q, want %q", s.Text, s.Source, span.SourceFuzzyFallback)
		}
		if s.Confidence > FallbackConfidence {
			t.Errorf("span %q confidence = %v, want at most %v", s.Text, s.Confidence, FallbackConfidence)
		}
	}
	if got[0].Text != "John Smith" {
		t.Errorf("name span text = %q", got[0].Text)
	}
	if got[1].Text != "#12-345" {
		t.Errorf("address span text = %q", got[1].Text)
	}
	if m.FuzzyErrors.Load() != 1 || m.FuzzyFallbacks.Load() != 1 {
		t.Errorf("error/fallback counters = %d/%d, want 1/1",
			m.FuzzyErrors.Load(), m.FuzzyFallbacks.Load())
	}
}

func TestDetectSkipsWhenFuzzyCategoriesDisabled(t *testing.T) {
	backend := regexBackend(`John`, 0.9)
	enabled := map[span.Label]bool{
		span.LabelEmail: true,
		span.LabelCard:  true,
		// NAME and ADDRESS off
	}

	got := newTestAdapter(backend).Detect(context.Background(), "ask for John", nil, enabled)

	if backend.calls != 0 {
		t.Errorf("backend called %d times despite disabled fuzzy categories", backend.calls)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestDetectSkipsWhenAlreadyCovered(t *testing.T) {
	backend := regexBackend(`John`, 0.9)
	existing := []span.Span{
		{Start: 0, End: 4, Label: span.LabelName, Confidence: 0.9, Source: span.SourceFuzzy},
		{Start: 10, End: 20, Label: span.LabelAddress, Confidence: 0.85, Source: span.SourceFuzzy},
	}

	got := newTestAdapter(backend).Detect(context.Background(), "John is at 12 Elm Road", existing, nil)

	if backend.calls != 0 {
		t.Errorf("backend called %d times despite confident coverage", backend.calls)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestDetectEmptyText(t *testing.T) {
	backend := regexBackend(`John`, 0.9)
	if got := newTestAdapter(backend).Detect(context.Background(), "", nil, nil); got != nil {
		t.Errorf("got %v, want nil", got)
	}
	if backend.calls != 0 {
		t.Errorf("backend called for empty text")
	}
}

func TestRemapLabel(t *testing.T) {
	cases := []struct {
		in   string
		want span.Label
		ok   bool
	}{
		{"PER", span.LabelName, true},
		{"NAME", span.LabelName, true},
		{"ADDR", span.LabelAddress, true},
		{"ADDRESS", span.LabelAddress, true},
		{"ORG", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := remapLabel(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("remapLabel(%q) = %q, %v; want %q, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestSplitChunksCoversEveryByte(t *testing.T) {
	text := strings.Repeat("abcde", 1000) // 5000 chars
	chunks := splitChunks(text, DefaultChunkWindow, DefaultStrideChars)

	covered := make([]bool, len(text))
	for _, c := range chunks {
		if c.text != text[c.offset:c.offset+len(c.text)] {
			t.Fatalf("chunk at %d does not match source text", c.offset)
		}
		for i := c.offset; i < c.offset+len(c.text); i++ {
			covered[i] = true
		}
	}
	for i, ok := range covered {
		if !ok {
			t.Fatalf("byte %d not covered by any chunk", i)
		}
	}
}

func TestMergeRawKeepsDistinctLabels(t *testing.T) {
	got := mergeRaw([]RawSpan{
		{Start: 10, End: 20, Label: "NAME", Score: 0.8},
		{Start: 15, End: 25, Label: "ADDR", Score: 0.9},
	})
	if len(got) != 2 {
		t.Fatalf("overlapping spans with different labels merged: %v", got)
	}
}

func TestMergeRawTakesMaxScore(t *testing.T) {
	got := mergeRaw([]RawSpan{
		{Start: 10, End: 18, Label: "NAME", Score: 0.7},
		{Start: 14, End: 24, Label: "NAME", Score: 0.95},
	})
	if len(got) != 1 {
		t.Fatalf("got %d spans, want 1: %v", len(got), got)
	}
	if got[0].Start != 10 || got[0].End != 24 || got[0].Score != 0.95 {
		t.Errorf("merged span = %+v, want [10,24) score 0.95", got[0])
	}
}
