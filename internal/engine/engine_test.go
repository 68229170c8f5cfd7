package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"pii-span-detector/internal/fuzzy"
	"pii-span-detector/internal/logger"
	"pii-span-detector/internal/metrics"
	"pii-span-detector/internal/scan"
	"pii-span-detector/internal/span"
	"pii-span-detector/internal/tracker"
	"pii-span-detector/internal/validate"
)

func testLogger() *logger.Logger { return logger.New("TEST", "error") }

func newTestEngine(fz *fuzzy.Adapter) *Engine {
	scanner := scan.New(scan.DefaultTable(validate.DefaultEntropyThresholds()), testLogger())
	return New(scanner, fz, tracker.New(tracker.NewMemoryStore(), testLogger()), metrics.New(), testLogger())
}

func allOn() Preferences {
	return Preferences{Enabled: true, SkipRemoved: true, SkipReplaced: true}
}

func TestScanTextPatternPipeline(t *testing.T) {
	e := newTestEngine(nil)
	res, err := e.ScanText(context.Background(), Request{
		ElementID: "field-1",
		Text:      "write to alice@example.com please",
		Prefs:     allOn(),
	})
	if err != nil {
		t.Fatalf("ScanText: %v", err)
	}
	if res.Superseded {
		t.Fatal("single cycle reported superseded")
	}
	if len(res.Spans) != 1 || res.Spans[0].Label != span.LabelEmail {
		t.Fatalf("spans = %v, want one EMAIL", res.Spans)
	}
	if res.Spans[0].Text != "alice@example.com" {
		t.Errorf("span text = %q", res.Spans[0].Text)
	}
}

func TestScanTextIdempotent(t *testing.T) {
	e := newTestEngine(nil)
	req := Request{ElementID: "field-1", Text: "card 4242 4242 4242 4242 here", Prefs: allOn()}

	first, err := e.ScanText(context.Background(), req)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := e.ScanText(context.Background(), req)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(first.Spans) != len(second.Spans) {
		t.Fatalf("span counts differ: %d vs %d", len(first.Spans), len(second.Spans))
	}
	for i := range first.Spans {
		a, b := first.Spans[i], second.Spans[i]
		if a.Start != b.Start || a.End != b.End || a.Label != b.Label || a.Confidence != b.Confidence {
			t.Errorf("span %d differs: %+v vs %+v", i, a, b)
		}
	}
	if second.Seq <= first.Seq {
		t.Errorf("sequence did not advance: %d then %d", first.Seq, second.Seq)
	}
}

func TestScanTextDisabledReturnsNothing(t *testing.T) {
	e := newTestEngine(nil)
	res, err := e.ScanText(context.Background(), Request{
		ElementID: "field-1",
		Text:      "alice@example.com",
		Prefs:     Preferences{Enabled: false},
	})
	if err != nil {
		t.Fatalf("ScanText: %v", err)
	}
	if len(res.Spans) != 0 {
		t.Errorf("disabled engine returned spans: %v", res.Spans)
	}
}

// blockingBackend parks the first Detect call until released, so a newer
// cycle can start underneath it.
type blockingBackend struct {
	mu      sync.Mutex
	calls   int
	firstIn chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Detect(ctx context.Context, req fuzzy.Request) (fuzzy.Response, error) {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if first {
		close(b.firstIn)
		select {
		case <-b.release:
		case <-ctx.Done():
			return fuzzy.Response{}, ctx.Err()
		}
	}
	return fuzzy.Response{}, nil
}

func (b *blockingBackend) Healthy(context.Context) bool { return true }

func TestScanTextSupersededByNewerEdit(t *testing.T) {
	backend := &blockingBackend{firstIn: make(chan struct{}), release: make(chan struct{})}
	fz := fuzzy.New(backend, fuzzy.DefaultOptions(), testLogger(), nil)
	e := newTestEngine(fz)

	prefs := allOn()
	type outcome struct {
		res Result
		err error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		res, err := e.ScanText(context.Background(), Request{
			ElementID: "field-1", Text: "ask for John Smith", Prefs: prefs,
		})
		firstDone <- outcome{res, err}
	}()

	<-backend.firstIn // first cycle is inside the backend call

	second, err := e.ScanText(context.Background(), Request{
		ElementID: "field-1", Text: "ask for John Smith now", Prefs: prefs,
	})
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if second.Superseded {
		t.Fatal("newest cycle reported superseded")
	}
	close(backend.release)

	first := <-firstDone
	if first.err == nil && !first.res.Superseded {
		t.Errorf("stale cycle delivered a live result: %+v", first.res)
	}
	if first.res.Spans != nil {
		t.Errorf("stale cycle carried spans: %v", first.res.Spans)
	}
	if second.Seq <= first.res.Seq {
		t.Errorf("sequence ordering broken: stale=%d fresh=%d", first.res.Seq, second.Seq)
	}
}

func TestCancelAbandonsInFlightCycle(t *testing.T) {
	backend := &blockingBackend{firstIn: make(chan struct{}), release: make(chan struct{})}
	fz := fuzzy.New(backend, fuzzy.DefaultOptions(), testLogger(), nil)
	e := newTestEngine(fz)

	done := make(chan error, 1)
	go func() {
		_, err := e.ScanText(context.Background(), Request{
			ElementID: "field-1", Text: "ask for John Smith", Prefs: allOn(),
		})
		done <- err
	}()

	<-backend.firstIn
	e.Cancel("field-1")

	select {
	case err := <-done:
		if err == nil {
			t.Error("cancelled cycle returned no error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled cycle did not return")
	}
}

func TestOnUserActionFeedsFilter(t *testing.T) {
	e := newTestEngine(nil)
	prefs := allOn()
	text := "id S1234567D noted"

	res, err := e.ScanText(context.Background(), Request{ElementID: "field-1", Text: text, Prefs: prefs})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Spans) != 1 {
		t.Fatalf("spans = %v, want one NRIC", res.Spans)
	}

	e.OnUserAction("field-1", tracker.ActionIgnore, res.Spans, text, prefs)

	res, err = e.ScanText(context.Background(), Request{ElementID: "field-1", Text: text, Prefs: prefs})
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(res.Spans) != 0 {
		t.Errorf("ignored span re-flagged: %v", res.Spans)
	}
}

func TestRemoveDropsHistory(t *testing.T) {
	e := newTestEngine(nil)
	prefs := allOn()
	text := "id S1234567D noted"

	res, _ := e.ScanText(context.Background(), Request{ElementID: "field-1", Text: text, Prefs: prefs})
	e.OnUserAction("field-1", tracker.ActionIgnore, res.Spans, text, prefs)
	e.Remove("field-1")

	res, err := e.ScanText(context.Background(), Request{ElementID: "field-1", Text: text, Prefs: prefs})
	if err != nil {
		t.Fatalf("scan after remove: %v", err)
	}
	if len(res.Spans) != 1 {
		t.Errorf("history survived element removal: %v", res.Spans)
	}
}

func TestSchedulerDebounceCoalescesBurst(t *testing.T) {
	e := newTestEngine(nil)

	var mu sync.Mutex
	var delivered []Result
	s := NewScheduler(e, 30*time.Millisecond, func(_ string, res Result) {
		mu.Lock()
		delivered = append(delivered, res)
		mu.Unlock()
	})

	// A typing burst: only the final text should be scanned.
	s.Edit("field-1", "alice@", allOn())
	s.Edit("field-1", "alice@exam", allOn())
	s.Edit("field-1", "alice@example.com", allOn())

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(delivered)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no result delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	time.Sleep(100 * time.Millisecond) // would catch extra deliveries

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 {
		t.Fatalf("%d deliveries, want 1", len(delivered))
	}
	res := delivered[0]
	if len(res.Spans) != 1 || res.Spans[0].Text != "alice@example.com" {
		t.Errorf("delivered spans = %v, want the full address", res.Spans)
	}
}

func TestSchedulerBlurDropsPendingScan(t *testing.T) {
	e := newTestEngine(nil)

	var mu sync.Mutex
	count := 0
	s := NewScheduler(e, 30*time.Millisecond, func(string, Result) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	s.Edit("field-1", "alice@example.com", allOn())
	s.Blur("field-1")

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("%d deliveries after blur, want 0", count)
	}
}

func TestSchedulerStaleTimerYieldsSlot(t *testing.T) {
	e := newTestEngine(nil)

	var mu sync.Mutex
	count := 0
	s := NewScheduler(e, 30*time.Millisecond, func(string, Result) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	s.Edit("field-1", "alice@example.com", allOn())

	// Simulate the timer firing concurrently with a reschedule: by the time
	// its callback runs, the element's slot belongs to another timer. The
	// old callback must back off without scanning or touching the slot.
	decoy := time.AfterFunc(time.Hour, func() {})
	defer decoy.Stop()
	s.mu.Lock()
	s.pending["field-1"] = decoy
	s.mu.Unlock()

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	n := count
	mu.Unlock()
	if n != 0 {
		t.Errorf("%d deliveries from a superseded timer, want 0", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending["field-1"] != decoy {
		t.Error("superseded timer removed the current timer's entry")
	}
}
