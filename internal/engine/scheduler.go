// Package engine — scheduler.go
//
// Scheduler coalesces bursts of edit events into one detection cycle per
// quiet period (debouncing) and routes results to a delivery callback.
// Results of cycles superseded by newer edits are dropped here; the
// callback only ever sees the freshest result for an element.
package engine

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before an edit burst triggers a scan.
const DefaultDebounce = 250 * time.Millisecond

// Scheduler debounces edit events per element.
type Scheduler struct {
	engine  *Engine
	delay   time.Duration
	deliver func(elementID string, res Result)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewScheduler creates a Scheduler delivering results via deliver.
// A non-positive delay uses DefaultDebounce.
func NewScheduler(e *Engine, delay time.Duration, deliver func(string, Result)) *Scheduler {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if deliver == nil {
		deliver = func(string, Result) {}
	}
	return &Scheduler{
		engine:  e,
		delay:   delay,
		deliver: deliver,
		pending: make(map[string]*time.Timer),
	}
}

// Edit registers an edit event for an element. Earlier pending scans for
// the same element are rescheduled; after the quiet period one cycle runs
// with the latest text.
func (s *Scheduler) Edit(elementID, text string, prefs Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.pending[elementID]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if s.pending[elementID] != t {
			// A newer edit rescheduled this element after the timer fired
			// but before Stop; its cycle owns the slot now.
			s.mu.Unlock()
			return
		}
		delete(s.pending, elementID)
		s.mu.Unlock()

		res, err := s.engine.ScanText(context.Background(), Request{
			ElementID: elementID,
			Text:      text,
			Prefs:     prefs,
		})
		if err != nil || res.Superseded {
			return // abandoned or stale; nothing to deliver
		}
		s.deliver(elementID, res)
	})
	s.pending[elementID] = t
}

// Blur cancels any pending or in-flight scan for the element without
// touching its history.
func (s *Scheduler) Blur(elementID string) {
	s.mu.Lock()
	if t, ok := s.pending[elementID]; ok {
		t.Stop()
		delete(s.pending, elementID)
	}
	s.mu.Unlock()
	s.engine.Cancel(elementID)
}

// Remove cancels pending work and drops all engine state for the element.
func (s *Scheduler) Remove(elementID string) {
	s.mu.Lock()
	if t, ok := s.pending[elementID]; ok {
		t.Stop()
		delete(s.pending, elementID)
	}
	s.mu.Unlock()
	s.engine.Remove(elementID)
}
