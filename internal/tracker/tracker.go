// Package tracker remembers, per input field, which spans the user has
// already acted upon, so placeholder data and intentionally removed text
// are not re-flagged on the next scan of the same field.
//
// The safety invariant overrides every suppression policy: if a candidate
// span's text equals a previously recorded original sensitive value and
// the field has been edited since the action, the user has restored the
// data and the span must be re-flagged. Restored sensitive text is never
// silently hidden.
package tracker

import (
	"time"

	"pii-span-detector/internal/logger"
	"pii-span-detector/internal/span"
)

// Action is a user decision on a detected span.
type Action string

// User actions the tracker records.
const (
	ActionReplace Action = "replace"
	ActionRemove  Action = "remove"
	ActionIgnore  Action = "ignore"
	ActionSkip    Action = "skip"
)

// ValidAction reports whether a is one of the known actions.
func ValidAction(a Action) bool {
	switch a {
	case ActionReplace, ActionRemove, ActionIgnore, ActionSkip:
		return true
	}
	return false
}

// Entry records one acted-upon span.
type Entry struct {
	OriginalText string     `json:"originalText"`
	Label        span.Label `json:"label"`
	Action       Action     `json:"action"`
	Replacement  string     `json:"replacement,omitempty"` // fake value substituted on replace
	Timestamp    time.Time  `json:"timestamp"`
}

// Record is the per-element memory.
type Record struct {
	ElementID        string    `json:"elementId"`
	Entries          []Entry   `json:"entries"`
	LastObservedText string    `json:"lastObservedText"` // field text right after the last action
	LastUpdated      time.Time `json:"lastUpdated"`
}

// Policy controls which suppressions Filter applies.
type Policy struct {
	// SkipRemoved suppresses candidates matching the original text of a
	// removed span, while the field is unchanged since the removal.
	SkipRemoved bool

	// SkipReplaced suppresses candidates matching known fake replacement
	// values.
	SkipReplaced bool
}

// DefaultTTL is the inactivity window after which a record is pruned.
const DefaultTTL = 30 * time.Minute

// Tracker owns the processed-content records. The store is injected so
// tests run against memory and production against bbolt.
type Tracker struct {
	store Store
	log   *logger.Logger
	now   func() time.Time // test hook
}

// New creates a Tracker over the given store.
func New(store Store, log *logger.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logger.New("TRACKER", "info")
	}
	return &Tracker{store: store, log: log, now: time.Now}
}

// Record appends one entry per span for a user action on elementID.
// fieldText is the element's content after the action was applied; fake
// maps labels to the replacement values that were substituted in (used
// only for replace actions).
func (t *Tracker) Record(elementID, fieldText string, spans []span.Span, action Action, fake map[span.Label]string) {
	if elementID == "" || len(spans) == 0 || !ValidAction(action) {
		return
	}
	now := t.now()
	rec, ok := t.store.Get(elementID)
	if !ok {
		rec = Record{ElementID: elementID}
	}
	for _, s := range spans {
		e := Entry{
			OriginalText: s.Text,
			Label:        s.Label,
			Action:       action,
			Timestamp:    now,
		}
		if action == ActionReplace {
			e.Replacement = fake[s.Label]
		}
		rec.Entries = append(rec.Entries, e)
	}
	rec.LastObservedText = fieldText
	rec.LastUpdated = now
	t.store.Put(elementID, rec)
	t.log.Debugf("record_action", "%s: %d span(s) %s", elementID, len(spans), action)
}

// Filter drops candidate spans the user has already handled. currentText
// is the element's present content; it is compared against the snapshot
// taken at action time to distinguish suppression from restoration.
func (t *Tracker) Filter(elementID string, candidates []span.Span, currentText string, policy Policy) []span.Span {
	if elementID == "" || len(candidates) == 0 {
		return candidates
	}
	rec, ok := t.store.Get(elementID)
	if !ok {
		return candidates
	}
	unchanged := currentText == rec.LastObservedText

	// Callers keep using their candidate slice after filtering; never
	// filter in place.
	out := make([]span.Span, 0, len(candidates))
	for _, c := range candidates {
		if t.suppress(c, rec, unchanged, policy) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// suppress decides whether one candidate is already handled.
func (t *Tracker) suppress(c span.Span, rec Record, unchanged bool, policy Policy) bool {
	for _, e := range rec.Entries {
		switch e.Action {
		case ActionIgnore, ActionSkip:
			// The user declined this exact finding; honor it while the
			// record lives.
			if c.Text == e.OriginalText && c.Label == e.Label {
				return true
			}
		case ActionReplace:
			if policy.SkipReplaced && e.Replacement != "" && c.Text == e.Replacement {
				return true
			}
			// Candidate equal to the replaced original means the user
			// retyped the sensitive value: always re-flag.
		case ActionRemove:
			if policy.SkipRemoved && unchanged && c.Text == e.OriginalText {
				// Unedited field: a surviving occurrence of the removed
				// value, not a restoration.
				return true
			}
			// Edited field + exact original text = restoration. Re-flag.
		}
	}
	return false
}

// Forget drops the record for elementID, e.g. when the element is removed
// from the page.
func (t *Tracker) Forget(elementID string) {
	t.store.Delete(elementID)
}

// Prune removes records idle longer than maxIdle and returns how many
// were dropped.
func (t *Tracker) Prune(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		maxIdle = DefaultTTL
	}
	cutoff := t.now().Add(-maxIdle)
	var stale []string
	t.store.Each(func(id string, rec Record) bool {
		if rec.LastUpdated.Before(cutoff) {
			stale = append(stale, id)
		}
		return true
	})
	for _, id := range stale {
		t.store.Delete(id)
	}
	if len(stale) > 0 {
		t.log.Infof("prune", "dropped %d idle record(s)", len(stale))
	}
	return len(stale)
}

// Close releases the underlying store.
func (t *Tracker) Close() error { return t.store.Close() }
