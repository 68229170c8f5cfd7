// Package span defines the data model shared by every detector stage:
// labeled character ranges over the input text, their provenance, and the
// ordering and overlap rules the rest of the pipeline relies on.
package span

import (
	"fmt"
	"sort"
)

// Label classifies the kind of sensitive data a span covers.
type Label string

// Detection labels produced by the pattern scanner and the fuzzy detector.
const (
	LabelEmail     Label = "EMAIL"
	LabelPhone     Label = "PHONE"
	LabelCard      Label = "CARD"
	LabelNRIC      Label = "NRIC"
	LabelSSN       Label = "SSN"
	LabelIBAN      Label = "IBAN"
	LabelIP        Label = "IP"
	LabelIPPrivate Label = "IP_PRIVATE"
	LabelJWT       Label = "JWT"
	LabelSecret    Label = "SECRET"
	LabelURL       Label = "URL"
	LabelName      Label = "NAME"
	LabelAddress   Label = "ADDRESS"
)

// AllLabels lists every label the engine can emit, in a fixed order.
var AllLabels = []Label{
	LabelEmail, LabelPhone, LabelCard, LabelNRIC, LabelSSN, LabelIBAN,
	LabelIP, LabelIPPrivate, LabelJWT, LabelSecret, LabelURL,
	LabelName, LabelAddress,
}

// FuzzyOnlyLabels are categories only the fuzzy detector can produce;
// no fixed pattern exists for them.
var FuzzyOnlyLabels = []Label{LabelName, LabelAddress}

// Known reports whether l is one of the fixed detection labels.
func Known(l Label) bool {
	for _, k := range AllLabels {
		if k == l {
			return true
		}
	}
	return false
}

// Source records which stage produced a span.
type Source string

// Span provenance tags.
const (
	SourcePattern       Source = "pattern-scanner"
	SourceFuzzy         Source = "fuzzy-detector"
	SourceFuzzyFallback Source = "fuzzy-fallback"
)

// PatternConfidence is the fixed confidence assigned to validated
// pattern-scanner matches.
const PatternConfidence = 0.95

// Span is one detected sensitive item: a half-open [Start, End) character
// range into the original input text.
//
// Confidence is in [0,1]. PossibleCategories and NeedsUserInput are set by
// the ambiguity resolver when the text plausibly belongs to more than one
// category; consumers must check NeedsUserInput before finalizing a
// redaction action.
type Span struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text"`
	Source     Source  `json:"source"`

	PossibleCategories []Label `json:"possibleCategories,omitempty"`
	NeedsUserInput     bool    `json:"needsUserInput,omitempty"`
	Reasoning          string  `json:"reasoning,omitempty"`
}

// Ambiguous reports whether the span still has more than one candidate
// category after resolution.
func (s Span) Ambiguous() bool {
	return len(s.PossibleCategories) > 1
}

// Overlaps reports whether two spans share at least one character.
func (s Span) Overlaps(o Span) bool {
	return !(s.End <= o.Start || o.End <= s.Start)
}

// CheckBounds verifies the span's offsets against the text it was produced
// from and that Text matches the slice it claims to cover.
func (s Span) CheckBounds(text string) error {
	if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
		return fmt.Errorf("span %s [%d,%d) out of bounds for text of length %d",
			s.Label, s.Start, s.End, len(text))
	}
	if got := text[s.Start:s.End]; got != s.Text {
		return fmt.Errorf("span %s [%d,%d) text mismatch: recorded %q, slice %q",
			s.Label, s.Start, s.End, s.Text, got)
	}
	return nil
}

// Reslice recomputes Text from the current offsets. Span text is never
// cached across text mutations; callers re-derive it after any offset
// adjustment.
func (s *Span) Reslice(text string) {
	if s.Start >= 0 && s.End <= len(text) && s.Start < s.End {
		s.Text = text[s.Start:s.End]
	}
}

// SortSpans orders spans by Start ascending, ties broken by End ascending.
// This is the order the UI contract depends on.
func SortSpans(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
}
