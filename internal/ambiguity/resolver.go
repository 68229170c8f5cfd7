// Package ambiguity decides whether a matched text plausibly belongs to
// more than one category and lowers confidence accordingly. Resolve is a
// pure function: same input, same result, no side effects, which keeps it
// testable against literal input/output pairs.
package ambiguity

import (
	"regexp"
	"strings"

	"pii-span-detector/internal/span"
)

// Tier caps the confidence of spans matching an ambiguity rule.
type Tier int

// Confidence tiers. Lower tiers cap harder.
const (
	TierLow    Tier = iota // cap 0.3
	TierMedium             // cap 0.6
)

func (t Tier) cap() float64 {
	if t == TierLow {
		return 0.3
	}
	return 0.6
}

// rule is one entry of the fixed ambiguity table: texts matching Pattern
// might belong to any of Candidates.
type rule struct {
	pattern    *regexp.Regexp
	candidates []span.Label
	tier       Tier
	suggestion string
}

// The fixed ambiguity table. Rules are tested against the matched text
// regardless of which detector produced it.
var rules = []rule{
	{
		// Bare 8-digit number: local phone or ID number.
		pattern:    regexp.MustCompile(`^[0-9]{8}$`),
		candidates: []span.Label{span.LabelPhone, span.LabelNRIC},
		tier:       TierMedium,
		suggestion: "8-digit number: could be a local phone number or an ID number",
	},
	{
		// 9-12 digits, optionally separated: phone, account or ID.
		pattern:    regexp.MustCompile(`^[0-9][0-9 \-]{7,10}[0-9]$`),
		candidates: []span.Label{span.LabelPhone, span.LabelSSN, span.LabelIBAN},
		tier:       TierMedium,
		suggestion: "long digit run: phone, tax ID or account number",
	},
	{
		// 13-19 digits: card or account number.
		pattern:    regexp.MustCompile(`^[0-9][0-9 \-]{11,17}[0-9]$`),
		candidates: []span.Label{span.LabelCard, span.LabelIBAN, span.LabelPhone},
		tier:       TierMedium,
		suggestion: "13-19 digit run: card number or bank account",
	},
	{
		// user@host without a TLD dot: email fragment or URL userinfo.
		// Full addresses with a dotted host are unambiguous and skip this.
		pattern:    regexp.MustCompile(`^[^\s@]+@[^\s@.]+$`),
		candidates: []span.Label{span.LabelEmail, span.LabelURL},
		tier:       TierMedium,
		suggestion: "at-sign form: email address or URL with user info",
	},
	{
		// Short alphanumeric codes: too little structure to trust.
		pattern:    regexp.MustCompile(`^[A-Za-z0-9]{4,6}$`),
		candidates: []span.Label{span.LabelSecret},
		tier:       TierLow,
		suggestion: "short code: weak evidence of a secret",
	},
}

// nricExact matches the unambiguous national-ID format.
var nricExact = regexp.MustCompile(`^[STFGMstfgm][0-9]{7}[A-Za-z]$`)

// Resolution is the output of Resolve.
type Resolution struct {
	Confidence         float64
	PossibleCategories []span.Label
	NeedsUserInput     bool
	Reasoning          string
}

// Resolve tests text against every ambiguity rule, unions the candidate
// categories with the original label, and caps confidence by the lowest
// matched tier. Confidence is never raised above its input value.
// NeedsUserInput is true iff more than one candidate remains and the
// resulting confidence is below 0.8.
func Resolve(text string, label span.Label, confidence float64) Resolution {
	candidates := []span.Label{label}
	conf := confidence
	var reasons []string

	for _, r := range rules {
		if !r.pattern.MatchString(text) {
			continue
		}
		for _, c := range r.candidates {
			candidates = appendUnique(candidates, c)
		}
		if c := r.tier.cap(); c < conf {
			conf = c
		}
		reasons = append(reasons, r.suggestion)
	}

	candidates, conf = refine(text, candidates, conf, confidence)

	return Resolution{
		Confidence:         conf,
		PossibleCategories: candidates,
		NeedsUserInput:     len(candidates) > 1 && conf < 0.8,
		Reasoning:          strings.Join(reasons, "; "),
	}
}

// refine applies the deterministic context post-pass over the raw rule
// matches. originalConf is the pre-cap confidence, restored only when the
// unambiguous national-ID format collapses the candidate set.
func refine(text string, candidates []span.Label, conf, originalConf float64) ([]span.Label, float64) {
	// Card numbers cannot be this short.
	if len(text) <= 4 {
		candidates = remove(candidates, span.LabelCard)
	}

	// The national-ID format is unambiguous: collapse unconditionally.
	if nricExact.MatchString(text) {
		return []span.Label{span.LabelNRIC}, originalConf
	}

	// user@host.tld is an email, not a URL.
	if contains(candidates, span.LabelEmail) && contains(candidates, span.LabelURL) &&
		strings.Contains(text, "@") && strings.Contains(text, ".") {
		candidates = remove(candidates, span.LabelURL)
	}

	return candidates, conf
}

func appendUnique(list []span.Label, l span.Label) []span.Label {
	if contains(list, l) {
		return list
	}
	return append(list, l)
}

func contains(list []span.Label, l span.Label) bool {
	for _, x := range list {
		if x == l {
			return true
		}
	}
	return false
}

func remove(list []span.Label, l span.Label) []span.Label {
	out := list[:0]
	for _, x := range list {
		if x != l {
			out = append(out, x)
		}
	}
	return out
}

// Apply runs Resolve over a span and writes the result back, appending
// suffix (if any) to the reasoning. The span's confidence only ever moves
// down.
func Apply(s *span.Span, suffix string) {
	res := Resolve(s.Text, s.Label, s.Confidence)
	if res.Confidence < s.Confidence {
		s.Confidence = res.Confidence
	}
	if len(res.PossibleCategories) > 1 {
		s.PossibleCategories = res.PossibleCategories
	}
	s.NeedsUserInput = res.NeedsUserInput
	reasoning := res.Reasoning
	if suffix != "" {
		if reasoning != "" {
			reasoning += "; "
		}
		reasoning += suffix
	}
	s.Reasoning = reasoning
}
