// Package scan — table.go
//
// The detector table is the fixed, curated configuration driving the
// pattern scanner: one entry per detector, in a deterministic order.
// Entries are built once at startup and never mutated; runtime
// enable/disable happens through the label set passed to Scan.
package scan

import (
	"regexp"

	"pii-span-detector/internal/span"
	"pii-span-detector/internal/validate"
)

// Validator checks a raw match. match is the full matched text, group the
// first captured group ("" when the pattern has none).
type Validator func(match, group string) bool

// Detector is one immutable entry of the detector table.
type Detector struct {
	Name    string
	Pattern *regexp.Regexp

	// Validate rejects structurally invalid matches. Nil means every
	// pattern hit is accepted.
	Validate Validator

	// OutputLabel overrides the emitted label; empty means the detector
	// name is also its label.
	OutputLabel span.Label

	// Relabel, when set, may upgrade the label per match (e.g. public →
	// private IP). It runs after Validate accepts the match.
	Relabel func(match string) span.Label

	// EmitGroup restricts the emitted span to the first capture group
	// instead of the full match (used by secret detectors whose pattern
	// includes a non-sensitive key prefix).
	EmitGroup bool
}

// Label returns the label this detector emits before any Relabel upgrade.
func (d Detector) Label() span.Label {
	if d.OutputLabel != "" {
		return d.OutputLabel
	}
	return span.Label(d.Name)
}

type tableSpec struct {
	name     string
	expr     string
	validate Validator
	output   span.Label
	relabel  func(string) span.Label
	group    bool
}

// DefaultTable builds the fixed detector table with the given entropy
// thresholds. Order is significant and stable: it is the scan order.
func DefaultTable(entropy validate.EntropyThresholds) []Detector {
	specs := []tableSpec{
		{
			name: "EMAIL",
			expr: `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		},
		{
			name: "URL",
			expr: `\bhttps?://[^\s<>"')]+`,
		},
		{
			name: "PHONE",
			expr: `(\+?[0-9]{1,3}[\-.\s]?)?\(?[0-9]{3}\)?[\-.\s]?[0-9]{3,4}[\-.\s]?[0-9]{4}\b`,
		},
		{
			name: "SSN",
			expr: `\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`,
		},
		{
			name:     "CARD",
			expr:     `\b(?:[0-9][ \-]?){12,18}[0-9]\b`,
			validate: func(m, _ string) bool { return validate.Luhn(m) },
		},
		{
			name:     "NRIC",
			expr:     `\b[STFGMstfgm][0-9]{7}[A-Za-z]\b`,
			validate: func(m, _ string) bool { return validate.NRIC(m) },
		},
		{
			name:     "IBAN",
			expr:     `\b[A-Z]{2}[0-9]{2}[A-Za-z0-9]{10,30}\b`,
			validate: func(m, _ string) bool { return validate.IBAN(m) },
		},
		{
			name:     "IPV4",
			expr:     `\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`,
			validate: func(m, _ string) bool { return validate.IP(m) },
			output:   span.LabelIP,
			relabel:  classifyIPLabel,
		},
		{
			name:     "IPV6",
			expr:     `\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`,
			validate: func(m, _ string) bool { return validate.IP(m) },
			output:   span.LabelIP,
			relabel:  classifyIPLabel,
		},
		{
			name:     "JWT",
			expr:     `\b[A-Za-z0-9_\-]{4,}\.[A-Za-z0-9_\-]{4,}\.[A-Za-z0-9_\-]{4,}\b`,
			validate: func(m, _ string) bool { return validate.JWT(m) },
		},
		{
			name:     "API_KEY",
			expr:     `(?i)(?:api[_\-]?key|token|secret|bearer|passwd|password)[\s"':=]+([A-Za-z0-9_\-.]{20,})`,
			validate: func(_, g string) bool { return entropy.TokenEntropy(g) },
			output:   span.LabelSecret,
			group:    true,
		},
		{
			name:     "HEX_TOKEN",
			expr:     `\b[0-9a-fA-F]{32,}\b`,
			validate: func(m, _ string) bool { return entropy.HexEntropy(m) },
			output:   span.LabelSecret,
		},
		{
			name:     "BASE64_TOKEN",
			expr:     `[A-Za-z0-9+/]{24,}={0,2}`,
			validate: func(m, _ string) bool { return entropy.Base64Entropy(m) },
			output:   span.LabelSecret,
		},
	}

	table := make([]Detector, 0, len(specs))
	for _, s := range specs {
		re, err := regexp.Compile(s.expr)
		if err != nil {
			// A broken table entry loses one detector, never the scan.
			continue
		}
		table = append(table, Detector{
			Name:        s.name,
			Pattern:     re,
			Validate:    s.validate,
			OutputLabel: s.output,
			Relabel:     s.relabel,
			EmitGroup:   s.group,
		})
	}
	return table
}

func classifyIPLabel(m string) span.Label {
	if validate.ClassifyIP(m) == validate.IPPrivate {
		return span.LabelIPPrivate
	}
	return span.LabelIP
}
