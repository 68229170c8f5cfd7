// Package validate — entropy.go
//
// Shannon-entropy gates for the secret-style detectors. A prefixed API key,
// a long hex digest or a long base64 blob only counts as a secret when its
// character distribution is close enough to random; structured or repeated
// text ("aaaa...", "deadbeef" padding) is rejected here rather than by the
// pattern.
package validate

import "math"

// Entropy thresholds, in bits per character, one per detector family.
// Each is independently tunable via EntropyThresholds.
const (
	DefaultTokenEntropy  = 3.5 // generic high-entropy token (api keys)
	DefaultBase64Entropy = 4.0 // long base64 blobs (max achievable ~6.0)
	DefaultHexEntropy    = 3.0 // long hex digests (max achievable 4.0)
)

// EntropyThresholds bundles the three per-family minimums.
type EntropyThresholds struct {
	Token  float64
	Base64 float64
	Hex    float64
}

// DefaultEntropyThresholds returns the tuned defaults.
func DefaultEntropyThresholds() EntropyThresholds {
	return EntropyThresholds{
		Token:  DefaultTokenEntropy,
		Base64: DefaultBase64Entropy,
		Hex:    DefaultHexEntropy,
	}
}

// Shannon computes the Shannon entropy of s in bits per character over its
// byte distribution. Empty input has zero entropy.
func Shannon(s string) float64 {
	if s == "" {
		return 0
	}
	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	n := float64(len(s))
	var h float64
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// TokenEntropy reports whether s clears the generic token threshold.
func (t EntropyThresholds) TokenEntropy(s string) bool {
	return Shannon(s) >= t.Token
}

// Base64Entropy reports whether s clears the long-base64 threshold.
func (t EntropyThresholds) Base64Entropy(s string) bool {
	return Shannon(s) >= t.Base64
}

// HexEntropy reports whether s clears the long-hex threshold.
func (t EntropyThresholds) HexEntropy(s string) bool {
	return Shannon(s) >= t.Hex
}
