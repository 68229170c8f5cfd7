// Package validate holds the structural validators the pattern scanner runs
// on raw matches before a span is emitted. Every validator is a pure
// predicate over the matched string; none keeps state.
package validate

import (
	"encoding/base64"
	"net/netip"
	"strings"
)

// Luhn reports whether the digits in s form a valid payment card number.
// Non-digit characters (spaces, dashes) are ignored. At least 13 digits are
// required; the checksum must be congruent to 0 mod 10.
func Luhn(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// NRIC checksum alphabets, indexed by weighted digit sum mod 11.
const (
	nricAlphabetST  = "JZIHGFEDCBA"
	nricAlphabetFGM = "XWUTRQPNMLK"
)

var nricWeights = [7]int{2, 7, 6, 5, 4, 3, 2}

// NRIC reports whether s is a structurally valid Singapore-style national
// ID: a prefix letter from STFGM, seven digits, and a checksum letter. The
// checksum is the weighted digit sum (weights 2,7,6,5,4,3,2), plus 4 for
// the T/G/M series, taken mod 11 and used to index the series alphabet.
func NRIC(s string) bool {
	if len(s) != 9 {
		return false
	}
	prefix := s[0] &^ 0x20 // uppercase
	var alphabet string
	offset := 0
	switch prefix {
	case 'S':
		alphabet = nricAlphabetST
	case 'T':
		alphabet = nricAlphabetST
		offset = 4
	case 'F':
		alphabet = nricAlphabetFGM
	case 'G', 'M':
		alphabet = nricAlphabetFGM
		offset = 4
	default:
		return false
	}
	sum := offset
	for i := 0; i < 7; i++ {
		c := s[i+1]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * nricWeights[i]
	}
	want := alphabet[sum%11]
	return s[8]&^0x20 == want
}

// IPClass is the result of classifying a syntactically valid IP address.
type IPClass int

// IP address classifications.
const (
	IPInvalid IPClass = iota
	IPPublic
	IPPrivate // RFC 1918 ranges, IPv6 fc00::/7, loopback, link-local
)

// ClassifyIP parses s as an IPv4 dotted quad or an IPv6 colon-hex address
// and classifies it. Private and otherwise reserved addresses are reported
// as IPPrivate so the caller can upgrade the span label.
func ClassifyIP(s string) IPClass {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return IPInvalid
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		return IPPrivate
	}
	return IPPublic
}

// IP reports whether s parses as an IPv4 or IPv6 address at all.
func IP(s string) bool {
	return ClassifyIP(s) != IPInvalid
}

// JWT reports whether s has the shape of a signed JSON Web Token: exactly
// two base64url-decodable segments (header, payload) followed by a
// signature segment.
func JWT(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[2] == "" {
		return false
	}
	for _, seg := range parts[:2] {
		if !decodableBase64URL(seg) {
			return false
		}
	}
	return true
}

func decodableBase64URL(seg string) bool {
	if seg == "" {
		return false
	}
	if pad := len(seg) % 4; pad != 0 {
		seg += strings.Repeat("=", 4-pad)
	}
	_, err := base64.URLEncoding.DecodeString(seg)
	return err == nil
}

// IBAN reports whether s is a structurally valid IBAN-style bank account
// number: two letters, two digits, then an alphanumeric body, passing the
// ISO 7064 mod-97 check. The check moves the first four characters to the
// end, maps letters to two-digit numbers (A=10..Z=35), and reduces the
// resulting digit string mod 97 incrementally so arbitrary lengths never
// overflow. The remainder must be 1.
func IBAN(s string) bool {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if len(s) < 8 || len(s) > 34 {
		return false
	}
	if !isLetter(s[0]) || !isLetter(s[1]) || !isDigit(s[2]) || !isDigit(s[3]) {
		return false
	}
	rearranged := s[4:] + s[:4]
	var digits strings.Builder
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		switch {
		case isDigit(c):
			digits.WriteByte(c)
		case isLetter(c):
			n := int(c-'A') + 10
			digits.WriteByte(byte('0' + n/10))
			digits.WriteByte(byte('0' + n%10))
		default:
			return false
		}
	}
	// Incremental mod 97 over 7-digit windows.
	d := digits.String()
	rem := 0
	for len(d) > 0 {
		take := 7
		if take > len(d) {
			take = len(d)
		}
		window := d[:take]
		d = d[take:]
		n := rem
		for i := 0; i < len(window); i++ {
			n = n*10 + int(window[i]-'0')
		}
		rem = n % 97
	}
	return rem == 1
}

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
