// Package scan — matcher.go
//
// matchIter yields successive non-overlapping matches of one pattern over
// the input text. Matching runs over the full text in one pass so anchors
// and boundary assertions see their real left context; zero-width matches
// are dropped here, once, instead of in every detector.
package scan

import "regexp"

// match is one raw pattern hit: full-match offsets plus the offsets of the
// first capture group, if the pattern has one (-1 otherwise).
type match struct {
	start, end           int
	groupStart, groupEnd int
}

// matchIter walks all matches of a pattern over a text, left to right.
type matchIter struct {
	locs [][]int
	idx  int
}

func newMatchIter(re *regexp.Regexp, text string) *matchIter {
	return &matchIter{locs: re.FindAllStringSubmatchIndex(text, -1)}
}

// next returns the next non-empty match and true, or a zero match and false
// when the text is exhausted.
func (it *matchIter) next() (match, bool) {
	for it.idx < len(it.locs) {
		loc := it.locs[it.idx]
		it.idx++
		if loc[1] == loc[0] {
			// Zero-width match, nothing to flag.
			continue
		}
		m := match{
			start:      loc[0],
			end:        loc[1],
			groupStart: -1,
			groupEnd:   -1,
		}
		if len(loc) >= 4 && loc[2] >= 0 {
			m.groupStart = loc[2]
			m.groupEnd = loc[3]
		}
		return m, true
	}
	return match{}, false
}
