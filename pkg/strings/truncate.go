// Package strings holds small text helpers shared by the control plane
// client and the command line output.
package strings

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis marks a cut.
const Ellipsis = "..."

// DefaultValueMaxLen is the widest value shown in a table cell.
const DefaultValueMaxLen = 100

// Truncate cuts s to at most maxLen runes, marking the cut with "...".
// When maxLen leaves no room for the marker, s is cut without one.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= len(Ellipsis) {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-len(Ellipsis)]) + Ellipsis
}

// SingleLine collapses all whitespace runs, newlines included, into single
// spaces and truncates the result to maxLen runes. Engine output in run
// summaries spans several lines; tables need one.
func SingleLine(s string, maxLen int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), maxLen)
}
