// Package strings holds text helpers shared by the console and table renderers.
package strings

import (
	"strings"
)

// DiagnosticMaxLen bounds diagnostics rendered inside table cells.
const DiagnosticMaxLen = 80

// MinTruncateLen is the smallest width Truncate honors. Anything narrower
// leaves no room for content plus the "..." marker.
const MinTruncateLen = 4

// Truncate flattens s to a single line and cuts it to maxLen runes,
// marking the cut with "...". Whitespace runs collapse to one space.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// FirstLine returns the first line of s, marking dropped lines with an ellipsis.
// Process output captured into diagnostics is often multi-line.
func FirstLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimRight(s[:i], "\r") + " …"
	}
	return s
}
