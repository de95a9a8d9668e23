// Package stringutil holds small text helpers shared by the engines and the CLI.
package stringutil

import "strings"

// SingleLine trims s and folds line breaks into single spaces.
func SingleLine(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\r", "")
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " ")
}

// Ellipsis folds s onto one line and shortens it to at most maxLength runes,
// ending in "..." when something was cut. Below four runes there is no room
// for the marker and s is simply cut.
func Ellipsis(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	r := []rune(SingleLine(s))
	if len(r) <= maxLength {
		return string(r)
	}
	if maxLength <= 3 {
		return string(r[:maxLength])
	}
	return string(r[:maxLength-3]) + "..."
}
