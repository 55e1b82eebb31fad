package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// SanitizeInput keeps letters, digits, underscores, whitespace and hyphens.
func SanitizeInput(s string) string {
	return strings.TrimSpace(unsafeChars.ReplaceAllString(s, ""))
}

// Truncate cuts s to at most n runes, appending "..." when it was cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
