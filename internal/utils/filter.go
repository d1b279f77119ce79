package utils

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// IsAllowedQueryRune reports whether r may appear in a query.
// Printable runes and ordinary whitespace pass; control and format runes do not.
func IsAllowedQueryRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsPrint(r) || r == ' ' || r == '\t'
}

// ContainsDisallowed reports whether s has a rune rejected by IsAllowedQueryRune.
func ContainsDisallowed(s string) bool {
	for _, r := range s {
		if !IsAllowedQueryRune(r) {
			return true
		}
	}
	return false
}

// CheckQuery validates a raw query string before it reaches the engine.
// It returns an empty string when s is acceptable, or the reason it is not.
// maxRunes of zero or less disables the length check.
func CheckQuery(s string, maxRunes int) string {
	if !utf8.ValidString(s) {
		return "query is not valid UTF-8"
	}
	if ContainsDisallowed(s) {
		return "query contains disallowed characters"
	}
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		return fmt.Sprintf("query exceeds maximum length of %d characters", maxRunes)
	}
	return ""
}

// IsRepetitive checks if a string consists of a single character repeated
// three or more times, e.g. "aaa".
func IsRepetitive(s string) bool {
	if utf8.RuneCountInString(s) <= 2 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			return false
		}
	}
	return true
}
