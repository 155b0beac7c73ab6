package util

import (
	"strings"
	"unicode"
)

// SanitizeInput trims surrounding whitespace and drops control characters
// from user-supplied profile text.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' {
			return -1
		}
		return r
	}, s)
}

// SanitizeOptional applies SanitizeInput to an optional value, keeping nil as nil.
func SanitizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := SanitizeInput(*s)
	return &v
}
