package normalization

import (
	"strings"
)

// Key lowercases s and collapses internal whitespace.
func Key(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Clean trims s and collapses internal whitespace, keeping case.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Ptr returns nil for blank input.
func Ptr(s string) *string {
	s = Clean(s)
	if s == "" {
		return nil
	}
	return &s
}
