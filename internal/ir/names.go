package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims surrounding whitespace, collapses internal runs of
// whitespace and applies Unicode NFC so visually identical names compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// NameKey is the case-insensitive lookup key for a normalized name.
func NameKey(s string) string {
	return strings.ToLower(NormalizeName(s))
}
