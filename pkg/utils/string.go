// Package utils provides small string helpers shared by the normalizer
// and the report formatter.
package utils

import "strings"

// NormalizeWhitespace trims the string and collapses internal runs of
// whitespace into single spaces.
func NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// Truncate shortens a string to maxLength runes, appending an ellipsis
// when anything was cut.
func Truncate(str string, maxLength int) string {
	runes := []rune(str)
	if len(runes) <= maxLength {
		return str
	}

	return string(runes[:maxLength]) + "..."
}
