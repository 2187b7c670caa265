package helpers

import (
	"strings"
	"unicode/utf8"
)

// Concatenate multiple strings into one.
func ConcatStrings(values ...string) string {
	var builder strings.Builder

	for _, value := range values {
		builder.WriteString(value)
	}

	return builder.String()
}

// Collapse whitespace runs into single spaces.
func SquashSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// Cut string to limit runes, appending an ellipsis when cut.
func Truncate(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}

	runes := []rune(value)

	return ConcatStrings(strings.TrimSpace(string(runes[:limit])), "…")
}
