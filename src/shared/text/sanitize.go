package text

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Sanitize strips markup from user supplied text and caps it at limit runes.
// A limit <= 0 disables truncation.
func Sanitize(value string, limit int) string {
	cleaned := strict.Sanitize(strings.TrimSpace(value))
	cleaned = html.UnescapeString(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if limit > 0 {
		cleaned = Truncate(cleaned, limit)
	}
	return cleaned
}

// Truncate cuts value to limit runes, ending with an ellipsis when shortened.
func Truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
