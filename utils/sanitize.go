package utils

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// User text is stored and served as plain text, so every tag is stripped.
var sanitizer = bluemonday.StrictPolicy()

// Sanitize strips markup from input and returns plain text. Entities produced
// by the policy are decoded again so "&" and "<" survive a round trip.
func Sanitize(input string) string {
	return html.UnescapeString(sanitizer.Sanitize(input))
}

// CleanText sanitizes and trims input and reports the length in characters of the
// result. Emptiness and length limits apply to the text that will be stored.
func CleanText(input string) (string, int) {
	clean := strings.TrimSpace(Sanitize(input))
	return clean, utf8.RuneCountInString(clean)
}
