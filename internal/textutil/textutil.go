package textutil

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	nonAction  = regexp.MustCompile(`[^A-Z0-9_]+`)
)

// Truncate cuts text to at most budget characters, deterministically. It
// backtracks to the last word boundary so a cut never splits a name in half.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}

	cut := budget
	for cut > 0 && !unicode.IsSpace(runes[cut-1]) {
		cut--
	}
	if cut == 0 {
		cut = budget
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n")
}

// CleanText strips HTML entities and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// CanonicalName normalizes an entity name for comparison: lowercased, with
// runs of whitespace collapsed. Two mentions of the same real-world object
// that differ only in casing or spacing compare equal.
func CanonicalName(name string) string {
	collapsed := whitespace.ReplaceAllString(strings.TrimSpace(name), " ")
	return strings.ToLower(collapsed)
}

// CanonicalAction normalizes a free-text verb phrase to the UPPER_SNAKE form
// stored on graph edges, e.g. "rejects " -> "REJECTS",
// "invests in" -> "INVESTS_IN".
func CanonicalAction(action string) string {
	upper := strings.ToUpper(strings.TrimSpace(action))
	upper = whitespace.ReplaceAllString(upper, "_")
	upper = nonAction.ReplaceAllString(upper, "")
	return strings.Trim(upper, "_")
}
