package text

import (
	"regexp"
	"strings"
)

var (
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^)\s]+\)`)
	headingPattern    = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`)
	bulletPattern     = regexp.MustCompile(`(?m)^[ \t]*[-*•][ \t]+`)
	emphasisPattern   = regexp.MustCompile(`\*{1,3}|_{2,3}`)
	referencePattern  = regexp.MustCompile(`\[\d+(?:[,\s–-]+\d+)*\]|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	spacedPunctuation = regexp.MustCompile(` ([.,;:!?])`)
)

var typography = strings.NewReplacer(
	"—", "-",
	"–", "-",
	"‒", "-",
	"…", "...",
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// Clean strips the markup a language model tends to leave in a script and a
// narrator would otherwise read aloud: headings, list bullets, emphasis, link
// targets and numeric citation markers. Typographic quotes and dashes become
// plain ASCII and whitespace runs collapse to a single space.
func Clean(script string) string {
	cleaned := linkPattern.ReplaceAllString(script, "$1")
	cleaned = headingPattern.ReplaceAllString(cleaned, "")
	cleaned = bulletPattern.ReplaceAllString(cleaned, "")
	cleaned = emphasisPattern.ReplaceAllString(cleaned, "")
	cleaned = referencePattern.ReplaceAllString(cleaned, "")
	cleaned = typography.Replace(cleaned)
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = spacedPunctuation.ReplaceAllString(cleaned, "$1")

	return strings.TrimSpace(cleaned)
}
