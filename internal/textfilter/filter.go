// Package textfilter strips site boilerplate from OCR output.
package textfilter

import (
	"regexp"
	"strings"
)

var (
	copyrightPattern  = regexp.MustCompile(`(?i)(copyright|©)\s*\d{4}\s*Mike\s*Krahulik\s*(?:&|and)\s*Jerry\s*Holkins`)
	siteURLPattern    = regexp.MustCompile(`(?i)www\.penny-arcade\.com`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Clean removes the copyright notice and the canonical site URL, then collapses runs
// of whitespace to single spaces and trims. Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	if text == "" {
		return ""
	}
	cleaned := text
	// Removing one match can splice a new one together, so strip to a fixed point.
	for copyrightPattern.MatchString(cleaned) || siteURLPattern.MatchString(cleaned) {
		cleaned = copyrightPattern.ReplaceAllString(cleaned, "")
		cleaned = siteURLPattern.ReplaceAllString(cleaned, "")
	}
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
