package lyrics

import (
	"regexp"
	"strings"
)

var (
	modifiedRe = regexp.MustCompile(`(?i)sped up|nightcore|slowed|reverb`)

	bracketRe = regexp.MustCompile(`[(\[{〔【].*?[)\]}〕】]`)
	featRe    = regexp.MustCompile(`(?i)\b(feat|ft)\..*`)
	dashRe    = regexp.MustCompile(`\s*[-—–]\s*`)
	promoRe   = regexp.MustCompile(`(?i)official video|lyrics|audio`)
	spacesRe  = regexp.MustCompile(`\s+`)
)

// IsModified reports whether the title marks a tempo-altered release.
func IsModified(title string) bool {
	return modifiedRe.MatchString(title)
}

// NormalizeTitle strips annotations that hurt corpus search: bracketed
// sections, featuring credits, dashes, promotional words and tempo keywords.
// When nothing is left the raw title is returned.
func NormalizeTitle(title string) string {
	clean := bracketRe.ReplaceAllString(title, "")
	clean = featRe.ReplaceAllString(clean, "")
	clean = dashRe.ReplaceAllString(clean, " ")
	clean = promoRe.ReplaceAllString(clean, "")
	clean = modifiedRe.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(spacesRe.ReplaceAllString(clean, " "))
	if clean == "" {
		return title
	}
	return clean
}
