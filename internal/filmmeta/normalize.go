// Package filmmeta looks up film runtimes for vendors that do not print them.
package filmmeta

import (
	"regexp"
	"strings"
)

// Format tags, longest first so "(IMAX 3D)" is not left as "(IMAX".
var formatTags = []string{
	"(Audio Described)",
	"(Dolby Atmos)",
	"(Subtitled)",
	"(Subtitles)",
	"(IMAX 3D)",
	"(ScreenX)",
	"(IMAX)",
	"(4DX)",
	"(3D)",
	"(2D)",
}

var editionMarkers = []string{
	" - Extended Edition",
	" - Director's Cut",
	" - 4K Restoration",
	" - 4K Remaster",
	" (Re-release)",
	" - Re-release",
}

var anniversary = regexp.MustCompile(`(?i)\s*-?\s*\d+(st|nd|rd|th) Anniversary( Edition)?$`)

var programmePrefixes = []string{
	"Members' Screening:",
	"Relaxed Screening:",
	"Discover Tuesdays:",
	"Autism Friendly:",
	"Parent & Baby:",
	"Silver Screen:",
	"Toddler Time:",
	"Big Scream:",
	"Kids Club:",
	"Preview:",
}

// Normalize strips vendor noise from a film title so it can be used as a
// search term. Rules run in a fixed order: bonus qualifiers, format tags,
// edition markers, then programme prefixes. Matching is case-insensitive.
func Normalize(title string) string {
	s := strings.TrimSpace(title)

	if i := strings.Index(s, " + "); i > 0 {
		s = strings.TrimSpace(s[:i])
	}

	for trimmed := true; trimmed; {
		trimmed = false
		for _, tag := range formatTags {
			if hasSuffixFold(s, tag) {
				s = strings.TrimSpace(s[:len(s)-len(tag)])
				trimmed = true
				break
			}
		}
	}

	for _, marker := range editionMarkers {
		if hasSuffixFold(s, marker) {
			s = strings.TrimSpace(s[:len(s)-len(marker)])
			break
		}
	}
	s = strings.TrimSpace(anniversary.ReplaceAllString(s, ""))

	for _, prefix := range programmePrefixes {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}

	return s
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
