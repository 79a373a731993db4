package extract

import (
	"regexp"
	"strings"
)

// AspectHint is appended to prompts that do not already ask for a square image.
const AspectHint = "Square image, 1:1 aspect ratio, centered composition."

var (
	boldMarkup    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicMarkup  = regexp.MustCompile(`\*([^*]+)\*`)
	leadingBullet = regexp.MustCompile(`^\s*[*\-•]\s*`)
)

// Normalize strips emphasis markup, joins lines into one paragraph, drops a
// leading bullet and appends AspectHint when no aspect ratio is present.
func Normalize(raw string) string {
	s := boldMarkup.ReplaceAllString(raw, "$1")
	s = italicMarkup.ReplaceAllString(s, "$1")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	s = strings.Join(lines, " ")
	s = leadingBullet.ReplaceAllString(s, "")

	if !strings.Contains(s, "1:1") && !strings.Contains(strings.ToLower(s), "square") {
		s = strings.TrimRight(s, ".") + ". " + AspectHint
	}
	return strings.TrimSpace(s)
}
