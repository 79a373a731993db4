package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	bananaMarker   = regexp.MustCompile(`(?i)(?:🍌\s*)?nano\s*banana\s*prompt\s*(?:\*\*)?\s*[：:]\s*(?:\*\*)?\s*`)
	promptLabel    = regexp.MustCompile(`(?im)^[ \t]*(?:[*•\-][ \t]*)?(?:\*\*)?[ \t]*(?:🍌[ \t]*)?prompt[ \t]*(?:\*\*)?[ \t]*[：:][ \t]*(?:\*\*)?[ \t]*`)
	fencedBlock    = regexp.MustCompile("(?s)```\\w*\\s*(.*?)```")
	rationaleLine  = regexp.MustCompile(`(?i)(?:visual\s+logic|rationale)[^\n：:]*[：:][^\n]*\n`)
	latinRun       = regexp.MustCompile(`[a-zA-Z]{3,}`)
	leadingMarkup  = regexp.MustCompile(`^[\s*•\-]+`)
	followUpLabel  = regexp.MustCompile(`^[^*\n：:]{0,60}[：:]\**\s*`)
	blankLineSplit = regexp.MustCompile(`\n[ \t\r]*\n`)
)

// LabeledBlock takes the text after an explicit prompt marker, up to the
// next bold, bold-bullet or header line, the end of the segment, or two
// blank lines. A "Nano Banana Prompt:" marker anywhere wins; otherwise a
// bare "Prompt:" label counts only at the start of a line or bullet.
func LabeledBlock(segment string) (string, bool) {
	loc := bananaMarker.FindStringIndex(segment)
	if loc == nil {
		loc = promptLabel.FindStringIndex(segment)
	}
	if loc == nil {
		return "", false
	}
	body := labeledBody(segment[loc[1]:])
	if strings.TrimSpace(body) == "" {
		return "", false
	}
	return body, true
}

func labeledBody(s string) string {
	for i := 1; i < len(s); i++ {
		if s[i] != '\n' {
			continue
		}
		if strings.HasPrefix(s[i:], "\n\n\n") {
			return s[:i]
		}
		j := i + 1
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		rest := s[j:]
		if rest == "" || startsBlock(rest) {
			return s[:i]
		}
	}
	return s
}

func startsBlock(s string) bool {
	for _, p := range []string{"**", "###", "* **", "- **", "• **"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

// FencedBlock returns a strategy accepting the first fenced block longer
// than minLen characters that does not look like structured data.
func FencedBlock(minLen int) Strategy {
	return func(segment string) (string, bool) {
		for _, m := range fencedBlock.FindAllStringSubmatch(segment, -1) {
			block := strings.TrimSpace(m[1])
			if utf8.RuneCountInString(block) <= minLen {
				continue
			}
			if strings.HasPrefix(block, "{") || strings.HasPrefix(block, "[") {
				continue
			}
			return block, true
		}
		return "", false
	}
}

// TrailingParagraph returns a strategy taking the paragraph after a
// rationale sub-heading. A leading "label:" on that paragraph is dropped.
// The candidate must be longer than minLen and contain latin prose.
func TrailingParagraph(minLen int) Strategy {
	return func(segment string) (string, bool) {
		loc := rationaleLine.FindStringIndex(segment)
		if loc == nil {
			return "", false
		}
		rest := leadingMarkup.ReplaceAllString(segment[loc[1]:], "")
		if l := followUpLabel.FindStringIndex(rest); l != nil {
			rest = rest[l[1]:]
		}
		if i := strings.Index(rest, "###"); i >= 0 {
			rest = rest[:i]
		}
		if parts := blankLineSplit.Split(rest, 2); len(parts) > 0 {
			rest = parts[0]
		}
		candidate := strings.TrimSpace(rest)
		if utf8.RuneCountInString(candidate) <= minLen || !latinRun.MatchString(candidate) {
			return "", false
		}
		return candidate, true
	}
}
