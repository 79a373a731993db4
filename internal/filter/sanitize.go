package filter

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yourorg/shotdeck/internal/config"
)

// SanitizeConfig is an alias of config.SanitizeConfig.
type SanitizeConfig = config.SanitizeConfig

// Sanitizer redacts credentials from text that leaves the process, such as
// error messages stored in outcomes and reports.
type Sanitizer struct {
	secrets     []string
	params      *regexp.Regexp
	fields      *regexp.Regexp
	replacement string
}

// NewSanitizer builds a Sanitizer for cfg. Literal secrets (API keys) are
// replaced wherever they appear; configured parameter names are redacted
// in query strings, headers and JSON fields.
func NewSanitizer(cfg SanitizeConfig, secrets ...string) *Sanitizer {
	s := &Sanitizer{replacement: cfg.Replacement}
	if s.replacement == "" {
		s.replacement = "***REDACTED***"
	}
	for _, v := range secrets {
		if v = strings.TrimSpace(v); len(v) >= 4 {
			s.secrets = append(s.secrets, v)
		}
	}
	// longest first so a secret containing another is fully replaced
	sort.Slice(s.secrets, func(i, j int) bool { return len(s.secrets[i]) > len(s.secrets[j]) })

	names := make([]string, 0, len(cfg.Params))
	for name := range toLowerSet(cfg.Params) {
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Strings(names)
	if len(names) > 0 {
		alt := strings.Join(names, "|")
		s.params = regexp.MustCompile(`(?i)\b(` + alt + `)(=|:\s*)([^&\s"',;]+)`)
		s.fields = regexp.MustCompile(`(?i)("(?:` + alt + `)"\s*:\s*)"[^"]*"`)
	}
	return s
}

// Sanitize returns text with every credential replaced.
func (s *Sanitizer) Sanitize(text string) string {
	if s == nil || text == "" {
		return text
	}
	for _, secret := range s.secrets {
		text = strings.ReplaceAll(text, secret, s.replacement)
	}
	if s.fields != nil {
		text = s.fields.ReplaceAllString(text, `$1"`+s.replacement+`"`)
	}
	if s.params != nil {
		text = s.params.ReplaceAllStringFunc(text, func(m string) string {
			sub := s.params.FindStringSubmatch(m)
			if strings.Contains(sub[3], s.replacement) {
				return m
			}
			return sub[1] + sub[2] + s.replacement
		})
	}
	return text
}

func toLowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, v := range items {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
