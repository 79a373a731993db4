package filter

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/yourorg/shotdeck/internal/config"
)

// CatalogConfig is an alias of config.CatalogConfig.
type CatalogConfig = config.CatalogConfig

// Kind is the role of a catalog file.
type Kind int

const (
	Ignored Kind = iota
	Image
	Document
)

// Classified groups catalog files by role, keeping input order.
type Classified struct {
	Images    []string
	Documents []string
	Ignored   []string
}

// Apply classifies files by extension and drops ignored paths and
// duplicates.
func Apply(files []string, cfg CatalogConfig) Classified {
	var out Classified
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		key := filepath.Clean(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		switch KindOf(f, cfg) {
		case Image:
			out.Images = append(out.Images, f)
		case Document:
			out.Documents = append(out.Documents, f)
		default:
			out.Ignored = append(out.Ignored, f)
		}
	}
	return out
}

// KindOf returns the role of one file.
func KindOf(file string, cfg CatalogConfig) Kind {
	slashed := filepath.ToSlash(file)
	if hasIgnoredPath(slashed, cfg.IgnorePaths) {
		return Ignored
	}
	switch {
	case hasExtension(slashed, cfg.ImageExtensions):
		return Image
	case hasExtension(slashed, cfg.DocumentExtensions):
		return Document
	default:
		return Ignored
	}
}

func hasExtension(p string, exts []string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(strings.TrimSpace(e)) == ext {
			return true
		}
	}
	return false
}

func hasIgnoredPath(p string, patterns []string) bool {
	for _, pat := range patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		if strings.Contains(p, pat) || path.Base(p) == pat {
			return true
		}
	}
	return false
}

// MatchesContentType reports whether ct matches one of the patterns. A
// pattern ending in "/*" matches the whole top-level type.
func MatchesContentType(ct string, patterns []string) bool {
	if strings.TrimSpace(ct) == "" {
		return false
	}
	base := strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/*") {
			prefix := strings.TrimSuffix(p, "*")
			if strings.HasPrefix(base, prefix) {
				return true
			}
			continue
		}
		if base == p {
			return true
		}
	}
	return false
}
