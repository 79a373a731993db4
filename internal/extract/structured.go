package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/pkg/types"
)

var jsonBlock = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")

// ExtractStructured renders every fenced JSON record into a natural-language
// prompt. Records that fail to parse are skipped with a warning.
func (e *Extractor) ExtractStructured(raw string) []types.PromptSpec {
	var out []types.PromptSpec
	for i, m := range jsonBlock.FindAllStringSubmatch(raw, -1) {
		var rec map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &rec); err != nil {
			e.logger().Warn("skip unparseable prompt block", zap.Int("block", i+1), zap.Error(err))
			continue
		}
		body := Render(rec)
		if body == "" {
			e.logger().Warn("skip empty prompt block", zap.Int("block", i+1))
			continue
		}
		out = append(out, types.PromptSpec{
			Index:      len(out) + 1,
			Name:       recordName(rec, i),
			Body:       body,
			SourceType: types.SourceStructured,
			Raw:        rec,
		})
	}
	return out
}

// Render joins the present fields of a structured record in fixed order:
// shot, subject, environment, camera, lighting, color grade, style,
// quality, negatives.
func Render(rec map[string]any) string {
	var parts []string
	add := func(prefix string, v any) {
		if s := text(v); s != "" {
			parts = append(parts, prefix+s)
		}
	}

	add("", rec["shot"])
	if subject := object(rec["subject"]); subject != nil {
		var sp []string
		for _, f := range []struct{ key, prefix string }{
			{"item", ""}, {"colors", "colors: "}, {"materials", "made of "}, {"action", ""}, {"condition", ""},
		} {
			if s := text(subject[f.key]); s != "" {
				sp = append(sp, f.prefix+s)
			}
		}
		if len(sp) > 0 {
			parts = append(parts, strings.Join(sp, ", "))
		}
	}
	add("Environment: ", rec["environment"])
	if camera := object(rec["camera"]); camera != nil {
		var cp []string
		for _, k := range []string{"focal_length", "aperture", "angle"} {
			if s := text(camera[k]); s != "" {
				cp = append(cp, s)
			}
		}
		if len(cp) > 0 {
			parts = append(parts, "Shot with "+strings.Join(cp, ", "))
		}
	}
	add("Lighting: ", rec["lighting"])
	add("Color grade: ", rec["color_grade"])
	add("Style: ", rec["style"])
	add("", rec["quality"])
	add("Avoid: ", rec["negatives"])

	return strings.Join(parts, ". ")
}

func recordName(rec map[string]any, i int) string {
	if s := text(rec["style"]); s != "" {
		return truncate(s, 40)
	}
	if subject := object(rec["subject"]); subject != nil {
		if s := text(subject["item"]); s != "" {
			return truncate(s, 40)
		}
	}
	return fmt.Sprintf("Prompt %d", i+1)
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	if len(m) == 0 {
		return nil
	}
	return m
}

// text renders a JSON value, returning "" for absent or empty values.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return fmt.Sprint(t)
	case []any:
		var items []string
		for _, it := range t {
			if s := text(it); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, ", ")
	case map[string]any:
		if len(t) == 0 {
			return ""
		}
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
