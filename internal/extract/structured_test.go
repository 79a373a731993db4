package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourorg/shotdeck/pkg/types"
)

const structuredText = "Prompts follow.\n" +
	"```json\n" +
	`{"shot": "Top-down flat lay", "subject": {"item": "Ceramic mug", "colors": "sage green", "materials": "stoneware"}, "camera": {"focal_length": "50mm", "aperture": "f/2.8"}, "lighting": "soft window light", "style": "Minimal Scandinavian catalog", "negatives": "text, watermark"}` +
	"\n```\n" +
	"```json\n{\"shot\": broken}\n```\n" +
	"```\n{\"subject\": {\"item\": \"Mug in hand\"}, \"environment\": \"cafe\"}\n```\n"

func TestExtractStructuredSkipsBadBlock(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	got := New(zap.New(core)).ExtractStructured(structuredText)

	require.Len(t, got, 2)
	assert.Equal(t, 1, logs.FilterMessage("skip unparseable prompt block").Len())

	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, "Minimal Scandinavian catalog", got[0].Name)
	assert.Equal(t, "Top-down flat lay. Ceramic mug, colors: sage green, made of stoneware. Shot with 50mm, f/2.8. "+
		"Lighting: soft window light. Style: Minimal Scandinavian catalog. Avoid: text, watermark", got[0].Body)
	assert.Equal(t, types.SourceStructured, got[0].SourceType)
	assert.Equal(t, "Top-down flat lay", got[0].Raw["shot"])

	assert.Equal(t, 2, got[1].Index)
	assert.Equal(t, "Mug in hand", got[1].Name)
	assert.Equal(t, "Mug in hand. Environment: cafe", got[1].Body)
}

func TestRenderFieldOrder(t *testing.T) {
	rec := map[string]any{
		"negatives":   "blur",
		"quality":     "8k",
		"style":       "editorial",
		"color_grade": "warm",
		"lighting":    "rim light",
		"camera":      map[string]any{"angle": "low angle", "focal_length": "85mm"},
		"environment": "studio",
		"subject":     map[string]any{"condition": "brand new", "action": "pouring", "item": "kettle"},
		"shot":        "close-up",
	}
	assert.Equal(t, "close-up. kettle, pouring, brand new. Environment: studio. Shot with 85mm, low angle. "+
		"Lighting: rim light. Color grade: warm. Style: editorial. 8k. Avoid: blur", Render(rec))
}

func TestRenderOmitsEmptyFields(t *testing.T) {
	rec := map[string]any{"shot": "", "subject": map[string]any{}, "camera": nil, "style": "flat", "negatives": []any{"text", "logo"}}
	assert.Equal(t, "Style: flat. Avoid: text, logo", Render(rec))
}

func TestRecordNameFallback(t *testing.T) {
	assert.Equal(t, "Prompt 3", recordName(map[string]any{"shot": "x"}, 2))
	long := "a style description that is definitely longer than forty characters"
	assert.Equal(t, long[:40], recordName(map[string]any{"style": long}, 0))
}

func TestExtractStructuredNoBlocks(t *testing.T) {
	assert.Empty(t, New(nil).ExtractStructured("plain prose, no records"))
}
