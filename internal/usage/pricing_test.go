package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/shotdeck/pkg/types"
)

func TestLookupTiers(t *testing.T) {
	p := DefaultPricing()

	key, r := p.Lookup("gemini-1.5-pro")
	assert.Equal(t, "gemini-1.5-pro", key)
	assert.Equal(t, 5.00, r.OutputText)

	key, _ = p.Lookup("models/Gemini-1.5-Flash-002")
	assert.Equal(t, "gemini-1.5-flash", key)

	key, r = p.Lookup("some-unknown-model")
	assert.Equal(t, DefaultKey, key)
	assert.Equal(t, 0.10, r.InputText)

	key, _ = p.Lookup("")
	assert.Equal(t, DefaultKey, key)
}

func TestLookupDeterministic(t *testing.T) {
	p := DefaultPricing()
	first, _ := p.Lookup("gemini")
	for i := 0; i < 20; i++ {
		got, _ := p.Lookup("gemini")
		require.Equal(t, first, got)
	}
}

func TestCostOneMillionPromptTokens(t *testing.T) {
	c := Cost(types.Usage{PromptTokens: 1_000_000}, DefaultPricing(), "gemini-2.0-flash")
	assert.InDelta(t, 0.10, c.Input.Text, 1e-9)
	assert.InDelta(t, 0.10, c.Input.Subtotal, 1e-9)
	assert.InDelta(t, 0.10, c.Total, 1e-9)
	assert.Zero(t, c.Output.Subtotal)
}

func TestCostPerArtifactFee(t *testing.T) {
	c := Cost(types.Usage{OutputArtifactCount: 3, Model: "imagen-4.0-ultra-generate-001"}, DefaultPricing(), "")
	assert.Equal(t, "imagen-4.0-ultra-generate-001", c.Model)
	assert.InDelta(t, 0.18, c.Output.PerArtifact, 1e-9)
	assert.InDelta(t, 0.18, c.Total, 1e-9)
}

func TestCostDocumentsUseImageRate(t *testing.T) {
	p := NewPricing(map[string]Rate{"m": {InputText: 1, InputImage: 2, OutputText: 3}}, Rate{})
	c := Cost(types.Usage{InputImageTokens: 1_000_000, InputDocumentTokens: 500_000, CompletionTokens: 1_000_000}, p, "m")
	assert.InDelta(t, 2.0, c.Input.Image, 1e-9)
	assert.InDelta(t, 1.0, c.Input.Document, 1e-9)
	assert.InDelta(t, 3.0, c.Output.Tokens, 1e-9)
	assert.InDelta(t, 6.0, c.Total, 1e-9)
}

func TestCostMonotonic(t *testing.T) {
	p := DefaultPricing()
	base := types.Usage{PromptTokens: 1000, CompletionTokens: 200, InputImageTokens: 258, InputDocumentTokens: 10, OutputArtifactCount: 1}
	bumps := []func(*types.Usage){
		func(u *types.Usage) { u.PromptTokens += 5000 },
		func(u *types.Usage) { u.CompletionTokens += 5000 },
		func(u *types.Usage) { u.InputImageTokens += 5000 },
		func(u *types.Usage) { u.InputDocumentTokens += 5000 },
		func(u *types.Usage) { u.OutputArtifactCount++ },
	}
	for _, model := range []string{"gemini-1.5-pro", "imagen-4.0-generate-001", "unknown"} {
		before := Cost(base, p, model).Total
		for _, bump := range bumps {
			u := base
			bump(&u)
			assert.GreaterOrEqual(t, Cost(u, p, model).Total, before, "model %s", model)
		}
	}
}

func TestCostDoesNotMutateRecord(t *testing.T) {
	u := types.Usage{PromptTokens: 42, Model: "gemini-1.5-pro"}
	_ = Cost(u, DefaultPricing(), "")
	assert.Equal(t, types.Usage{PromptTokens: 42, Model: "gemini-1.5-pro"}, u)
}

func TestWithOverridesDefault(t *testing.T) {
	p := DefaultPricing().With(map[string]Rate{
		"default":   {InputText: 9},
		"house-llm": {OutputText: 2},
	})
	key, r := p.Lookup("nothing-like-it")
	assert.Equal(t, DefaultKey, key)
	assert.Equal(t, 9.0, r.InputText)
	key, _ = p.Lookup("house-llm")
	assert.Equal(t, "house-llm", key)

	// the original table is unchanged
	_, r = DefaultPricing().Lookup("nothing-like-it")
	assert.Equal(t, 0.10, r.InputText)
}

func TestAddCost(t *testing.T) {
	p := DefaultPricing()
	a := Cost(types.Usage{PromptTokens: 1_000_000}, p, "gemini-2.0-flash")
	b := Cost(types.Usage{OutputArtifactCount: 1}, p, "imagen-4.0-generate-001")
	sum := AddCost(a, b)
	assert.InDelta(t, a.Total+b.Total, sum.Total, 1e-9)
	assert.Equal(t, "mixed", sum.Model)
	assert.Equal(t, a.Model, AddCost(types.CostBreakdown{}, a).Model)
}
