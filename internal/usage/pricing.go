package usage

import (
	"sort"
	"strings"

	"github.com/yourorg/shotdeck/pkg/types"
)

// DefaultKey names the fallback tier of a pricing table.
const DefaultKey = "default"

const perMillion = 1_000_000.0

// Rate holds USD prices. Token rates are per million tokens, PerArtifact is a
// flat fee per produced artifact.
type Rate struct {
	InputText   float64 `yaml:"input_text" json:"input_text"`
	InputImage  float64 `yaml:"input_image" json:"input_image"`
	OutputText  float64 `yaml:"output_text" json:"output_text"`
	PerArtifact float64 `yaml:"per_image" json:"per_image"`
}

// Pricing is an immutable model -> rate table with a default tier.
type Pricing struct {
	rates map[string]Rate
	keys  []string
	def   Rate
}

// NewPricing builds a table. A "default" entry in rates becomes the
// fallback tier and overrides def.
func NewPricing(rates map[string]Rate, def Rate) Pricing {
	p := Pricing{rates: make(map[string]Rate, len(rates)), def: def}
	for k, r := range rates {
		if k == DefaultKey {
			p.def = r
			continue
		}
		p.rates[k] = r
		p.keys = append(p.keys, k)
	}
	sort.Strings(p.keys)
	return p
}

// DefaultPricing returns the built-in table.
func DefaultPricing() Pricing {
	return NewPricing(map[string]Rate{
		"gemini-2.0-flash":              {InputText: 0.10, InputImage: 0.10, OutputText: 0.40},
		"gemini-2.0-flash-exp":          {},
		"gemini-3-pro-image-preview":    {InputText: 0.10, InputImage: 0.10, OutputText: 0.40},
		"gemini-1.5-flash":              {InputText: 0.075, InputImage: 0.075, OutputText: 0.30},
		"gemini-1.5-pro":                {InputText: 1.25, InputImage: 1.25, OutputText: 5.00},
		"gemini-2.5-pro-preview-05-06":  {InputText: 1.25, InputImage: 1.25, OutputText: 10.00},
		"imagen-4.0-generate-001":       {PerArtifact: 0.03},
		"imagen-4.0-ultra-generate-001": {PerArtifact: 0.06},
	}, Rate{InputText: 0.10, InputImage: 0.10, OutputText: 0.40})
}

// With returns a copy of p with overrides applied.
func (p Pricing) With(overrides map[string]Rate) Pricing {
	if len(overrides) == 0 {
		return p
	}
	merged := make(map[string]Rate, len(p.rates)+len(overrides))
	for k, r := range p.rates {
		merged[k] = r
	}
	for k, r := range overrides {
		merged[k] = r
	}
	return NewPricing(merged, p.def)
}

// Models lists the priced model keys in sorted order.
func (p Pricing) Models() []string {
	return append([]string(nil), p.keys...)
}

// Lookup resolves the rate for model: exact key, then a case-insensitive
// substring match in either direction (keys in sorted order), then the
// default tier. The returned key is DefaultKey for the fallback.
func (p Pricing) Lookup(model string) (string, Rate) {
	if r, ok := p.rates[model]; ok {
		return model, r
	}
	m := strings.ToLower(model)
	if m != "" {
		for _, k := range p.keys {
			lk := strings.ToLower(k)
			if strings.Contains(m, lk) || strings.Contains(lk, m) {
				return k, p.rates[k]
			}
		}
	}
	return DefaultKey, p.def
}

// Cost projects u onto the table. An empty model falls back to u.Model.
func Cost(u types.Usage, p Pricing, model string) types.CostBreakdown {
	if model == "" {
		model = u.Model
	}
	key, r := p.Lookup(model)

	var c types.CostBreakdown
	c.Model = key
	c.Input.Text = float64(u.PromptTokens) / perMillion * r.InputText
	c.Input.Image = float64(u.InputImageTokens) / perMillion * r.InputImage
	c.Input.Document = float64(u.InputDocumentTokens) / perMillion * r.InputImage
	c.Input.Subtotal = c.Input.Text + c.Input.Image + c.Input.Document
	c.Output.Tokens = float64(u.CompletionTokens) / perMillion * r.OutputText
	c.Output.PerArtifact = float64(u.OutputArtifactCount) * r.PerArtifact
	c.Output.Subtotal = c.Output.Tokens + c.Output.PerArtifact
	c.Total = c.Input.Subtotal + c.Output.Subtotal
	return c
}

// AddCost sums two breakdowns. The pricing model of the result is kept only
// when both agree.
func AddCost(a, b types.CostBreakdown) types.CostBreakdown {
	out := types.CostBreakdown{
		Input: types.InputCost{
			Text:     a.Input.Text + b.Input.Text,
			Image:    a.Input.Image + b.Input.Image,
			Document: a.Input.Document + b.Input.Document,
			Subtotal: a.Input.Subtotal + b.Input.Subtotal,
		},
		Output: types.OutputCost{
			Tokens:      a.Output.Tokens + b.Output.Tokens,
			PerArtifact: a.Output.PerArtifact + b.Output.PerArtifact,
			Subtotal:    a.Output.Subtotal + b.Output.Subtotal,
		},
		Total: a.Total + b.Total,
	}
	switch {
	case a.Model == "":
		out.Model = b.Model
	case b.Model == "" || a.Model == b.Model:
		out.Model = a.Model
	default:
		out.Model = "mixed"
	}
	return out
}
