// Package usage accounts for tokens and artifacts consumed by service calls
// and projects them onto a pricing table.
package usage

import "github.com/yourorg/shotdeck/pkg/types"

// Zero returns the identity record for Merge.
func Zero() types.Usage {
	return types.Usage{}
}

// Merge adds two records field by field. The model of the result is the
// first non-empty model of the operands.
func Merge(a, b types.Usage) types.Usage {
	out := types.Usage{
		PromptTokens:        a.PromptTokens + b.PromptTokens,
		CompletionTokens:    a.CompletionTokens + b.CompletionTokens,
		TotalTokens:         a.TotalTokens + b.TotalTokens,
		InputTextTokens:     a.InputTextTokens + b.InputTextTokens,
		InputImageTokens:    a.InputImageTokens + b.InputImageTokens,
		InputDocumentTokens: a.InputDocumentTokens + b.InputDocumentTokens,
		OutputTextTokens:    a.OutputTextTokens + b.OutputTextTokens,
		OutputArtifactCount: a.OutputArtifactCount + b.OutputArtifactCount,
		Model:               a.Model,
	}
	if out.Model == "" {
		out.Model = b.Model
	}
	return out
}

// Sum folds records left to right.
func Sum(records ...types.Usage) types.Usage {
	out := Zero()
	for _, r := range records {
		out = Merge(out, r)
	}
	return out
}

// SumOutcomes folds the usage of every outcome in slice order.
func SumOutcomes(outcomes []types.GenerationOutcome) types.Usage {
	out := Zero()
	for _, o := range outcomes {
		out = Merge(out, o.Usage)
	}
	return out
}
