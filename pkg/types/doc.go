package types

import "time"

// CostBreakdown is the monetary projection of a Usage record.
type CostBreakdown struct {
	Model  string     `json:"pricing_model" yaml:"pricing_model"`
	Input  InputCost  `json:"input" yaml:"input"`
	Output OutputCost `json:"output" yaml:"output"`
	Total  float64    `json:"total" yaml:"total"`
}

// InputCost is the input side of a CostBreakdown.
type InputCost struct {
	Text     float64 `json:"text" yaml:"text"`
	Image    float64 `json:"image" yaml:"image"`
	Document float64 `json:"document" yaml:"document"`
	Subtotal float64 `json:"subtotal" yaml:"subtotal"`
}

// OutputCost is the output side of a CostBreakdown.
type OutputCost struct {
	Tokens      float64 `json:"tokens" yaml:"tokens"`
	PerArtifact float64 `json:"per_image" yaml:"per_image"`
	Subtotal    float64 `json:"subtotal" yaml:"subtotal"`
}

// StageUsage is the usage of one pipeline stage.
type StageUsage struct {
	Stage string        `json:"stage" yaml:"stage"`
	Model string        `json:"model" yaml:"model"`
	Usage Usage         `json:"usage" yaml:"usage"`
	Cost  CostBreakdown `json:"cost" yaml:"cost"`
}

// RunReport is the final record of one pipeline run.
type RunReport struct {
	RunID           string              `json:"task_id" yaml:"task_id"`
	BatchID         string              `json:"product_id" yaml:"product_id"`
	Mode            string              `json:"mode" yaml:"mode"`
	MainImage       string              `json:"main_image" yaml:"main_image"`
	References      []string            `json:"references,omitempty" yaml:"references,omitempty"`
	PromptsUsed     int                 `json:"prompts_used" yaml:"prompts_used"`
	PromptsReused   bool                `json:"prompts_reused" yaml:"prompts_reused"`
	ImagesGenerated int                 `json:"images_generated" yaml:"images_generated"`
	Failed          int                 `json:"failed" yaml:"failed"`
	Results         []GenerationOutcome `json:"results" yaml:"results"`
	Stages          []StageUsage        `json:"stages" yaml:"stages"`
	Usage           Usage               `json:"usage" yaml:"usage"`
	Cost            CostBreakdown       `json:"cost" yaml:"cost"`
	OutputDir       string              `json:"output_dir" yaml:"output_dir"`
	CreatedAt       time.Time           `json:"created_at" yaml:"created_at"`
}

// Status derives the run status from its outcomes.
func (r *RunReport) Status() string {
	switch {
	case len(r.Results) == 0 || r.ImagesGenerated == 0:
		return StatusFailed
	case r.Failed > 0:
		return StatusPartial
	default:
		return StatusCompleted
	}
}
