package types

import "time"

// Prompt source types.
const (
	SourceStructured = "structured-json"
	SourceNatural    = "natural-language"
)

// PromptSpec is one extracted generation request.
type PromptSpec struct {
	Index      int            `json:"index"`
	Section    int            `json:"section,omitempty"`
	Name       string         `json:"name"`
	Body       string         `json:"prompt"`
	SourceType string         `json:"source_type"`
	Kind       string         `json:"type,omitempty"`
	Raw        map[string]any `json:"raw_json,omitempty"`
}

// GenerationOutcome is the result of one generation task.
type GenerationOutcome struct {
	Index         int      `json:"index" yaml:"index"`
	Label         string   `json:"name" yaml:"name"`
	ArtifactPaths []string `json:"images" yaml:"images"`
	Error         string   `json:"error,omitempty" yaml:"error,omitempty"`
	Text          string   `json:"text,omitempty" yaml:"text,omitempty"`
	Usage         Usage    `json:"usage" yaml:"usage"`
}

// OK reports whether the task produced at least one artifact without error.
func (o GenerationOutcome) OK() bool {
	return o.Error == "" && len(o.ArtifactPaths) > 0
}

// Usage is the resource usage of one or more service calls.
type Usage struct {
	PromptTokens        int    `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens    int    `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens         int    `json:"total_tokens" yaml:"total_tokens"`
	InputTextTokens     int    `json:"input_text_tokens" yaml:"input_text_tokens"`
	InputImageTokens    int    `json:"input_image_tokens" yaml:"input_image_tokens"`
	InputDocumentTokens int    `json:"input_document_tokens" yaml:"input_document_tokens"`
	OutputTextTokens    int    `json:"output_text_tokens" yaml:"output_text_tokens"`
	OutputArtifactCount int    `json:"output_image_count" yaml:"output_image_count"`
	Model               string `json:"model,omitempty" yaml:"model,omitempty"`
}

// Run is one persisted pipeline run.
type Run struct {
	ID              string    `json:"id"`
	BatchID         string    `json:"batch_id"`
	Mode            string    `json:"mode"`
	Status          string    `json:"status"`
	MainImage       string    `json:"main_image"`
	PromptsUsed     int       `json:"prompts_used"`
	ImagesGenerated int       `json:"images_generated"`
	Failed          int       `json:"failed"`
	TotalTokens     int       `json:"total_tokens"`
	CostUSD         float64   `json:"cost_usd"`
	OutputDir       string    `json:"output_dir"`
	CreatedAt       time.Time `json:"created_at"`
}

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)
