package artifact

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/shotdeck/pkg/types"
)

// WriteReport writes results.json and, per formats, summary.md and
// report.yaml. It returns the written paths.
func (d *Dir) WriteReport(r *types.RunReport, formats []string) ([]string, error) {
	if r == nil {
		return nil, fmt.Errorf("report is nil")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	p, err := d.Save("results.json", data)
	if err != nil {
		return nil, err
	}
	written := []string{p}

	for _, format := range formats {
		switch format {
		case "markdown":
			p, err := d.Save("summary.md", []byte(RenderMarkdown(r)))
			if err != nil {
				return written, err
			}
			written = append(written, p)
		case "yaml":
			out, err := yaml.Marshal(r)
			if err != nil {
				return written, err
			}
			p, err := d.Save("report.yaml", out)
			if err != nil {
				return written, err
			}
			written = append(written, p)
		}
	}
	return written, nil
}

// RenderMarkdown renders a human-readable run summary.
func RenderMarkdown(r *types.RunReport) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "# %s / %s\n\n", r.BatchID, r.RunID)
	fmt.Fprintf(b, "- Mode: %s\n", r.Mode)
	fmt.Fprintf(b, "- Main image: %s\n", filepath.Base(r.MainImage))
	reused := ""
	if r.PromptsReused {
		reused = " (reused)"
	}
	fmt.Fprintf(b, "- Prompts: %d%s\n", r.PromptsUsed, reused)
	fmt.Fprintf(b, "- Images generated: %d, failed: %d\n\n", r.ImagesGenerated, r.Failed)

	fmt.Fprintln(b, "## Results")
	fmt.Fprintln(b)
	fmt.Fprintln(b, "| # | Name | Images | Error |")
	fmt.Fprintln(b, "|---|------|--------|-------|")
	for _, o := range r.Results {
		names := make([]string, 0, len(o.ArtifactPaths))
		for _, p := range o.ArtifactPaths {
			names = append(names, filepath.Base(p))
		}
		fmt.Fprintf(b, "| %d | %s | %s | %s |\n", o.Index, cell(o.Label), cell(strings.Join(names, ", ")), cell(o.Error))
	}

	fmt.Fprintln(b)
	fmt.Fprintln(b, "## Usage")
	fmt.Fprintln(b)
	fmt.Fprintln(b, "| Stage | Model | Prompt tokens | Completion tokens | Images | Cost (USD) |")
	fmt.Fprintln(b, "|-------|-------|---------------|-------------------|--------|------------|")
	for _, s := range r.Stages {
		fmt.Fprintf(b, "| %s | %s | %d | %d | %d | %.6f |\n", s.Stage, s.Model, s.Usage.PromptTokens, s.Usage.CompletionTokens, s.Usage.OutputArtifactCount, s.Cost.Total)
	}
	fmt.Fprintf(b, "| **total** | | %d | %d | %d | %.6f |\n", r.Usage.PromptTokens, r.Usage.CompletionTokens, r.Usage.OutputArtifactCount, r.Cost.Total)
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
