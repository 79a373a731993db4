package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/internal/artifact"
	"github.com/yourorg/shotdeck/internal/catalog"
	"github.com/yourorg/shotdeck/internal/genai"
	"github.com/yourorg/shotdeck/internal/usage"
	"github.com/yourorg/shotdeck/pkg/types"
)

// StageTitle is the stage name of a title request.
const StageTitle = "title"

var titleFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// TitleResult is one generated set of listing titles.
type TitleResult struct {
	BatchID   string              `json:"product_id"`
	MainImage string              `json:"main_image"`
	Titles    map[string]any      `json:"titles"`
	Stages    []types.StageUsage  `json:"stages"`
	Usage     types.Usage         `json:"usage"`
	Cost      types.CostBreakdown `json:"cost"`
	Path      string              `json:"path"`
}

// Titles asks the text model for listing titles from the main image and the
// documents of a batch and stores them as titles.json in the batch dir.
func (p *Pipeline) Titles(ctx context.Context, in Input) (*TitleResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.titles", trace.WithAttributes(
		attribute.String("run.product", in.ProductID),
	))
	defer span.End()

	in.Mode = ""
	assets, selectUsage, err := p.resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	metaPath := in.MetaPrompt
	if metaPath == "" {
		metaPath = p.cfg.MetaPromptPath(StageTitle)
	}
	if metaPath == "" {
		return nil, fmt.Errorf("%w: no title meta prompt configured", catalog.ErrAsset)
	}
	meta, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: title prompt: %v", catalog.ErrAsset, err)
	}

	main, err := catalog.LoadImage(assets.MainImage)
	if err != nil {
		return nil, err
	}
	parts := append([]genai.Part{main}, p.documentParts(assets.Documents)...)
	parts = append(parts, genai.TextPart(string(meta)))

	req := genai.Request{Model: p.cfg.GenAI.TextModel, Parts: parts}
	resp, err := p.client.Invoke(ctx, req)
	if err == nil && resp == nil {
		err = genai.ErrEmptyResponse
	}
	if err != nil {
		return nil, fmt.Errorf("generate titles: %s", p.opts.Sanitizer.Sanitize(err.Error()))
	}

	r := &TitleResult{
		BatchID:   assets.BatchID,
		MainImage: assets.MainImage,
		Titles:    ParseTitles(resp.Text),
		Path:      p.layout.TitlesPath(assets.BatchID),
	}
	if selectUsage != (types.Usage{}) {
		r.Stages = append(r.Stages, p.stage(StageSelect, p.cfg.GenAI.TextModel, selectUsage))
	}
	r.Stages = append(r.Stages, p.stage(StageTitle, p.cfg.GenAI.TextModel, genai.Usage(req, resp)))
	for _, s := range r.Stages {
		r.Usage = usage.Merge(r.Usage, s.Usage)
		r.Cost = usage.AddCost(r.Cost, s.Cost)
		p.opts.Metrics.ObserveStage(s)
	}

	if err := artifact.WriteJSON(r.Path, r.Titles); err != nil {
		return r, fmt.Errorf("write titles: %w", err)
	}
	p.log.Info("titles generated",
		zap.String("batch", r.BatchID),
		zap.Int("fields", len(r.Titles)),
		zap.Float64("cost_usd", r.Cost.Total),
	)
	return r, nil
}

// ParseTitles decodes the first fenced JSON block of text, then the whole
// text. Anything else is kept under raw_response with parse_error set.
func ParseTitles(text string) map[string]any {
	if m := titleFence.FindStringSubmatch(text); m != nil {
		if out, ok := decodeObject(m[1]); ok {
			return out
		}
	}
	if out, ok := decodeObject(text); ok {
		return out
	}
	return map[string]any{"raw_response": text, "parse_error": true}
}

func decodeObject(s string) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}
