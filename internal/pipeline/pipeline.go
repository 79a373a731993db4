// Package pipeline coordinates one run: asset resolution, prompt extraction
// or reuse, concurrent generation, usage accounting and the run report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/internal/artifact"
	"github.com/yourorg/shotdeck/internal/catalog"
	"github.com/yourorg/shotdeck/internal/config"
	"github.com/yourorg/shotdeck/internal/executor"
	"github.com/yourorg/shotdeck/internal/extract"
	"github.com/yourorg/shotdeck/internal/filter"
	"github.com/yourorg/shotdeck/internal/genai"
	"github.com/yourorg/shotdeck/internal/metrics"
	"github.com/yourorg/shotdeck/internal/store"
	"github.com/yourorg/shotdeck/internal/usage"
	"github.com/yourorg/shotdeck/pkg/types"
)

// ErrUnknownMode is returned for a mode with no instruction set.
var ErrUnknownMode = errors.New("unknown mode")

// Stage names, in execution order.
const (
	StageSelect   = "select"
	StagePrompts  = "prompts"
	StageGenerate = "generate"
)

// ProgressFunc reports pipeline progress.
type ProgressFunc func(stage string)

// Options carries the ambient collaborators of a Pipeline. Every field is
// optional.
type Options struct {
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
	Tracer     trace.Tracer
	Sanitizer  *filter.Sanitizer
	OnProgress ProgressFunc
	Now        func() time.Time
}

// Input selects what one run generates.
type Input struct {
	// Paths are explicit input files. When empty, ProductID is scanned.
	Paths     []string
	ProductID string
	Mode      string
	// NumImages limits the prompt list when positive.
	NumImages int
	// MetaPrompt overrides the meta prompt file of the mode.
	MetaPrompt string
	// Target is the composition image of adapt mode.
	Target  string
	Workers int
	NoCache bool
	// Model is an image model alias overriding genai.image_model.
	Model string
}

// Pipeline runs generation batches against one client.
type Pipeline struct {
	cfg       *config.Config
	client    genai.Client
	store     store.Store
	opts      Options
	log       *zap.Logger
	tracer    trace.Tracer
	pricing   usage.Pricing
	layout    artifact.Layout
	extractor *extract.Extractor
}

// New returns a Pipeline. st may be nil, in which case runs are not recorded.
func New(cfg *config.Config, client genai.Client, st store.Store, opts Options) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if client == nil {
		return nil, errors.New("genai client is nil")
	}
	p := &Pipeline{
		cfg:     cfg,
		client:  client,
		store:   st,
		opts:    opts,
		log:     opts.Logger,
		tracer:  opts.Tracer,
		pricing: cfg.PricingTable(),
		layout:  artifact.Layout{Root: cfg.Output.Dir},
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/yourorg/shotdeck/internal/pipeline")
	}
	if p.opts.Sanitizer == nil {
		p.opts.Sanitizer = filter.NewSanitizer(cfg.Sanitize, cfg.GenAI.APIKey)
	}
	if p.opts.Now == nil {
		p.opts.Now = time.Now
	}
	p.extractor = extract.New(p.log)
	return p, nil
}

// Execute runs one batch end to end and returns its report. Per-prompt
// failures are part of the report; only asset, configuration and
// persistence failures are returned as errors.
func (p *Pipeline) Execute(ctx context.Context, in Input) (*types.RunReport, error) {
	if in.Mode == "" {
		in.Mode = ModeCover
	}
	if !ValidMode(in.Mode) {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownMode, in.Mode, strings.Join(Modes(), ", "))
	}
	workers := in.Workers
	if workers == 0 {
		workers = p.cfg.Generation.Workers
	}
	if workers < 1 {
		return nil, fmt.Errorf("%w: got %d", executor.ErrInvalidWorkers, workers)
	}
	imageModel, err := p.cfg.ImageModel(in.Model)
	if err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(
		attribute.String("run.mode", in.Mode),
		attribute.String("run.product", in.ProductID),
	))
	defer span.End()

	p.report("resolving assets")
	assets, selectUsage, err := p.resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	var stages []types.StageUsage
	if selectUsage != (types.Usage{}) {
		stages = append(stages, p.stage(StageSelect, p.cfg.GenAI.TextModel, selectUsage))
	}

	now := p.opts.Now().UTC()
	dir, runID, err := p.layout.NewTask(assets.BatchID, now)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("run.id", runID))
	log := p.log.With(zap.String("run", runID), zap.String("batch", assets.BatchID), zap.String("mode", in.Mode))

	refPaths := referencePaths(in.Mode, assets)
	var copied []string
	for i, src := range refPaths {
		dst, err := dir.CopyReference(src, i+1)
		if err != nil {
			return nil, fmt.Errorf("%w: copy reference: %v", catalog.ErrAsset, err)
		}
		copied = append(copied, dst)
	}

	var (
		prompts []types.PromptSpec
		reused  bool
		refs    executor.References
	)
	if in.Mode == ModeAdapt {
		prompts, refs, err = adaptTasks(assets)
		if err != nil {
			return nil, err
		}
	} else {
		p.report("preparing prompts")
		var raw string
		var u types.Usage
		prompts, reused, raw, u, err = p.prompts(ctx, in, assets)
		if err != nil {
			return nil, err
		}
		if !reused {
			stages = append(stages, p.stage(StagePrompts, p.cfg.GenAI.TextModel, u))
			if err := dir.WriteAnalysis(raw); err != nil {
				log.Warn("write analysis failed", zap.Error(err))
			}
		}
		refs, err = references(in.Mode, assets)
		if err != nil {
			return nil, err
		}
	}
	if in.NumImages > 0 && len(prompts) > in.NumImages {
		prompts = prompts[:in.NumImages]
	}
	log.Info("prompts ready", zap.Int("count", len(prompts)), zap.Bool("reused", reused))

	var outcomes []types.GenerationOutcome
	if len(prompts) > 0 {
		p.report(fmt.Sprintf("generating %d images", len(prompts)))
		exec, err := executor.New(p.client, dir, executor.Options{
			Workers:     workers,
			Model:       imageModel,
			Mode:        in.Mode,
			Instruction: Instruction(in.Mode),
			Logger:      log,
			Metrics:     p.opts.Metrics,
			Tracer:      p.tracer,
			Sanitizer:   p.opts.Sanitizer,
		})
		if err != nil {
			return nil, err
		}
		outcomes = exec.Run(ctx, prompts, refs)
		stages = append(stages, p.stage(StageGenerate, imageModel, usage.SumOutcomes(outcomes)))
	} else {
		log.Warn("no prompts to generate")
	}

	r := &types.RunReport{
		RunID:         runID,
		BatchID:       assets.BatchID,
		Mode:          in.Mode,
		MainImage:     assets.MainImage,
		References:    copied,
		PromptsUsed:   len(prompts),
		PromptsReused: reused,
		Results:       outcomes,
		Stages:        stages,
		OutputDir:     dir.Path,
		CreatedAt:     now,
	}
	if r.Results == nil {
		r.Results = []types.GenerationOutcome{}
	}
	for _, o := range outcomes {
		r.ImagesGenerated += len(o.ArtifactPaths)
		if !o.OK() {
			r.Failed++
		}
	}
	for _, s := range stages {
		r.Usage = usage.Merge(r.Usage, s.Usage)
		r.Cost = usage.AddCost(r.Cost, s.Cost)
		p.opts.Metrics.ObserveStage(s)
	}

	p.report("writing report")
	if _, err := dir.WriteReport(r, p.cfg.Output.Formats); err != nil {
		return r, fmt.Errorf("write report: %w", err)
	}
	if p.store != nil {
		if err := p.store.SaveRun(ctx, r); err != nil {
			return r, fmt.Errorf("record run: %w", err)
		}
	}

	status := r.Status()
	p.opts.Metrics.ObserveRun(in.Mode, status)
	span.SetAttributes(
		attribute.String("run.status", status),
		attribute.Int("run.images", r.ImagesGenerated),
		attribute.Int("run.failed", r.Failed),
	)
	log.Info("run finished",
		zap.String("status", status),
		zap.Int("images", r.ImagesGenerated),
		zap.Int("failed", r.Failed),
		zap.Int("total_tokens", r.Usage.PromptTokens+r.Usage.CompletionTokens),
		zap.Float64("cost_usd", r.Cost.Total),
	)
	return r, nil
}

func (p *Pipeline) resolve(ctx context.Context, in Input) (*catalog.Assets, types.Usage, error) {
	r := &catalog.Resolver{Config: p.cfg.Catalog, Client: p.client, Model: p.cfg.GenAI.TextModel, Logger: p.log}
	if in.Mode == ModeAdapt {
		// the target, not a selected main image, drives adapt mode
		r.Client = nil
	}

	paths := in.Paths
	if len(paths) == 0 {
		if in.ProductID == "" {
			return nil, types.Usage{}, fmt.Errorf("%w: product id or input files required", catalog.ErrAsset)
		}
		files, err := r.ProductFiles(in.ProductID)
		if err != nil {
			return nil, types.Usage{}, err
		}
		paths = files
	}

	assets, u, err := r.Resolve(ctx, paths)
	if err != nil {
		return nil, u, err
	}
	if in.ProductID != "" {
		assets.BatchID = in.ProductID
	}
	if in.Mode == ModeAdapt {
		if in.Target == "" {
			return nil, u, fmt.Errorf("%w: adapt mode requires a target image", catalog.ErrAsset)
		}
		if _, err := os.Stat(in.Target); err != nil {
			return nil, u, fmt.Errorf("%w: target: %v", catalog.ErrAsset, err)
		}
		assets.MainImage = in.Target
	}
	return assets, u, nil
}

// prompts reuses the stored prompt list of the batch and mode or extracts a
// fresh one. raw is the extraction text; u its usage.
func (p *Pipeline) prompts(ctx context.Context, in Input, a *catalog.Assets) (prompts []types.PromptSpec, reused bool, raw string, u types.Usage, err error) {
	cache := p.layout.PromptsPath(a.BatchID, in.Mode)
	if !in.NoCache {
		cached, ok, err := artifact.ReadPrompts(cache)
		if err != nil {
			p.log.Warn("ignore unreadable prompt cache", zap.String("path", cache), zap.Error(err))
		} else if ok {
			p.log.Info("reusing prompts", zap.String("path", cache), zap.Int("count", len(cached)))
			return cached, true, "", types.Usage{}, nil
		}
	}

	metaPath := in.MetaPrompt
	if metaPath == "" {
		metaPath = p.cfg.MetaPromptPath(in.Mode)
	}
	meta, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, false, "", u, fmt.Errorf("%w: meta prompt: %v", catalog.ErrAsset, err)
	}

	images := []string{a.MainImage}
	if in.Mode == ModeTop {
		images = a.Images
	}
	parts, err := catalog.LoadImages(images)
	if err != nil {
		return nil, false, "", u, err
	}
	parts = append(parts, p.documentParts(a.Documents)...)
	parts = append(parts, genai.TextPart(string(meta)))

	req := genai.Request{Model: p.cfg.GenAI.TextModel, Parts: parts}
	resp, err := p.client.Invoke(ctx, req)
	u = genai.Usage(req, resp)
	if err == nil && resp == nil {
		err = genai.ErrEmptyResponse
	}
	if err != nil {
		return nil, false, "", u, fmt.Errorf("extract prompts: %s", p.opts.Sanitizer.Sanitize(err.Error()))
	}
	raw = resp.Text

	if structured(in.Mode) {
		prompts = p.extractor.ExtractStructured(raw)
	}
	if len(prompts) == 0 {
		prompts = p.extractor.Extract(raw)
	}
	if len(prompts) > 0 {
		if err := artifact.WritePrompts(cache, prompts); err != nil {
			p.log.Warn("write prompt cache failed", zap.Error(err))
		}
	}
	return prompts, false, raw, u, nil
}

// documentParts loads the supporting documents, skipping unreadable ones.
func (p *Pipeline) documentParts(docs []string) []genai.Part {
	var parts []genai.Part
	for _, d := range docs {
		part, err := catalog.LoadDocument(d)
		if err != nil {
			p.log.Warn("skip document", zap.String("path", filepath.Base(d)), zap.Error(err))
			continue
		}
		parts = append(parts, part)
	}
	return parts
}

func (p *Pipeline) stage(name, model string, u types.Usage) types.StageUsage {
	if u.Model == "" {
		u.Model = model
	}
	return types.StageUsage{Stage: name, Model: model, Usage: u, Cost: usage.Cost(u, p.pricing, model)}
}

func (p *Pipeline) report(stage string) {
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(stage)
	}
}

// referencePaths are the input files copied into the task directory.
func referencePaths(mode string, a *catalog.Assets) []string {
	if mode == ModeTop {
		return a.Images
	}
	return []string{a.MainImage}
}

// references loads the reference parts of the extraction modes. In top mode
// the hero task sees every product image; others see the main image only.
func references(mode string, a *catalog.Assets) (executor.References, error) {
	main, err := catalog.LoadImage(a.MainImage)
	if err != nil {
		return executor.References{}, err
	}
	refs := executor.References{Shared: []genai.Part{main}}
	if mode == ModeTop && len(a.Images) > 1 {
		hero := []genai.Part{main}
		for _, img := range a.Images {
			if img == a.MainImage {
				continue
			}
			part, err := catalog.LoadImage(img)
			if err != nil {
				return executor.References{}, err
			}
			hero = append(hero, part)
		}
		refs.Hero = hero
	}
	return refs, nil
}

// adaptTasks builds one task per product image: the target goes first to
// every task, the product image second.
func adaptTasks(a *catalog.Assets) ([]types.PromptSpec, executor.References, error) {
	target, err := catalog.LoadImage(a.MainImage)
	if err != nil {
		return nil, executor.References{}, err
	}
	var (
		prompts []types.PromptSpec
		perTask [][]genai.Part
	)
	for _, img := range a.Images {
		if filepath.Clean(img) == filepath.Clean(a.MainImage) {
			continue
		}
		part, err := catalog.LoadImage(img)
		if err != nil {
			return nil, executor.References{}, err
		}
		stem := strings.TrimSuffix(filepath.Base(img), filepath.Ext(img))
		prompts = append(prompts, types.PromptSpec{
			Index:      len(prompts) + 1,
			Name:       "adapt_" + stem,
			Body:       adaptInstruction,
			SourceType: types.SourceNatural,
		})
		perTask = append(perTask, []genai.Part{part})
	}
	if len(prompts) == 0 {
		return nil, executor.References{}, fmt.Errorf("%w: adapt mode needs at least one product image besides the target", catalog.ErrAsset)
	}
	return prompts, executor.References{Shared: []genai.Part{target}, PerTask: perTask}, nil
}
