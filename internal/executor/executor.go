// Package executor runs independent generation tasks concurrently under a
// fixed worker budget and returns their outcomes in input order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/shotdeck/internal/artifact"
	"github.com/yourorg/shotdeck/internal/filter"
	"github.com/yourorg/shotdeck/internal/genai"
	"github.com/yourorg/shotdeck/internal/metrics"
	"github.com/yourorg/shotdeck/pkg/types"
)

// ErrInvalidWorkers is returned by New when the worker budget is below one.
var ErrInvalidWorkers = errors.New("worker budget must be at least 1")

// ErrNoArtifacts is recorded on an outcome whose call succeeded without
// producing anything.
var ErrNoArtifacts = errors.New("no artifacts produced")

// Sink persists artifacts. Implementations must be safe for concurrent use
// with distinct names.
type Sink interface {
	Save(name string, data []byte) (string, error)
}

// Options configures an Executor.
type Options struct {
	Workers int
	Model   string
	// Mode labels metrics and spans.
	Mode string
	// Instruction renders the text sent for a prompt. Nil sends the prompt
	// body as is.
	Instruction func(types.PromptSpec) string
	Logger      *zap.Logger
	Metrics     *metrics.Recorder
	Tracer      trace.Tracer
	Sanitizer   *filter.Sanitizer
}

// References are the reference parts sent with every task.
type References struct {
	// Shared goes to every task.
	Shared []genai.Part
	// Hero replaces Shared for the task at position 0 when non-empty.
	Hero []genai.Part
	// PerTask[i] is appended for the task at position i.
	PerTask [][]genai.Part
}

func (r References) parts(pos int) []genai.Part {
	base := r.Shared
	if pos == 0 && len(r.Hero) > 0 {
		base = r.Hero
	}
	out := make([]genai.Part, 0, len(base)+2)
	out = append(out, base...)
	if pos < len(r.PerTask) {
		out = append(out, r.PerTask[pos]...)
	}
	return out
}

// Executor fans a prompt list out to the generation service.
type Executor struct {
	client genai.Client
	sink   Sink
	opts   Options
	tracer trace.Tracer
	log    *zap.Logger
}

// New validates opts and returns an Executor.
func New(client genai.Client, sink Sink, opts Options) (*Executor, error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, opts.Workers)
	}
	if client == nil {
		return nil, errors.New("executor: client is nil")
	}
	if sink == nil {
		return nil, errors.New("executor: sink is nil")
	}
	e := &Executor{client: client, sink: sink, opts: opts, tracer: opts.Tracer, log: opts.Logger}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/yourorg/shotdeck/internal/executor")
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e, nil
}

// Run executes one task per prompt with at most Workers calls in flight and
// returns exactly one outcome per prompt, in prompt order. A failing task
// never affects its siblings; Run itself does not fail.
func (e *Executor) Run(ctx context.Context, prompts []types.PromptSpec, refs References) []types.GenerationOutcome {
	outcomes := make([]types.GenerationOutcome, len(prompts))
	if len(prompts) == 0 {
		return outcomes
	}
	e.log.Info("generation started",
		zap.Int("tasks", len(prompts)),
		zap.Int("workers", e.opts.Workers),
		zap.String("model", e.opts.Model),
	)

	var done atomic.Int32
	// plain Group: a task error must not cancel its siblings
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i := range prompts {
		g.Go(func() error {
			out, err := e.task(ctx, i, prompts[i], refs.parts(i))
			if err != nil {
				out.Error = e.opts.Sanitizer.Sanitize(err.Error())
			}
			outcomes[i] = out
			e.progress(int(done.Add(1)), len(prompts), out)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Executor) task(ctx context.Context, pos int, p types.PromptSpec, refs []genai.Part) (out types.GenerationOutcome, err error) {
	out = types.GenerationOutcome{Index: pos + 1, Label: p.Name, ArtifactPaths: []string{}}

	ctx, span := e.tracer.Start(ctx, "executor.task", trace.WithAttributes(
		attribute.Int("task.index", out.Index),
		attribute.String("task.label", p.Name),
		attribute.String("genai.model", e.opts.Model),
	))
	finish := e.opts.Metrics.TaskStarted(e.opts.Mode)
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("generation task panicked",
				zap.Int("index", out.Index),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("task panicked: %v", rec)
		}
		result := "ok"
		if err != nil {
			result = "error"
			if errors.Is(err, ErrNoArtifacts) {
				result = "empty"
			}
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("task.artifacts", len(out.ArtifactPaths)))
		finish(result, len(out.ArtifactPaths))
		span.End()
	}()

	req := genai.Request{
		Model:         e.opts.Model,
		Parts:         append(refs, genai.TextPart(e.instruction(p))),
		WantArtifacts: true,
	}
	resp, err := e.client.Invoke(ctx, req)
	out.Usage = genai.Usage(req, resp)
	if err != nil {
		return out, err
	}
	if resp == nil {
		return out, ErrNoArtifacts
	}
	out.Text = resp.Text

	switch resp.Kind {
	case genai.Empty:
		return out, ErrNoArtifacts
	case genai.TextOnly:
		e.log.Debug("text-only response", zap.Int("index", out.Index), zap.String("text", truncate(resp.Text, 120)))
		return out, ErrNoArtifacts
	}
	for n, a := range resp.Artifacts {
		name := artifact.FileName(out.Index, p.Name, n+1, artifact.Ext(a.MIMEType, a.Data))
		path, err := e.sink.Save(name, a.Data)
		if err != nil {
			return out, fmt.Errorf("save artifact %s: %w", name, err)
		}
		out.ArtifactPaths = append(out.ArtifactPaths, path)
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (e *Executor) instruction(p types.PromptSpec) string {
	if e.opts.Instruction == nil {
		return p.Body
	}
	return e.opts.Instruction(p)
}

func (e *Executor) progress(done, total int, o types.GenerationOutcome) {
	status := "ok"
	switch {
	case o.Error == ErrNoArtifacts.Error():
		status = "empty"
	case o.Error != "":
		status = "error"
	}
	label := []rune(strings.TrimSpace(o.Label))
	if len(label) > 50 {
		label = label[:50]
	}
	fields := []zap.Field{
		zap.Int("index", o.Index),
		zap.Int("artifacts", len(o.ArtifactPaths)),
	}
	if o.Error != "" {
		fields = append(fields, zap.String("error", o.Error))
	}
	e.log.Info(fmt.Sprintf("[%d/%d] %s %s", done, total, status, string(label)), fields...)
}
