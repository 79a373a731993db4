package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/shotdeck/internal/filter"
	"github.com/yourorg/shotdeck/internal/genai"
	"github.com/yourorg/shotdeck/pkg/types"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type memSink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemSink() *memSink { return &memSink{files: map[string][]byte{}} }

func (s *memSink) Save(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	return path.Join("/out", name), nil
}

// fakeClient answers by the last text part of the request.
type fakeClient struct {
	respond  func(prompt string) (*genai.Response, error)
	maxDelay time.Duration

	mu       sync.Mutex
	requests []genai.Request

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *fakeClient) Invoke(ctx context.Context, req genai.Request) (*genai.Response, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(c.maxDelay))))
	}
	prompt := req.Parts[len(req.Parts)-1].Text
	if c.respond != nil {
		return c.respond(prompt)
	}
	return imageResponse(1), nil
}

func imageResponse(n int) *genai.Response {
	arts := make([]genai.Artifact, n)
	for i := range arts {
		arts[i] = genai.Artifact{Data: png, MIMEType: "image/png"}
	}
	return genai.NewResponse("", arts, &genai.Meta{PromptTokens: 100, CompletionTokens: 1290, TotalTokens: 1390})
}

func prompts(n int) []types.PromptSpec {
	out := make([]types.PromptSpec, n)
	for i := range out {
		out[i] = types.PromptSpec{Index: i + 1, Name: fmt.Sprintf("Shot %d", i+1), Body: fmt.Sprintf("prompt-%d", i+1)}
	}
	return out
}

func TestNewRejectsInvalidWorkers(t *testing.T) {
	for _, w := range []int{0, -3} {
		_, err := New(&fakeClient{}, newMemSink(), Options{Workers: w})
		assert.ErrorIs(t, err, ErrInvalidWorkers)
	}
}

func TestRunPreservesOrderUnderRandomLatency(t *testing.T) {
	client := &fakeClient{maxDelay: 20 * time.Millisecond}
	e, err := New(client, newMemSink(), Options{Workers: 4, Model: "img"})
	require.NoError(t, err)

	in := prompts(12)
	out := e.Run(context.Background(), in, References{})
	require.Len(t, out, len(in))
	for i, o := range out {
		assert.Equal(t, i+1, o.Index)
		assert.Equal(t, in[i].Name, o.Label)
		assert.Empty(t, o.Error)
		require.Len(t, o.ArtifactPaths, 1)
		assert.Equal(t, fmt.Sprintf("/out/%02d_Shot_%d.png", i+1, i+1), o.ArtifactPaths[0])
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	client := &fakeClient{respond: func(p string) (*genai.Response, error) {
		if p == "prompt-2" {
			return nil, errors.New("service unavailable")
		}
		return imageResponse(1), nil
	}}
	e, err := New(client, newMemSink(), Options{Workers: 2})
	require.NoError(t, err)

	out := e.Run(context.Background(), prompts(3), References{})
	require.Len(t, out, 3)
	assert.Empty(t, out[0].Error)
	assert.Len(t, out[0].ArtifactPaths, 1)
	assert.Equal(t, "service unavailable", out[1].Error)
	assert.Empty(t, out[1].ArtifactPaths)
	assert.Empty(t, out[2].Error)
	assert.Len(t, out[2].ArtifactPaths, 1)
}

func TestRunRecoversPanics(t *testing.T) {
	client := &fakeClient{respond: func(p string) (*genai.Response, error) {
		if p == "prompt-1" {
			panic("decoder exploded")
		}
		return imageResponse(1), nil
	}}
	e, err := New(client, newMemSink(), Options{Workers: 2})
	require.NoError(t, err)

	out := e.Run(context.Background(), prompts(2), References{})
	assert.Contains(t, out[0].Error, "decoder exploded")
	assert.Empty(t, out[1].Error)
}

func TestRunFlagsZeroArtifacts(t *testing.T) {
	client := &fakeClient{respond: func(string) (*genai.Response, error) {
		return genai.NewResponse("I can only describe it.", nil, nil), nil
	}}
	e, err := New(client, newMemSink(), Options{Workers: 1})
	require.NoError(t, err)

	out := e.Run(context.Background(), prompts(1), References{})
	assert.Equal(t, "no artifacts produced", out[0].Error)
	assert.Equal(t, "I can only describe it.", out[0].Text)
	assert.NotNil(t, out[0].ArtifactPaths)
	assert.Empty(t, out[0].ArtifactPaths)
}

func TestRunFlagsEmptyResponses(t *testing.T) {
	responses := []*genai.Response{nil, genai.NewResponse("  ", nil, nil)}
	client := &fakeClient{respond: func(prompt string) (*genai.Response, error) {
		if strings.HasSuffix(prompt, "1") {
			return responses[0], nil
		}
		return responses[1], nil
	}}
	e, err := New(client, newMemSink(), Options{Workers: 2})
	require.NoError(t, err)

	out := e.Run(context.Background(), prompts(2), References{})
	require.Len(t, out, 2)
	for _, o := range out {
		assert.Equal(t, ErrNoArtifacts.Error(), o.Error)
		assert.Empty(t, o.ArtifactPaths)
	}
}

func TestRunNeverExceedsWorkerBudget(t *testing.T) {
	client := &fakeClient{maxDelay: 10 * time.Millisecond}
	e, err := New(client, newMemSink(), Options{Workers: 3})
	require.NoError(t, err)

	e.Run(context.Background(), prompts(20), References{})
	assert.LessOrEqual(t, int(client.peak.Load()), 3)
	assert.Len(t, client.requests, 20)
}

func TestRunMultipleArtifactsGetSequenceSuffix(t *testing.T) {
	sink := newMemSink()
	client := &fakeClient{respond: func(string) (*genai.Response, error) { return imageResponse(3), nil }}
	e, err := New(client, sink, Options{Workers: 1})
	require.NoError(t, err)

	out := e.Run(context.Background(), []types.PromptSpec{{Index: 1, Name: "Hero", Body: "x"}}, References{})
	assert.Equal(t, []string{"/out/01_Hero.png", "/out/01_Hero_2.png", "/out/01_Hero_3.png"}, out[0].ArtifactPaths)
	assert.Len(t, sink.files, 3)
	assert.Equal(t, 3, out[0].Usage.OutputArtifactCount)
}

func TestRunReferencePlacement(t *testing.T) {
	client := &fakeClient{}
	e, err := New(client, newMemSink(), Options{Workers: 1, Instruction: func(p types.PromptSpec) string {
		return "render: " + p.Body
	}})
	require.NoError(t, err)

	shared := genai.BlobPart(png, "image/png")
	hero := []genai.Part{shared, shared, shared}
	perTask := [][]genai.Part{nil, {genai.BlobPart([]byte("GIF89a"), "image/gif")}}

	e.Run(context.Background(), prompts(3), References{Shared: []genai.Part{shared}, Hero: hero, PerTask: perTask})

	byPrompt := map[string]genai.Request{}
	for _, r := range client.requests {
		byPrompt[r.Parts[len(r.Parts)-1].Text] = r
	}
	require.Len(t, byPrompt, 3)
	assert.Len(t, byPrompt["render: prompt-1"].Parts, 4)
	assert.Len(t, byPrompt["render: prompt-2"].Parts, 3)
	assert.Equal(t, "image/gif", byPrompt["render: prompt-2"].Parts[1].MIMEType)
	assert.Len(t, byPrompt["render: prompt-3"].Parts, 2)
	for _, r := range client.requests {
		assert.True(t, r.WantArtifacts)
	}
}

func TestRunUsagePerTask(t *testing.T) {
	e, err := New(&fakeClient{}, newMemSink(), Options{Workers: 2, Model: "gemini-3-pro-image-preview"})
	require.NoError(t, err)

	out := e.Run(context.Background(), prompts(2), References{Shared: []genai.Part{genai.BlobPart(png, "image/png")}})
	for _, o := range out {
		assert.Equal(t, 100, o.Usage.PromptTokens)
		assert.Equal(t, 1290, o.Usage.CompletionTokens)
		assert.Equal(t, 258, o.Usage.InputImageTokens)
		assert.Positive(t, o.Usage.InputTextTokens)
		assert.Equal(t, 1, o.Usage.OutputArtifactCount)
		assert.Equal(t, "gemini-3-pro-image-preview", o.Usage.Model)
	}
}

func TestRunRedactsErrors(t *testing.T) {
	client := &fakeClient{respond: func(string) (*genai.Response, error) {
		return nil, errors.New("request failed: key=sk-live-123456 rejected")
	}}
	san := filter.NewSanitizer(filter.SanitizeConfig{Params: []string{"key"}}, "sk-live-123456")
	e, err := New(client, newMemSink(), Options{Workers: 1, Sanitizer: san})
	require.NoError(t, err)

	out := e.Run(context.Background(), prompts(1), References{})
	assert.NotContains(t, out[0].Error, "sk-live-123456")
	assert.True(t, strings.HasPrefix(out[0].Error, "request failed"))
}

func TestRunEmptyPromptList(t *testing.T) {
	client := &fakeClient{}
	e, err := New(client, newMemSink(), Options{Workers: 2})
	require.NoError(t, err)

	assert.Empty(t, e.Run(context.Background(), nil, References{}))
	assert.Empty(t, client.requests)
}
