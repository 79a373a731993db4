// Package genai is the boundary to the remote generation service.
package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/internal/usage"
	"github.com/yourorg/shotdeck/pkg/types"
)

// Part is one piece of request content: text or an inline blob.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// TextPart returns a text part.
func TextPart(s string) Part { return Part{Text: s} }

// BlobPart returns an inline binary part.
func BlobPart(data []byte, mimeType string) Part { return Part{Data: data, MIMEType: mimeType} }

// IsBlob reports whether p carries binary data.
func (p Part) IsBlob() bool { return len(p.Data) > 0 }

// Request is one generation call.
type Request struct {
	Model         string
	Parts         []Part
	WantArtifacts bool
}

// Kind classifies a response.
type Kind int

const (
	Empty Kind = iota
	TextOnly
	TextAndArtifacts
)

func (k Kind) String() string {
	switch k {
	case TextOnly:
		return "text"
	case TextAndArtifacts:
		return "artifacts"
	default:
		return "empty"
	}
}

// Artifact is one generated binary output.
type Artifact struct {
	Data     []byte
	MIMEType string
}

// Meta is the usage metadata reported by the service.
type Meta struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the classified result of one call. Empty text and an empty
// artifact list are both valid.
type Response struct {
	Kind      Kind
	Text      string
	Artifacts []Artifact
	Usage     *Meta
}

// NewResponse classifies text and artifacts into a Response.
func NewResponse(text string, artifacts []Artifact, meta *Meta) *Response {
	r := &Response{Text: text, Artifacts: artifacts, Usage: meta}
	switch {
	case len(artifacts) > 0:
		r.Kind = TextAndArtifacts
	case strings.TrimSpace(text) != "":
		r.Kind = TextOnly
	default:
		r.Kind = Empty
	}
	return r
}

// ErrEmptyResponse is reported when a client returns neither a response
// nor an error.
var ErrEmptyResponse = errors.New("genai: empty response")

// Client invokes the generation service once per call. A nil error comes
// with a non-nil Response; callers treat a nil one as ErrEmptyResponse.
type Client interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Options selects and configures a provider.
type Options struct {
	Provider   string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New returns the client for opts.Provider ("gemini" or "openai").
func New(opts Options) (Client, error) {
	switch strings.ToLower(opts.Provider) {
	case "", "gemini", "google":
		return &GeminiClient{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
		}, nil
	case "openai":
		return NewOpenAIClient(opts.APIKey, opts.BaseURL, opts.HTTPClient, opts.Logger), nil
	default:
		return nil, fmt.Errorf("unknown genai provider %q", opts.Provider)
	}
}

// Estimate returns the estimated input breakdown of parts: text tokens,
// image tokens for image blobs and document tokens for everything else.
func Estimate(parts []Part) types.Usage {
	var u types.Usage
	for _, p := range parts {
		switch {
		case !p.IsBlob():
			u.InputTextTokens += usage.EstimateText(p.Text)
		case strings.HasPrefix(p.MIMEType, "image/"):
			u.InputImageTokens += usage.EstimateImage(len(p.Data))
		default:
			u.InputDocumentTokens += usage.EstimateDocument(len(p.Data))
		}
	}
	return u
}

// Usage combines the service metadata of resp with the estimated input
// breakdown of req and the number of produced artifacts.
func Usage(req Request, resp *Response) types.Usage {
	u := Estimate(req.Parts)
	u.Model = req.Model
	if resp == nil {
		return u
	}
	if resp.Usage != nil {
		u.PromptTokens = resp.Usage.PromptTokens
		u.CompletionTokens = resp.Usage.CompletionTokens
		u.TotalTokens = resp.Usage.TotalTokens
	}
	u.OutputTextTokens = usage.EstimateText(resp.Text)
	u.OutputArtifactCount = len(resp.Artifacts)
	return u
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
