package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/internal/docs"
)

// OpenAIClient adapts an OpenAI-compatible API. Text requests go through
// chat completions with images as data URLs; artifact requests go through
// image generation, which takes the text parts only.
type OpenAIClient struct {
	client    *openai.Client
	ImageSize string
	Logger    *zap.Logger
}

// NewOpenAIClient returns a client for apiKey. An empty baseURL keeps the
// library default.
func NewOpenAIClient(apiKey, baseURL string, httpClient *http.Client, logger *zap.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(cfg),
		ImageSize: openai.CreateImageSize1024x1024,
		Logger:    logger,
	}
}

func (c *OpenAIClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("genai request has no model")
	}
	if req.WantArtifacts {
		return c.image(ctx, req)
	}
	return c.chat(ctx, req)
}

func (c *OpenAIClient) chat(ctx context.Context, req Request) (*Response, error) {
	var parts []openai.ChatMessagePart
	hasImage := false
	for _, p := range req.Parts {
		switch {
		case !p.IsBlob():
			if p.Text != "" {
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
			}
		case strings.HasPrefix(p.MIMEType, "image/"):
			hasImage = true
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data),
				},
			})
		default:
			text, err := docs.Text(p.Data, p.MIMEType)
			if err != nil {
				return nil, fmt.Errorf("convert document part: %w", err)
			}
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
		}
	}

	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if hasImage {
		msg.MultiContent = parts
	} else {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			texts = append(texts, p.Text)
		}
		msg.Content = strings.Join(texts, "\n\n")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: []openai.ChatCompletionMessage{msg},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	meta := &Meta{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return NewResponse(text, nil, meta), nil
}

func (c *OpenAIClient) image(ctx context.Context, req Request) (*Response, error) {
	var texts []string
	skipped := 0
	for _, p := range req.Parts {
		if p.IsBlob() {
			skipped++
			continue
		}
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	if skipped > 0 {
		logger(c.Logger).Debug("image generation ignores reference parts", zap.Int("parts", skipped))
	}

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Model:          req.Model,
		Prompt:         strings.Join(texts, "\n\n"),
		N:              1,
		Size:           c.ImageSize,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}

	var artifacts []Artifact
	var revised []string
	for _, d := range resp.Data {
		if d.RevisedPrompt != "" {
			revised = append(revised, d.RevisedPrompt)
		}
		if d.B64JSON == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image data: %w", err)
		}
		artifacts = append(artifacts, Artifact{Data: raw, MIMEType: "image/png"})
	}
	return NewResponse(strings.Join(revised, "\n"), artifacts, nil), nil
}
