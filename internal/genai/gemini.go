package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultGeminiBaseURL is the public Generative Language API endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Gemini generateContent REST endpoint. Each Invoke
// is a single attempt.
type GeminiClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

func (c *GeminiClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("genai request has no model")
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 300 * time.Second}
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultGeminiBaseURL
	}
	endpoint := strings.TrimRight(base, "/") + "/models/" + req.Model + ":generateContent"

	body, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, err
	}
	log := logger(c.Logger)
	log.Debug("genai request", zap.String("url", endpoint), zap.Int("parts", len(req.Parts)), zap.Bool("artifacts", req.WantArtifacts))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("x-goog-api-key", c.APIKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("genai error status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out geminiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode genai response: %w", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" && len(out.Candidates) == 0 {
		return nil, fmt.Errorf("genai request blocked: %s", out.PromptFeedback.BlockReason)
	}

	var text strings.Builder
	var artifacts []Artifact
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				text.WriteString(p.Text)
			}
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline data: %w", err)
			}
			artifacts = append(artifacts, Artifact{Data: raw, MIMEType: p.InlineData.MIMEType})
		}
	}

	var meta *Meta
	if out.UsageMetadata != nil {
		meta = &Meta{
			PromptTokens:     out.UsageMetadata.PromptTokenCount,
			CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      out.UsageMetadata.TotalTokenCount,
		}
	}
	r := NewResponse(text.String(), artifacts, meta)
	log.Debug("genai response", zap.Stringer("kind", r.Kind), zap.Int("artifacts", len(artifacts)))
	return r, nil
}

func buildGeminiRequest(req Request) geminiRequest {
	parts := make([]geminiPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.IsBlob() {
			parts = append(parts, geminiPart{InlineData: &geminiBlob{
				MIMEType: p.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			}})
			continue
		}
		if p.Text != "" {
			parts = append(parts, geminiPart{Text: p.Text})
		}
	}
	gr := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: parts}}}
	if req.WantArtifacts {
		gr.GenerationConfig = &geminiGenConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}
	}
	return gr
}
