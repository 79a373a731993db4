package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiInvokeArtifacts(t *testing.T) {
	var hit int32
	png := []byte("\x89PNG\r\n\x1a\nfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
		assert.Equal(t, "/models/img-model:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gc, _ := body["generationConfig"].(map[string]any)
		if assert.NotNil(t, gc) {
			assert.Len(t, gc["responseModalities"], 2)
		}
		parts := body["contents"].([]any)[0].(map[string]any)["parts"].([]any)
		assert.Len(t, parts, 2)

		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{
					{"text": "here you go"},
					{"inlineData": map[string]string{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(png)}},
				}},
			}},
			"usageMetadata": map[string]int{"promptTokenCount": 300, "candidatesTokenCount": 1290, "totalTokenCount": 1590},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := &GeminiClient{BaseURL: srv.URL, APIKey: "k"}
	resp, err := client.Invoke(context.Background(), Request{
		Model:         "img-model",
		Parts:         []Part{BlobPart([]byte("ref"), "image/jpeg"), TextPart("make a hero shot")},
		WantArtifacts: true,
	})
	require.NoError(t, err)
	assert.Equal(t, TextAndArtifacts, resp.Kind)
	require.Len(t, resp.Artifacts, 1)
	assert.Equal(t, png, resp.Artifacts[0].Data)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 300, resp.Usage.PromptTokens)
	assert.Equal(t, 1290, resp.Usage.CompletionTokens)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hit))
}

func TestGeminiInvokeEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[]}}]}`))
	}))
	defer srv.Close()

	client := &GeminiClient{BaseURL: srv.URL}
	resp, err := client.Invoke(context.Background(), Request{Model: "m", Parts: []Part{TextPart("x")}})
	require.NoError(t, err)
	assert.Equal(t, Empty, resp.Kind)
	assert.Nil(t, resp.Usage)
}

func TestGeminiNoRetryOn5xx(t *testing.T) {
	var hit int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	client := &GeminiClient{BaseURL: srv.URL}
	_, err := client.Invoke(context.Background(), Request{Model: "m", Parts: []Part{TextPart("x")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hit), "a single attempt")
}

func TestGeminiBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	client := &GeminiClient{BaseURL: srv.URL}
	_, err := client.Invoke(context.Background(), Request{Model: "m", Parts: []Part{TextPart("x")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestInvokeRequiresModel(t *testing.T) {
	client := &GeminiClient{BaseURL: "http://127.0.0.1:0"}
	_, err := client.Invoke(context.Background(), Request{})
	assert.Error(t, err)
}

func TestNewResponseKinds(t *testing.T) {
	assert.Equal(t, Empty, NewResponse("", nil, nil).Kind)
	assert.Equal(t, Empty, NewResponse("  ", nil, nil).Kind, "whitespace text")
	assert.Equal(t, TextOnly, NewResponse("hi", nil, nil).Kind)
	assert.Equal(t, TextAndArtifacts, NewResponse("", []Artifact{{Data: []byte{1}}}, nil).Kind)
}

func TestUsageFromResponse(t *testing.T) {
	req := Request{Model: "m", Parts: []Part{
		TextPart("hello world"),
		BlobPart(make([]byte, 150*1024), "image/png"),
		BlobPart(make([]byte, 10), "application/pdf"),
	}}
	resp := NewResponse("done", []Artifact{{Data: []byte{1}}, {Data: []byte{2}}}, &Meta{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10})

	u := Usage(req, resp)
	assert.Equal(t, "m", u.Model)
	assert.Equal(t, 7, u.PromptTokens)
	assert.Equal(t, 3, u.CompletionTokens)
	assert.Equal(t, 10, u.TotalTokens)

	assert.Equal(t, 3, u.InputTextTokens)
	assert.Equal(t, 516, u.InputImageTokens)
	assert.Equal(t, 258, u.InputDocumentTokens)
	assert.Equal(t, 2, u.OutputArtifactCount)
	assert.Equal(t, 1, u.OutputTextTokens)
}

func TestNewProvider(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, c, "gemini by default")

	c, err = New(Options{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = New(Options{Provider: "nope"})
	assert.Error(t, err)
}
