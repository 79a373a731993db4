package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSecretsAndParams(t *testing.T) {
	s := NewSanitizer(SanitizeConfig{Params: []string{"key", "api_key", "x-goog-api-key"}, Replacement: "XXX"}, "AIzaSECRET123")

	cases := map[string]string{
		`Post "https://host/v1/models/m:generateContent?key=AIzaSECRET123": dial tcp`: `Post "https://host/v1/models/m:generateContent?key=XXX": dial tcp`,
		`status 400: {"error":{"api_key":"abc"}}`:                                    `status 400: {"error":{"api_key":"XXX"}}`,
		`header x-goog-api-key: other-secret rejected`:                               `header x-goog-api-key: XXX rejected`,
		`nothing sensitive here`:                                                     `nothing sensitive here`,
	}
	for in, want := range cases {
		assert.Equal(t, want, s.Sanitize(in), in)
	}
}

func TestSanitizeLiteralSecretAnywhere(t *testing.T) {
	s := NewSanitizer(SanitizeConfig{}, "sk-live-abcdef")
	got := s.Sanitize("auth failed for sk-live-abcdef")
	assert.NotContains(t, got, "sk-live-abcdef")
	assert.Contains(t, got, "***REDACTED***")
}

func TestSanitizeNil(t *testing.T) {
	var s *Sanitizer
	assert.Equal(t, "key=abc", s.Sanitize("key=abc"))
}
