package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	assert.Equal(t, "gemini-3-pro-image-preview", c.GenAI.ImageModel)
	assert.Equal(t, 10, c.Generation.Workers)
	assert.Equal(t, 3000, c.Server.Port)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, filepath.Join("outputs", "shotdeck.db"), c.DBPath)
}

func TestLoadFromYAML(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	data := "genai:\n  text_model: gemini-2.0-flash\n  timeout: 45s\n" +
		"generation:\n  workers: 4\n" +
		"output:\n  dir: ./out\n" +
		"pricing:\n  house-model:\n    input_text: 1.5\n    per_image: 0.02\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(data), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", cfg.GenAI.TextModel)
	assert.Equal(t, 45*time.Second, cfg.GenAI.Timeout)
	assert.Equal(t, 4, cfg.Generation.Workers)

	key, rate := cfg.PricingTable().Lookup("house-model")
	assert.Equal(t, "house-model", key)
	assert.Equal(t, 1.5, rate.InputText)
	assert.Equal(t, 0.02, rate.PerArtifact)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-gemini")
	t.Setenv("SHOTDECK_WORKERS", "3")
	t.Setenv("SHOTDECK_OUTPUT_DIR", "/tmp/decks")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-gemini", cfg.GenAI.APIKey)
	assert.Equal(t, 3, cfg.Generation.Workers)
	assert.Equal(t, filepath.Join("/tmp/decks", "shotdeck.db"), cfg.DBPath, "db path follows output dir")

	t.Setenv("SHOTDECK_GENAI_API_KEY", "explicit")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.GenAI.APIKey)
}

func TestMetaPromptPath(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	assert.Equal(t, filepath.Join("prompts", "top.txt"), c.MetaPromptPath("top"))
	assert.Equal(t, filepath.Join("prompts", "title.txt"), c.MetaPromptPath("title"))
	assert.Empty(t, c.MetaPromptPath("adapt"))
}

func TestImageModelAliases(t *testing.T) {
	c := &Config{}
	c.SetDefaults()

	m, err := c.ImageModel("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-3-pro-image-preview", m)

	m, err = c.ImageModel("Imagen")
	require.NoError(t, err)
	assert.Equal(t, "imagen-4.0-generate-001", m)

	_, err = c.ImageModel("dalle")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	c.Output.Dir = t.TempDir()
	require.NoError(t, c.Validate())

	c.GenAI.APIKey = ""
	assert.Error(t, c.ValidateGenerate())

	c.Generation.Workers = -1
	assert.Error(t, c.Validate())
}
