package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/shotdeck/internal/usage"
)

const defaultConfigRelPath = ".shotdeck/config.yaml"

// ErrUnknownModel is returned for an image model alias that is not defined.
var ErrUnknownModel = errors.New("unknown model")

// ImageModelAliases are the short names accepted for the image model of a
// run.
var ImageModelAliases = map[string]string{
	"gemini":       "gemini-2.0-flash-exp",
	"gemini-3":     "gemini-3-pro-image-preview",
	"imagen":       "imagen-4.0-generate-001",
	"imagen-ultra": "imagen-4.0-ultra-generate-001",
}

type GenAIConfig struct {
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	TextModel  string        `yaml:"text_model"`
	ImageModel string        `yaml:"image_model"`
	Timeout    time.Duration `yaml:"timeout"`
}

type GenerationConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

type OutputConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

type CatalogConfig struct {
	Dir                string   `yaml:"dir"`
	ImageExtensions    []string `yaml:"image_extensions"`
	DocumentExtensions []string `yaml:"document_extensions"`
	IgnorePaths        []string `yaml:"ignore_paths"`
}

type PromptsConfig struct {
	Dir   string            `yaml:"dir"`
	Modes map[string]string `yaml:"modes"`
}

type SanitizeConfig struct {
	Params      []string `yaml:"params"`
	Replacement string   `yaml:"replacement"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type Config struct {
	GenAI      GenAIConfig           `yaml:"genai"`
	Generation GenerationConfig      `yaml:"generation"`
	Output     OutputConfig          `yaml:"output"`
	Catalog    CatalogConfig         `yaml:"catalog"`
	Prompts    PromptsConfig         `yaml:"prompts"`
	Sanitize   SanitizeConfig        `yaml:"sanitize"`
	Pricing    map[string]usage.Rate `yaml:"pricing"`
	Server     ServerConfig          `yaml:"server"`
	Log        LogConfig             `yaml:"log"`
	Telemetry  TelemetryConfig       `yaml:"telemetry"`
	DBPath     string                `yaml:"db_path"`
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigRelPath)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.SetDefaults()
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.GenAI.Provider == "" {
		c.GenAI.Provider = "gemini"
	}
	if c.GenAI.TextModel == "" {
		c.GenAI.TextModel = "gemini-3-flash-preview"
	}
	if c.GenAI.ImageModel == "" {
		c.GenAI.ImageModel = "gemini-3-pro-image-preview"
	}
	if c.GenAI.Timeout == 0 {
		c.GenAI.Timeout = 300 * time.Second
	}
	if c.Generation.Workers == 0 {
		c.Generation.Workers = 10
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = 30 * time.Minute
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "./outputs"
	}
	if len(c.Output.Formats) == 0 {
		c.Output.Formats = []string{"json", "markdown"}
	}
	if c.Catalog.Dir == "" {
		c.Catalog.Dir = "./catalog"
	}
	if len(c.Catalog.ImageExtensions) == 0 {
		c.Catalog.ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}
	}
	if len(c.Catalog.DocumentExtensions) == 0 {
		c.Catalog.DocumentExtensions = []string{".pdf", ".txt", ".md"}
	}
	if len(c.Catalog.IgnorePaths) == 0 {
		c.Catalog.IgnorePaths = []string{".DS_Store", "/.", "/outputs/"}
	}
	if c.Prompts.Dir == "" {
		c.Prompts.Dir = "./prompts"
	}
	if len(c.Prompts.Modes) == 0 {
		c.Prompts.Modes = map[string]string{
			"cover":   "cover.txt",
			"preview": "preview.txt",
			"top":     "top.txt",
			"title":   "title.txt",
		}
	}
	if len(c.Sanitize.Params) == 0 {
		c.Sanitize.Params = []string{"key", "api_key", "apikey", "token", "access_token", "x-goog-api-key", "authorization"}
	}
	if c.Sanitize.Replacement == "" {
		c.Sanitize.Replacement = "***REDACTED***"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "shotdeck"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.Output.Dir, "shotdeck.db")
	}
}

// MetaPromptPath returns the meta prompt file of mode, or "" when the mode
// has none.
func (c *Config) MetaPromptPath(mode string) string {
	name, ok := c.Prompts.Modes[mode]
	if !ok || name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Prompts.Dir, name)
}

// ImageModel resolves an alias to an image model. An empty alias selects
// genai.image_model.
func (c *Config) ImageModel(alias string) (string, error) {
	alias = strings.ToLower(strings.TrimSpace(alias))
	if alias == "" {
		return c.GenAI.ImageModel, nil
	}
	if m, ok := ImageModelAliases[alias]; ok {
		return m, nil
	}
	names := make([]string, 0, len(ImageModelAliases))
	for k := range ImageModelAliases {
		names = append(names, k)
	}
	sort.Strings(names)
	return "", fmt.Errorf("%w: %q (available: %s)", ErrUnknownModel, alias, strings.Join(names, ", "))
}

// PricingTable returns the built-in pricing table with configured overrides.
func (c *Config) PricingTable() usage.Pricing {
	return usage.DefaultPricing().With(c.Pricing)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir cannot be empty")
	}
	if c.Generation.Workers < 1 {
		return fmt.Errorf("generation.workers must be at least 1, got %d", c.Generation.Workers)
	}
	if err := ensureWritableDir(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir not writable: %w", err)
	}
	return nil
}

// ValidateGenerate enforces generate-specific requirements.
func (c *Config) ValidateGenerate() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.GenAI.APIKey) == "" {
		return errors.New("genai.api_key cannot be empty (set GEMINI_API_KEY or SHOTDECK_GENAI_API_KEY)")
	}
	return nil
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func applyEnvOverrides(c *Config) {
	setString(&c.GenAI.APIKey, "GEMINI_API_KEY")
	setString(&c.GenAI.Provider, "SHOTDECK_GENAI_PROVIDER")
	setString(&c.GenAI.APIKey, "SHOTDECK_GENAI_API_KEY")
	setString(&c.GenAI.BaseURL, "SHOTDECK_GENAI_BASE_URL")
	setString(&c.GenAI.TextModel, "SHOTDECK_GENAI_TEXT_MODEL")
	setString(&c.GenAI.ImageModel, "SHOTDECK_GENAI_IMAGE_MODEL")
	setDuration(&c.GenAI.Timeout, "SHOTDECK_GENAI_TIMEOUT")
	setInt(&c.Generation.Workers, "SHOTDECK_WORKERS")
	setDuration(&c.Generation.Timeout, "SHOTDECK_GENERATION_TIMEOUT")
	setString(&c.Output.Dir, "SHOTDECK_OUTPUT_DIR")
	setString(&c.Catalog.Dir, "SHOTDECK_CATALOG_DIR")
	setString(&c.Prompts.Dir, "SHOTDECK_PROMPTS_DIR")
	setString(&c.Server.Host, "SHOTDECK_SERVER_HOST")
	setInt(&c.Server.Port, "SHOTDECK_SERVER_PORT")
	setString(&c.Log.Level, "SHOTDECK_LOG_LEVEL")
	setString(&c.Log.Format, "SHOTDECK_LOG_FORMAT")
	setString(&c.Telemetry.Endpoint, "SHOTDECK_OTLP_ENDPOINT")
	setBool(&c.Telemetry.Insecure, "SHOTDECK_OTLP_INSECURE")
	setString(&c.DBPath, "SHOTDECK_DB_PATH")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
