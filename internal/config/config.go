package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models briefline.yml.
type Config struct {
	Server struct {
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret         string `yaml:"jwt_secret"`
		AllowLegacyHeader bool   `yaml:"allow_legacy_header"`
	} `yaml:"auth"`
	Enrichment struct {
		NormalizeEnabled  bool          `yaml:"normalize_enabled"`
		GeneratorEnabled  bool          `yaml:"generator_enabled"`
		QuestionerEnabled bool          `yaml:"questioner_enabled"`
		NormalizeTimeout  time.Duration `yaml:"normalize_timeout"`
		GeneratorTimeout  time.Duration `yaml:"generator_timeout"`
		QuestionerTimeout time.Duration `yaml:"questioner_timeout"`
	} `yaml:"enrichment"`
	Provider struct {
		Kind      string `yaml:"kind"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		GeminiKey string `yaml:"gemini_key"`
	} `yaml:"provider"`
	Idempotency struct {
		Window     time.Duration `yaml:"window"`
		SweepEvery time.Duration `yaml:"sweep_every"`
		RedisURL   string        `yaml:"redis_url"`
	} `yaml:"idempotency"`
	Pricing struct {
		DefaultBudgetMin float64 `yaml:"default_budget_min"`
		DefaultBudgetMax float64 `yaml:"default_budget_max"`
	} `yaml:"pricing"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with bl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v1"
	}
	if c.Enrichment.NormalizeTimeout <= 0 {
		c.Enrichment.NormalizeTimeout = 5 * time.Second
	}
	if c.Enrichment.GeneratorTimeout <= 0 {
		c.Enrichment.GeneratorTimeout = 8 * time.Second
	}
	if c.Enrichment.QuestionerTimeout <= 0 {
		c.Enrichment.QuestionerTimeout = 3 * time.Second
	}
	if c.Idempotency.Window <= 0 {
		c.Idempotency.Window = 15 * time.Minute
	}
	if c.Idempotency.SweepEvery <= 0 {
		c.Idempotency.SweepEvery = 5 * time.Minute
	}
	if c.Pricing.DefaultBudgetMin <= 0 {
		c.Pricing.DefaultBudgetMin = 5000
	}
	if c.Pricing.DefaultBudgetMax <= 0 {
		c.Pricing.DefaultBudgetMax = 8000
	}
	if c.Pricing.DefaultBudgetMax < c.Pricing.DefaultBudgetMin {
		return fmt.Errorf("config.pricing.default_budget_max must be >= default_budget_min")
	}
	switch c.Provider.Kind {
	case "", "none", "http", "gemini":
	default:
		return fmt.Errorf("config.provider.kind must be one of none, http, gemini")
	}
	if c.Provider.Kind == "http" && c.Provider.BaseURL == "" {
		return fmt.Errorf("config.provider.base_url is required when provider.kind is http")
	}
	if c.Provider.Kind == "gemini" && c.Provider.GeminiKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("config.provider.gemini_key or GEMINI_API_KEY is required when provider.kind is gemini")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "briefline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	_ = cfg.Validate()
	return &cfg
}

const defaultTemplate = `server:
  base_path: /v1

auth:
  jwt_secret: ""
  allow_legacy_header: true

enrichment:
  normalize_enabled: true
  generator_enabled: true
  questioner_enabled: true
  normalize_timeout: 5s
  generator_timeout: 8s
  questioner_timeout: 3s

provider:
  kind: none
  base_url: ""
  api_key: ""
  gemini_key: ""

idempotency:
  window: 15m
  sweep_every: 5m
  redis_url: ""

pricing:
  default_budget_min: 5000
  default_budget_max: 8000
`
