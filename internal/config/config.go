package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/photo-game/internal/llm"
)

// Config holds the application configuration.
type Config struct {
	Provider        llm.Provider `yaml:"provider"`
	Model           string       `yaml:"model,omitempty"`
	GeminiAPIKey    string       `yaml:"gemini_api_key,omitempty"`
	AnthropicAPIKey string       `yaml:"anthropic_api_key,omitempty"`
	BaseURL         string       `yaml:"base_url,omitempty"`
	Timeout         string       `yaml:"timeout"`

	// DataDir holds saved runs and the run history database.
	DataDir string `yaml:"data_dir"`
	Addr    string `yaml:"addr"`

	MaxRepairAttempts int    `yaml:"max_repair_attempts"`
	TimeLimit         string `yaml:"time_limit"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Provider:          llm.ProviderGemini,
		Timeout:           "5m",
		DataDir:           ".photogame",
		Addr:              ":8080",
		MaxRepairAttempts: 2,
		TimeLimit:         "2 minutes",
	}
}

// DefaultPath is where LoadConfig looks when no path is given.
func DefaultPath() string {
	return filepath.Join(".photogame", "config.yaml")
}

// LoadConfig builds the configuration from defaults, the YAML file at path
// (optional when path is empty), environment variables and finally the OS
// keyring for a missing API key, then validates it.
func LoadConfig(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is LoadConfig without validation, for commands that never call a
// model.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()

	if cfg.APIKey() == "" {
		if key, err := LookupKey(cfg.Provider); err == nil {
			cfg.setAPIKey(key)
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.GeminiAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.AnthropicAPIKey = v
	}
	if v := os.Getenv("PHOTOGAME_PROVIDER"); v != "" {
		c.Provider = llm.Provider(v)
	}
	if v := os.Getenv("PHOTOGAME_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("PHOTOGAME_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("PHOTOGAME_MAX_REPAIR_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRepairAttempts = n
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Addr = ":" + v
	}
}

// APIKey returns the key for the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == llm.ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.GeminiAPIKey
}

func (c *Config) setAPIKey(key string) {
	if c.Provider == llm.ProviderAnthropic {
		c.AnthropicAPIKey = key
	} else {
		c.GeminiAPIKey = key
	}
}

// Validate reports the first setting that would make the pipeline unusable.
func (c *Config) Validate() error {
	switch c.Provider {
	case llm.ProviderGemini, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.APIKey() == "" {
		if c.Provider == llm.ProviderAnthropic {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		return fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if c.MaxRepairAttempts < 1 {
		return fmt.Errorf("max_repair_attempts must be at least 1, got %d", c.MaxRepairAttempts)
	}
	return nil
}

// LLM returns the backend configuration.
func (c *Config) LLM() llm.Config {
	timeout, _ := time.ParseDuration(c.Timeout)
	return llm.Config{
		Provider: c.Provider,
		APIKey:   c.APIKey(),
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		Timeout:  timeout,
	}
}

// RunsDir is where generated games are saved.
func (c *Config) RunsDir() string {
	return filepath.Join(c.DataDir, "runs")
}

// DatabasePath is the run history database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// Save writes the configuration as YAML. API keys are left out; they belong
// in the environment or the keyring.
func (c *Config) Save(path string) error {
	out := *c
	out.GeminiAPIKey = ""
	out.AnthropicAPIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
