package lawnote

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the law note engine.
type Config struct {
	// Completion service
	Provider string `json:"provider" yaml:"provider"` // gemini, openai, openrouter, groq, ollama, lmstudio, xai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`

	// Generation
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens"`

	// Submission discipline
	MaxAttempts          int  `json:"max_attempts" yaml:"max_attempts"`                       // transport attempts per request
	MinRequestIntervalMS int  `json:"min_request_interval_ms" yaml:"min_request_interval_ms"` // throttle between requests
	Stream               bool `json:"stream" yaml:"stream"`

	// Storage
	DBPath string `json:"db_path" yaml:"db_path"`

	// Segmentation: target characters of note text per extraction call.
	SegmentChars int `json:"segment_chars" yaml:"segment_chars"`

	// Language hints the localized-name fields in the prompts.
	Language string `json:"language" yaml:"language"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"` // debug, info, warn, error
}

// DefaultConfig returns a Config with sensible defaults for a hosted
// completion service. The database is created in the working directory.
func DefaultConfig() Config {
	return Config{
		Provider:             "gemini",
		Model:                "gemini-2.0-flash",
		Temperature:          0.3,
		MaxOutputTokens:      8192,
		MaxAttempts:          3,
		MinRequestIntervalMS: 1000,
		DBPath:               "lawnote.db",
		SegmentChars:         12000,
		Language:             "en",
		LogLevel:             "info",
	}
}

// LoadConfig reads a JSON or YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing json config: %w", err)
		}
	default:
		return cfg, fmt.Errorf("%w: unrecognized config extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
	return cfg, nil
}

// ApplyEnv overrides config fields from LAWNOTE_* environment variables,
// then falls back to the well-known provider key variables when no API key
// is set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LAWNOTE_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("LAWNOTE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("LAWNOTE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LAWNOTE_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("LAWNOTE_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("LAWNOTE_LANGUAGE"); v != "" {
		c.Language = v
	}
	if v := os.Getenv("LAWNOTE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LAWNOTE_SEGMENT_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.SegmentChars = n
		}
	}

	if c.APIKey == "" {
		switch c.Provider {
		case "gemini":
			c.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		case "openrouter":
			c.APIKey = os.Getenv("OPENROUTER_API_KEY")
		case "groq":
			c.APIKey = os.Getenv("GROQ_API_KEY")
		case "xai":
			c.APIKey = os.Getenv("XAI_API_KEY")
		}
	}
}
