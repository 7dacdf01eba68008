package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the quote finder.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StoreConfig describes where the prepared vector store lives.
type StoreConfig struct {
	Format string `yaml:"format" validate:"oneof=json bolt"` // "json" (embeddings.json) or "bolt"
	Path   string `yaml:"path" validate:"required"`
}

// CorpusConfig describes the raw quote files used by the offline prepare step.
type CorpusConfig struct {
	Includes    []string `yaml:"includes" validate:"min=1"`
	Excludes    []string `yaml:"excludes"`
	Concurrency int      `yaml:"concurrency" validate:"gte=1,lte=64"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK           int     `yaml:"top_k" validate:"gte=1"`
	MinSimilarity  float64 `yaml:"min_similarity" validate:"gte=0,lte=1"` // Drop matches below this score (0 = disabled)
	MaxTopicLength int     `yaml:"max_topic_length" validate:"gte=1"`
	DefaultTopic   string  `yaml:"default_topic"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider" validate:"oneof=openai deepseek jina ollama mock"`
	Model     string        `yaml:"model" validate:"required"`
	APIKeyEnv string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string        `yaml:"base_url"`
	Dimension int           `yaml:"dimension" validate:"gte=0"`
	BatchSize int           `yaml:"batch_size" validate:"gte=1"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
}

// GenerationConfig holds narrative generation configuration.
// When Enabled is false, or the API key is missing, every narrative uses the fallback template.
type GenerationConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Provider    string        `yaml:"provider" validate:"oneof=openai deepseek ollama"`
	Model       string        `yaml:"model" validate:"required_if=Enabled true"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `yaml:"max_tokens" validate:"gte=1"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
}

// CacheConfig controls the query embedding cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxSize int           `yaml:"max_size" validate:"gte=0"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
}

// ServerConfig holds the HTTP adapter configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Format: "json",
			Path:   "embeddings.json",
		},
		Corpus: CorpusConfig{
			Includes:    []string{"**/*.csv"},
			Excludes:    []string{"**/.git/**"},
			Concurrency: 4,
		},
		Retrieve: RetrieveConfig{
			TopK:           3,
			MaxTopicLength: 500,
			DefaultTopic:   "Business",
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
			BatchSize: 100,
			Timeout:   30 * time.Second,
		},
		Generation: GenerationConfig{
			Enabled:     true,
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.7,
			MaxTokens:   500,
			Timeout:     60 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 256,
			TTL:     10 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints declared on the config structs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for quotes.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "quotes.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".quotes", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StorePath resolves the store path relative to dir unless it is absolute.
func (c *Config) StorePath(dir string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(dir, c.Store.Path)
}

// APIKey reads the key named by env, returning "" when env is empty or unset.
func APIKey(env string) string {
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}
