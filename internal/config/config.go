// Package config loads Quilt configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Store     StoreConfig     `mapstructure:"store"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
}

// EmbeddingConfig configures the embedding provider and its retry/pacing
// behavior.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"` // "openai" or "none"
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`

	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`

	NumTries int           `mapstructure:"num_tries"`
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
	Backoff  float64       `mapstructure:"backoff"`
}

// StoreConfig configures the vector store backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // "memory" or "qdrant"
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	VectorSize int    `mapstructure:"vector_size"`
}

// ChunkingConfig configures the default splitter.
type ChunkingConfig struct {
	Splitter string `mapstructure:"splitter"` // "sentence", "line", "html"
	Size     int    `mapstructure:"size"`
	Overlap  int    `mapstructure:"overlap"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"` // file path, "stdout" or "stderr"
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Embedding.Provider != "" && c.Embedding.Provider != "none" && c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider %q is configured but api_key is empty", c.Embedding.Provider))
	}
	if c.Chunking.Size > 0 && c.Chunking.Overlap >= c.Chunking.Size {
		warnings = append(warnings, fmt.Sprintf("chunk overlap %d is not smaller than chunk size %d", c.Chunking.Overlap, c.Chunking.Size))
	}
	if c.Embedding.NumTries < 0 {
		warnings = append(warnings, fmt.Sprintf("embedding num_tries %d is negative", c.Embedding.NumTries))
	}
	if c.Store.Backend == "qdrant" && c.Store.Host == "" {
		warnings = append(warnings, "qdrant backend selected but store.host is empty")
	}
	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("QUILT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.requests_per_minute", 300)
	v.SetDefault("embedding.num_tries", 3)
	v.SetDefault("embedding.min_delay", time.Second)
	v.SetDefault("embedding.max_delay", 30*time.Second)
	v.SetDefault("embedding.backoff", 2.0)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.vector_size", 1536)
	v.SetDefault("audit.output", "stdout")
	v.SetDefault("chunking.splitter", "sentence")
	v.SetDefault("chunking.size", 1500)
	v.SetDefault("chunking.overlap", 200)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}
	return &cfg, nil
}
