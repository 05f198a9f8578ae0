// Package config loads and validates markstash configuration.
// Settings apply in order of increasing precedence: hardcoded defaults,
// user config (~/.config/markstash/config.yaml), then MARKSTASH_*
// environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete markstash configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Pipeline   PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig configures where markstash keeps its data.
type PathsConfig struct {
	// DataDir holds the SQLite database and the vector/lexical indexes.
	// Defaults to ~/.markstash.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SearchConfig configures hybrid retrieval.
// Weights are configurable via config file or env vars
// (MARKSTASH_SEMANTIC_WEIGHT, MARKSTASH_LEXICAL_WEIGHT) and must sum to 1.0.
type SearchConfig struct {
	// SemanticWeight is the fusion weight for vector similarity (0.0-1.0).
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// LexicalWeight is the fusion weight for keyword matching (0.0-1.0).
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// ExcellentThreshold is the fused score above which the best result is
	// considered an excellent match and the result band tightens around it.
	ExcellentThreshold float64 `yaml:"excellent_threshold" json:"excellent_threshold"`

	// GoodThreshold is the fused score above which the best result is a
	// good match. Below it all candidates are kept.
	GoodThreshold float64 `yaml:"good_threshold" json:"good_threshold"`

	// MaxResults caps the number of results returned per query.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// CandidateMultiplier widens the per-index candidate pool relative to
	// MaxResults so owner filtering and fusion have room to work.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "openai" or "ollama".
	// Empty triggers auto-detection (openai if OPENAI_API_KEY set, else ollama).
	Provider string `yaml:"provider" json:"provider"`

	// Model and Dimensions override the selected provider's defaults
	// (text-embedding-3-small/1536 for openai, nomic-embed-text with
	// detected dimensions for ollama). Leave zero unless the provider
	// runs a non-default model.
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`

	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OpenAI settings
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	// Ollama settings
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// CacheSize is the LRU capacity for cached embeddings (0 disables caching).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ChunkingConfig configures content chunking.
type ChunkingConfig struct {
	// MaxChars is the chunk size budget in characters.
	MaxChars int `yaml:"max_chars" json:"max_chars"`
	// OverlapChars is how much trailing text each chunk shares with the next.
	OverlapChars int `yaml:"overlap_chars" json:"overlap_chars"`
}

// PipelineConfig configures the ingestion worker pool and job queue.
type PipelineConfig struct {
	// Workers is the number of concurrent pipeline workers.
	Workers int `yaml:"workers" json:"workers"`
	// MaxAttempts is the number of attempts before a job is dead-lettered.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// PollInterval is how often an idle worker polls the queue.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// StageTimeout bounds each pipeline stage (extract, embed batch, index).
	StageTimeout time.Duration `yaml:"stage_timeout" json:"stage_timeout"`
	// FetchTimeout bounds a single content fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: DefaultDataDir(),
		},
		Search: SearchConfig{
			SemanticWeight:      0.65,
			LexicalWeight:       0.35,
			ExcellentThreshold:  0.70,
			GoodThreshold:       0.40,
			MaxResults:          20,
			CandidateMultiplier: 5,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // auto-detect
			Model:      "", // provider default
			Dimensions: 0,  // provider default
			BatchSize:  32,
			OllamaHost: "", // empty uses http://localhost:11434
			CacheSize:  1000,
		},
		Chunking: ChunkingConfig{
			MaxChars:     2048,
			OverlapChars: 200,
		},
		Pipeline: PipelineConfig{
			Workers:      runtime.NumCPU(),
			MaxAttempts:  4,
			PollInterval: 2 * time.Second,
			StageTimeout: 2 * time.Minute,
			FetchTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DefaultDataDir returns the default data directory (~/.markstash).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".markstash")
	}
	return filepath.Join(home, ".markstash")
}

// UserConfigPath returns the path of the user configuration file.
// Follows XDG: $XDG_CONFIG_HOME/markstash/config.yaml, else
// ~/.config/markstash/config.yaml.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "markstash", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "markstash", "config.yaml")
	}
	return filepath.Join(home, ".config", "markstash", "config.yaml")
}

// Load builds the effective configuration: defaults, then the user config
// file if present, then environment overrides, then validation.
func Load() (*Config, error) {
	return LoadFrom(UserConfigPath())
}

// LoadFrom is Load with an explicit config file path, used by tests and the
// --config flag. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := NewConfig()

	if fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.ExcellentThreshold != 0 {
		c.Search.ExcellentThreshold = other.Search.ExcellentThreshold
	}
	if other.Search.GoodThreshold != 0 {
		c.Search.GoodThreshold = other.Search.GoodThreshold
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.CandidateMultiplier != 0 {
		c.Search.CandidateMultiplier = other.Search.CandidateMultiplier
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OpenAIBaseURL != "" {
		c.Embeddings.OpenAIBaseURL = other.Embeddings.OpenAIBaseURL
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Chunking.MaxChars != 0 {
		c.Chunking.MaxChars = other.Chunking.MaxChars
	}
	if other.Chunking.OverlapChars != 0 {
		c.Chunking.OverlapChars = other.Chunking.OverlapChars
	}

	if other.Pipeline.Workers != 0 {
		c.Pipeline.Workers = other.Pipeline.Workers
	}
	if other.Pipeline.MaxAttempts != 0 {
		c.Pipeline.MaxAttempts = other.Pipeline.MaxAttempts
	}
	if other.Pipeline.PollInterval != 0 {
		c.Pipeline.PollInterval = other.Pipeline.PollInterval
	}
	if other.Pipeline.StageTimeout != 0 {
		c.Pipeline.StageTimeout = other.Pipeline.StageTimeout
	}
	if other.Pipeline.FetchTimeout != 0 {
		c.Pipeline.FetchTimeout = other.Pipeline.FetchTimeout
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies MARKSTASH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MARKSTASH_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}

	if v := os.Getenv("MARKSTASH_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("MARKSTASH_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("MARKSTASH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}

	if v := os.Getenv("MARKSTASH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MARKSTASH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MARKSTASH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}

	if v := os.Getenv("MARKSTASH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.Workers = n
		}
	}
	if v := os.Getenv("MARKSTASH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}

	sum := c.Search.SemanticWeight + c.Search.LexicalWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("semantic_weight + lexical_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.GoodThreshold > c.Search.ExcellentThreshold {
		return fmt.Errorf("good_threshold (%.2f) must not exceed excellent_threshold (%.2f)",
			c.Search.GoodThreshold, c.Search.ExcellentThreshold)
	}

	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive, got %d", c.Search.MaxResults)
	}

	if c.Chunking.MaxChars <= 0 {
		return fmt.Errorf("chunking.max_chars must be positive, got %d", c.Chunking.MaxChars)
	}
	if c.Chunking.OverlapChars < 0 || c.Chunking.OverlapChars >= c.Chunking.MaxChars {
		return fmt.Errorf("chunking.overlap_chars must be in [0, max_chars), got %d", c.Chunking.OverlapChars)
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.max_attempts must be positive, got %d", c.Pipeline.MaxAttempts)
	}

	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"openai": true, "ollama": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'openai', 'ollama', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must not be negative, got %d", c.Embeddings.Dimensions)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// DatabasePath returns the SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "markstash.db")
}

// VectorIndexPath returns the HNSW snapshot path under the data directory.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "vectors.hnsw")
}

// LexicalIndexPath returns the bleve index directory under the data directory.
func (c *Config) LexicalIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "lexical.bleve")
}

// LockPath returns the writer lock file path under the data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "markstash.lock")
}

// UserIDPath returns the per-installation user identity file path.
func (c *Config) UserIDPath() string {
	return filepath.Join(c.Paths.DataDir, "user")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
