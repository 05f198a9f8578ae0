package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 0.65, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.35, cfg.Search.LexicalWeight)
	assert.Equal(t, 0.70, cfg.Search.ExcellentThreshold)
	assert.Equal(t, 0.40, cfg.Search.GoodThreshold)
	// Model and dimensions default to zero so each provider applies its
	// own defaults instead of inheriting another provider's.
	assert.Equal(t, "", cfg.Embeddings.Model)
	assert.Equal(t, 0, cfg.Embeddings.Dimensions)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Search.MaxResults)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
search:
  semantic_weight: 0.5
  lexical_weight: 0.5
  max_results: 10
chunking:
  max_chars: 1000
  overlap_chars: 100
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.5, cfg.Search.LexicalWeight)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, 1000, cfg.Chunking.MaxChars)
	// Unset fields keep defaults.
	assert.Equal(t, 0.70, cfg.Search.ExcellentThreshold)
	assert.Equal(t, 0, cfg.Embeddings.Dimensions)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  max_results: 10\n"), 0o644))

	t.Setenv("MARKSTASH_MAX_RESULTS", "7")
	t.Setenv("MARKSTASH_EMBEDDINGS_PROVIDER", "ollama")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Search.MaxResults)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights do not sum to 1", func(c *Config) { c.Search.SemanticWeight = 0.9 }},
		{"good above excellent", func(c *Config) { c.Search.GoodThreshold = 0.9 }},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }},
		{"overlap >= max chars", func(c *Config) { c.Chunking.OverlapChars = c.Chunking.MaxChars }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "cohere" }},
		{"negative dimensions", func(c *Config) { c.Embeddings.Dimensions = -1 }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := NewConfig()
	cfg.Search.MaxResults = 11
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 11, loaded.Search.MaxResults)
}

func TestDataDirPaths(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.DataDir = "/tmp/ms"

	assert.Equal(t, "/tmp/ms/markstash.db", cfg.DatabasePath())
	assert.Equal(t, "/tmp/ms/vectors.hnsw", cfg.VectorIndexPath())
	assert.Equal(t, "/tmp/ms/lexical.bleve", cfg.LexicalIndexPath())
	assert.Equal(t, "/tmp/ms/markstash.lock", cfg.LockPath())
}
