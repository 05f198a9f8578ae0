package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markstash/markstash/internal/config"
)

func TestNewFromConfigSelectsOllama(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	e, err := NewFromConfig(config.EmbeddingsConfig{CacheSize: 10})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok, "embedder is wrapped in cache")
	_, ok = cached.Inner().(*OllamaEmbedder)
	assert.True(t, ok, "auto-detect without API key picks ollama")
}

func TestNewFromConfigSelectsOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	e, err := NewFromConfig(config.EmbeddingsConfig{CacheSize: 10, Dimensions: 1536})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	inner, ok := cached.Inner().(*OpenAIEmbedder)
	require.True(t, ok, "auto-detect with API key picks openai")
	assert.Equal(t, 1536, inner.Dimensions())
}

func TestNewFromConfigOllamaUsesConfiguredModel(t *testing.T) {
	e, err := NewFromConfig(config.EmbeddingsConfig{
		Provider:   "ollama",
		Model:      "mxbai-embed-large",
		Dimensions: 1024,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	o, ok := e.(*OllamaEmbedder)
	require.True(t, ok)
	assert.Equal(t, "mxbai-embed-large", o.ModelName())
	assert.Equal(t, 1024, o.Dimensions())
}

func TestNewFromConfigOllamaDefaultsStayLocal(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	e, err := NewFromConfig(config.EmbeddingsConfig{})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	o, ok := e.(*OllamaEmbedder)
	require.True(t, ok)
	assert.Equal(t, DefaultOllamaModel, o.ModelName(),
		"another provider's model must not leak into the local provider")
	assert.Equal(t, 0, o.Dimensions(),
		"dimension detection is deferred to the first embedding")
}

func TestNewFromConfigCacheDisabled(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	e, err := NewFromConfig(config.EmbeddingsConfig{Provider: "ollama", CacheSize: 0})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*OllamaEmbedder)
	assert.True(t, ok, "zero cache size skips the cache wrapper")
}

func TestNewFromConfigRejectsUnknownProvider(t *testing.T) {
	_, err := NewFromConfig(config.EmbeddingsConfig{Provider: "cohere"})
	assert.Error(t, err)
}
