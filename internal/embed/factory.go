package embed

import (
	"os"
	"strings"

	"github.com/markstash/markstash/internal/config"
	mserrors "github.com/markstash/markstash/internal/errors"
)

// NewFromConfig builds the configured embedder wrapped in an LRU cache.
// Provider selection:
//   - "openai": requires an API key
//   - "ollama": local server, no key
//   - empty: openai when OPENAI_API_KEY is set, ollama otherwise
func NewFromConfig(cfg config.EmbeddingsConfig) (Embedder, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		if os.Getenv("OPENAI_API_KEY") != "" {
			provider = "openai"
		} else {
			provider = "ollama"
		}
	}

	var (
		inner Embedder
		err   error
	)
	switch provider {
	case "openai":
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
	case "ollama":
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	default:
		return nil, mserrors.New(mserrors.ErrCodeConfigInvalid,
			"unknown embeddings provider: "+cfg.Provider, nil)
	}

	if cfg.CacheSize == 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
