package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	mserrors "github.com/markstash/markstash/internal/errors"
)

// Ollama embedding defaults.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string
	// Model selects the embedding model.
	Model string
	// Dimensions is the expected output dimension (0 = detect on first call).
	Dimensions int
	// BatchSize caps inputs per request.
	BatchSize int
	// Timeout bounds a single API request.
	Timeout time.Duration
	// Retry bounds per-batch retries on transient failures.
	Retry mserrors.RetryConfig
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
// It is the local, no-API-key alternative to the OpenAI provider.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder. Dimensions are detected
// from the first embedding when not configured.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry == (mserrors.RetryConfig{}) {
		cfg.Retry = mserrors.DefaultRetryConfig()
	}

	return &OllamaEmbedder{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		dims:   cfg.Dimensions,
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in BatchSize requests.
// A batch that fails transiently is retried in place with backoff; earlier
// batches are never re-sent.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingProvider, "embedder is closed", nil)
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		group := texts[start:end]
		batch, err := retryBatch(ctx, e.config.Retry, func() ([][]float32, error) {
			return e.embedOnce(ctx, group)
		})
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (e *OllamaEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = truncateText(t, DefaultMaxTextLen)
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: inputs})
	if err != nil {
		return nil, mserrors.New(mserrors.ErrCodeInternal, "failed to marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, mserrors.New(mserrors.ErrCodeInternal, "failed to create embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingTransient, "failed to reach ollama", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyHTTPStatus(resp.StatusCode, string(raw))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingProvider, "failed to decode embed response", err)
	}
	if parsed.Error != "" {
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingProvider, parsed.Error, nil)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingProvider,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Embeddings)), nil)
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, v := range parsed.Embeddings {
		if err := e.checkDimensions(len(v)); err != nil {
			return nil, err
		}
		out[i] = normalizeVector(v)
	}
	return out, nil
}

// checkDimensions pins dimensions on first use and rejects drift after.
func (e *OllamaEmbedder) checkDimensions(got int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dims == 0 {
		e.dims = got
		return nil
	}
	if got != e.dims {
		return mserrors.New(mserrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", e.dims, got), nil)
	}
	return nil
}

// Dimensions returns the embedding dimension (0 until first embedding when
// auto-detecting).
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks whether the Ollama server responds.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
