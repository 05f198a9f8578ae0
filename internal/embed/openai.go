package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	mserrors "github.com/markstash/markstash/internal/errors"
)

// OpenAI embedding defaults.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"

	// OpenAIDimensions is the output dimension of text-embedding-3-small.
	OpenAIDimensions = 1536
)

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	// APIKey authenticates requests. Empty falls back to OPENAI_API_KEY.
	APIKey string
	// BaseURL overrides the API endpoint, for proxies and compatible servers.
	BaseURL string
	// Model selects the embedding model.
	Model string
	// Dimensions is the expected output dimension (0 = model default).
	Dimensions int
	// BatchSize caps inputs per request.
	BatchSize int
	// Timeout bounds a single API request.
	Timeout time.Duration
	// Retry bounds per-batch retries on transient failures and rate limits.
	Retry mserrors.RetryConfig
}

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *http.Client
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder. The API key must be present
// either in cfg or in the OPENAI_API_KEY environment variable.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, mserrors.New(mserrors.ErrCodeConfigInvalid,
			"openai embedder requires an API key (set OPENAI_API_KEY)", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = OpenAIDimensions
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

	return &OpenAIEmbedder{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting the input
// into BatchSize requests. Vectors are returned unit-normalized, in input
// order. A batch that fails on a rate limit or server error is retried in
// place with backoff; earlier batches are never re-sent.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

// embedOnce sends one API request for a batch of texts.
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = truncateText(t, DefaultMaxTextLen)
	}

	body, err := json.Marshal(openAIEmbedRequest{Model: e.config.Model, Input: inputs})
	if err != nil {
		return nil, mserrors.New(mserrors.ErrCodeInternal, "failed to marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, mserrors.New(mserrors.ErrCodeInternal, "failed to create embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingTransient, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyHTTPStatus(resp.StatusCode, string(raw))
	}

	var parsed openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingProvider, "failed to decode embed response", err)
	}
	if parsed.Error != nil {
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingProvider, parsed.Error.Message, nil)
	}
	if len(parsed.Data) != len(texts) {
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingProvider,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Data)), nil)
	}

	// The API documents input order but index is authoritative.
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if len(d.Embedding) != e.config.Dimensions {
			return nil, mserrors.New(mserrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", e.config.Dimensions, len(d.Embedding)), nil)
		}
		out[i] = normalizeVector(d.Embedding)
	}
	return out, nil
}

// classifyHTTPStatus maps provider HTTP failures onto the error taxonomy:
// 429 is quota pressure, 5xx is transient, everything else is a hard
// provider error.
func classifyHTTPStatus(status int, body string) error {
	var e *mserrors.StashError
	switch {
	case status == http.StatusTooManyRequests:
		e = mserrors.New(mserrors.ErrCodeEmbeddingQuota, "embedding provider rate limited", nil)
	case status >= 500:
		e = mserrors.New(mserrors.ErrCodeEmbeddingTransient,
			fmt.Sprintf("embedding provider returned %d", status), nil)
	default:
		e = mserrors.New(mserrors.ErrCodeEmbeddingProvider,
			fmt.Sprintf("embedding provider rejected request with %d", status), nil)
	}
	return e.WithDetail("status", fmt.Sprintf("%d", status)).WithDetail("body", body)
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the provider answers a minimal request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.embedOnce(ctx, []string{"ping"})
	return err == nil
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
