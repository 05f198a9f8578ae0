// Package embed generates vector embeddings for bookmark content and
// search queries. Providers implement the Embedder interface; the factory
// picks one based on configuration and environment.
package embed

import (
	"context"
	"errors"
	"math"
	"time"

	mserrors "github.com/markstash/markstash/internal/errors"
)

// Common embedding constants
const (
	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for embedding requests
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTextLen truncates pathological inputs before they hit a
	// provider's token limit.
	DefaultMaxTextLen = 32000
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// retryBatch runs one provider request with in-place exponential backoff.
// Rate limits and transient failures are re-attempted up to the configured
// retry count before the step fails. Once attempts run out the classified
// provider error is returned rather than the exhaustion wrapper, so a longer
// outage still surfaces as retryable and the job queue reschedules the job
// instead of dead-lettering it.
func retryBatch(ctx context.Context, cfg mserrors.RetryConfig, fn func() ([][]float32, error)) ([][]float32, error) {
	out, err := mserrors.RetryWithResult(ctx, cfg, fn)
	if err == nil {
		return out, nil
	}
	var se *mserrors.StashError
	if errors.As(err, &se) && se.Code == mserrors.ErrCodeRetriesExhausted && se.Unwrap() != nil {
		return nil, se.Unwrap()
	}
	return nil, err
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// truncateText caps input length so a single oversized chunk cannot blow a
// provider request.
func truncateText(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
