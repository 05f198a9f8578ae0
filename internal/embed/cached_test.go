package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder is a deterministic in-memory embedder for cache tests.
type countingEmbedder struct {
	calls int64
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&e.calls, 1)
	return []float32{float32(len(text)), 1}, nil
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&e.calls, 1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int                    { return 2 }
func (e *countingEmbedder) ModelName() string                  { return "counting" }
func (e *countingEmbedder) Available(ctx context.Context) bool { return true }
func (e *countingEmbedder) Close() error                       { return nil }

func TestCachedEmbedderHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)

	v1, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	v2, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(1), atomic.LoadInt64(&inner.calls))
}

func TestCachedEmbedderBatchPartialHit(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.Embed(context.Background(), "aa")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(context.Background(), []string{"aa", "bbbb"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{2, 1}, vecs[0])
	assert.Equal(t, []float32{4, 1}, vecs[1])

	// One call for the initial Embed, one batch call for the miss only.
	assert.Equal(t, int64(2), atomic.LoadInt64(&inner.calls))
}

func TestCachedEmbedderEmptyBatch(t *testing.T) {
	c := NewCachedEmbedder(&countingEmbedder{}, 10)
	vecs, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestNormalizeVector(t *testing.T) {
	v := normalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := normalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}
