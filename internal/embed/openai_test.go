package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserrors "github.com/markstash/markstash/internal/errors"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OpenAIEmbedder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Dimensions: 3,
		Retry:      fastRetry(),
	})
	require.NoError(t, err)
	return srv, e
}

func TestOpenAIEmbedBatchPreservesOrder(t *testing.T) {
	_, e := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		// Return embeddings out of order; index must win.
		resp := map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 1, 0}},
				{"index": 0, "embedding": []float32{1, 0, 0}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1, 0}, vecs[1])
}

func TestOpenAIClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
		retry    bool
	}{
		{"rate limit is quota", http.StatusTooManyRequests, mserrors.ErrCodeEmbeddingQuota, true},
		{"server error is transient", http.StatusBadGateway, mserrors.ErrCodeEmbeddingTransient, true},
		{"client error is terminal", http.StatusBadRequest, mserrors.ErrCodeEmbeddingProvider, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, e := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := e.Embed(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, mserrors.GetCode(err))
			assert.Equal(t, tt.retry, mserrors.IsRetryable(err))
		})
	}
}

func TestOpenAIRetriesFailedBatchInPlace(t *testing.T) {
	var calls atomic.Int32
	_, e := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float32{1, 0, 0}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	vec, err := e.Embed(context.Background(), "flaky upstream")
	require.NoError(t, err, "a single 503 must be retried, not surfaced")
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(2), calls.Load(), "failing batch is re-sent once")
}

func TestOpenAIDimensionMismatch(t *testing.T) {
	_, e := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float32{1, 0}}, // 2 dims, expected 3
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodeDimensionMismatch, mserrors.GetCode(err))
}

func TestOpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodeConfigInvalid, mserrors.GetCode(err))
}

func TestOpenAIClosedEmbedderRejects(t *testing.T) {
	_, e := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}
