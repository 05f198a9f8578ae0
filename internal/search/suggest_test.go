package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markstash/markstash/internal/bookmark"
)

func TestSuggestRanksByFrequency(t *testing.T) {
	env := newSearchEnv(t)
	userID := uuid.New()

	env.indexBookmark(t, userID, "https://example.com/a",
		"Go Concurrency Patterns", "text", []float32{1, 0, 0}, false)
	env.indexBookmark(t, userID, "https://example.com/b",
		"Concurrency in Practice", "text", []float32{0, 1, 0}, false)
	env.indexBookmark(t, userID, "https://example.com/c",
		"Compilers 101", "text", []float32{0, 0, 1}, false)

	got := env.engine.Suggest(context.Background(), userID, "con", 10)
	require.NotEmpty(t, got)
	assert.Equal(t, "concurrency", got[0], "most frequent word wins")
}

func TestSuggestScopesToUser(t *testing.T) {
	env := newSearchEnv(t)
	alice, bob := uuid.New(), uuid.New()

	env.indexBookmark(t, bob, "https://example.com/b",
		"Concurrency in Practice", "text", []float32{1, 0, 0}, false)

	got := env.engine.Suggest(context.Background(), alice, "con", 10)
	assert.Empty(t, got)
}

func TestSuggestEmptyPrefix(t *testing.T) {
	env := newSearchEnv(t)
	assert.Nil(t, env.engine.Suggest(context.Background(), uuid.New(), "  ", 10))
	assert.Nil(t, env.engine.Suggest(context.Background(), uuid.New(), "con", 0))
}

func TestSuggestIgnoresShortWords(t *testing.T) {
	env := newSearchEnv(t)
	userID := uuid.New()

	env.indexBookmark(t, userID, "https://example.com/a",
		"Go in Anger", "text", []float32{1, 0, 0}, false)

	assert.Empty(t, env.engine.Suggest(context.Background(), userID, "go", 10))
	assert.Equal(t, []string{"anger"}, env.engine.Suggest(context.Background(), userID, "an", 10))
}

func TestSimilarFindsNearestBookmarks(t *testing.T) {
	env := newSearchEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	a := env.indexBookmark(t, userID, "https://example.com/a",
		"Go Concurrency", "channels", []float32{1, 0, 0}, false)
	near := env.indexBookmark(t, userID, "https://example.com/b",
		"Go Workers", "worker pools", []float32{0.95, 0.05, 0}, false)
	env.indexBookmark(t, userID, "https://example.com/c",
		"Sourdough", "bread", []float32{0, 1, 0}, false)

	results, err := env.engine.Similar(ctx, a.ID, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, near.ID, results[0].Bookmark.ID)
	for _, r := range results {
		assert.NotEqual(t, a.ID, r.Bookmark.ID, "a bookmark is never similar to itself")
	}
}

func TestSimilarExcludesOtherUsersPrivateBookmarks(t *testing.T) {
	env := newSearchEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	a := env.indexBookmark(t, alice, "https://example.com/a",
		"Go Concurrency", "channels", []float32{1, 0, 0}, false)
	env.indexBookmark(t, bob, "https://example.com/b",
		"Private Notes", "channels", []float32{0.99, 0.01, 0}, false)
	pub := env.indexBookmark(t, bob, "https://example.com/c",
		"Public Notes", "channels", []float32{0.98, 0.02, 0}, true)

	results, err := env.engine.Similar(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, pub.ID, results[0].Bookmark.ID)
}

func TestVectorCentroid(t *testing.T) {
	chunks := []bookmark.Chunk{
		{Vector: []float32{1, 0, 0}},
		{Vector: []float32{0, 1, 0}},
	}
	assert.Equal(t, []float32{0.5, 0.5, 0}, vectorCentroid(chunks))
	assert.Nil(t, vectorCentroid(nil))
}
