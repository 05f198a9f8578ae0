package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markstash/markstash/internal/bookmark"
	"github.com/markstash/markstash/internal/config"
	mserrors "github.com/markstash/markstash/internal/errors"
	"github.com/markstash/markstash/internal/store"
)

// fakeEmbedder maps known query strings to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

func (f *fakeEmbedder) ModelName() string { return "fake-model" }

func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }

func (f *fakeEmbedder) Close() error { return nil }

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		SemanticWeight:      0.65,
		LexicalWeight:       0.35,
		ExcellentThreshold:  0.70,
		GoodThreshold:       0.40,
		MaxResults:          20,
		CandidateMultiplier: 5,
	}
}

type searchEnv struct {
	engine   *Engine
	store    *store.MetadataStore
	vectors  *store.VectorStore
	lexical  *store.LexicalIndex
	embedder *fakeEmbedder
}

func newSearchEnv(t *testing.T) *searchEnv {
	t.Helper()

	ms, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ms.Close() })

	vs, err := store.NewVectorStore(store.VectorStoreConfig{Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	lx, err := store.NewLexicalIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lx.Close() })

	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	engine := NewEngine(ms, vs, lx, embedder, testSearchConfig(), nil)
	return &searchEnv{engine: engine, store: ms, vectors: vs, lexical: lx, embedder: embedder}
}

// indexBookmark persists a single-chunk bookmark through the same add order
// the pipeline uses: both indexes first, then the generation flip.
func (env *searchEnv) indexBookmark(t *testing.T, userID uuid.UUID, url, title, text string, vec []float32, public bool) *bookmark.Bookmark {
	t.Helper()
	ctx := context.Background()

	b := &bookmark.Bookmark{
		UserID:   userID,
		URL:      url,
		Title:    title,
		Platform: bookmark.PlatformWebsite,
		IsPublic: public,
	}
	require.NoError(t, env.store.CreateBookmark(ctx, b))
	for _, st := range []bookmark.Status{
		bookmark.StatusExtracting, bookmark.StatusChunking,
		bookmark.StatusEmbedding, bookmark.StatusIndexing,
	} {
		require.NoError(t, env.store.SetStatus(ctx, b.ID, st, ""))
	}

	chunkID := uuid.New()
	require.NoError(t, env.vectors.Add(ctx, []string{chunkID.String()}, [][]float32{vec}))
	require.NoError(t, env.lexical.IndexChunks(ctx, map[string]store.LexicalDocument{
		chunkID.String(): store.DocumentForChunk(
			userID, b.ID, b.Platform, b.Tags, public, b.CreatedAt, text),
	}))

	_, err := env.store.ReplaceChunks(ctx, b.ID, uuid.New(), []bookmark.Chunk{
		{ID: chunkID, Index: 0, Text: text, Vector: vec},
	})
	require.NoError(t, err)
	return b
}

func TestSearchRanksHybridResults(t *testing.T) {
	env := newSearchEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	env.embedder.vectors["channel patterns"] = []float32{1, 0, 0}

	a := env.indexBookmark(t, userID, "https://example.com/a",
		"Go Concurrency", "channel patterns for pipeline design", []float32{1, 0, 0}, false)
	env.indexBookmark(t, userID, "https://example.com/b",
		"Sourdough", "baking bread with wild yeast", []float32{0, 1, 0}, false)

	results, err := env.engine.Search(ctx, userID, "channel patterns", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, a.ID, results[0].Bookmark.ID)
	assert.InDelta(t, 1.0, results[0].SemanticScore, 1e-5)
	assert.Greater(t, results[0].LexicalScore, 0.0)
	assert.Greater(t, results[0].Score, 0.9, "strong hits on both channels fuse near 1")
}

func TestSearchDegradesToLexicalOnEmbeddingFailure(t *testing.T) {
	env := newSearchEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	env.indexBookmark(t, userID, "https://example.com/a",
		"Go Concurrency", "channel patterns for pipeline design", []float32{1, 0, 0}, false)

	env.embedder.fail = mserrors.New(mserrors.ErrCodeEmbeddingTransient, "provider down", nil)

	results, err := env.engine.Search(ctx, userID, "channel patterns", Options{})
	require.NoError(t, err, "embedding failure degrades, never errors")
	require.Len(t, results, 1)
	assert.Zero(t, results[0].SemanticScore)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9, "lexical-only score carries full weight")
}

func TestSearchIsolatesUsers(t *testing.T) {
	env := newSearchEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	env.embedder.vectors["compilers"] = []float32{1, 0, 0}
	env.indexBookmark(t, alice, "https://example.com/a",
		"Private", "notes about compilers", []float32{1, 0, 0}, false)
	pub := env.indexBookmark(t, bob, "https://example.com/b",
		"Public", "article about compilers", []float32{0.9, 0.1, 0}, true)

	results, err := env.engine.Search(ctx, alice, "compilers", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1, "other users' private bookmarks never leak")

	results, err = env.engine.Search(ctx, alice, "compilers",
		Options{Filter: store.Filter{IncludePublic: true}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	ids := []uuid.UUID{results[0].Bookmark.ID, results[1].Bookmark.ID}
	assert.Contains(t, ids, pub.ID)
}

func TestSearchWidensVectorCandidatesPastOtherUsers(t *testing.T) {
	env := newSearchEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	// A tight candidate pool makes the initial ANN request return only the
	// closest neighbors, which all belong to bob.
	cfg := testSearchConfig()
	cfg.CandidateMultiplier = 1
	env.engine = NewEngine(env.store, env.vectors, env.lexical, env.embedder, cfg, nil)

	env.embedder.vectors["deadlock debugging"] = []float32{1, 0, 0}

	for i := 0; i < 6; i++ {
		env.indexBookmark(t, bob, fmt.Sprintf("https://example.com/bob-%d", i),
			"Crowding", "nothing matching here", []float32{1, float32(i) * 0.01, 0}, false)
	}
	mine := env.indexBookmark(t, alice, "https://example.com/mine",
		"Sync Notes", "nothing matching here", []float32{0.9, 0.3, 0}, false)

	results, err := env.engine.Search(ctx, alice, "deadlock debugging", Options{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1, "owner's hit survives a neighborhood crowded by other users")
	assert.Equal(t, mine.ID, results[0].Bookmark.ID)
}

func TestSearchEmptyInputs(t *testing.T) {
	env := newSearchEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	results, err := env.engine.Search(ctx, userID, "   ", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Zero candidates from both channels is a success with no results.
	results, err = env.engine.Search(ctx, userID, "anything", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRecordsSearchLog(t *testing.T) {
	env := newSearchEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := env.engine.Search(ctx, userID, "anything", Options{})
	require.NoError(t, err)
	// Best-effort by contract; here it should simply have worked.
}

func fusedResults(scores ...float64) []*Result {
	now := time.Now().UTC()
	out := make([]*Result, len(scores))
	for i, s := range scores {
		out[i] = &Result{
			Bookmark: &bookmark.Bookmark{ID: uuid.New(), CreatedAt: now},
			Score:    s,
		}
	}
	return out
}

func TestTrimExcellentKeepsTightBand(t *testing.T) {
	results := trim(fusedResults(0.95, 0.92, 0.50, 0.10), ModeSmart, testSearchConfig())
	require.Len(t, results, 2)
	assert.Equal(t, 0.95, results[0].Score)
	assert.Equal(t, 0.92, results[1].Score)
}

func TestTrimGoodKeepsModerateFraction(t *testing.T) {
	results := trim(fusedResults(0.60, 0.55, 0.20), ModeSmart, testSearchConfig())
	require.Len(t, results, 2)
	assert.Equal(t, 0.55, results[1].Score)
}

func TestTrimPoorKeepsEverything(t *testing.T) {
	results := trim(fusedResults(0.30, 0.10), ModeSmart, testSearchConfig())
	assert.Len(t, results, 2)
}

func TestTrimPreciseAppliesFixedFloor(t *testing.T) {
	results := trim(fusedResults(0.95, 0.45, 0.30), ModePrecise, testSearchConfig())
	require.Len(t, results, 2)
	assert.Equal(t, 0.45, results[1].Score)
}

func TestSortResultsTieBreaksOnRecency(t *testing.T) {
	older := &Result{Score: 0.5, Bookmark: &bookmark.Bookmark{
		CreatedAt: time.Now().UTC().Add(-time.Hour)}}
	newer := &Result{Score: 0.5, Bookmark: &bookmark.Bookmark{
		CreatedAt: time.Now().UTC()}}

	results := []*Result{older, newer}
	sortResults(results)
	assert.Same(t, newer, results[0])
}

func TestMatchesFilter(t *testing.T) {
	userID := uuid.New()
	b := &bookmark.Bookmark{
		UserID:    userID,
		Platform:  bookmark.PlatformGitHub,
		Tags:      []string{"go", "search"},
		CreatedAt: time.Now().UTC(),
	}

	assert.True(t, matchesFilter(b, store.Filter{UserID: userID}))
	assert.False(t, matchesFilter(b, store.Filter{UserID: uuid.New()}))
	assert.True(t, matchesFilter(b, store.Filter{
		UserID: userID, Platform: bookmark.PlatformGitHub, Tags: []string{"go"}}))
	assert.False(t, matchesFilter(b, store.Filter{
		UserID: userID, Tags: []string{"rust"}}))
	assert.False(t, matchesFilter(b, store.Filter{
		UserID: userID, CreatedBefore: time.Now().UTC().Add(-time.Hour)}))

	public := &bookmark.Bookmark{UserID: uuid.New(), IsPublic: true}
	assert.True(t, matchesFilter(public, store.Filter{UserID: userID, IncludePublic: true}))
	assert.False(t, matchesFilter(public, store.Filter{UserID: userID}))
}
