package pipeline

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markstash/markstash/internal/bookmark"
	"github.com/markstash/markstash/internal/chunk"
	"github.com/markstash/markstash/internal/config"
	mserrors "github.com/markstash/markstash/internal/errors"
	"github.com/markstash/markstash/internal/extract"
	"github.com/markstash/markstash/internal/queue"
	"github.com/markstash/markstash/internal/store"
)

// stubSource serves canned documents, failing a configurable number of
// times first.
type stubSource struct {
	doc      *bookmark.ContentDocument
	failWith error
	failures int
	fetches  int
}

func (s *stubSource) Name() string { return bookmark.PlatformWebsite }

func (s *stubSource) Matches(u *url.URL) bool { return true }

func (s *stubSource) Fetch(ctx context.Context, rawURL string) (*bookmark.ContentDocument, error) {
	s.fetches++
	if s.failures > 0 {
		s.failures--
		return nil, s.failWith
	}
	if s.doc == nil {
		return nil, s.failWith
	}
	doc := *s.doc
	return &doc, nil
}

// stubEmbedder returns deterministic three-dimensional vectors.
type stubEmbedder struct {
	calls int
	fail  error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i) * 0.01, 0}
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }

func (e *stubEmbedder) ModelName() string { return "stub-model" }

func (e *stubEmbedder) Available(ctx context.Context) bool { return true }

func (e *stubEmbedder) Close() error { return nil }

type testEnv struct {
	pipeline *Pipeline
	store    *store.MetadataStore
	vectors  *store.VectorStore
	lexical  *store.LexicalIndex
	queue    *queue.Queue
	source   *stubSource
	embedder *stubEmbedder
}

func testDoc() *bookmark.ContentDocument {
	return &bookmark.ContentDocument{
		Title:       "Go Concurrency Patterns",
		Description: "Rob Pike on channels",
		Text:        "Concurrency is not parallelism. Channels orchestrate; mutexes serialize.",
	}
}

func newTestEnv(t *testing.T) *testEnv {
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

	q, err := queue.New(ms.DB(), 3, mserrors.DefaultRetryConfig())
	require.NoError(t, err)

	source := &stubSource{doc: testDoc()}
	embedder := &stubEmbedder{}

	p := New(Deps{
		Store:     ms,
		Vectors:   vs,
		Lexical:   lx,
		Queue:     q,
		Extractor: extract.NewDispatcherWithSources(source),
		Chunker:   chunk.New(chunk.Options{MaxChars: 2048, OverlapChars: 200}),
		Embedder:  embedder,
		Config: config.PipelineConfig{
			Workers:      1,
			MaxAttempts:  3,
			PollInterval: 10 * time.Millisecond,
			StageTimeout: time.Minute,
			FetchTimeout: time.Minute,
		},
	})

	return &testEnv{
		pipeline: p, store: ms, vectors: vs, lexical: lx,
		queue: q, source: source, embedder: embedder,
	}
}

func (e *testEnv) createBookmark(t *testing.T) *bookmark.Bookmark {
	t.Helper()
	b := &bookmark.Bookmark{
		UserID: uuid.New(),
		URL:    "https://example.com/talk",
		Title:  "placeholder",
		Tags:   []string{"go"},
	}
	require.NoError(t, e.store.CreateBookmark(context.Background(), b))
	return b
}

func TestProcessIndexesBookmark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBookmark(t)

	require.NoError(t, env.pipeline.Process(ctx, b.ID))

	got, err := env.store.GetBookmark(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, bookmark.StatusIndexed, got.Status)
	assert.Equal(t, "Go Concurrency Patterns", got.Title, "extraction enriches the title")
	assert.Equal(t, bookmark.PlatformWebsite, got.Platform)

	chunks, err := env.store.GetChunks(ctx, b.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, len(chunks), env.vectors.Count())
	n, err := env.lexical.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(len(chunks)), n)
}

func TestProcessReindexSwapsChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBookmark(t)

	require.NoError(t, env.pipeline.Process(ctx, b.ID))
	firstChunks, err := env.store.GetChunks(ctx, b.ID)
	require.NoError(t, err)

	// Terminal bookmarks reset to pending and run again.
	env.source.doc = &bookmark.ContentDocument{
		Title: "Go Concurrency Patterns",
		Text:  "Updated article body after a re-fetch.",
	}
	require.NoError(t, env.pipeline.Process(ctx, b.ID))

	secondChunks, err := env.store.GetChunks(ctx, b.ID)
	require.NoError(t, err)
	require.NotEmpty(t, secondChunks)
	assert.NotEqual(t, firstChunks[0].Generation, secondChunks[0].Generation)

	// Old chunks left neither vectors nor lexical documents behind.
	assert.Equal(t, len(secondChunks), env.vectors.Count())
	n, err := env.lexical.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(len(secondChunks)), n)
	for _, c := range firstChunks {
		assert.False(t, env.vectors.Contains(c.ID.String()))
	}
}

func TestProcessEmptyDocumentIndexesZeroChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// No tags: with nothing extracted either, there is no header chunk.
	b := &bookmark.Bookmark{UserID: uuid.New(), URL: "https://example.com/blank"}
	require.NoError(t, env.store.CreateBookmark(ctx, b))

	env.source.doc = &bookmark.ContentDocument{Text: "   \n\t  "}

	require.NoError(t, env.pipeline.Process(ctx, b.ID))

	got, err := env.store.GetBookmark(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, bookmark.StatusIndexed, got.Status)

	chunks, err := env.store.GetChunks(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, 0, env.vectors.Count())
	assert.Equal(t, 0, env.embedder.calls)
}

func TestProcessReindexToEmptyDropsOldChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b := &bookmark.Bookmark{UserID: uuid.New(), URL: "https://example.com/talk"}
	require.NoError(t, env.store.CreateBookmark(ctx, b))

	require.NoError(t, env.pipeline.Process(ctx, b.ID))

	// The page lost its content between fetches.
	env.source.doc = &bookmark.ContentDocument{Text: " \n "}
	require.NoError(t, env.pipeline.Process(ctx, b.ID))

	got, err := env.store.GetBookmark(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, bookmark.StatusIndexed, got.Status)

	chunks, err := env.store.GetChunks(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, 0, env.vectors.Count())
	n, err := env.lexical.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessTerminalFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBookmark(t)

	env.source.doc = nil
	env.source.failWith = mserrors.UnsupportedError("binary blob", nil)

	err := env.pipeline.Process(ctx, b.ID)
	require.Error(t, err)
	assert.False(t, mserrors.IsRetryable(err))

	got, err := env.store.GetBookmark(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, bookmark.StatusFailed, got.Status)
	assert.Contains(t, got.StatusReason, "binary blob")
}

func TestProcessTransientFailureThenSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBookmark(t)

	env.source.failWith = mserrors.UnreachableError("connection reset", nil)
	env.source.failures = 1

	err := env.pipeline.Process(ctx, b.ID)
	require.Error(t, err)
	assert.True(t, mserrors.IsRetryable(err))

	got, err := env.store.GetBookmark(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, bookmark.StatusFailed, got.Status)

	// The retry resets the bookmark and succeeds.
	require.NoError(t, env.pipeline.Process(ctx, b.ID))
	got, err = env.store.GetBookmark(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, bookmark.StatusIndexed, got.Status)
	assert.Equal(t, 2, env.source.fetches)
}

func TestProcessEmbeddingFailureLeavesIndexesUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBookmark(t)

	env.embedder.fail = mserrors.New(mserrors.ErrCodeEmbeddingQuota, "rate limited", nil)

	err := env.pipeline.Process(ctx, b.ID)
	require.Error(t, err)
	assert.True(t, mserrors.IsRetryable(err))

	assert.Equal(t, 0, env.vectors.Count())
	n, err := env.lexical.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	// Once the provider recovers, the retry produces exactly one chunk set.
	env.embedder.fail = nil
	require.NoError(t, env.pipeline.Process(ctx, b.ID))
	chunks, err := env.store.GetChunks(ctx, b.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, len(chunks), env.vectors.Count())
}

func TestHandleJobRecordsQueueOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBookmark(t)

	_, err := env.queue.Enqueue(ctx, b.ID)
	require.NoError(t, err)
	job, err := env.queue.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	env.pipeline.handleJob(ctx, job)

	counts, err := env.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[queue.StateDone])
}

func TestDeleteRemovesBookmarkEverywhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBookmark(t)

	require.NoError(t, env.pipeline.Process(ctx, b.ID))
	require.NoError(t, env.pipeline.Delete(ctx, b.ID))

	_, err := env.store.GetBookmark(ctx, b.ID)
	assert.Equal(t, mserrors.ErrCodeNotFound, mserrors.GetCode(err))

	assert.Equal(t, 0, env.vectors.Count())
	n, err := env.lexical.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRebuildRepopulatesIndexes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.createBookmark(t)
	require.NoError(t, env.pipeline.Process(ctx, b.ID))

	chunks, err := env.store.GetChunks(ctx, b.ID)
	require.NoError(t, err)

	// Fresh indexes, as after losing a snapshot.
	vs, err := store.NewVectorStore(store.VectorStoreConfig{Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	lx, err := store.NewLexicalIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lx.Close() })

	env.pipeline.vectors = vs
	env.pipeline.lexical = lx

	n, err := env.pipeline.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(chunks), n)
	assert.Equal(t, len(chunks), vs.Count())

	docs, err := lx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(len(chunks)), docs)
}
