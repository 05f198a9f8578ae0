// Package pipeline runs the bookmark ingestion pipeline: extract, chunk,
// embed, index. A pool of workers claims jobs from the durable queue and
// drives each bookmark through the status state machine. Failures either
// reschedule the job with backoff or dead-letter it, mirroring the error's
// retryability.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markstash/markstash/internal/bookmark"
	"github.com/markstash/markstash/internal/chunk"
	"github.com/markstash/markstash/internal/config"
	"github.com/markstash/markstash/internal/embed"
	mserrors "github.com/markstash/markstash/internal/errors"
	"github.com/markstash/markstash/internal/extract"
	"github.com/markstash/markstash/internal/queue"
	"github.com/markstash/markstash/internal/store"
)

// staleJobAge is how long a running job may go without progress before a
// restarting worker reclaims it.
const staleJobAge = 10 * time.Minute

// Pipeline coordinates ingestion workers over the shared stores.
type Pipeline struct {
	store     *store.MetadataStore
	vectors   *store.VectorStore
	lexical   *store.LexicalIndex
	queue     *queue.Queue
	extractor *extract.Dispatcher
	chunker   *chunk.Chunker
	embedder  embed.Embedder
	cfg       config.PipelineConfig
	logger    *slog.Logger
}

// Deps bundles everything a pipeline needs.
type Deps struct {
	Store     *store.MetadataStore
	Vectors   *store.VectorStore
	Lexical   *store.LexicalIndex
	Queue     *queue.Queue
	Extractor *extract.Dispatcher
	Chunker   *chunk.Chunker
	Embedder  embed.Embedder
	Config    config.PipelineConfig
	Logger    *slog.Logger
}

// New creates a pipeline from its dependencies.
func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     deps.Store,
		vectors:   deps.Vectors,
		lexical:   deps.Lexical,
		queue:     deps.Queue,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		cfg:       deps.Config,
		logger:    logger,
	}
}

// Run starts the worker pool and blocks until the context is cancelled.
// Jobs orphaned by a previous crash are reclaimed first.
func (p *Pipeline) Run(ctx context.Context) error {
	if n, err := p.queue.RecoverStale(ctx, staleJobAge); err != nil {
		return err
	} else if n > 0 {
		p.logger.Info("recovered_stale_jobs", slog.Int("count", n))
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			return p.runWorker(ctx, worker)
		})
	}
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// runWorker claims and processes jobs until the context is cancelled,
// sleeping PollInterval between empty polls.
func (p *Pipeline) runWorker(ctx context.Context, worker int) error {
	poll := p.cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	for {
		job, err := p.queue.Claim(ctx)
		if err != nil {
			p.logger.Error("queue_claim_failed",
				slog.Int("worker", worker),
				slog.String("error", err.Error()))
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(poll):
			}
			continue
		}

		p.handleJob(ctx, job)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// handleJob runs one job and records the outcome on the queue.
func (p *Pipeline) handleJob(ctx context.Context, job *queue.Job) {
	start := time.Now()
	err := p.Process(ctx, job.BookmarkID)
	if err == nil {
		if cerr := p.queue.Complete(ctx, job.ID); cerr != nil {
			p.logger.Error("job_complete_failed",
				slog.String("job_id", job.ID.String()),
				slog.String("error", cerr.Error()))
		}
		p.logger.Info("bookmark_indexed",
			slog.String("bookmark_id", job.BookmarkID.String()),
			slog.Int("attempt", job.Attempts),
			slog.Duration("elapsed", time.Since(start)))
		return
	}

	p.logger.Warn("bookmark_processing_failed",
		slog.String("bookmark_id", job.BookmarkID.String()),
		slog.Int("attempt", job.Attempts),
		slog.Bool("retryable", mserrors.IsRetryable(err)),
		slog.String("error", err.Error()))

	if ferr := p.queue.Fail(ctx, job, err); ferr != nil {
		p.logger.Error("job_fail_record_failed",
			slog.String("job_id", job.ID.String()),
			slog.String("error", ferr.Error()))
	}
}

// Process drives one bookmark through the full pipeline. On failure the
// bookmark is marked failed with the error as reason; the queue decides
// whether to retry.
func (p *Pipeline) Process(ctx context.Context, bookmarkID uuid.UUID) error {
	b, err := p.store.GetBookmark(ctx, bookmarkID)
	if err != nil {
		return err
	}

	if err := p.resetToPending(ctx, b); err != nil {
		return err
	}

	err = p.process(ctx, b)
	if err != nil {
		if serr := p.markFailed(ctx, b.ID, err); serr != nil {
			p.logger.Error("status_fail_record_failed",
				slog.String("bookmark_id", b.ID.String()),
				slog.String("error", serr.Error()))
		}
	}
	return err
}

// resetToPending puts a bookmark back at the start of the pipeline. A
// bookmark stuck in-flight from a crashed run is failed first, since the
// state machine only allows terminal statuses back to pending.
func (p *Pipeline) resetToPending(ctx context.Context, b *bookmark.Bookmark) error {
	if b.Status == bookmark.StatusPending {
		return nil
	}
	if !b.Status.Terminal() {
		if err := p.store.SetStatus(ctx, b.ID, bookmark.StatusFailed, "restarted after interruption"); err != nil {
			return err
		}
	}
	if err := p.store.SetStatus(ctx, b.ID, bookmark.StatusPending, ""); err != nil {
		return err
	}
	b.Status = bookmark.StatusPending
	return nil
}

func (p *Pipeline) process(ctx context.Context, b *bookmark.Bookmark) error {
	// Extract.
	if err := p.store.SetStatus(ctx, b.ID, bookmark.StatusExtracting, ""); err != nil {
		return err
	}
	doc, err := p.extract(ctx, b.URL)
	if err != nil {
		return err
	}

	// Extraction enriches the bookmark: title and description from the
	// source win over whatever the user typed at save time, unless empty.
	if doc.Title != "" {
		b.Title = doc.Title
	}
	if doc.Description != "" {
		b.Description = doc.Description
	}
	b.Platform = doc.Platform
	if len(doc.Metadata) > 0 {
		b.Metadata = doc.Metadata
	}
	if err := p.store.UpdateBookmark(ctx, b); err != nil {
		return err
	}

	// Chunk.
	if err := p.store.SetStatus(ctx, b.ID, bookmark.StatusChunking, ""); err != nil {
		return err
	}
	texts := p.chunker.Split(doc, b.Tags)
	if len(texts) == 0 {
		// A fetched page with no usable text indexes with zero chunks.
		// The bookmark stays listable and can be re-indexed later.
		return p.indexEmpty(ctx, b)
	}

	// Embed.
	if err := p.store.SetStatus(ctx, b.ID, bookmark.StatusEmbedding, ""); err != nil {
		return err
	}
	vectors, err := p.embedBatch(ctx, texts)
	if err != nil {
		return err
	}

	// Index. Chunk IDs are assigned up front so the vector and lexical
	// indexes can be written before the generation flips; hits against the
	// new chunks stay invisible until ReplaceChunks commits.
	if err := p.store.SetStatus(ctx, b.ID, bookmark.StatusIndexing, ""); err != nil {
		return err
	}

	generation := uuid.New()
	chunks := make([]bookmark.Chunk, len(texts))
	ids := make([]string, len(texts))
	docs := make(map[string]store.LexicalDocument, len(texts))
	for i, text := range texts {
		id := uuid.New()
		chunks[i] = bookmark.Chunk{ID: id, Index: i, Text: text, Vector: vectors[i]}
		ids[i] = id.String()
		docs[ids[i]] = store.DocumentForChunk(
			b.UserID, b.ID, b.Platform, b.Tags, b.IsPublic, b.CreatedAt, text)
	}

	if err := p.vectors.Add(ctx, ids, vectors); err != nil {
		return err
	}
	if err := p.lexical.IndexChunks(ctx, docs); err != nil {
		// Unwind the vector side so both indexes stay consistent.
		if derr := p.vectors.Delete(ctx, ids); derr != nil {
			p.logger.Error("vector_unwind_failed",
				slog.String("bookmark_id", b.ID.String()),
				slog.String("error", derr.Error()))
		}
		return err
	}

	oldIDs, err := p.store.ReplaceChunks(ctx, b.ID, generation, chunks)
	if err != nil {
		if derr := p.vectors.Delete(ctx, ids); derr != nil {
			p.logger.Error("vector_unwind_failed",
				slog.String("bookmark_id", b.ID.String()),
				slog.String("error", derr.Error()))
		}
		if derr := p.lexical.DeleteChunks(ctx, ids); derr != nil {
			p.logger.Error("lexical_unwind_failed",
				slog.String("bookmark_id", b.ID.String()),
				slog.String("error", derr.Error()))
		}
		return err
	}

	// Stale generation cleanup is best effort: ResolveChunks drops hits
	// from old generations, so leftovers only cost index space.
	p.cleanupOldChunks(ctx, b.ID, oldIDs)
	return nil
}

// indexEmpty completes the pipeline for a document that chunked to nothing:
// the status machine is walked through its remaining stages and the visible
// generation is replaced with an empty one.
func (p *Pipeline) indexEmpty(ctx context.Context, b *bookmark.Bookmark) error {
	for _, st := range []bookmark.Status{bookmark.StatusEmbedding, bookmark.StatusIndexing} {
		if err := p.store.SetStatus(ctx, b.ID, st, ""); err != nil {
			return err
		}
	}

	oldIDs, err := p.store.ReplaceChunks(ctx, b.ID, uuid.New(), nil)
	if err != nil {
		return err
	}
	p.cleanupOldChunks(ctx, b.ID, oldIDs)

	p.logger.Info("bookmark_indexed_empty",
		slog.String("bookmark_id", b.ID.String()),
		slog.String("url", b.URL))
	return nil
}

func (p *Pipeline) extract(ctx context.Context, url string) (*bookmark.ContentDocument, error) {
	timeout := p.cfg.FetchTimeout
	if timeout <= 0 {
		timeout = extract.DefaultFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.extractor.Extract(fetchCtx, url)
}

func (p *Pipeline) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	stageCtx := ctx
	if p.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, p.cfg.StageTimeout)
		defer cancel()
	}

	vectors, err := p.embedder.EmbedBatch(stageCtx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, mserrors.New(mserrors.ErrCodeEmbeddingProvider,
			"embedding batch returned wrong vector count", nil)
	}
	return vectors, nil
}

func (p *Pipeline) cleanupOldChunks(ctx context.Context, bookmarkID uuid.UUID, oldIDs []string) {
	if len(oldIDs) == 0 {
		return
	}
	if err := p.vectors.Delete(ctx, oldIDs); err != nil {
		p.logger.Warn("stale_vector_cleanup_failed",
			slog.String("bookmark_id", bookmarkID.String()),
			slog.String("error", err.Error()))
	}
	if err := p.lexical.DeleteChunks(ctx, oldIDs); err != nil {
		p.logger.Warn("stale_lexical_cleanup_failed",
			slog.String("bookmark_id", bookmarkID.String()),
			slog.String("error", err.Error()))
	}
}

// markFailed records a pipeline failure on the bookmark itself.
func (p *Pipeline) markFailed(ctx context.Context, id uuid.UUID, cause error) error {
	return p.store.SetStatus(ctx, id, bookmark.StatusFailed, cause.Error())
}

// Delete removes a bookmark and purges its chunks from both indexes.
func (p *Pipeline) Delete(ctx context.Context, bookmarkID uuid.UUID) error {
	chunkIDs, err := p.store.DeleteBookmark(ctx, bookmarkID)
	if err != nil {
		return err
	}
	p.cleanupOldChunks(ctx, bookmarkID, chunkIDs)
	return nil
}

// Rebuild repopulates the vector and lexical indexes from the metadata
// store. Used when an index snapshot is missing or corrupt.
func (p *Pipeline) Rebuild(ctx context.Context) (int, error) {
	indexed, err := p.store.ListIndexedChunks(ctx)
	if err != nil {
		return 0, err
	}
	if len(indexed) == 0 {
		return 0, nil
	}

	ids := make([]string, len(indexed))
	vectors := make([][]float32, len(indexed))
	docs := make(map[string]store.LexicalDocument, len(indexed))
	for i, ic := range indexed {
		ids[i] = ic.ChunkID.String()
		vectors[i] = ic.Vector
		docs[ids[i]] = store.DocumentForChunk(
			ic.UserID, ic.BookmarkID, ic.Platform, ic.Tags, ic.Public, ic.CreatedAt, ic.Text)
	}

	if err := p.vectors.Add(ctx, ids, vectors); err != nil {
		return 0, err
	}
	if err := p.lexical.IndexChunks(ctx, docs); err != nil {
		return 0, err
	}
	return len(indexed), nil
}
