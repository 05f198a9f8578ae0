// Package search implements hybrid retrieval over the bookmark corpus:
// vector similarity and lexical ranking fused into one per-bookmark score,
// trimmed by an adaptive threshold around the best hit.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/markstash/markstash/internal/bookmark"
	"github.com/markstash/markstash/internal/config"
	"github.com/markstash/markstash/internal/embed"
	"github.com/markstash/markstash/internal/store"
)

// Mode selects the result-trimming policy.
type Mode string

const (
	// ModeSmart adapts the cutoff to the quality of the best hit.
	ModeSmart Mode = "smart"
	// ModePrecise applies a fixed score floor regardless of the best hit.
	ModePrecise Mode = "precise"
)

// Band fractions for smart-mode trimming. The band boundaries themselves
// (excellent/good) come from configuration; these control how tightly
// results cluster around the best hit inside each band.
const (
	excellentBand = 0.10
	goodFraction  = 0.60
)

// Options tunes one search request.
type Options struct {
	// Filter pre-filters the candidate scope. UserID is overwritten with
	// the searching user.
	Filter store.Filter

	// Limit caps the result count; 0 uses the configured maximum.
	Limit int

	// Mode selects the trimming policy; empty means smart.
	Mode Mode
}

// Result is one ranked bookmark.
type Result struct {
	Bookmark *bookmark.Bookmark

	// Score is the fused relevance in [0,1].
	Score float64

	// SemanticScore and LexicalScore are the pre-fusion components, kept
	// for display and debugging.
	SemanticScore float64
	LexicalScore  float64
}

// Engine runs hybrid searches over the shared stores.
type Engine struct {
	store    *store.MetadataStore
	vectors  *store.VectorStore
	lexical  *store.LexicalIndex
	embedder embed.Embedder
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// NewEngine creates a search engine from its dependencies.
func NewEngine(ms *store.MetadataStore, vs *store.VectorStore, lx *store.LexicalIndex, embedder embed.Embedder, cfg config.SearchConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: ms, vectors: vs, lexical: lx, embedder: embedder, cfg: cfg, logger: logger}
}

// Search returns ranked bookmarks for a query. Embedding failure degrades
// to lexical-only search; an empty candidate set returns an empty list,
// never an error.
func (e *Engine) Search(ctx context.Context, userID uuid.UUID, query string, opts Options) ([]*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Result{}, nil
	}

	limit := opts.Limit
	if limit <= 0 || limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}
	candidates := limit * e.cfg.CandidateMultiplier

	filter := opts.Filter
	filter.UserID = userID

	// Query embedding. Degrades to lexical-only on failure rather than
	// erroring the request.
	var queryVec []float32
	if e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, query)
		if err != nil {
			e.logger.Warn("query_embedding_failed",
				slog.String("error", err.Error()))
		} else {
			queryVec = vec
		}
	}

	var vectorHits []*store.VectorResult
	if queryVec != nil {
		vectorHits = e.vectorCandidates(ctx, queryVec, filter, candidates, limit)
	}

	lexicalHits, err := e.lexical.Search(ctx, query, filter, candidates)
	if err != nil {
		return nil, err
	}

	results, err := e.fuse(ctx, vectorHits, lexicalHits, queryVec != nil)
	if err != nil {
		return nil, err
	}

	results = trim(results, modeOrDefault(opts.Mode), e.cfg)
	if len(results) > limit {
		results = results[:limit]
	}

	e.logSearch(ctx, userID, query, len(results))
	return results, nil
}

// vectorCandidates retrieves ANN hits for the query and drops those whose
// bookmark fails the owner or pre-filter checks. The vector index is shared
// across all users, so in a crowded index the nearest neighbors may mostly
// belong to other users; when filtering leaves fewer than want survivors the
// request widens until enough survive or the index is exhausted. Failures
// degrade to lexical-only, never erroring the search.
func (e *Engine) vectorCandidates(ctx context.Context, queryVec []float32, filter store.Filter, k, want int) []*store.VectorResult {
	total := e.vectors.Count()
	for {
		hits, err := e.vectors.Search(ctx, queryVec, k)
		if err != nil {
			e.logger.Warn("vector_search_failed",
				slog.String("error", err.Error()))
			return nil
		}

		kept, err := e.filterVectorHits(ctx, hits, filter)
		if err != nil {
			e.logger.Warn("vector_candidate_filter_failed",
				slog.String("error", err.Error()))
			return nil
		}

		if len(kept) >= want || k >= total || len(hits) < k {
			return kept
		}
		k *= 2
	}
}

// filterVectorHits resolves each hit's bookmark and keeps only hits the
// caller is allowed to see.
func (e *Engine) filterVectorHits(ctx context.Context, hits []*store.VectorResult, filter store.Filter) ([]*store.VectorResult, error) {
	if len(hits) == 0 {
		return hits, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	resolved, err := e.store.ResolveChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	kept := make([]*store.VectorResult, 0, len(hits))
	for _, h := range hits {
		cc, ok := resolved[h.ChunkID]
		if ok && matchesFilter(cc.Bookmark, filter) {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

// fuse resolves chunk hits to bookmarks, collapses each channel to a
// per-bookmark maximum, and combines the two channels. Vector hits arrive
// already scoped by vectorCandidates; the lexical index enforces its own
// filters.
func (e *Engine) fuse(ctx context.Context, vectorHits []*store.VectorResult, lexicalHits []*store.LexicalResult, semantic bool) ([]*Result, error) {
	chunkIDs := make([]string, 0, len(vectorHits)+len(lexicalHits))
	for _, h := range vectorHits {
		chunkIDs = append(chunkIDs, h.ChunkID)
	}
	for _, h := range lexicalHits {
		chunkIDs = append(chunkIDs, h.ChunkID)
	}
	if len(chunkIDs) == 0 {
		return []*Result{}, nil
	}

	resolved, err := e.store.ResolveChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	semScores := make(map[uuid.UUID]float64)
	lexScores := make(map[uuid.UUID]float64)
	bookmarks := make(map[uuid.UUID]*bookmark.Bookmark)

	for _, h := range vectorHits {
		cc, ok := resolved[h.ChunkID]
		if !ok {
			continue
		}
		id := cc.Bookmark.ID
		bookmarks[id] = cc.Bookmark
		if h.Score > semScores[id] {
			semScores[id] = h.Score
		}
	}

	var maxLex float64
	for _, h := range lexicalHits {
		cc, ok := resolved[h.ChunkID]
		if !ok {
			continue // stale generation, index cleanup pending
		}
		id := cc.Bookmark.ID
		bookmarks[id] = cc.Bookmark
		if h.Score > lexScores[id] {
			lexScores[id] = h.Score
		}
		if h.Score > maxLex {
			maxLex = h.Score
		}
	}

	results := make([]*Result, 0, len(bookmarks))
	for id, b := range bookmarks {
		sem := semScores[id]
		lex := 0.0
		if maxLex > 0 {
			lex = lexScores[id] / maxLex
		}

		var fused float64
		if semantic {
			fused = e.cfg.SemanticWeight*sem + e.cfg.LexicalWeight*lex
		} else {
			fused = lex
		}
		results = append(results, &Result{
			Bookmark:      b,
			Score:         fused,
			SemanticScore: sem,
			LexicalScore:  lex,
		})
	}

	sortResults(results)
	return results, nil
}

// matchesFilter applies owner and pre-filter constraints to a vector hit's
// bookmark. The lexical index enforces these itself.
func matchesFilter(b *bookmark.Bookmark, filter store.Filter) bool {
	if b.UserID != filter.UserID {
		if !filter.IncludePublic || !b.IsPublic {
			return false
		}
	}
	if filter.Platform != "" && b.Platform != filter.Platform {
		return false
	}
	for _, want := range filter.Tags {
		found := false
		for _, tag := range b.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.CreatedAfter.IsZero() && b.CreatedAt.Before(filter.CreatedAfter) {
		return false
	}
	if !filter.CreatedBefore.IsZero() && b.CreatedAt.After(filter.CreatedBefore) {
		return false
	}
	return true
}

// sortResults orders by fused score descending, ties broken by the most
// recently created bookmark.
func sortResults(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Bookmark.CreatedAt.After(results[j].Bookmark.CreatedAt)
	})
}

func modeOrDefault(m Mode) Mode {
	if m == ModePrecise {
		return ModePrecise
	}
	return ModeSmart
}

// trim cuts the sorted result list at a score threshold derived from the
// best hit. Smart mode adapts the cutoff to the best hit's quality band;
// precise mode uses the good threshold as a fixed floor.
func trim(results []*Result, mode Mode, cfg config.SearchConfig) []*Result {
	if len(results) == 0 {
		return results
	}
	best := results[0].Score

	var floor float64
	switch {
	case mode == ModePrecise:
		floor = cfg.GoodThreshold
	case best > cfg.ExcellentThreshold:
		floor = best - excellentBand
	case best >= cfg.GoodThreshold:
		floor = best * goodFraction
	default:
		// A poor best score still means "closest available", which beats
		// an empty page. Keep everything.
		return results
	}

	cut := len(results)
	for i, r := range results {
		if r.Score < floor {
			cut = i
			break
		}
	}
	return results[:cut]
}

// logSearch records the query best-effort; failures never surface.
func (e *Engine) logSearch(ctx context.Context, userID uuid.UUID, query string, count int) {
	err := e.store.InsertSearchLog(ctx, &bookmark.SearchLog{
		UserID:      userID,
		Query:       query,
		ResultCount: count,
	})
	if err != nil {
		e.logger.Debug("search_log_insert_failed", slog.String("error", err.Error()))
	}
}
