package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/markstash/markstash/internal/bookmark"
	"github.com/markstash/markstash/internal/store"
)

// minSuggestionLen filters out short noise words from suggestions.
const minSuggestionLen = 3

// Suggest returns autocomplete candidates for a prefix, drawn from the
// words of the user's indexed bookmark titles ranked by frequency. All
// failures are swallowed: bad suggestions are worse than none, and no
// suggestion path may surface an error.
func (e *Engine) Suggest(ctx context.Context, userID uuid.UUID, prefix string, limit int) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit <= 0 {
		return nil
	}

	titles, err := e.store.ListTitles(ctx, userID)
	if err != nil {
		e.logger.Debug("suggest_title_listing_failed", slog.String("error", err.Error()))
		return nil
	}

	freq := make(map[string]int)
	for _, title := range titles {
		for _, word := range splitWords(title) {
			if len(word) < minSuggestionLen || !strings.HasPrefix(word, prefix) {
				continue
			}
			freq[word]++
		}
	}
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

// splitWords lowercases a title and splits it on anything that is not a
// letter or digit.
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Similar returns bookmarks nearest to the given bookmark's content,
// measured against the centroid of its chunk vectors. Results are scoped
// to the bookmark's owner plus public bookmarks.
func (e *Engine) Similar(ctx context.Context, bookmarkID uuid.UUID, limit int) ([]*Result, error) {
	if limit <= 0 || limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}

	b, err := e.store.GetBookmark(ctx, bookmarkID)
	if err != nil {
		return nil, err
	}
	chunks, err := e.store.GetChunks(ctx, bookmarkID)
	if err != nil {
		return nil, err
	}

	centroid := vectorCentroid(chunks)
	if centroid == nil {
		return []*Result{}, nil
	}

	hits, err := e.vectors.Search(ctx, centroid, (limit+1)*e.cfg.CandidateMultiplier)
	if err != nil {
		return nil, err
	}

	chunkIDs := make([]string, len(hits))
	for i, h := range hits {
		chunkIDs[i] = h.ChunkID
	}
	resolved, err := e.store.ResolveChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	filter := store.Filter{UserID: b.UserID, IncludePublic: true}
	scores := make(map[uuid.UUID]float64)
	bookmarks := make(map[uuid.UUID]*bookmark.Bookmark)
	for _, h := range hits {
		cc, ok := resolved[h.ChunkID]
		if !ok || cc.Bookmark.ID == bookmarkID || !matchesFilter(cc.Bookmark, filter) {
			continue
		}
		id := cc.Bookmark.ID
		bookmarks[id] = cc.Bookmark
		if h.Score > scores[id] {
			scores[id] = h.Score
		}
	}

	results := make([]*Result, 0, len(bookmarks))
	for id, bm := range bookmarks {
		results = append(results, &Result{
			Bookmark:      bm,
			Score:         scores[id],
			SemanticScore: scores[id],
		})
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// vectorCentroid averages a bookmark's chunk vectors.
func vectorCentroid(chunks []bookmark.Chunk) []float32 {
	var centroid []float32
	n := 0
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			continue
		}
		if centroid == nil {
			centroid = make([]float32, len(c.Vector))
		}
		for i, v := range c.Vector {
			centroid[i] += v
		}
		n++
	}
	if centroid == nil {
		return nil
	}
	for i := range centroid {
		centroid[i] /= float32(n)
	}
	return centroid
}
