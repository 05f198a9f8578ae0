package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	mserrors "github.com/markstash/markstash/internal/errors"
)

// LexicalIndex wraps bleve for keyword search over chunk text. Owner,
// platform, tag, visibility, and date constraints are applied as index-side
// filters so private bookmarks never leave the index for the wrong user.
type LexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// LexicalDocument is the bleve document for one chunk.
type LexicalDocument struct {
	Text       string    `json:"text"`
	UserID     string    `json:"user_id"`
	BookmarkID string    `json:"bookmark_id"`
	Platform   string    `json:"platform"`
	Tags       []string  `json:"tags"`
	Public     bool      `json:"public"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewLexicalIndex opens or creates a bleve index at path. An empty path
// creates an in-memory index for tests. A corrupt on-disk index is cleared
// and recreated; the metadata store can rebuild it.
func NewLexicalIndex(path string) (*LexicalIndex, error) {
	mapping, err := buildIndexMapping()
	if err != nil {
		return nil, mserrors.StorageError("failed to build index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, mserrors.StorageError("failed to create index directory", err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, mserrors.New(mserrors.ErrCodeCorruptIndex,
					"lexical index corrupted and cannot be cleared", removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("lexical_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, mserrors.New(mserrors.ErrCodeCorruptIndex,
					"lexical index corrupted and cannot be cleared", removeErr)
			}
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, mserrors.StorageError("failed to open lexical index", err)
	}

	return &LexicalIndex{index: idx, path: path}, nil
}

// buildIndexMapping maps chunk text through the English analyzer and the
// filter fields through the keyword analyzer so they match exactly.
func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = en.AnalyzerName

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name

	dateField := bleve.NewDateTimeFieldMapping()
	boolField := bleve.NewBooleanFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", textField)
	doc.AddFieldMappingsAt("user_id", keywordField)
	doc.AddFieldMappingsAt("bookmark_id", keywordField)
	doc.AddFieldMappingsAt("platform", keywordField)
	doc.AddFieldMappingsAt("tags", keywordField)
	doc.AddFieldMappingsAt("public", boolField)
	doc.AddFieldMappingsAt("created_at", dateField)

	mapping := bleve.NewIndexMapping()
	mapping.DefaultMapping = doc
	mapping.DefaultAnalyzer = en.AnalyzerName
	return mapping, nil
}

// IndexChunks adds or replaces chunk documents in one batch.
func (l *LexicalIndex) IndexChunks(ctx context.Context, docs map[string]LexicalDocument) error {
	if len(docs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return mserrors.StorageError("lexical index is closed", nil)
	}

	batch := l.index.NewBatch()
	for chunkID, doc := range docs {
		if err := batch.Index(chunkID, doc); err != nil {
			return mserrors.New(mserrors.ErrCodeIndexFailed, "failed to index chunk "+chunkID, err)
		}
	}
	if err := l.index.Batch(batch); err != nil {
		return mserrors.New(mserrors.ErrCodeIndexFailed, "failed to execute index batch", err)
	}
	return nil
}

// DeleteChunks removes chunk documents by ID.
func (l *LexicalIndex) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return mserrors.StorageError("lexical index is closed", nil)
	}

	batch := l.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := l.index.Batch(batch); err != nil {
		return mserrors.New(mserrors.ErrCodeIndexFailed, "failed to delete from lexical index", err)
	}
	return nil
}

// Search returns the top chunks matching the query text under the filter.
// An empty query returns no results.
func (l *LexicalIndex) Search(ctx context.Context, queryStr string, filter Filter, limit int) ([]*LexicalResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, mserrors.StorageError("lexical index is closed", nil)
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	match := bleve.NewMatchQuery(queryStr)
	match.SetField("text")

	full := bleve.NewConjunctionQuery(match, buildFilterQuery(filter))

	req := bleve.NewSearchRequest(full)
	req.Size = limit

	result, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, mserrors.New(mserrors.ErrCodeSearchFailed, "lexical search failed", err)
	}

	out := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, &LexicalResult{ChunkID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// buildFilterQuery translates a Filter into bleve term/range constraints.
func buildFilterQuery(filter Filter) query.Query {
	var musts []query.Query

	owner := termQuery(filter.UserID.String(), "user_id")
	if filter.IncludePublic {
		public := bleve.NewBoolFieldQuery(true)
		public.SetField("public")
		scope := bleve.NewDisjunctionQuery(owner, public)
		scope.SetMin(1)
		musts = append(musts, scope)
	} else {
		musts = append(musts, owner)
	}

	if filter.Platform != "" {
		musts = append(musts, termQuery(filter.Platform, "platform"))
	}
	for _, tag := range filter.Tags {
		musts = append(musts, termQuery(tag, "tags"))
	}

	if !filter.CreatedAfter.IsZero() || !filter.CreatedBefore.IsZero() {
		start, end := filter.CreatedAfter, filter.CreatedBefore
		if end.IsZero() {
			end = time.Now().UTC().Add(24 * time.Hour)
		}
		dr := bleve.NewDateRangeQuery(start, end)
		dr.SetField("created_at")
		musts = append(musts, dr)
	}

	return bleve.NewConjunctionQuery(musts...)
}

func termQuery(term, field string) *query.TermQuery {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

// DocCount returns the number of indexed chunks.
func (l *LexicalIndex) DocCount() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, mserrors.StorageError("lexical index is closed", nil)
	}
	return l.index.DocCount()
}

// Close closes the underlying bleve index.
func (l *LexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}

// DocumentForChunk builds the lexical document for one chunk of a bookmark.
func DocumentForChunk(userID, bookmarkID uuid.UUID, platform string, tags []string, public bool, createdAt time.Time, text string) LexicalDocument {
	return LexicalDocument{
		Text:       text,
		UserID:     userID.String(),
		BookmarkID: bookmarkID.String(),
		Platform:   platform,
		Tags:       tags,
		Public:     public,
		CreatedAt:  createdAt,
	}
}

// validateIndexIntegrity checks a bleve index directory before opening:
// a present but unreadable index_meta.json means the index is corrupt.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return mserrors.New(mserrors.ErrCodeCorruptIndex, "index_meta.json missing", nil)
	}
	if err != nil {
		return mserrors.StorageError("cannot stat index_meta.json", err)
	}
	if info.Size() == 0 {
		return mserrors.New(mserrors.ErrCodeCorruptIndex, "index_meta.json is empty", nil)
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return mserrors.StorageError("cannot read index_meta.json", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return mserrors.New(mserrors.ErrCodeCorruptIndex, "index_meta.json is corrupt", err)
	}
	return nil
}

// isCorruptionError checks if an error indicates bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}
