// Package bookmark defines the core domain types shared by the ingestion
// pipeline and the search engine: bookmarks, extracted documents, content
// chunks, and the per-bookmark processing status machine.
package bookmark

import (
	"time"

	"github.com/google/uuid"
)

// Platform tags detected from the bookmark URL.
const (
	PlatformYouTube = "youtube"
	PlatformTwitter = "twitter"
	PlatformGitHub  = "github"
	PlatformReddit  = "reddit"
	PlatformPDF     = "pdf"
	PlatformWebsite = "website"
)

// Bookmark is a saved URL owned by a user. Its content is extracted,
// chunked, embedded, and indexed asynchronously; Status tracks where the
// bookmark is in that pipeline.
type Bookmark struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	URL         string
	Title       string
	Description string
	Platform    string
	Metadata    map[string]string
	Tags        []string
	IsPublic    bool

	Status       Status
	StatusReason string // human-readable failure reason, set when Status == failed

	// ChunkGeneration identifies the currently visible chunk set.
	// Re-indexing writes a new generation and flips this atomically.
	ChunkGeneration uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentDocument is the normalized output of content extraction.
// It is transient: consumed by the chunker, never persisted directly.
type ContentDocument struct {
	Title       string
	Description string
	Text        string
	Platform    string
	Metadata    map[string]string
}

// Empty reports whether the document carries no indexable text at all.
func (d *ContentDocument) Empty() bool {
	return d == nil || (d.Title == "" && d.Description == "" && d.Text == "")
}

// Chunk is a bounded slice of a bookmark's extracted text with its
// embedding vector. Index values form a contiguous [0,n) range within one
// generation.
type Chunk struct {
	ID         uuid.UUID
	BookmarkID uuid.UUID
	Generation uuid.UUID
	Index      int
	Text       string
	Vector     []float32
	CreatedAt  time.Time
}

// SearchLog is a write-only audit record of a search request.
type SearchLog struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Query       string
	ResultCount int
	CreatedAt   time.Time
}
