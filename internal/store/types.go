// Package store persists bookmarks and their chunks. It has three parts:
// a SQLite metadata store (source of truth), an HNSW vector index, and a
// bleve lexical index. Index mutations are driven by the metadata store's
// generation swap so a bookmark's visible chunk set changes atomically.
package store

import (
	"time"

	"github.com/google/uuid"
)

// VectorResult is one hit from the vector index.
type VectorResult struct {
	ChunkID  string
	Distance float32
	// Score is cosine similarity mapped to [0,1].
	Score float64
}

// LexicalResult is one hit from the lexical index.
type LexicalResult struct {
	ChunkID string
	// Score is bleve's BM25-style score, unnormalized.
	Score float64
}

// Filter narrows search candidates. UserID is mandatory for private search;
// the zero value of the other fields means "no constraint".
type Filter struct {
	UserID        uuid.UUID
	Platform      string
	Tags          []string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	// IncludePublic widens the user scope with other users' public bookmarks.
	IncludePublic bool
}

// VectorStoreConfig configures the HNSW index.
type VectorStoreConfig struct {
	Dimensions int
	// M is the maximum number of neighbors per node.
	M int
	// EfSearch is the candidate list size during search.
	EfSearch int
}
