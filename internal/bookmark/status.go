package bookmark

// Status is a bookmark's position in the ingestion pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusChunking   Status = "chunking"
	StatusEmbedding  Status = "embedding"
	StatusIndexing   Status = "indexing"
	StatusIndexed    Status = "indexed"
	StatusFailed     Status = "failed"
)

// pipelineOrder maps each in-flight status to its successor.
var pipelineOrder = map[Status]Status{
	StatusPending:    StatusExtracting,
	StatusExtracting: StatusChunking,
	StatusChunking:   StatusEmbedding,
	StatusEmbedding:  StatusIndexing,
	StatusIndexing:   StatusIndexed,
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusExtracting, StatusChunking, StatusEmbedding,
		StatusIndexing, StatusIndexed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends pipeline processing for the current run.
// Failed bookmarks may still be re-enqueued, which resets them to pending.
func (s Status) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// Searchable reports whether bookmarks in this status have a visible chunk
// generation. Only fully indexed bookmarks participate in search.
func (s Status) Searchable() bool {
	return s == StatusIndexed
}

// Next returns the successor status in the pipeline, or false when s is
// terminal or unknown.
func (s Status) Next() (Status, bool) {
	next, ok := pipelineOrder[s]
	return next, ok
}

// CanTransition reports whether moving a bookmark from one status to another
// is allowed. Legal moves are: one step forward through the pipeline, any
// non-terminal status to failed, and either terminal status back to pending
// (retry or re-index).
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if next, ok := pipelineOrder[from]; ok && next == to {
		return true
	}
	if to == StatusFailed && !from.Terminal() {
		return true
	}
	if to == StatusPending && from.Terminal() {
		return true
	}
	return false
}
