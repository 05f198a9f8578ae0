package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
)

// MetadataStore is the SQLite-backed source of truth for bookmarks, chunks,
// and search logs. The vector and lexical indexes are derived from it and
// can be rebuilt from the chunk rows.
type MetadataStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	url              TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	platform         TEXT NOT NULL DEFAULT '',
	metadata         TEXT NOT NULL DEFAULT '{}',
	tags             TEXT NOT NULL DEFAULT '[]',
	is_public        INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'pending',
	status_reason    TEXT NOT NULL DEFAULT '',
	chunk_generation TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	UNIQUE(user_id, url)
);

CREATE INDEX IF NOT EXISTS idx_bookmarks_user ON bookmarks(user_id);
CREATE INDEX IF NOT EXISTS idx_bookmarks_status ON bookmarks(status);

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	bookmark_id TEXT NOT NULL,
	generation  TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	text        TEXT NOT NULL,
	vector      BLOB,
	created_at  TIMESTAMP NOT NULL,
	FOREIGN KEY(bookmark_id) REFERENCES bookmarks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chunks_bookmark_gen ON chunks(bookmark_id, generation);

CREATE TABLE IF NOT EXISTS search_logs (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	query        TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	created_at   TIMESTAMP NOT NULL
);
`

// Open opens (or creates) the metadata store at path. WAL mode keeps
// readers unblocked while the pipeline writes.
func Open(path string) (*MetadataStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, mserrors.StorageError("failed to create data directory", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, mserrors.StorageError("failed to open database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, mserrors.StorageError("failed to apply schema", err)
	}

	return &MetadataStore{db: db}, nil
}

// OpenInMemory opens an ephemeral store, used by tests.
func OpenInMemory() (*MetadataStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, mserrors.StorageError("failed to open in-memory database", err)
	}
	// A single connection keeps the in-memory database alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, mserrors.StorageError("failed to apply schema", err)
	}
	return &MetadataStore{db: db}, nil
}

// DB exposes the underlying handle so the job queue can share the database
// file and its transactions.
func (s *MetadataStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *MetadataStore) Close() error {
	return s.db.Close()
}

// CreateBookmark inserts a new bookmark in pending status.
// A second bookmark with the same URL for the same user is rejected.
func (s *MetadataStore) CreateBookmark(ctx context.Context, b *bookmark.Bookmark) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = bookmark.StatusPending
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	metaJSON, tagsJSON, err := marshalBookmarkFields(b)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (id, user_id, url, title, description, platform,
			metadata, tags, is_public, status, status_reason, chunk_generation,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.UserID.String(), b.URL, b.Title, b.Description, b.Platform,
		metaJSON, tagsJSON, boolToInt(b.IsPublic), string(b.Status), b.StatusReason,
		generationString(b.ChunkGeneration), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return mserrors.ValidationError("bookmark already exists for this URL", err)
		}
		return mserrors.StorageError("failed to insert bookmark", err)
	}
	return nil
}

// UpdateBookmark persists mutable metadata fields (title, description,
// platform, metadata, tags, visibility).
func (s *MetadataStore) UpdateBookmark(ctx context.Context, b *bookmark.Bookmark) error {
	metaJSON, tagsJSON, err := marshalBookmarkFields(b)
	if err != nil {
		return err
	}
	b.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE bookmarks
		SET title = ?, description = ?, platform = ?, metadata = ?, tags = ?,
			is_public = ?, updated_at = ?
		WHERE id = ?`,
		b.Title, b.Description, b.Platform, metaJSON, tagsJSON,
		boolToInt(b.IsPublic), b.UpdatedAt, b.ID.String())
	if err != nil {
		return mserrors.StorageError("failed to update bookmark", err)
	}
	return requireRowAffected(res, b.ID)
}

// SetStatus transitions a bookmark's status, enforcing the pipeline state
// machine. The reason is recorded for failed transitions and cleared
// otherwise.
func (s *MetadataStore) SetStatus(ctx context.Context, id uuid.UUID, to bookmark.Status, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mserrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM bookmarks WHERE id = ?`, id.String()).Scan(&current)
	if err == sql.ErrNoRows {
		return mserrors.New(mserrors.ErrCodeNotFound, "bookmark not found: "+id.String(), nil)
	}
	if err != nil {
		return mserrors.StorageError("failed to read bookmark status", err)
	}

	if !bookmark.CanTransition(bookmark.Status(current), to) {
		return mserrors.ValidationError(
			fmt.Sprintf("illegal status transition %s -> %s", current, to), nil)
	}

	if to != bookmark.StatusFailed {
		reason = ""
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE bookmarks SET status = ?, status_reason = ?, updated_at = ? WHERE id = ?`,
		string(to), reason, time.Now().UTC(), id.String())
	if err != nil {
		return mserrors.StorageError("failed to update bookmark status", err)
	}

	if err := tx.Commit(); err != nil {
		return mserrors.StorageError("failed to commit status update", err)
	}
	return nil
}

// GetBookmark fetches one bookmark by ID.
func (s *MetadataStore) GetBookmark(ctx context.Context, id uuid.UUID) (*bookmark.Bookmark, error) {
	row := s.db.QueryRowContext(ctx, selectBookmark+` WHERE id = ?`, id.String())
	return scanBookmark(row)
}

// GetBookmarkByURL fetches a user's bookmark by URL.
func (s *MetadataStore) GetBookmarkByURL(ctx context.Context, userID uuid.UUID, url string) (*bookmark.Bookmark, error) {
	row := s.db.QueryRowContext(ctx, selectBookmark+` WHERE user_id = ? AND url = ?`,
		userID.String(), url)
	return scanBookmark(row)
}

// ListBookmarks returns a user's bookmarks, optionally filtered by status,
// newest first.
func (s *MetadataStore) ListBookmarks(ctx context.Context, userID uuid.UUID, status bookmark.Status, limit int) ([]*bookmark.Bookmark, error) {
	q := selectBookmark + ` WHERE user_id = ?`
	args := []any{userID.String()}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mserrors.StorageError("failed to list bookmarks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*bookmark.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBookmarksByIDs hydrates search results. Missing IDs are silently
// skipped.
func (s *MetadataStore) GetBookmarksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*bookmark.Bookmark, error) {
	out := make(map[uuid.UUID]*bookmark.Bookmark, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, selectBookmark+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, mserrors.StorageError("failed to fetch bookmarks", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		out[b.ID] = b
	}
	return out, rows.Err()
}

// DeleteBookmark removes a bookmark and all its chunk rows, returning the
// chunk IDs so the caller can purge the indexes.
func (s *MetadataStore) DeleteBookmark(ctx context.Context, id uuid.UUID) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mserrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunkIDs, err := chunkIDsForBookmark(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE bookmark_id = ?`, id.String()); err != nil {
		return nil, mserrors.StorageError("failed to delete chunks", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id.String())
	if err != nil {
		return nil, mserrors.StorageError("failed to delete bookmark", err)
	}
	if err := requireRowAffected(res, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, mserrors.StorageError("failed to commit delete", err)
	}
	return chunkIDs, nil
}

// ReplaceChunks installs a new chunk generation for a bookmark and flips it
// visible in one transaction: new chunk rows in, generation pointer and
// status updated, old generation rows out. It returns the replaced chunk
// IDs so the caller can delete them from the indexes afterwards.
//
// The caller must have added the new chunks to the vector and lexical
// indexes BEFORE calling this, so no query ever sees a generation that is
// current but unsearchable.
func (s *MetadataStore) ReplaceChunks(ctx context.Context, bookmarkID uuid.UUID, generation uuid.UUID, chunks []bookmark.Chunk) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mserrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	oldChunkIDs, err := chunkIDsForBookmark(ctx, tx, bookmarkID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range chunks {
		c := &chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.BookmarkID = bookmarkID
		c.Generation = generation
		c.CreatedAt = now

		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, bookmark_id, generation, idx, text, vector, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID.String(), bookmarkID.String(), generation.String(), c.Index,
			c.Text, encodeVector(c.Vector), now)
		if err != nil {
			return nil, mserrors.StorageError("failed to insert chunk", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bookmarks
		SET chunk_generation = ?, status = ?, status_reason = '', updated_at = ?
		WHERE id = ?`,
		generation.String(), string(bookmark.StatusIndexed), now, bookmarkID.String())
	if err != nil {
		return nil, mserrors.StorageError("failed to flip chunk generation", err)
	}
	if err := requireRowAffected(res, bookmarkID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks WHERE bookmark_id = ? AND generation != ?`,
		bookmarkID.String(), generation.String()); err != nil {
		return nil, mserrors.StorageError("failed to delete stale chunks", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mserrors.StorageError("failed to commit chunk generation", err)
	}
	return oldChunkIDs, nil
}

// ChunkContext is a chunk hit joined with its owning bookmark, restricted
// to the bookmark's current generation.
type ChunkContext struct {
	ChunkID    uuid.UUID
	ChunkText  string
	ChunkIndex int
	Bookmark   *bookmark.Bookmark
}

// ResolveChunks maps index hits back to chunks and bookmarks. Hits from
// stale generations or unknown chunks are dropped, which makes index
// cleanup lag harmless.
func (s *MetadataStore) ResolveChunks(ctx context.Context, chunkIDs []string) (map[string]*ChunkContext, error) {
	out := make(map[string]*ChunkContext, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.text, c.idx,
			b.id, b.user_id, b.url, b.title, b.description, b.platform,
			b.metadata, b.tags, b.is_public, b.status, b.status_reason,
			b.chunk_generation, b.created_at, b.updated_at
		FROM chunks c
		JOIN bookmarks b ON b.id = c.bookmark_id AND b.chunk_generation = c.generation
		WHERE c.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, mserrors.StorageError("failed to resolve chunks", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cc                          ChunkContext
			chunkID                     string
			bID, bUser, bGen            string
			metaJSON, tagsJSON, bStatus string
			isPublic                    int
			b                           bookmark.Bookmark
		)
		err := rows.Scan(&chunkID, &cc.ChunkText, &cc.ChunkIndex,
			&bID, &bUser, &b.URL, &b.Title, &b.Description, &b.Platform,
			&metaJSON, &tagsJSON, &isPublic, &bStatus, &b.StatusReason,
			&bGen, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, mserrors.StorageError("failed to scan chunk context", err)
		}

		if err := fillBookmark(&b, bID, bUser, bGen, metaJSON, tagsJSON, isPublic, bStatus); err != nil {
			return nil, err
		}
		cc.ChunkID, _ = uuid.Parse(chunkID)
		cc.Bookmark = &b
		out[chunkID] = &cc
	}
	return out, rows.Err()
}

// IndexedChunk is one current-generation chunk joined with the bookmark
// fields both indexes need, used to rebuild them from the source of truth.
type IndexedChunk struct {
	ChunkID    uuid.UUID
	BookmarkID uuid.UUID
	UserID     uuid.UUID
	Platform   string
	Tags       []string
	Public     bool
	CreatedAt  time.Time
	Text       string
	Vector     []float32
}

// ListIndexedChunks streams all current-generation chunks that carry a
// vector.
func (s *MetadataStore) ListIndexedChunks(ctx context.Context) ([]IndexedChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.bookmark_id, b.user_id, b.platform, b.tags, b.is_public,
			b.created_at, c.text, c.vector
		FROM chunks c
		JOIN bookmarks b ON b.id = c.bookmark_id AND b.chunk_generation = c.generation
		WHERE c.vector IS NOT NULL`)
	if err != nil {
		return nil, mserrors.StorageError("failed to list indexed chunks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []IndexedChunk
	for rows.Next() {
		var ic IndexedChunk
		var id, bmID, userID, tagsJSON string
		var public int
		var blob []byte
		if err := rows.Scan(&id, &bmID, &userID, &ic.Platform, &tagsJSON,
			&public, &ic.CreatedAt, &ic.Text, &blob); err != nil {
			return nil, mserrors.StorageError("failed to scan indexed chunk", err)
		}
		ic.ChunkID, _ = uuid.Parse(id)
		ic.BookmarkID, _ = uuid.Parse(bmID)
		ic.UserID, _ = uuid.Parse(userID)
		ic.Public = public != 0
		ic.Vector = decodeVector(blob)
		if tagsJSON != "" {
			if err := json.Unmarshal([]byte(tagsJSON), &ic.Tags); err != nil {
				return nil, mserrors.StorageError("failed to decode chunk tags", err)
			}
		}
		out = append(out, ic)
	}
	return out, rows.Err()
}

// GetChunks returns a bookmark's current-generation chunks ordered by index.
func (s *MetadataStore) GetChunks(ctx context.Context, bookmarkID uuid.UUID) ([]bookmark.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.generation, c.idx, c.text, c.vector, c.created_at
		FROM chunks c
		JOIN bookmarks b ON b.id = c.bookmark_id AND b.chunk_generation = c.generation
		WHERE c.bookmark_id = ?
		ORDER BY c.idx`, bookmarkID.String())
	if err != nil {
		return nil, mserrors.StorageError("failed to fetch chunks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []bookmark.Chunk
	for rows.Next() {
		var (
			c       bookmark.Chunk
			id, gen string
			blob    []byte
		)
		if err := rows.Scan(&id, &gen, &c.Index, &c.Text, &blob, &c.CreatedAt); err != nil {
			return nil, mserrors.StorageError("failed to scan chunk", err)
		}
		c.ID, _ = uuid.Parse(id)
		c.Generation, _ = uuid.Parse(gen)
		c.BookmarkID = bookmarkID
		c.Vector = decodeVector(blob)
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertSearchLog records a search request. Best-effort by contract: the
// caller ignores failures.
func (s *MetadataStore) InsertSearchLog(ctx context.Context, log *bookmark.SearchLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_logs (id, user_id, query, result_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		log.ID.String(), log.UserID.String(), log.Query, log.ResultCount, log.CreatedAt)
	if err != nil {
		return mserrors.StorageError("failed to insert search log", err)
	}
	return nil
}

// ListTitles returns the titles of a user's indexed bookmarks, for query
// suggestions.
func (s *MetadataStore) ListTitles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title FROM bookmarks
		WHERE user_id = ? AND status = ? AND title != ''`,
		userID.String(), string(bookmark.StatusIndexed))
	if err != nil {
		return nil, mserrors.StorageError("failed to list titles", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, mserrors.StorageError("failed to scan title", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountByStatus returns how many of a user's bookmarks sit in each status.
func (s *MetadataStore) CountByStatus(ctx context.Context, userID uuid.UUID) (map[bookmark.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM bookmarks WHERE user_id = ? GROUP BY status`,
		userID.String())
	if err != nil {
		return nil, mserrors.StorageError("failed to count bookmarks", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[bookmark.Status]int)
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, mserrors.StorageError("failed to scan status count", err)
		}
		out[bookmark.Status(st)] = n
	}
	return out, rows.Err()
}

const selectBookmark = `
	SELECT id, user_id, url, title, description, platform, metadata, tags,
		is_public, status, status_reason, chunk_generation, created_at, updated_at
	FROM bookmarks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row rowScanner) (*bookmark.Bookmark, error) {
	var (
		b                          bookmark.Bookmark
		id, userID, gen            string
		metaJSON, tagsJSON, status string
		isPublic                   int
	)
	err := row.Scan(&id, &userID, &b.URL, &b.Title, &b.Description, &b.Platform,
		&metaJSON, &tagsJSON, &isPublic, &status, &b.StatusReason, &gen,
		&b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, mserrors.New(mserrors.ErrCodeNotFound, "bookmark not found", nil)
	}
	if err != nil {
		return nil, mserrors.StorageError("failed to scan bookmark", err)
	}
	if err := fillBookmark(&b, id, userID, gen, metaJSON, tagsJSON, isPublic, status); err != nil {
		return nil, err
	}
	return &b, nil
}

func fillBookmark(b *bookmark.Bookmark, id, userID, gen, metaJSON, tagsJSON string, isPublic int, status string) error {
	var err error
	if b.ID, err = uuid.Parse(id); err != nil {
		return mserrors.StorageError("corrupt bookmark id", err)
	}
	if b.UserID, err = uuid.Parse(userID); err != nil {
		return mserrors.StorageError("corrupt bookmark user id", err)
	}
	if gen != "" {
		if b.ChunkGeneration, err = uuid.Parse(gen); err != nil {
			return mserrors.StorageError("corrupt chunk generation", err)
		}
	}
	if err := json.Unmarshal([]byte(metaJSON), &b.Metadata); err != nil {
		return mserrors.StorageError("corrupt bookmark metadata", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &b.Tags); err != nil {
		return mserrors.StorageError("corrupt bookmark tags", err)
	}
	b.IsPublic = isPublic != 0
	b.Status = bookmark.Status(status)
	return nil
}

func marshalBookmarkFields(b *bookmark.Bookmark) (metaJSON, tagsJSON string, err error) {
	meta := b.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}

	mj, err := json.Marshal(meta)
	if err != nil {
		return "", "", mserrors.InternalError("failed to marshal bookmark metadata", err)
	}
	tj, err := json.Marshal(tags)
	if err != nil {
		return "", "", mserrors.InternalError("failed to marshal bookmark tags", err)
	}
	return string(mj), string(tj), nil
}

func chunkIDsForBookmark(ctx context.Context, tx *sql.Tx, bookmarkID uuid.UUID) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE bookmark_id = ?`, bookmarkID.String())
	if err != nil {
		return nil, mserrors.StorageError("failed to read chunk ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mserrors.StorageError("failed to scan chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func requireRowAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mserrors.StorageError("failed to read rows affected", err)
	}
	if n == 0 {
		return mserrors.New(mserrors.ErrCodeNotFound, "bookmark not found: "+id.String(), nil)
	}
	return nil
}

func generationString(g uuid.UUID) string {
	if g == uuid.Nil {
		return ""
	}
	return g.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// decodeVector unpacks a little-endian float32 vector.
func decodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
