package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	mserrors "github.com/markstash/markstash/internal/errors"
)

// VectorStore indexes chunk embeddings with coder/hnsw for approximate
// nearest-neighbor search over cosine distance. Chunk IDs are mapped to
// internal uint64 keys; deletion is lazy (mappings dropped, graph node
// orphaned) because removing graph nodes is unreliable in coder/hnsw.
type VectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// vectorMetadata persists ID mappings alongside the graph snapshot.
type vectorMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewVectorStore creates an empty in-memory vector index. Zero Dimensions
// defers sizing to the first inserted vector, for providers that only report
// their dimension after the first embedding.
func NewVectorStore(cfg VectorStoreConfig) (*VectorStore, error) {
	if cfg.Dimensions < 0 {
		return nil, mserrors.ValidationError("vector store dimensions must not be negative", nil)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorStore{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Add inserts vectors keyed by chunk ID. Re-adding an existing ID orphans
// the old graph node and installs the new vector.
func (s *VectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return mserrors.ValidationError(
			fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return mserrors.StorageError("vector store is closed", nil)
	}

	for _, v := range vectors {
		if len(v) == 0 {
			return mserrors.ValidationError("cannot index an empty vector", nil)
		}
		if s.config.Dimensions == 0 {
			// Deferred sizing: the first vector pins the dimension.
			s.config.Dimensions = len(v)
		}
		if len(v) != s.config.Dimensions {
			return mserrors.New(mserrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", s.config.Dimensions, len(v)), nil)
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest chunks to the query vector. Lazily deleted
// nodes are filtered out, so callers wanting k live results should over-ask.
func (s *VectorStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, mserrors.StorageError("vector store is closed", nil)
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}
	if len(query) != s.config.Dimensions {
		return nil, mserrors.New(mserrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", s.config.Dimensions, len(query)), nil)
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	nodes := s.graph.Search(normalized, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // orphaned by lazy deletion
		}

		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ChunkID:  id,
			Distance: distance,
			// Cosine distance ranges 0..2; map to similarity in [0,1].
			Score: 1.0 - float64(distance)/2.0,
		})
	}
	return results, nil
}

// Delete removes chunk IDs from the index (lazily).
func (s *VectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return mserrors.StorageError("vector store is closed", nil)
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Contains reports whether a chunk ID is live in the index.
func (s *VectorStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (s *VectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Save persists the graph and ID mappings atomically (temp file + rename).
func (s *VectorStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return mserrors.StorageError("vector store is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return mserrors.StorageError("failed to create index directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return mserrors.StorageError("failed to create index file", err)
	}

	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return mserrors.StorageError("failed to export vector graph", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return mserrors.StorageError("failed to close index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return mserrors.StorageError("failed to rename index file", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *VectorStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return mserrors.StorageError("failed to create metadata file", err)
	}

	meta := vectorMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return mserrors.StorageError("failed to encode vector metadata", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return mserrors.StorageError("failed to close metadata file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return mserrors.StorageError("failed to rename metadata file", err)
	}
	return nil
}

// Load restores a saved index. A missing snapshot is reported as
// os.ErrNotExist via the wrapped cause so callers can fall back to a
// rebuild from the metadata store.
func (s *VectorStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return mserrors.StorageError("vector store is closed", nil)
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return mserrors.StorageError("failed to open index file", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return mserrors.New(mserrors.ErrCodeCorruptIndex, "failed to import vector graph", err)
	}
	return nil
}

func (s *VectorStore) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return mserrors.StorageError("failed to open vector metadata", err)
	}
	defer func() { _ = file.Close() }()

	var meta vectorMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return mserrors.New(mserrors.ErrCodeCorruptIndex, "failed to decode vector metadata", err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases resources.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
