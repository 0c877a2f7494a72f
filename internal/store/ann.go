package store

import (
	"bufio"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/wavemem/waverag/internal/waverr"
)

// growthFactor is applied to capacity when an insert overflows it.
const growthFactor = 1.5

// HNSWIndexConfig configures the ANN index.
type HNSWIndexConfig struct {
	// Dimensions is the vector dimension.
	Dimensions int
	// Capacity is the initial reserved capacity; grows 1.5x on overflow.
	Capacity int
	// M is HNSW max connections per layer (default: 16).
	M int
	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// HNSWIndex implements ANNIndex over the coder/hnsw pure-Go graph.
// Cosine distance only; vectors are normalized on insert.
type HNSWIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	config   HNSWIndexConfig
	ids      map[uint64]struct{}
	capacity int
	closed   bool
}

// annMetadata stores the id set and config for persistence.
type annMetadata struct {
	IDs      map[uint64]struct{}
	Capacity int
	Config   HNSWIndexConfig
}

// NewHNSWIndex creates an ANN index with the given dimension and capacity.
func NewHNSWIndex(cfg HNSWIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, waverr.New(waverr.ErrCodeInvalidInput, "ann: dimensions must be positive", nil)
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
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

	return &HNSWIndex{
		graph:    graph,
		config:   cfg,
		ids:      make(map[uint64]struct{}, cfg.Capacity),
		capacity: cfg.Capacity,
	}, nil
}

// Add inserts one vector. An existing id is replaced.
func (x *HNSWIndex) Add(id uint64, vector []float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return waverr.IOError("ann: index is closed", nil)
	}
	if len(vector) != x.config.Dimensions {
		return waverr.DimensionMismatch(x.config.Dimensions, len(vector))
	}

	x.reserveLocked(len(x.ids) + 1)

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	x.graph.Add(hnsw.MakeNode(id, vec))
	x.ids[id] = struct{}{}
	return nil
}

// AddBatch inserts vectors packed as one flat slice of len(ids)*dim
// floats. Returns the number inserted.
func (x *HNSWIndex) AddBatch(ids []uint64, flatVectors []float32) (int, error) {
	dim := x.config.Dimensions
	if len(flatVectors) != len(ids)*dim {
		return 0, waverr.DimensionMismatch(len(ids)*dim, len(flatVectors))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return 0, waverr.IOError("ann: index is closed", nil)
	}

	x.reserveLocked(len(x.ids) + len(ids))

	for i, id := range ids {
		vec := make([]float32, dim)
		copy(vec, flatVectors[i*dim:(i+1)*dim])
		normalizeInPlace(vec)
		x.graph.Add(hnsw.MakeNode(id, vec))
		x.ids[id] = struct{}{}
	}
	return len(ids), nil
}

// reserveLocked grows capacity 1.5x until needed fits.
// Caller must hold the write lock.
func (x *HNSWIndex) reserveLocked(needed int) {
	for x.capacity < needed {
		x.capacity = int(math.Ceil(float64(x.capacity) * growthFactor))
	}
}

// Reserve pre-sizes the index for the expected element count.
func (x *HNSWIndex) Reserve(capacity int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if capacity > x.capacity {
		x.capacity = capacity
	}
}

// Search returns the k nearest neighbours of query.
func (x *HNSWIndex) Search(query []float32, k int) ([]VectorHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, waverr.IOError("ann: index is closed", nil)
	}
	if len(query) != x.config.Dimensions {
		return nil, waverr.DimensionMismatch(x.config.Dimensions, len(query))
	}
	if x.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := x.graph.Search(normalized, k)

	hits := make([]VectorHit, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := x.ids[node.Key]; !ok {
			// Lazily-removed node still in the graph.
			continue
		}
		distance := x.graph.Distance(normalized, node.Value)
		hits = append(hits, VectorHit{
			ID:       node.Key,
			Distance: distance,
			Score:    distanceToScore(distance),
		})
	}
	return hits, nil
}

// Remove deletes an id. Lazy: the node stays in the graph but is
// filtered from results, avoiding coder/hnsw last-node deletion issues.
func (x *HNSWIndex) Remove(id uint64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.ids[id]; !ok {
		return false
	}
	delete(x.ids, id)
	return true
}

// Contains reports whether id is present.
func (x *HNSWIndex) Contains(id uint64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.ids[id]
	return ok
}

// Size returns the number of live vectors.
func (x *HNSWIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

// Capacity returns the current reserved capacity.
func (x *HNSWIndex) Capacity() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.capacity
}

// MemoryUsage estimates resident bytes: graph nodes times vector payload
// plus id bookkeeping.
func (x *HNSWIndex) MemoryUsage() int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	perNode := int64(x.config.Dimensions)*4 + 8*int64(x.config.M)
	return int64(x.graph.Len())*perNode + int64(len(x.ids))*16
}

// Save persists the graph and id set atomically (temp file + rename).
func (x *HNSWIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return waverr.IOError("ann: index is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return waverr.IOError("ann: create directory", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return waverr.IOError("ann: create index file", err)
	}

	if err := x.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return waverr.IOError("ann: export graph", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return waverr.IOError("ann: close index file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return waverr.IOError("ann: rename index file", err)
	}

	return x.saveMetadata(path + ".meta")
}

func (x *HNSWIndex) saveMetadata(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return waverr.IOError("ann: create metadata file", err)
	}

	meta := annMetadata{IDs: x.ids, Capacity: x.capacity, Config: x.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return waverr.IOError("ann: encode metadata", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return waverr.IOError("ann: close metadata file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return waverr.IOError("ann: rename metadata file", err)
	}
	return nil
}

// Load restores a saved index.
func (x *HNSWIndex) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return waverr.IOError("ann: index is closed", nil)
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return waverr.IOError("ann: open metadata file", err)
	}
	var meta annMetadata
	decodeErr := gob.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if decodeErr != nil {
		return waverr.ParseError("ann: decode metadata", decodeErr)
	}

	file, err := os.Open(path)
	if err != nil {
		return waverr.IOError("ann: open index file", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := x.graph.Import(bufio.NewReader(file)); err != nil {
		return waverr.ParseError("ann: import graph", err)
	}

	x.ids = meta.IDs
	x.capacity = meta.Capacity
	x.config = meta.Config
	return nil
}

// Close releases the graph.
func (x *HNSWIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	x.graph = nil
	return nil
}

// Verify interface implementation.
var _ ANNIndex = (*HNSWIndex)(nil)

// normalizeInPlace scales v to unit length. Zero vectors are left as-is.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts cosine distance to a similarity score,
// clamped to [0, 1].
func distanceToScore(distance float32) float32 {
	score := 1 - distance
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
