package vectormath

import (
	"sync"

	"github.com/wavemem/waverag/internal/waverr"
)

// SearchResult is a single hit from Store.Search.
type SearchResult struct {
	ID    string
	Score float64
}

// Store is a fixed-dimension, append-only in-memory vector container.
// It exists for small working sets (tag vectors, test corpora); large
// collections belong in the HNSW index.
type Store struct {
	mu      sync.RWMutex
	dim     int
	ids     []string
	vectors [][]float64
}

// NewStore creates a store for vectors of the given dimension.
func NewStore(dim int) *Store {
	return &Store{dim: dim}
}

// Add appends a vector under id. Rejects dimension mismatches.
func (s *Store) Add(id string, vector []float64) error {
	if len(vector) != s.dim {
		return waverr.DimensionMismatch(s.dim, len(vector))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	s.vectors = append(s.vectors, vector)
	return nil
}

// AddBatch appends all entries whose dimension matches, skipping the rest.
// Returns the number of vectors added.
func (s *Store) AddBatch(ids []string, vectors [][]float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for i, v := range vectors {
		if i >= len(ids) || len(v) != s.dim {
			continue
		}
		s.ids = append(s.ids, ids[i])
		s.vectors = append(s.vectors, v)
		added++
	}
	return added
}

// Search returns the k stored vectors most similar to query.
func (s *Store) Search(query []float64, k int) ([]SearchResult, error) {
	if len(query) != s.dim {
		return nil, waverr.DimensionMismatch(s.dim, len(query))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	top, err := TopKSimilar(query, s.vectors, k)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(top))
	for i, t := range top {
		results[i] = SearchResult{ID: s.ids[t.Index], Score: t.Score}
	}
	return results, nil
}

// Size returns the number of stored vectors.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Clear removes all stored vectors.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = nil
	s.vectors = nil
}
