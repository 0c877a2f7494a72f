// Package store provides the retrieval collaborators around the core
// pipeline: the HNSW ANN index, the bleve lexical index, and the SQLite
// recovery stream that rebuilds the ANN index from persisted vectors.
package store

import "context"

// VectorHit is one ANN search result. Distance is cosine distance;
// Score is clamp(1-distance, 0, 1).
type VectorHit struct {
	ID       uint64
	Distance float32
	Score    float32
}

// ANNIndex is the approximate-nearest-neighbour contract the pipeline
// depends on. Distances are cosine.
type ANNIndex interface {
	Add(id uint64, vector []float32) error
	AddBatch(ids []uint64, flatVectors []float32) (int, error)
	Search(query []float32, k int) ([]VectorHit, error)
	Remove(id uint64) bool
	Contains(id uint64) bool
	Size() int
	Capacity() int
	MemoryUsage() int64
	Save(path string) error
	Load(path string) error
}

// LexicalDocument is one document for the lexical index.
type LexicalDocument struct {
	ID      string
	Title   string
	Content string
	Tags    []string
}

// LexicalHit is one lexical search result.
type LexicalHit struct {
	ID    string
	Score float64
}

// LexicalIndex is the full-text contract. The pipeline consumes its
// output as a ranked stream; scoring internals stay opaque.
type LexicalIndex interface {
	Index(ctx context.Context, docs []LexicalDocument) (int, error)
	Search(ctx context.Context, query string, limit int) ([]LexicalHit, error)
	Delete(ctx context.Context, ids []string) error
	Count() (uint64, error)
	Close() error
}
