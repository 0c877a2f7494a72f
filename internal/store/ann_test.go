package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(HNSWIndexConfig{Dimensions: 3, Capacity: 4})
	require.NoError(t, err)
	return idx
}

func TestHNSWIndex_AddSearch(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Add(2, []float32{0, 1, 0}))
	require.NoError(t, idx.Add(3, []float32{0.9, 0.1, 0}))

	hits, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, uint64(1), hits[0].ID)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-5)
	assert.Equal(t, uint64(3), hits[1].ID)

	// Scores stay in [0, 1]
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, float32(0))
		assert.LessOrEqual(t, h.Score, float32(1))
	}
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx := newTestIndex(t)

	require.Error(t, idx.Add(1, []float32{1, 0}))

	_, err := idx.Search([]float32{1, 0}, 1)
	require.Error(t, err)

	_, err = idx.AddBatch([]uint64{1}, []float32{1, 0})
	require.Error(t, err)
}

func TestHNSWIndex_AddBatch(t *testing.T) {
	idx := newTestIndex(t)

	n, err := idx.AddBatch([]uint64{1, 2}, []float32{1, 0, 0, 0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, idx.Size())
}

func TestHNSWIndex_RemoveAndContains(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Add(7, []float32{1, 0, 0}))

	assert.True(t, idx.Contains(7))
	assert.True(t, idx.Remove(7))
	assert.False(t, idx.Contains(7))
	assert.False(t, idx.Remove(7))
	assert.Equal(t, 0, idx.Size())

	// Removed ids never surface in search results
	hits, err := idx.Search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWIndex_CapacityGrows(t *testing.T) {
	idx, err := NewHNSWIndex(HNSWIndexConfig{Dimensions: 2, Capacity: 2})
	require.NoError(t, err)

	for i := uint64(0); i < 10; i++ {
		require.NoError(t, idx.Add(i, []float32{float32(i), 1}))
	}
	assert.GreaterOrEqual(t, idx.Capacity(), 10)
	assert.Equal(t, 10, idx.Size())
}

func TestHNSWIndex_Reserve(t *testing.T) {
	idx := newTestIndex(t)
	idx.Reserve(1000)
	assert.Equal(t, 1000, idx.Capacity())
	// Reserving less never shrinks
	idx.Reserve(10)
	assert.Equal(t, 1000, idx.Capacity())
}

func TestHNSWIndex_SaveLoad(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Add(2, []float32{0, 1, 0}))

	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	require.NoError(t, idx.Save(path))

	restored, err := NewHNSWIndex(HNSWIndexConfig{Dimensions: 3})
	require.NoError(t, err)
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.Size())
	assert.True(t, restored.Contains(1))

	hits, err := restored.Search([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(1), hits[0].ID)
}

func TestHNSWIndex_EmptySearch(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWIndex_MemoryUsage(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))
	assert.Positive(t, idx.MemoryUsage())
}

func TestHNSWIndex_ClosedOperationsFail(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Close())

	require.Error(t, idx.Add(1, []float32{1, 0, 0}))
	_, err := idx.Search([]float32{1, 0, 0}, 1)
	require.Error(t, err)
}
