package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemIndex(t *testing.T) *BleveLexicalIndex {
	t.Helper()
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveLexicalIndex_IndexAndSearch(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	n, err := idx.Index(ctx, []LexicalDocument{
		{ID: "1", Title: "Go concurrency", Content: "goroutines and channels", Tags: []string{"go"}},
		{ID: "2", Title: "Rust ownership", Content: "borrow checker rules", Tags: []string{"rust"}},
		{ID: "3", Title: "Go testing", Content: "table driven tests with channels", Tags: []string{"go", "testing"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	hits, err := idx.Search(ctx, "channels", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestBleveLexicalIndex_NoMatches(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	_, err := idx.Index(ctx, []LexicalDocument{
		{ID: "1", Content: "something"},
	})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "unrelatedterm", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleveLexicalIndex_Delete(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	_, err := idx.Index(ctx, []LexicalDocument{
		{ID: "1", Content: "alpha beta"},
		{ID: "2", Content: "alpha gamma"},
	})
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, []string{"1"}))

	hits, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "2", hits[0].ID)
}

func TestBleveLexicalIndex_ClosedFails(t *testing.T) {
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "x", 1)
	require.Error(t, err)
}
