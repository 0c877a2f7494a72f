package store

import (
	"context"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/wavemem/waverag/internal/waverr"
)

// BleveLexicalIndex implements LexicalIndex over bleve's default relevance
// scoring; the index mapping does not select bleve's BM25 scoring model.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

// bleveDocument is the indexed document shape.
type bleveDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Tags    string `json:"tags"`
}

// NewBleveLexicalIndex opens or creates a lexical index at path.
// An empty path builds an in-memory index.
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	m := buildIndexMapping()

	var index bleve.Index
	var err error
	if path == "" {
		index, err = bleve.NewMemOnly(m)
	} else {
		index, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			index, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, waverr.IOError("lexical: open index", err)
	}

	return &BleveLexicalIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("content", textField)
	docMapping.AddFieldMappingsAt("tags", textField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	return m
}

// Index adds documents in one batch. Returns the number indexed.
func (l *BleveLexicalIndex) Index(ctx context.Context, docs []LexicalDocument) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, waverr.IOError("lexical: index is closed", nil)
	}

	batch := l.index.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := batch.Index(doc.ID, bleveDocument{
			Title:   doc.Title,
			Content: doc.Content,
			Tags:    strings.Join(doc.Tags, " "),
		})
		if err != nil {
			return 0, waverr.IOError("lexical: batch index", err)
		}
	}

	if err := l.index.Batch(batch); err != nil {
		return 0, waverr.IOError("lexical: commit batch", err)
	}
	return len(docs), nil
}

// Search returns up to limit documents matching query, best first.
func (l *BleveLexicalIndex) Search(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, waverr.IOError("lexical: index is closed", nil)
	}
	if limit <= 0 {
		limit = 10
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, waverr.IOError("lexical: search", err)
	}

	hits := make([]LexicalHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, LexicalHit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Delete removes documents by id.
func (l *BleveLexicalIndex) Delete(ctx context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return waverr.IOError("lexical: index is closed", nil)
	}

	batch := l.index.NewBatch()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch.Delete(id)
	}
	return l.index.Batch(batch)
}

// Count returns the number of indexed documents.
func (l *BleveLexicalIndex) Count() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0, waverr.IOError("lexical: index is closed", nil)
	}
	return l.index.DocCount()
}

// Close releases the index.
func (l *BleveLexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}

// Verify interface implementation.
var _ LexicalIndex = (*BleveLexicalIndex)(nil)
