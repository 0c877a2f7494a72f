// Package fusion merges ranked result streams with Reciprocal Rank Fusion
// and tag-aware reweighting.
//
// RRF sidesteps incompatible score scales by ranking position alone:
//
//	contrib(d, source) = weight_source / (k + rank + 1)
//
// with k=60 as the standard smoothing constant. An optional per-id tag
// boost multiplies the fused base score by (1 + w_tag * boost).
package fusion

import (
	"sort"
	"sync"
)

// DefaultRRFK is the standard RRF smoothing parameter, empirically
// validated across domains.
const DefaultRRFK = 60

// Default source weights.
const (
	DefaultBM25Weight     = 0.5
	DefaultVectorWeight   = 0.5
	DefaultTagBoostWeight = 0.2
)

// SearchResultItem is one ranked item from a source stream.
// Rank is the item's position in the stream; Score is source-specific.
// An empty Metadata means none was supplied.
type SearchResultItem struct {
	ID       string
	Content  string
	Metadata string
	Score    float64
}

// Result is one fused item. Ranks are 1-indexed; 0 means the item was
// absent from that stream.
type Result struct {
	ID            string
	Content       string
	Metadata      string
	FinalScore    float64
	BM25Score     float64
	BM25Rank      int
	VectorScore   float64
	VectorRank    int
	TagBoostScore float64
	Source        string
}

// Engine fuses lexical and vector result streams.
// The scalar configuration is guarded so concurrent searches may share
// one engine while weights are retuned.
type Engine struct {
	mu             sync.RWMutex
	bm25Weight     float64
	vectorWeight   float64
	tagBoostWeight float64
	rrfK           float64
}

// NewEngine creates a fusion engine. Zero weights fall back to defaults.
func NewEngine(bm25Weight, vectorWeight, tagBoostWeight float64) *Engine {
	if bm25Weight == 0 {
		bm25Weight = DefaultBM25Weight
	}
	if vectorWeight == 0 {
		vectorWeight = DefaultVectorWeight
	}
	if tagBoostWeight == 0 {
		tagBoostWeight = DefaultTagBoostWeight
	}
	return &Engine{
		bm25Weight:     bm25Weight,
		vectorWeight:   vectorWeight,
		tagBoostWeight: tagBoostWeight,
		rrfK:           DefaultRRFK,
	}
}

// SetRRFK overrides the RRF smoothing constant. Non-positive k resets to 60.
func (e *Engine) SetRRFK(k float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if k <= 0 {
		k = DefaultRRFK
	}
	e.rrfK = k
}

// SetWeights replaces all three weights.
func (e *Engine) SetWeights(bm25, vector, tagBoost float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bm25Weight = bm25
	e.vectorWeight = vector
	e.tagBoostWeight = tagBoost
}

// Config is a snapshot of the engine's scalar configuration.
type Config struct {
	BM25Weight     float64
	VectorWeight   float64
	TagBoostWeight float64
	RRFK           float64
}

// GetConfig returns the current configuration.
func (e *Engine) GetConfig() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Config{
		BM25Weight:     e.bm25Weight,
		VectorWeight:   e.vectorWeight,
		TagBoostWeight: e.tagBoostWeight,
		RRFK:           e.rrfK,
	}
}

// accumulator collects one id's contributions across streams.
type accumulator struct {
	Result
	baseScore float64
}

// FuseResults merges two ranked streams with RRF, applies the per-id tag
// boost multiplier, and returns the top limit items by final score.
// Ties keep insertion order (bm25 stream first, then vector stream).
// Content and metadata come from whichever stream created the entry.
func (e *Engine) FuseResults(bm25, vector []SearchResultItem, tagBoostScores map[string]float64, limit int) []Result {
	if limit <= 0 {
		limit = 20
	}

	cfg := e.GetConfig()

	byID := make(map[string]*accumulator, len(bm25)+len(vector))
	var order []string

	for rank, item := range bm25 {
		acc := getOrCreate(byID, &order, item)
		acc.BM25Score = item.Score
		acc.BM25Rank = rank + 1
		acc.baseScore += cfg.BM25Weight / (cfg.RRFK + float64(rank) + 1)
	}

	for rank, item := range vector {
		acc := getOrCreate(byID, &order, item)
		acc.VectorScore = item.Score
		acc.VectorRank = rank + 1
		acc.baseScore += cfg.VectorWeight / (cfg.RRFK + float64(rank) + 1)
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		acc := byID[id]
		acc.TagBoostScore = tagBoostScores[id]
		acc.FinalScore = acc.baseScore * (1 + cfg.TagBoostWeight*acc.TagBoostScore)
		acc.Source = sourceOf(acc.BM25Rank, acc.VectorRank)
		results = append(results, acc.Result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	if limit < len(results) {
		results = results[:limit]
	}
	return results
}

// WeightedFusion merges two streams by direct score weighting instead of
// rank position. Use when callers supply pre-normalized scores. No tag
// boost applies here.
func (e *Engine) WeightedFusion(bm25, vector []SearchResultItem, limit int) []Result {
	if limit <= 0 {
		limit = 20
	}

	cfg := e.GetConfig()

	byID := make(map[string]*accumulator, len(bm25)+len(vector))
	var order []string

	for rank, item := range bm25 {
		acc := getOrCreate(byID, &order, item)
		acc.BM25Score = item.Score
		acc.BM25Rank = rank + 1
		acc.baseScore += item.Score * cfg.BM25Weight
	}

	for rank, item := range vector {
		acc := getOrCreate(byID, &order, item)
		acc.VectorScore = item.Score
		acc.VectorRank = rank + 1
		acc.baseScore += item.Score * cfg.VectorWeight
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		acc := byID[id]
		acc.FinalScore = acc.baseScore
		acc.Source = sourceOf(acc.BM25Rank, acc.VectorRank)
		results = append(results, acc.Result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	if limit < len(results) {
		results = results[:limit]
	}
	return results
}

// NormalizeScores maps scores linearly onto [0,1]. When the spread is
// below epsilon every score becomes 1. Idempotent up to float epsilon.
func (e *Engine) NormalizeScores(items []SearchResultItem) []SearchResultItem {
	if len(items) == 0 {
		return items
	}

	minScore, maxScore := items[0].Score, items[0].Score
	for _, item := range items[1:] {
		if item.Score < minScore {
			minScore = item.Score
		}
		if item.Score > maxScore {
			maxScore = item.Score
		}
	}

	out := make([]SearchResultItem, len(items))
	copy(out, items)

	spread := maxScore - minScore
	if spread < 1e-9 {
		for i := range out {
			out[i].Score = 1
		}
		return out
	}

	for i := range out {
		out[i].Score = (out[i].Score - minScore) / spread
	}
	return out
}

// MultiSourceFusion generalizes RRF to any number of ranked streams.
// A weight vector of the wrong length is replaced by uniform 1/N.
// Items fused from more than one stream are tagged "multi".
func (e *Engine) MultiSourceFusion(lists [][]SearchResultItem, weights []float64, limit int) []Result {
	if limit <= 0 {
		limit = 20
	}
	if len(lists) == 0 {
		return []Result{}
	}

	cfg := e.GetConfig()

	if len(weights) != len(lists) {
		weights = make([]float64, len(lists))
		for i := range weights {
			weights[i] = 1 / float64(len(lists))
		}
	}

	byID := make(map[string]*accumulator)
	var order []string
	hits := make(map[string]int)

	for li, list := range lists {
		for rank, item := range list {
			acc := getOrCreate(byID, &order, item)
			acc.baseScore += weights[li] / (cfg.RRFK + float64(rank) + 1)
			hits[item.ID]++
		}
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		acc := byID[id]
		acc.FinalScore = acc.baseScore
		if hits[id] > 1 {
			acc.Source = "multi"
		} else {
			acc.Source = "single"
		}
		results = append(results, acc.Result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	if limit < len(results) {
		results = results[:limit]
	}
	return results
}

func getOrCreate(byID map[string]*accumulator, order *[]string, item SearchResultItem) *accumulator {
	if acc, ok := byID[item.ID]; ok {
		return acc
	}
	acc := &accumulator{}
	acc.ID = item.ID
	acc.Content = item.Content
	acc.Metadata = item.Metadata
	byID[item.ID] = acc
	*order = append(*order, item.ID)
	return acc
}

func sourceOf(bm25Rank, vectorRank int) string {
	switch {
	case bm25Rank > 0 && vectorRank > 0:
		return "both"
	case bm25Rank > 0:
		return "bm25"
	default:
		return "vector"
	}
}
