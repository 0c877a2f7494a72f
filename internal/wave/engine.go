// Package wave implements the three-stage WaveRAG retrieval pipeline.
//
// A search runs Lens → Expansion → Focus:
//
//	Lens      focuses the query tags through the streaming TagMemo matrix
//	Expansion diffuses the focused set through the batch NPMI graph
//	Focus     fuses the lexical and dense streams under RRF with a
//	          per-item tag boost, then thresholds and truncates
//
// The engine exclusively owns its TagMemo matrix, NPMI matrix, and fusion
// engine; callers interact with them only through engine methods.
package wave

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wavemem/waverag/internal/cooccur"
	"github.com/wavemem/waverag/internal/fusion"
	"github.com/wavemem/waverag/internal/tagmemo"
	"github.com/wavemem/waverag/internal/telemetry"
)

// lensCacheSize bounds the memoized Lens expansions. Any tag matrix
// mutation purges the cache.
const lensCacheSize = 256

// StageInfo is per-stage telemetry attached to a search result.
type StageInfo struct {
	TagsUsed    []string
	DurationMS  float64
	ResultCount int
}

// ResultItem is one fused, thresholded search hit.
type ResultItem struct {
	ID            string
	Content       string
	Metadata      string
	FinalScore    float64
	OriginalScore float64
	TagBoostScore float64
	Source        string
}

// SearchResult is the full pipeline output.
type SearchResult struct {
	TraceID   string
	Results   []ResultItem
	Lens      StageInfo
	Expansion StageInfo
	Focus     StageInfo
	TotalMS   float64
}

// Stats summarizes engine state.
type Stats struct {
	TagMemo     tagmemo.Stats
	CooccurTags int
	CooccurDocs int
	Config      Config
	SearchCount uint64
}

// Engine is the WaveRAG orchestrator.
type Engine struct {
	mu     sync.RWMutex
	config Config

	tagMatrix *tagmemo.Matrix
	cooccur   *cooccur.Matrix
	fuser     *fusion.Engine

	lensCache *lru.Cache[string, []string]
	recorder  *telemetry.Recorder
	logger    *slog.Logger

	traceCounter atomic.Uint64
}

// New creates an engine with the given config (zero fields default,
// except FocusScoreThreshold, where zero means no floor).
func New(cfg Config) *Engine {
	cfg = cfg.Normalized()
	cache, _ := lru.New[string, []string](lensCacheSize)
	return &Engine{
		config:    cfg,
		tagMatrix: tagmemo.New(0, 0),
		cooccur:   cooccur.New(),
		fuser:     fusion.NewEngine(cfg.BM25Weight, cfg.VectorWeight, cfg.TagMemoWeight),
		lensCache: cache,
		recorder:  telemetry.NewRecorder(100),
		logger:    slog.Default(),
	}
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Telemetry exposes the engine's recorder.
func (e *Engine) Telemetry() *telemetry.Recorder {
	return e.recorder
}

// tm returns the current TagMemo matrix; the pointer is swapped by
// LoadTagMatrixFromJSON so reads go through the engine lock.
func (e *Engine) tm() *tagmemo.Matrix {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tagMatrix
}

// nextTraceID allocates a per-search trace identifier. The counter keeps
// ids unique within one process even if the clock moves backwards.
func (e *Engine) nextTraceID() string {
	return fmt.Sprintf("wave-%d-%d", time.Now().UnixMilli(), e.traceCounter.Add(1))
}

// Search runs the full pipeline over the supplied streams.
//
// A non-nil override replaces the engine configuration for this call
// only, across all three stages; nil uses the stored configuration.
func (e *Engine) Search(queryTags []string, bm25Results, vectorResults []fusion.SearchResultItem, override *Config) SearchResult {
	start := time.Now()
	traceID := e.nextTraceID()

	e.mu.RLock()
	cfg := e.config
	fuser := e.fuser
	e.mu.RUnlock()

	if override != nil {
		cfg = override.Normalized()
		// A transient fusion engine carries the per-call weights so the
		// owned engine's stored configuration stays untouched.
		fuser = fusion.NewEngine(cfg.BM25Weight, cfg.VectorWeight, cfg.TagMemoWeight)
	}

	// Stage 1: Lens.
	lensStart := time.Now()
	lensTags := e.lensExpand(queryTags)
	if len(lensTags) > cfg.LensMaxTags {
		lensTags = lensTags[:cfg.LensMaxTags]
	}
	lens := StageInfo{
		TagsUsed:   lensTags,
		DurationMS: msSince(lensStart),
	}

	// Stage 2: Expansion.
	expStart := time.Now()
	expanded := e.cooccur.ExpandTags(lensTags, cfg.ExpansionDepth, 0.7)
	expansionTags := make([]string, 0, len(expanded))
	for _, et := range expanded {
		if et.Weight < cfg.ExpansionThreshold {
			continue
		}
		expansionTags = append(expansionTags, et.Tag)
		if len(expansionTags) == cfg.ExpansionMaxTags {
			break
		}
	}
	expansion := StageInfo{
		TagsUsed:   expansionTags,
		DurationMS: msSince(expStart),
	}

	// Stage 3: Focus.
	focusStart := time.Now()
	tagBoostScores := e.collectTagBoosts(queryTags, bm25Results, vectorResults)
	fused := fuser.FuseResults(bm25Results, vectorResults, tagBoostScores, cfg.FocusTopK)

	results := make([]ResultItem, 0, len(fused))
	for _, f := range fused {
		if f.FinalScore < cfg.FocusScoreThreshold {
			continue
		}
		results = append(results, ResultItem{
			ID:            f.ID,
			Content:       f.Content,
			Metadata:      f.Metadata,
			FinalScore:    f.FinalScore,
			OriginalScore: math.Max(f.BM25Score, f.VectorScore),
			TagBoostScore: f.TagBoostScore,
			Source:        f.Source,
		})
	}
	focus := StageInfo{
		TagsUsed:    queryTags,
		DurationMS:  msSince(focusStart),
		ResultCount: len(results),
	}

	totalMS := msSince(start)
	e.recorder.Record(telemetry.SearchEvent{
		TraceID:     traceID,
		QueryTags:   len(queryTags),
		ResultCount: len(results),
		Latency:     time.Since(start),
		StageMS: map[telemetry.Stage]float64{
			telemetry.StageLens:      lens.DurationMS,
			telemetry.StageExpansion: expansion.DurationMS,
			telemetry.StageFocus:     focus.DurationMS,
		},
		Timestamp: start,
	})

	e.logger.Debug("wave search complete",
		slog.String("trace_id", traceID),
		slog.Int("query_tags", len(queryTags)),
		slog.Int("results", len(results)),
		slog.Float64("total_ms", totalMS))

	return SearchResult{
		TraceID:   traceID,
		Results:   results,
		Lens:      lens,
		Expansion: expansion,
		Focus:     focus,
		TotalMS:   totalMS,
	}
}

// lensExpand memoizes TagMemo query expansion for repeated queries.
func (e *Engine) lensExpand(queryTags []string) []string {
	if len(queryTags) == 0 {
		return []string{}
	}

	key := strings.Join(queryTags, "\x1f")
	if cached, ok := e.lensCache.Get(key); ok {
		out := make([]string, len(cached))
		copy(out, cached)
		return out
	}

	expanded := e.tm().ExpandQuery(queryTags, 0.5)
	e.lensCache.Add(key, expanded)
	out := make([]string, len(expanded))
	copy(out, expanded)
	return out
}

// itemTags is the metadata shape carrying a document's tags.
type itemTags struct {
	Tags []string `json:"tags"`
}

// collectTagBoosts scores every stream item whose metadata carries tags.
// The boost uses the ORIGINAL query tags; Lens and Expansion output only
// widens the candidate tag surface upstream, not the boost query.
func (e *Engine) collectTagBoosts(queryTags []string, streams ...[]fusion.SearchResultItem) map[string]float64 {
	scores := make(map[string]float64)
	for _, stream := range streams {
		for _, item := range stream {
			if item.Metadata == "" {
				continue
			}
			if _, done := scores[item.ID]; done {
				continue
			}
			var meta itemTags
			if err := json.Unmarshal([]byte(item.Metadata), &meta); err != nil {
				e.logger.Debug("skipping unparseable result metadata",
					slog.String("id", item.ID))
				continue
			}
			if len(meta.Tags) == 0 {
				continue
			}
			boost := e.tm().ComputeTagBoost(tagmemo.BoostParams{
				QueryTags:     queryTags,
				ContentTags:   meta.Tags,
				OriginalScore: item.Score,
			})
			scores[item.ID] = boost.TagMatchScore
		}
	}
	return scores
}

// UpdateTagMatrix records one tag pair observation.
func (e *Engine) UpdateTagMatrix(tag1, tag2 string, weight float64) {
	e.tm().Update(tag1, tag2, weight)
	e.lensCache.Purge()
}

// BatchUpdateTagMatrix records many observations in order.
func (e *Engine) BatchUpdateTagMatrix(updates []tagmemo.PairUpdate) {
	e.tm().BatchUpdate(updates)
	e.lensCache.Purge()
}

// ComputeTagBoost exposes the TagMemo boost scorer.
func (e *Engine) ComputeTagBoost(params tagmemo.BoostParams) tagmemo.BoostResult {
	return e.tm().ComputeTagBoost(params)
}

// BatchComputeTagBoost exposes the batch boost scorer.
func (e *Engine) BatchComputeTagBoost(items []tagmemo.BatchItem, queryTags []string) []tagmemo.BoostResult {
	return e.tm().BatchComputeTagBoost(items, queryTags, 0, 0, 0)
}

// ExportTagMatrixToJSON serializes the owned TagMemo matrix.
func (e *Engine) ExportTagMatrixToJSON() ([]byte, error) {
	return e.tm().ToJSON()
}

// LoadTagMatrixFromJSON replaces the owned TagMemo matrix.
func (e *Engine) LoadTagMatrixFromJSON(data []byte) error {
	m, err := tagmemo.FromJSON(data)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.tagMatrix = m
	e.mu.Unlock()
	e.lensCache.Purge()
	return nil
}

// BuildCooccurrenceFromDocuments rebuilds the owned NPMI matrix.
func (e *Engine) BuildCooccurrenceFromDocuments(docs []cooccur.Document) {
	e.cooccur.BuildFromDocuments(docs)
}

// GetConfig returns a copy of the stored configuration.
func (e *Engine) GetConfig() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// UpdateConfig replaces the stored configuration and reweights the owned
// fusion engine.
func (e *Engine) UpdateConfig(cfg Config) {
	cfg = cfg.Normalized()
	e.mu.Lock()
	e.config = cfg
	e.fuser.SetWeights(cfg.BM25Weight, cfg.VectorWeight, cfg.TagMemoWeight)
	e.mu.Unlock()
}

// GetStats aggregates engine statistics.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	cfg := e.config
	e.mu.RUnlock()

	return Stats{
		TagMemo:     e.tm().GetStats(),
		CooccurTags: e.cooccur.TagCount(),
		CooccurDocs: e.cooccur.TotalDocs(),
		Config:      cfg,
		SearchCount: e.traceCounter.Load(),
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
