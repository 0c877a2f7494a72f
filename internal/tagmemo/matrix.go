// Package tagmemo implements a streaming tag co-occurrence matrix with
// exponential decay and PMI-based association queries.
//
// Each observation of a tag pair updates both orderings with
//
//	cooc[a][b] = cooc[a][b]*beta + w*alpha
//
// so recent associations dominate older ones (a multiplicative EMA over
// the observation stream), while marginal frequencies and the total count
// accumulate without decay. PMI queries, query expansion, and the tag
// boost scorer all read the same matrix under a shared RWMutex.
package tagmemo

import (
	"math"
	"sort"
	"sync"
)

// Default decay parameters. Callers typically keep alpha+beta <= 1,
// but this is not enforced.
const (
	DefaultAlpha = 0.8
	DefaultBeta  = 0.2
)

// Matrix is a streaming, decayed tag co-occurrence matrix.
// All methods are safe for concurrent use; queries take a read lock,
// mutations take the write lock.
type Matrix struct {
	mu sync.RWMutex

	alpha           float64
	beta            float64
	cooccurrence    map[string]map[string]float64
	frequencies     map[string]float64
	totalCount      float64
	minPMIThreshold float64
}

// PairUpdate is one observation for BatchUpdate.
// A zero Weight means 1.
type PairUpdate struct {
	Tag1   string
	Tag2   string
	Weight float64
}

// Association is one co-occurring tag returned by GetAssociations.
type Association struct {
	Tag          string
	PMI          float64
	Cooccurrence float64
	Frequency    float64
}

// Stats summarizes matrix contents.
type Stats struct {
	TagCount     int
	PairCount    int
	TotalUpdates int64
	Alpha        float64
	Beta         float64
}

// New creates an empty matrix. Non-positive alpha/beta fall back to defaults.
func New(alpha, beta float64) *Matrix {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	if beta <= 0 {
		beta = DefaultBeta
	}
	return &Matrix{
		alpha:        alpha,
		beta:         beta,
		cooccurrence: make(map[string]map[string]float64),
		frequencies:  make(map[string]float64),
	}
}

// Update records one co-occurrence of tag1 and tag2 with the given weight.
// weight <= 0 means 1. Both orderings are written within one critical
// section so readers never observe an asymmetric matrix.
func (m *Matrix) Update(tag1, tag2 string, weight float64) {
	if weight <= 0 {
		weight = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyUpdate(tag1, tag2, weight)
}

// BatchUpdate applies updates sequentially under one lock acquisition.
// Order matters: later updates see the decayed tail of earlier ones.
func (m *Matrix) BatchUpdate(updates []PairUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range updates {
		w := u.Weight
		if w <= 0 {
			w = 1
		}
		m.applyUpdate(u.Tag1, u.Tag2, w)
	}
}

// applyUpdate is the single-pair decay rule, applied to both orderings.
// Caller must hold the write lock.
func (m *Matrix) applyUpdate(tag1, tag2 string, weight float64) {
	m.decayInto(tag1, tag2, weight)
	m.decayInto(tag2, tag1, weight)

	m.frequencies[tag1] += weight
	m.frequencies[tag2] += weight
	m.totalCount += weight * 2
}

func (m *Matrix) decayInto(from, to string, weight float64) {
	row, ok := m.cooccurrence[from]
	if !ok {
		row = make(map[string]float64)
		m.cooccurrence[from] = row
	}
	row[to] = row[to]*m.beta + weight*m.alpha
}

// ComputePMI returns the pointwise mutual information of tag1 and tag2.
// Returns 0 when the total count, either frequency, or the co-occurrence
// weight is zero.
func (m *Matrix) ComputePMI(tag1, tag2 string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pmiLocked(tag1, tag2)
}

func (m *Matrix) pmiLocked(tag1, tag2 string) float64 {
	if m.totalCount == 0 {
		return 0
	}

	freq1 := m.frequencies[tag1]
	freq2 := m.frequencies[tag2]
	if freq1 == 0 || freq2 == 0 {
		return 0
	}

	cooc := m.cooccurrence[tag1][tag2]
	if cooc == 0 {
		return 0
	}

	pAB := cooc / m.totalCount
	pA := freq1 / m.totalCount
	pB := freq2 / m.totalCount
	return math.Log(pAB / (pA * pB))
}

// GetAssociations returns up to topK tags co-occurring with tag, ordered
// by PMI descending. Entries whose co-occurrence weight falls below the
// minimum PMI threshold are hidden. Ties break by ascending tag name.
func (m *Matrix) GetAssociations(tag string, topK int) []Association {
	if topK <= 0 {
		topK = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.cooccurrence[tag]
	if !ok {
		return []Association{}
	}

	associations := make([]Association, 0, len(row))
	for other, cooc := range row {
		if cooc < m.minPMIThreshold {
			continue
		}
		pmi := m.pmiLocked(tag, other)
		if m.totalCount == 0 || m.frequencies[tag] == 0 || m.frequencies[other] == 0 {
			continue
		}
		associations = append(associations, Association{
			Tag:          other,
			PMI:          pmi,
			Cooccurrence: cooc,
			Frequency:    m.frequencies[other],
		})
	}

	sort.Slice(associations, func(i, j int) bool {
		if associations[i].PMI != associations[j].PMI {
			return associations[i].PMI > associations[j].PMI
		}
		return associations[i].Tag < associations[j].Tag
	})

	if topK < len(associations) {
		associations = associations[:topK]
	}
	return associations
}

// ExpandQuery grows a tag set by co-occurrence. Seed tags enter at weight
// 1.0; each unseen neighbour u of seed t enters at
//
//	exp(cooc[t][u] / sqrt(freq[t]*freq[u])) * factor
//
// Returns tag names sorted by weight descending. This is the Lens
// primitive of the pipeline; callers consume the order, not the weights.
func (m *Matrix) ExpandQuery(tags []string, factor float64) []string {
	if factor <= 0 {
		factor = 0.5
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type weighted struct {
		tag    string
		weight float64
		order  int
	}

	expanded := make(map[string]float64, len(tags))
	arrival := make(map[string]int, len(tags))
	next := 0
	for _, t := range tags {
		if _, ok := expanded[t]; !ok {
			expanded[t] = 1.0
			arrival[t] = next
			next++
		}
	}

	for _, t := range tags {
		row, ok := m.cooccurrence[t]
		if !ok {
			continue
		}
		for _, other := range sortedKeys(row) {
			if _, seen := expanded[other]; seen {
				continue
			}
			freq1 := m.frequencies[t]
			if freq1 == 0 {
				freq1 = 1
			}
			freq2 := m.frequencies[other]
			if freq2 == 0 {
				freq2 = 1
			}
			weight := math.Exp(row[other]/math.Sqrt(freq1*freq2)) * factor
			expanded[other] = weight
			arrival[other] = next
			next++
		}
	}

	result := make([]weighted, 0, len(expanded))
	for tag, w := range expanded {
		result = append(result, weighted{tag: tag, weight: w, order: arrival[tag]})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].weight != result[j].weight {
			return result[i].weight > result[j].weight
		}
		return result[i].order < result[j].order
	})

	out := make([]string, len(result))
	for i, r := range result {
		out[i] = r.tag
	}
	return out
}

// SetMinPMIThreshold sets the co-occurrence floor below which
// GetAssociations hides entries.
func (m *Matrix) SetMinPMIThreshold(threshold float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minPMIThreshold = threshold
}

// GetStats returns a snapshot of matrix statistics.
func (m *Matrix) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pairs := 0
	for _, row := range m.cooccurrence {
		pairs += len(row)
	}

	return Stats{
		TagCount:     len(m.frequencies),
		PairCount:    pairs / 2,
		TotalUpdates: int64(m.totalCount),
		Alpha:        m.alpha,
		Beta:         m.beta,
	}
}

// Clear removes all observations. Alpha, beta, and the PMI threshold survive.
func (m *Matrix) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooccurrence = make(map[string]map[string]float64)
	m.frequencies = make(map[string]float64)
	m.totalCount = 0
}

// sortedKeys returns map keys in ascending order for reproducible iteration.
func sortedKeys(row map[string]float64) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
