package tagmemo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matrixFromState builds a matrix with explicit internals, bypassing the
// decay rule, so tests can pin exact frequencies and totals.
func matrixFromState(t *testing.T, cooc map[string]map[string]float64, freq map[string]float64, total float64) *Matrix {
	t.Helper()
	m := New(0, 0)
	m.cooccurrence = cooc
	m.frequencies = freq
	m.totalCount = total
	return m
}

func TestComputeTagBoost_SpikeScenario(t *testing.T) {
	// freq[t]=10, 4 neighbours, total=10 => avg=1, alpha=3.5, beta=2.0
	m := matrixFromState(t,
		map[string]map[string]float64{
			"t": {"n1": 1, "n2": 1, "n3": 1, "n4": 1},
		},
		map[string]float64{"t": 10},
		10,
	)

	res := m.ComputeTagBoost(BoostParams{
		QueryTags:     []string{"t"},
		ContentTags:   []string{"t"},
		OriginalScore: 0.5,
	})

	assert.InDelta(t, 3.5, res.DynamicAlpha, 1e-12)
	assert.InDelta(t, 2.0, res.DynamicBeta, 1e-12)

	strength := math.Pow(10, 3.5)
	penalty := math.Log(6)
	spike := strength / penalty
	assert.InDelta(t, spike, res.TagMatchScore, 1e-6)

	normalized := spike / (spike + 4)
	assert.InDelta(t, 1+normalized*0.5, res.BoostFactor, 1e-9)
	assert.InDelta(t, math.Min(1, 0.5*(1+normalized*0.5)), res.BoostedScore, 1e-9)
	assert.Equal(t, []string{"t"}, res.MatchedTags)
}

func TestComputeTagBoost_EmptyInputs(t *testing.T) {
	m := New(0, 0)
	m.Update("a", "b", 1)

	for _, params := range []BoostParams{
		{QueryTags: nil, ContentTags: []string{"a"}, OriginalScore: 0.7},
		{QueryTags: []string{"a"}, ContentTags: nil, OriginalScore: 0.7},
	} {
		res := m.ComputeTagBoost(params)
		assert.InDelta(t, 1.0, res.BoostFactor, 1e-12)
		assert.InDelta(t, 0.7, res.BoostedScore, 1e-12)
		assert.Empty(t, res.MatchedTags)
	}
}

func TestComputeTagBoost_EmptyMatrix(t *testing.T) {
	m := New(0, 0)

	res := m.ComputeTagBoost(BoostParams{
		QueryTags:   []string{"a"},
		ContentTags: []string{"a"},
	})

	// total=0: avg=0 so alpha bottoms out and beta peaks
	assert.InDelta(t, DefaultAlphaMin, res.DynamicAlpha, 1e-12)
	assert.InDelta(t, DefaultBetaBase+3, res.DynamicBeta, 1e-12)
	// freq=0 means zero strength, so the match contributes nothing
	assert.Zero(t, res.TagMatchScore)
	assert.InDelta(t, 1.0, res.BoostFactor, 1e-12)
}

func TestComputeTagBoost_CaseInsensitiveMatching(t *testing.T) {
	m := New(0, 0)
	m.Update("Go", "Channels", 1)

	res := m.ComputeTagBoost(BoostParams{
		QueryTags:   []string{"Go"},
		ContentTags: []string{"gO"},
	})
	assert.Equal(t, []string{"Go"}, res.MatchedTags)
	assert.Positive(t, res.TagMatchScore)
}

func TestComputeTagBoost_ExpansionMatch(t *testing.T) {
	m := New(0, 0)
	m.Update("go", "channels", 1)

	// Query mentions go; content carries only the neighbour.
	res := m.ComputeTagBoost(BoostParams{
		QueryTags:   []string{"go"},
		ContentTags: []string{"channels"},
	})
	assert.Empty(t, res.MatchedTags)
	assert.Equal(t, []string{"channels"}, res.ExpansionTags)
	require.Len(t, res.SpikeDetails, 1)
	// Expansion edge weight is halved before the exponent
	assert.InDelta(t, m.cooccurrence["go"]["channels"]*0.5, res.SpikeDetails[0].Weight, 1e-12)
}

func TestComputeTagBoost_Caps(t *testing.T) {
	// Absurdly strong evidence still respects both caps.
	m := matrixFromState(t,
		map[string]map[string]float64{"t": {"n": 1}},
		map[string]float64{"t": 1e6},
		1e6,
	)

	res := m.ComputeTagBoost(BoostParams{
		QueryTags:     []string{"t"},
		ContentTags:   []string{"t"},
		OriginalScore: 0.9,
	})
	assert.LessOrEqual(t, res.BoostFactor, 1.5)
	assert.LessOrEqual(t, res.BoostedScore, 1.0)
}

func TestComputeTagBoost_Monotonicity(t *testing.T) {
	// Same neighbourhood and total; growing freq[t] grows the spike.
	var last float64
	for _, freq := range []float64{1, 5, 10, 50} {
		m := matrixFromState(t,
			map[string]map[string]float64{"t": {"n1": 1, "n2": 1}},
			map[string]float64{"t": freq},
			100,
		)
		res := m.ComputeTagBoost(BoostParams{
			QueryTags:   []string{"t"},
			ContentTags: []string{"t"},
		})
		assert.Greater(t, res.TagMatchScore, last)
		last = res.TagMatchScore
	}
}

func TestBatchComputeTagBoost(t *testing.T) {
	m := New(0, 0)
	m.Update("a", "b", 1)

	results := m.BatchComputeTagBoost([]BatchItem{
		{ContentTags: []string{"a"}, OriginalScore: 0.5},
		{ContentTags: []string{"zzz"}, OriginalScore: 0.5},
	}, []string{"a"}, 0, 0, 0)

	require.Len(t, results, 2)
	assert.Positive(t, results[0].TagMatchScore)
	assert.Zero(t, results[1].TagMatchScore)
}

func TestBoostVector_NormAndBlend(t *testing.T) {
	m := matrixFromState(t,
		map[string]map[string]float64{"t": {"n": 1}},
		map[string]float64{"t": 10},
		10,
	)

	original := []float64{1, 0, 0}
	tagVectors := map[string][]float64{
		"t": {0, 1, 0},
	}

	res := m.BoostVector(original, BoostParams{
		QueryTags:   []string{"t"},
		ContentTags: []string{"t"},
	}, tagVectors, 0.3)

	assert.Positive(t, res.ContextRatio)
	assert.LessOrEqual(t, res.ContextRatio, 0.3)

	var norm float64
	for _, x := range res.Vector {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
	// Context pulled the vector toward the tag direction
	assert.Positive(t, res.Vector[1])
}

func TestBoostVector_NoContext(t *testing.T) {
	m := New(0, 0)

	res := m.BoostVector([]float64{3, 4}, BoostParams{
		QueryTags:   []string{"t"},
		ContentTags: []string{"t"},
	}, nil, 0.3)

	assert.Zero(t, res.ContextRatio)
	assert.InDelta(t, 0.6, res.Vector[0], 1e-12)
	assert.InDelta(t, 0.8, res.Vector[1], 1e-12)
}

func TestBatchBoostVectors(t *testing.T) {
	m := matrixFromState(t,
		map[string]map[string]float64{"t": {"n": 1}},
		map[string]float64{"t": 10},
		10,
	)
	tagVectors := map[string][]float64{"t": {0, 1}}
	params := BoostParams{QueryTags: []string{"t"}, ContentTags: []string{"t"}}

	results := m.BatchBoostVectors(
		[][]float64{{1, 0}, {0, 1}, {1, 1}},
		[]BoostParams{params, params, params},
		tagVectors, 0.3)

	require.Len(t, results, 3)
	for _, r := range results {
		var norm float64
		for _, x := range r.Vector {
			norm += x * x
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
	}
}
