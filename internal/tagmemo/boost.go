package tagmemo

import (
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wavemem/waverag/internal/vectormath"
)

// Tag boost tuning bounds. The dynamic alpha/beta derivation interpolates
// within these based on how frequent the query tags are: rare tags get a
// gentle exponent and heavy damping, frequent tags the opposite.
const (
	DefaultAlphaMin = 1.5
	DefaultAlphaMax = 3.5
	DefaultBetaBase = 2.0

	// expansionDecay down-weights matches reached through co-occurrence
	// rather than directly; it applies to both the edge weight and the
	// resulting score, so expansion matches boost but never dominate.
	expansionDecay = 0.5

	// DefaultMaxContextRatio caps how much of the fused vector the tag
	// context centroid may contribute in BoostVector.
	DefaultMaxContextRatio = 0.3
)

// BoostParams are the inputs to ComputeTagBoost.
// Zero-valued bounds fall back to the defaults above.
type BoostParams struct {
	QueryTags     []string
	ContentTags   []string
	OriginalScore float64
	AlphaMin      float64
	AlphaMax      float64
	BetaBase      float64
}

// SpikeDetail records one matched tag's contribution, for auditing.
type SpikeDetail struct {
	Tag        string
	Weight     float64
	GlobalFreq float64
	Score      float64
}

// BoostResult is the full output of the tag boost computation.
type BoostResult struct {
	OriginalScore float64
	BoostedScore  float64
	MatchedTags   []string
	ExpansionTags []string
	BoostFactor   float64
	TagMatchScore float64
	SpikeDetails  []SpikeDetail
	DynamicAlpha  float64
	DynamicBeta   float64
}

// BatchItem is one document's tags and score for BatchComputeTagBoost.
type BatchItem struct {
	ContentTags   []string
	OriginalScore float64
}

// ComputeTagBoost scores how strongly a document's tags resonate with the
// query tags under the learned co-occurrence structure.
//
// Per matched tag the spike term freq^alpha amplifies high-evidence tags
// super-linearly while ln(|neighbours|+beta) damps promiscuous tags that
// co-occur with everything. The summed spike is squashed to [0,1) and the
// boost factor is capped at 1.5x; the boosted score never exceeds 1.
//
// Tag matching against content is case-insensitive; every other lookup
// (frequencies, co-occurrence rows) treats tags as opaque.
func (m *Matrix) ComputeTagBoost(params BoostParams) BoostResult {
	alphaMin := params.AlphaMin
	if alphaMin == 0 {
		alphaMin = DefaultAlphaMin
	}
	alphaMax := params.AlphaMax
	if alphaMax == 0 {
		alphaMax = DefaultAlphaMax
	}
	betaBase := params.BetaBase
	if betaBase == 0 {
		betaBase = DefaultBetaBase
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Average query tag probability drives the dynamic parameters.
	var avgScore float64
	if len(params.QueryTags) > 0 {
		var sum float64
		for _, t := range params.QueryTags {
			if m.totalCount > 0 {
				sum += m.frequencies[t] / m.totalCount
			}
		}
		avgScore = sum / float64(len(params.QueryTags))
	}

	dynamicAlpha := clamp(alphaMin+(alphaMax-alphaMin)*avgScore, alphaMin, alphaMax)
	dynamicBeta := betaBase + (1-avgScore)*3

	contentLower := make(map[string]struct{}, len(params.ContentTags))
	for _, t := range params.ContentTags {
		contentLower[strings.ToLower(t)] = struct{}{}
	}

	var totalSpike float64
	var spikeDetails []SpikeDetail
	matched := make([]string, 0, len(params.QueryTags))
	matchedSet := make(map[string]struct{})

	// Direct matches.
	for _, tag := range params.QueryTags {
		if _, ok := contentLower[strings.ToLower(tag)]; !ok {
			continue
		}
		matched = append(matched, tag)
		matchedSet[tag] = struct{}{}

		freq := m.frequencies[tag]
		globalFreq := float64(len(m.cooccurrence[tag]))

		strength := math.Pow(freq, dynamicAlpha)
		penalty := math.Log(globalFreq + dynamicBeta)
		score := strength
		if penalty > 0 {
			score = strength / penalty
		}

		totalSpike += score
		spikeDetails = append(spikeDetails, SpikeDetail{
			Tag:        tag,
			Weight:     freq,
			GlobalFreq: globalFreq,
			Score:      score,
		})
	}

	// Expansion matches reached through co-occurrence, decayed twice.
	var expansionTags []string
	expansionSet := make(map[string]struct{})
	for _, tag := range params.QueryTags {
		row, ok := m.cooccurrence[tag]
		if !ok {
			continue
		}
		for _, other := range sortedKeys(row) {
			if _, ok := contentLower[strings.ToLower(other)]; !ok {
				continue
			}
			if _, ok := matchedSet[other]; ok {
				continue
			}
			if _, ok := expansionSet[other]; ok {
				continue
			}
			expansionTags = append(expansionTags, other)
			expansionSet[other] = struct{}{}

			globalFreq := float64(len(m.cooccurrence[other]))
			weight := row[other] * expansionDecay
			strength := math.Pow(weight, dynamicAlpha)
			penalty := math.Log(globalFreq + dynamicBeta)
			score := strength * expansionDecay
			if penalty > 0 {
				score = (strength / penalty) * expansionDecay
			}

			totalSpike += score
			spikeDetails = append(spikeDetails, SpikeDetail{
				Tag:        other,
				Weight:     weight,
				GlobalFreq: globalFreq,
				Score:      score,
			})
		}
	}

	normalized := totalSpike / (totalSpike + dynamicBeta*2)
	boostFactor := 1 + normalized*0.5
	boostedScore := math.Min(params.OriginalScore*boostFactor, 1)

	return BoostResult{
		OriginalScore: params.OriginalScore,
		BoostedScore:  boostedScore,
		MatchedTags:   matched,
		ExpansionTags: expansionTags,
		BoostFactor:   boostFactor,
		TagMatchScore: totalSpike,
		SpikeDetails:  spikeDetails,
		DynamicAlpha:  dynamicAlpha,
		DynamicBeta:   dynamicBeta,
	}
}

// BatchComputeTagBoost scores many documents against one query tag set.
func (m *Matrix) BatchComputeTagBoost(items []BatchItem, queryTags []string, alphaMin, alphaMax, betaBase float64) []BoostResult {
	results := make([]BoostResult, len(items))
	for i, item := range items {
		results[i] = m.ComputeTagBoost(BoostParams{
			QueryTags:     queryTags,
			ContentTags:   item.ContentTags,
			OriginalScore: item.OriginalScore,
			AlphaMin:      alphaMin,
			AlphaMax:      alphaMax,
			BetaBase:      betaBase,
		})
	}
	return results
}

// VectorBoostResult is the output of BoostVector.
type VectorBoostResult struct {
	// Vector is the fused, L2-normalized query vector.
	Vector []float64
	// ContextRatio is the blend weight applied to the context centroid.
	ContextRatio float64
	// Boost carries the scalar boost computation that drove the blend.
	Boost BoostResult
}

// BoostVector fuses the original query vector with a weighted centroid of
// the matched tags' vectors. The blend ratio grows with the normalized
// spike score and is capped at maxRatio (default 0.3). The result is
// always L2-normalized; with no context or a zero ratio the original
// vector is returned normalized.
func (m *Matrix) BoostVector(original []float64, params BoostParams, tagVectors map[string][]float64, maxRatio float64) VectorBoostResult {
	if maxRatio <= 0 {
		maxRatio = DefaultMaxContextRatio
	}

	boost := m.ComputeTagBoost(params)

	// Weighted centroid over vectors of matched tags.
	centroid := make([]float64, len(original))
	var weightSum float64
	for _, d := range boost.SpikeDetails {
		vec, ok := tagVectors[d.Tag]
		if !ok || len(vec) != len(original) {
			continue
		}
		w := d.Weight
		if w <= 0 {
			continue
		}
		for i, x := range vec {
			centroid[i] += w * x
		}
		weightSum += w
	}

	normalized := boost.TagMatchScore / (boost.TagMatchScore + boost.DynamicBeta*2)
	ratio := math.Min(normalized*maxRatio, maxRatio)

	if weightSum == 0 || ratio == 0 {
		return VectorBoostResult{
			Vector:       vectormath.Normalize(original),
			ContextRatio: 0,
			Boost:        boost,
		}
	}

	fused := make([]float64, len(original))
	for i := range fused {
		fused[i] = (1-ratio)*original[i] + ratio*(centroid[i]/weightSum)
	}

	return VectorBoostResult{
		Vector:       vectormath.Normalize(fused),
		ContextRatio: ratio,
		Boost:        boost,
	}
}

// BatchBoostVectors applies BoostVector to many query vectors concurrently.
// Results preserve input order.
func (m *Matrix) BatchBoostVectors(originals [][]float64, params []BoostParams, tagVectors map[string][]float64, maxRatio float64) []VectorBoostResult {
	results := make([]VectorBoostResult, len(originals))

	var g errgroup.Group
	g.SetLimit(4)
	for i := range originals {
		p := BoostParams{}
		if i < len(params) {
			p = params[i]
		}
		g.Go(func() error {
			results[i] = m.BoostVector(originals[i], p, tagVectors, maxRatio)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// MatchedTagNames returns just the tags that contributed spikes, direct
// matches first, in computation order.
func (r BoostResult) MatchedTagNames() []string {
	names := make([]string, 0, len(r.MatchedTags)+len(r.ExpansionTags))
	names = append(names, r.MatchedTags...)
	names = append(names, r.ExpansionTags...)
	return names
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
