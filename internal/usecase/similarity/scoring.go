package similarity

import (
	"cmp"
	"math"
	"slices"
	"strings"

	domsim "github.com/kailas-cloud/supportgraph/internal/domain/similarity"
)

// Adaptive midpoint bounds.
const (
	midpointFactor = 0.8
	midpointMin    = 0.25
	midpointMax    = 0.5
)

// VectorScore converts a cosine distance into a similarity score.
func VectorScore(distance float64) float64 {
	return 1 - distance
}

// VectorAggregate is the per-entity vector signal.
type VectorAggregate struct {
	Score  float64
	Count  int
	Scores []float64
}

// AggregateVector keeps the best chunk score and the full distribution.
func AggregateVector(scores []float64) VectorAggregate {
	if len(scores) == 0 {
		return VectorAggregate{}
	}
	return VectorAggregate{
		Score:  slices.Max(scores),
		Count:  len(scores),
		Scores: slices.Clone(scores),
	}
}

// Sigmoid maps a match ratio to (0,1): 1 / (1 + e^(-steepness*(ratio-midpoint))).
func Sigmoid(ratio, steepness, midpoint float64) float64 {
	return 1 / (1 + math.Exp(-steepness*(ratio-midpoint)))
}

// AdaptiveMidpoint is clamp(maxRatio*0.8, 0.25, 0.5).
func AdaptiveMidpoint(maxRatio float64) float64 {
	return min(max(maxRatio*midpointFactor, midpointMin), midpointMax)
}

// NormalizeKeyword lowercases and trims a keyword.
func NormalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// MatchRatio returns the share of query keywords present in chunk keywords
// and the matched keywords in query order.
func MatchRatio(query, chunkKeywords []string) (float64, []string) {
	if len(query) == 0 {
		return 0, nil
	}
	have := make(map[string]struct{}, len(chunkKeywords))
	for _, k := range chunkKeywords {
		have[NormalizeKeyword(k)] = struct{}{}
	}
	var matched []string
	for _, q := range query {
		if _, ok := have[NormalizeKeyword(q)]; ok {
			matched = append(matched, NormalizeKeyword(q))
		}
	}
	return float64(len(matched)) / float64(len(query)), matched
}

// KeywordAggregate is the per-entity keyword signal before S-curve scoring.
type KeywordAggregate struct {
	Ratio   float64
	Matched []string
}

// AggregateKeyword keeps the best chunk ratio and the union of matched keywords.
func AggregateKeyword(ratios []float64, matched [][]string) KeywordAggregate {
	var agg KeywordAggregate
	if len(ratios) > 0 {
		agg.Ratio = slices.Max(ratios)
	}
	seen := map[string]struct{}{}
	for _, m := range matched {
		for _, k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			agg.Matched = append(agg.Matched, k)
		}
	}
	slices.Sort(agg.Matched)
	return agg
}

// NormalizeWeights scales the weights to sum to 1. Non-positive sums yield the defaults.
func NormalizeWeights(vector, keyword float64) (float64, float64) {
	vector, keyword = max(vector, 0), max(keyword, 0)
	sum := vector + keyword
	if sum == 0 {
		return domsim.DefaultVectorWeight, domsim.DefaultKeywordWeight
	}
	return vector / sum, keyword / sum
}

// Fuse combines both signals with normalized weights. A missing signal scores 0.
func Fuse(vectorScore, keywordScore, vectorWeight, keywordWeight float64) float64 {
	wv, wk := NormalizeWeights(vectorWeight, keywordWeight)
	return vectorScore*wv + keywordScore*wk
}

// Rank sorts by final score, drops selfID, applies the inclusive cutoff and
// the min-score floor, then truncates to the limit.
func Rank(cands []domsim.Candidate, selfID string, opts domsim.Options) []domsim.Candidate {
	out := make([]domsim.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.EntityID == selfID {
			continue
		}
		if c.FinalScore < opts.CutoffScore || c.FinalScore < opts.MinScore {
			continue
		}
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b domsim.Candidate) int {
		if c := cmp.Compare(b.FinalScore, a.FinalScore); c != 0 {
			return c
		}
		return cmp.Compare(a.EntityID, b.EntityID)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
