package similarity

import (
	"math"
	"testing"

	domsim "github.com/kailas-cloud/supportgraph/internal/domain/similarity"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-4 }

func TestAggregateVector(t *testing.T) {
	agg := AggregateVector([]float64{0.9, 0.2, 0.5})
	if agg.Score != 0.9 || agg.Count != 3 {
		t.Errorf("AggregateVector = %+v, want score 0.9 count 3", agg)
	}
	if len(agg.Scores) != 3 || agg.Scores[1] != 0.2 {
		t.Errorf("expected full distribution, got %v", agg.Scores)
	}
	if empty := AggregateVector(nil); empty.Score != 0 || empty.Count != 0 {
		t.Errorf("empty aggregate = %+v", empty)
	}
}

func TestVectorScore(t *testing.T) {
	if got := VectorScore(0.25); got != 0.75 {
		t.Errorf("VectorScore(0.25) = %v", got)
	}
}

func TestSigmoid(t *testing.T) {
	if got := Sigmoid(1.0, 10, 0.5); !approx(got, 0.9933) {
		t.Errorf("Sigmoid(1.0) = %v, want ~0.9933", got)
	}
	if got := Sigmoid(0.0, 10, 0.5); !approx(got, 0.0067) {
		t.Errorf("Sigmoid(0.0) = %v, want ~0.0067", got)
	}
	if got := Sigmoid(0.5, 10, 0.5); got != 0.5 {
		t.Errorf("Sigmoid at midpoint = %v", got)
	}

	prev := -1.0
	for r := 0.0; r <= 1.0; r += 0.05 {
		s := Sigmoid(r, 10, 0.4)
		if s <= prev {
			t.Fatalf("not monotonic at ratio %v: %v <= %v", r, s, prev)
		}
		prev = s
	}
}

func TestAdaptiveMidpoint(t *testing.T) {
	tests := []struct {
		maxRatio float64
		want     float64
	}{
		{0, 0.25},
		{0.2, 0.25},
		{0.5, 0.4},
		{1, 0.5},
	}
	for _, tt := range tests {
		if got := AdaptiveMidpoint(tt.maxRatio); !approx(got, tt.want) {
			t.Errorf("AdaptiveMidpoint(%v) = %v, want %v", tt.maxRatio, got, tt.want)
		}
	}
}

func TestMatchRatio(t *testing.T) {
	ratio, matched := MatchRatio([]string{"printer", "driver", "windows", "crash"}, []string{"Driver", "printer", "usb"})
	if ratio != 0.5 {
		t.Errorf("ratio = %v", ratio)
	}
	if len(matched) != 2 || matched[0] != "printer" || matched[1] != "driver" {
		t.Errorf("matched = %v", matched)
	}
	if r, _ := MatchRatio(nil, []string{"x"}); r != 0 {
		t.Errorf("empty query ratio = %v", r)
	}
}

func TestAggregateKeyword(t *testing.T) {
	agg := AggregateKeyword([]float64{0.25, 0.75}, [][]string{{"b"}, {"a", "b", "c"}})
	if agg.Ratio != 0.75 {
		t.Errorf("ratio = %v", agg.Ratio)
	}
	if len(agg.Matched) != 3 || agg.Matched[0] != "a" {
		t.Errorf("matched union = %v", agg.Matched)
	}
}

func TestFuse(t *testing.T) {
	if got := Fuse(0.8, 0.4, 0.6, 0.4); !approx(got, 0.64) {
		t.Errorf("Fuse = %v, want 0.64", got)
	}
	if a, b := Fuse(0.8, 0.4, 0.6, 0.4), Fuse(0.8, 0.4, 6, 4); !approx(a, b) {
		t.Errorf("weights {6,4} changed the score: %v vs %v", a, b)
	}
	if got := Fuse(0.8, 0, 0.6, 0.4); !approx(got, 0.48) {
		t.Errorf("missing keyword signal = %v, want 0.48", got)
	}
}

func TestNormalizeWeights(t *testing.T) {
	v, k := NormalizeWeights(3, 1)
	if v != 0.75 || k != 0.25 {
		t.Errorf("NormalizeWeights(3,1) = %v,%v", v, k)
	}
	v, k = NormalizeWeights(0, 0)
	if v != domsim.DefaultVectorWeight || k != domsim.DefaultKeywordWeight {
		t.Errorf("zero weights = %v,%v", v, k)
	}
}

func TestRank(t *testing.T) {
	cands := []domsim.Candidate{
		{EntityID: "low", FinalScore: 0.29},
		{EntityID: "edge", FinalScore: 0.3},
		{EntityID: "self", FinalScore: 0.99},
		{EntityID: "top", FinalScore: 0.9},
		{EntityID: "mid", FinalScore: 0.6},
	}
	opts := domsim.Options{Limit: 10, CutoffScore: 0.3}

	got := Rank(cands, "self", opts)
	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.EntityID
	}
	want := []string{"top", "mid", "edge"}
	if len(ids) != len(want) {
		t.Fatalf("Rank = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Rank = %v, want %v", ids, want)
		}
	}

	opts.Limit = 1
	if got := Rank(cands, "self", opts); len(got) != 1 || got[0].EntityID != "top" {
		t.Errorf("limit not applied: %+v", got)
	}

	opts = domsim.Options{Limit: 10, CutoffScore: 0.3, MinScore: 0.5}
	if got := Rank(cands, "self", opts); len(got) != 2 {
		t.Errorf("min score floor not applied: %+v", got)
	}
}
