package similarity

import (
	"errors"
	"fmt"
)

// Defaults used when a job does not override them.
const (
	DefaultLimit            = 10
	DefaultScoreThreshold   = 0.0
	DefaultVectorWeight     = 0.6
	DefaultKeywordWeight    = 0.4
	DefaultKeywordSteepness = 10.0
	DefaultCutoffScore      = 0.3
)

// Options tunes one similarity query.
type Options struct {
	Limit            int     `json:"limit,omitempty" yaml:"limit"`
	ScoreThreshold   float64 `json:"score_threshold,omitempty" yaml:"score_threshold"`
	VectorWeight     float64 `json:"vector_weight,omitempty" yaml:"vector_weight"`
	KeywordWeight    float64 `json:"keyword_weight,omitempty" yaml:"keyword_weight"`
	KeywordSteepness float64 `json:"keyword_steepness,omitempty" yaml:"keyword_steepness"`
	CutoffScore      float64 `json:"cutoff_score,omitempty" yaml:"cutoff_score"`
	MinScore         float64 `json:"min_score,omitempty" yaml:"min_score"`
}

// DefaultOptions returns the baseline tuning.
func DefaultOptions() Options {
	return Options{
		Limit:            DefaultLimit,
		ScoreThreshold:   DefaultScoreThreshold,
		VectorWeight:     DefaultVectorWeight,
		KeywordWeight:    DefaultKeywordWeight,
		KeywordSteepness: DefaultKeywordSteepness,
		CutoffScore:      DefaultCutoffScore,
	}
}

// Overrides is the wire form of Options. A nil field keeps the base value,
// so an explicit zero is a real setting. Setting either weight replaces
// both base weights.
type Overrides struct {
	Limit            *int     `json:"limit,omitempty" yaml:"limit"`
	ScoreThreshold   *float64 `json:"score_threshold,omitempty" yaml:"score_threshold"`
	VectorWeight     *float64 `json:"vector_weight,omitempty" yaml:"vector_weight"`
	KeywordWeight    *float64 `json:"keyword_weight,omitempty" yaml:"keyword_weight"`
	KeywordSteepness *float64 `json:"keyword_steepness,omitempty" yaml:"keyword_steepness"`
	CutoffScore      *float64 `json:"cutoff_score,omitempty" yaml:"cutoff_score"`
	MinScore         *float64 `json:"min_score,omitempty" yaml:"min_score"`
}

// Overrides returns o with every field set.
func (o Options) Overrides() Overrides {
	return Overrides{
		Limit:            &o.Limit,
		ScoreThreshold:   &o.ScoreThreshold,
		VectorWeight:     &o.VectorWeight,
		KeywordWeight:    &o.KeywordWeight,
		KeywordSteepness: &o.KeywordSteepness,
		CutoffScore:      &o.CutoffScore,
		MinScore:         &o.MinScore,
	}
}

// Merge fills nil fields from base.
func (o Overrides) Merge(base Overrides) Overrides {
	if o.VectorWeight == nil && o.KeywordWeight == nil {
		o.VectorWeight, o.KeywordWeight = base.VectorWeight, base.KeywordWeight
	}
	o.Limit = orElse(o.Limit, base.Limit)
	o.ScoreThreshold = orElse(o.ScoreThreshold, base.ScoreThreshold)
	o.KeywordSteepness = orElse(o.KeywordSteepness, base.KeywordSteepness)
	o.CutoffScore = orElse(o.CutoffScore, base.CutoffScore)
	o.MinScore = orElse(o.MinScore, base.MinScore)
	return o
}

// Apply resolves o over base.
func (o Overrides) Apply(base Options) Options {
	if o.VectorWeight != nil || o.KeywordWeight != nil {
		base.VectorWeight = valueOr(o.VectorWeight, 0)
		base.KeywordWeight = valueOr(o.KeywordWeight, 0)
	}
	base.Limit = valueOr(o.Limit, base.Limit)
	base.ScoreThreshold = valueOr(o.ScoreThreshold, base.ScoreThreshold)
	base.KeywordSteepness = valueOr(o.KeywordSteepness, base.KeywordSteepness)
	base.CutoffScore = valueOr(o.CutoffScore, base.CutoffScore)
	base.MinScore = valueOr(o.MinScore, base.MinScore)
	return base
}

func orElse[T any](v, fallback *T) *T {
	if v != nil {
		return v
	}
	return fallback
}

func valueOr[T any](v *T, fallback T) T {
	if v != nil {
		return *v
	}
	return fallback
}

// Validate rejects a non-positive limit, negative weights and out-of-range scores.
func (o Options) Validate() error {
	var errs []error
	if o.Limit < 1 {
		errs = append(errs, fmt.Errorf("limit must be positive, got %d", o.Limit))
	}
	if o.VectorWeight < 0 || o.KeywordWeight < 0 {
		errs = append(errs, errors.New("weights must be non-negative"))
	}
	if o.VectorWeight+o.KeywordWeight == 0 {
		errs = append(errs, errors.New("at least one weight must be positive"))
	}
	if o.KeywordSteepness < 0 {
		errs = append(errs, fmt.Errorf("keyword_steepness must be non-negative, got %v", o.KeywordSteepness))
	}
	for name, v := range map[string]float64{
		"score_threshold": o.ScoreThreshold,
		"cutoff_score":    o.CutoffScore,
		"min_score":       o.MinScore,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, v))
		}
	}
	return errors.Join(errs...)
}
