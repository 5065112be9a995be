// Package score provides deterministic local logic for OCEAN scores and
// pairwise compatibility. No LLM calls are made here.
package score

import (
	"math"

	"github.com/dshills/oceancheck/internal/schema"
)

// MaxTrait is the top of the per-trait scale; the bottom is 0.
const MaxTrait = 5.0

// Compatibility bands returned by Label.
const (
	LabelHigh     = "HIGH"
	LabelModerate = "MODERATE"
	LabelLow      = "LOW"
)

// Clamp limits v to [0, MaxTrait]. NaN clamps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > MaxTrait {
		return MaxTrait
	}
	return v
}

// InRange reports whether every trait of o lies within [0, MaxTrait].
func InRange(o schema.OCEAN) bool {
	for _, t := range schema.Traits {
		v := o.Get(t)
		if math.IsNaN(v) || v < 0 || v > MaxTrait {
			return false
		}
	}
	return true
}

// Deltas returns the absolute per-trait difference between a and b.
func Deltas(a, b schema.OCEAN) schema.OCEAN {
	var d schema.OCEAN
	for _, t := range schema.Traits {
		d.Set(t, math.Abs(a.Get(t)-b.Get(t)))
	}
	return d
}

// Compatibility computes a 0-100 similarity score for two profiles.
// Start at 100; subtract 4 per point of absolute trait difference summed over
// all five traits; clamp to [0, 100]. Identical profiles score 100 and
// opposite extremes on every trait score 0.
func Compatibility(a, b schema.OCEAN) int {
	d := Deltas(a, b)
	var sum float64
	for _, t := range schema.Traits {
		sum += d.Get(t)
	}
	s := int(math.Round(100 - 4*sum))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Label maps a compatibility score to its band: HIGH at 75 and above,
// MODERATE at 50 and above, LOW otherwise.
func Label(s int) string {
	switch {
	case s >= 75:
		return LabelHigh
	case s >= 50:
		return LabelModerate
	default:
		return LabelLow
	}
}

// Dominant returns the highest-scoring trait. Ties go to the trait that comes
// first in OCEAN order.
func Dominant(o schema.OCEAN) schema.Trait {
	best := schema.Traits[0]
	for _, t := range schema.Traits[1:] {
		if o.Get(t) > o.Get(best) {
			best = t
		}
	}
	return best
}

// TraitName returns the long name of t.
func TraitName(t schema.Trait) string {
	switch t {
	case schema.TraitOpenness:
		return "Openness"
	case schema.TraitConscientiousness:
		return "Conscientiousness"
	case schema.TraitExtraversion:
		return "Extraversion"
	case schema.TraitAgreeableness:
		return "Agreeableness"
	case schema.TraitNeuroticism:
		return "Neuroticism"
	}
	return string(t)
}
