// Package ewma implements the exponentially-weighted moving average
// primitive used by the bandwidth estimator: weighted first-moment of
// bandwidth samples with Shaka-style bias correction.
package ewma

import "math"

// EWMA holds the decay parameter and the running weighted sum. The zero
// value is not usable; construct with New.
type EWMA struct {
	alpha       float64
	totalWeight float64
	weightedSum float64
}

// New builds an EWMA with the given half-life, expressed the way the
// teacher's congestion sampler expresses decay: alpha is the per-unit-weight
// decay factor such that a sample stream of constant weight 1 halves its
// influence every halfLifeSeconds.
func New(halfLifeSeconds float64) *EWMA {
	alpha := math.Exp(math.Log(0.5) / halfLifeSeconds)
	return &EWMA{alpha: alpha}
}

// AddSample folds in a new observation: weight is a non-negative real
// (duration in seconds), value is the bandwidth in bits/s.
func (e *EWMA) AddSample(weight, value float64) {
	if weight < 0 {
		weight = 0
	}
	e.totalWeight += weight
	adjAlpha := math.Pow(e.alpha, weight)
	e.weightedSum = adjAlpha*e.weightedSum + (1-adjAlpha)*value
}

// Estimate returns the bias-corrected estimate, or false if no sample has
// been added yet (totalWeight == 0).
func (e *EWMA) Estimate() (float64, bool) {
	if e.totalWeight <= 0 {
		return 0, false
	}
	denom := 1 - math.Pow(e.alpha, e.totalWeight)
	if denom <= 0 {
		return 0, false
	}
	return e.weightedSum / denom, true
}

// TotalWeight returns the cumulative weight folded into the average.
func (e *EWMA) TotalWeight() float64 {
	return e.totalWeight
}

// Reset zeroes the average back to its initial state.
func (e *EWMA) Reset() {
	e.totalWeight = 0
	e.weightedSum = 0
}
