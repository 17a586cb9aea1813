package fitness

import (
	"sort"

	"github.com/grailbio/base/errors"
)

// Basic order statistics. Medians here average the two middle elements
// for even-length input, and quantiles linearly interpolate (the
// convention most downstream tooling assumes). gonum's CumulantKinds
// implement different conventions, so these are spelled out.

// median returns the median of xs, or an error when xs is empty.
// Callers that can tolerate an empty group are expected to exclude it
// rather than let a NaN flow downstream.
func median(xs []float64) (float64, error) {
	n := len(xs)
	if n == 0 {
		return 0, errors.E("median of empty set")
	}
	s := make([]float64, n)
	copy(s, xs)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2], nil
	}
	return (s[n/2-1] + s[n/2]) / 2, nil
}

// quantileSorted returns the p-quantile of sorted xs by linear
// interpolation between order statistics.
//
// REQUIRES: xs is sorted and non-empty, 0 <= p <= 1.
func quantileSorted(xs []float64, p float64) float64 {
	n := len(xs)
	if n == 1 {
		return xs[0]
	}
	h := p * float64(n-1)
	lo := int(h)
	if lo >= n-1 {
		return xs[n-1]
	}
	frac := h - float64(lo)
	return xs[lo] + frac*(xs[lo+1]-xs[lo])
}

// weightedMean returns sum(w*x)/sum(w), or an error when the weights
// sum to zero (including the empty case).
func weightedMean(xs, ws []float64) (float64, error) {
	if len(xs) != len(ws) {
		panic("weightedMean: length mismatch")
	}
	var sumWX, sumW float64
	for i, x := range xs {
		sumWX += ws[i] * x
		sumW += ws[i]
	}
	if sumW == 0 {
		return 0, errors.E("weighted mean with zero total weight")
	}
	return sumWX / sumW, nil
}
