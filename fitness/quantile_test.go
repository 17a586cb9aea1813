package fitness

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestMedian(t *testing.T) {
	v, err := median([]float64{3, 1, 2})
	expect.NoError(t, err)
	expect.EQ(t, v, 2.0)

	v, err = median([]float64{4, 1, 3, 2})
	expect.NoError(t, err)
	expect.EQ(t, v, 2.5)

	v, err = median([]float64{7})
	expect.NoError(t, err)
	expect.EQ(t, v, 7.0)

	_, err = median(nil)
	expect.True(t, err != nil)
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	xs := []float64{3, 1, 2}
	_, err := median(xs)
	expect.NoError(t, err)
	expect.EQ(t, xs, []float64{3, 1, 2})
}

func TestQuantileSorted(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	expect.EQ(t, quantileSorted(xs, 0), 1.0)
	expect.EQ(t, quantileSorted(xs, 1), 4.0)
	expect.EQ(t, quantileSorted(xs, 0.5), 2.5)
	// Linear interpolation between order statistics.
	expect.EQ(t, quantileSorted(xs, 0.25), 1.75)
	expect.EQ(t, quantileSorted(xs, 0.75), 3.25)
	expect.EQ(t, quantileSorted([]float64{5}, 0.3), 5.0)
}

func TestWeightedMean(t *testing.T) {
	v, err := weightedMean([]float64{1, 3}, []float64{1, 1})
	expect.NoError(t, err)
	expect.EQ(t, v, 2.0)

	v, err = weightedMean([]float64{1, 3}, []float64{3, 1})
	expect.NoError(t, err)
	expect.EQ(t, v, 1.5)

	_, err = weightedMean(nil, nil)
	expect.True(t, err != nil)
}
