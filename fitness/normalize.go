package fitness

import (
	"math"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
	"gonum.org/v1/gonum/stat"
)

// Normalize removes scaffold-position bias from gene fitness in two
// steps, filling in NormFitness for every group:
//
//  1. Subtract the median gene fitness of the surrounding ordinal
//     window (WindowRadius genes each side, wrapping circularly).
//  2. Subtract the mode of the resulting values per (scaffold,
//     sample), located by kernel density estimation.
//
// Samples are independent and processed in parallel; every group's
// result depends only on its own sample's values.
func Normalize(fl *Filtered, genes []GeneFitness, opts Opts, stats *Stats) error {
	db := fl.Frame.Genes

	// Group result indices per sample, then per scaffold.
	perSample := map[int][]int{}
	var sampleIdxs []int
	for gi := range genes {
		j := genes[gi].SampleIdx
		if _, ok := perSample[j]; !ok {
			sampleIdxs = append(sampleIdxs, j)
		}
		perSample[j] = append(perSample[j], gi)
	}
	sort.Ints(sampleIdxs)

	var degenerate int64Counter
	err := traverse.Each(len(sampleIdxs), func(k int) error {
		return normalizeSample(db, genes, perSample[sampleIdxs[k]], opts, &degenerate)
	})
	if err != nil {
		return err
	}
	stats.DegenerateGroups += int(degenerate.value())
	return nil
}

func normalizeSample(db *GeneDB, genes []GeneFitness, groupIdxs []int, opts Opts, degenerate *int64Counter) error {
	// Scatter this sample's gene fitness values into per-scaffold
	// arrays slotted by ordinal index.
	type scaffoldValues struct {
		vals   []float64 // slot Index-1; NaN where the gene has no value
		groups []int     // slot Index-1; -1 where the gene has no value
	}
	byScaffold := map[string]*scaffoldValues{}
	var scaffolds []string
	for _, gi := range groupIdxs {
		g := &db.Genes[genes[gi].GeneIdx]
		sv := byScaffold[g.Scaffold]
		if sv == nil {
			k := len(db.ScaffoldGenes(g.Scaffold))
			sv = &scaffoldValues{vals: make([]float64, k), groups: make([]int, k)}
			for i := range sv.vals {
				sv.vals[i] = math.NaN()
				sv.groups[i] = -1
			}
			byScaffold[g.Scaffold] = sv
			scaffolds = append(scaffolds, g.Scaffold)
		}
		sv.vals[g.Index-1] = genes[gi].Fitness
		sv.groups[g.Index-1] = gi
	}
	sort.Strings(scaffolds)

	for _, scaffold := range scaffolds {
		sv := byScaffold[scaffold]
		k := len(sv.vals)
		wrap := !opts.LinearScaffolds[scaffold]

		// Local median per gene over its ordinal window.
		var centered []float64
		var centeredGroups []int
		window := make([]float64, 0, 2*opts.WindowRadius+1)
		for slot, gi := range sv.groups {
			if gi < 0 {
				continue
			}
			window = window[:0]
			for off := -opts.WindowRadius; off <= opts.WindowRadius; off++ {
				pos := slot + off
				if wrap {
					// A single wrap, mirroring Index+k / Index-k; on
					// scaffolds shorter than the window the out-of-range
					// remainder is skipped.
					if pos < 0 {
						pos += k
					} else if pos >= k {
						pos -= k
					}
				}
				if pos < 0 || pos >= k || math.IsNaN(sv.vals[pos]) {
					continue
				}
				window = append(window, sv.vals[pos])
			}
			med, err := median(window)
			if err != nil {
				return errors.E(err, "local median for gene", db.Genes[genes[gi].GeneIdx].LocusID)
			}
			genes[gi].NormFitness = genes[gi].Fitness - med
			centered = append(centered, genes[gi].NormFitness)
			centeredGroups = append(centeredGroups, gi)
		}
		if len(centered) == 0 {
			degenerate.add(1)
			continue
		}

		// Mode centering: residual scaffold-wide shifts (plasmid copy
		// number, growth-rate offsets) move the whole distribution, so
		// subtract the density peak.
		mode := kdeMode(centered, opts.KDEPoints, opts.KDECut)
		for _, gi := range centeredGroups {
			genes[gi].NormFitness -= mode
		}
	}
	return nil
}

// kdeMode locates the maximum of a Gaussian kernel density estimate
// over xs. The bandwidth follows bandwidthNRD0 and the density is
// evaluated at points equally spaced values spanning
// [min-cut*h, max+cut*h]; ties resolve to the lowest grid value. This
// exact rule is part of the output contract: a different bandwidth or
// grid shifts every normalized fitness value.
//
// REQUIRES: len(xs) > 0.
func kdeMode(xs []float64, points int, cut float64) float64 {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	if lo == hi {
		// Zero spread; the mode is the common value.
		return lo
	}
	h := bandwidthNRD0(xs)
	lo -= cut * h
	hi += cut * h
	step := (hi - lo) / float64(points-1)
	best, bestDensity := lo, math.Inf(-1)
	for i := 0; i < points; i++ {
		g := lo + float64(i)*step
		var d float64
		for _, x := range xs {
			z := (g - x) / h
			d += math.Exp(-0.5 * z * z)
		}
		if d > bestDensity {
			best, bestDensity = g, d
		}
	}
	return best
}

// bandwidthNRD0 is Silverman's rule of thumb as commonly implemented:
// 0.9 * min(sd, IQR/1.349) * n^(-1/5), with the usual fallback chain
// (sd, then |x[0]|, then 1) when the spread estimates degenerate.
// Positive for any input with at least two values.
func bandwidthNRD0(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	s := make([]float64, n)
	copy(s, xs)
	sort.Float64s(s)
	sd := stat.StdDev(s, nil)
	iqr := quantileSorted(s, 0.75) - quantileSorted(s, 0.25)
	lo := math.Min(sd, iqr/1.349)
	if lo == 0 {
		lo = sd
	}
	if lo == 0 {
		lo = math.Abs(s[0])
	}
	if lo == 0 {
		lo = 1
	}
	return 0.9 * lo * math.Pow(float64(n), -0.2)
}

// int64Counter is a tiny atomic counter shared across traverse shards.
type int64Counter struct {
	mu sync.Mutex
	n  int64
}

func (c *int64Counter) add(v int64) {
	c.mu.Lock()
	c.n += v
	c.mu.Unlock()
}

func (c *int64Counter) value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
