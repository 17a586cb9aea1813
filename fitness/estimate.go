package fitness

import (
	"math"
	"sort"

	"github.com/grailbio/base/errors"
)

// countVariance is the Poisson-motivated approximation of the variance
// of the log2 ratio of two counts n and n0.
func countVariance(n, n0 float64) float64 {
	return (1/(1+n) + 1/(1+n0)) / (math.Ln2 * math.Ln2)
}

// strainFitness is the pseudocounted log2 ratio. p is the gene's
// expected fold-change factor: sqrt(p) is added to the numerator count
// and sqrt(1/p) to the reference count, which keeps the ratio centered
// for genes with a real phenotype while still damping zero counts.
func strainFitness(n, n0, p float64) float64 {
	return math.Log2(n+math.Sqrt(p)) - math.Log2(n0+math.Sqrt(1/p))
}

// weightCap returns the ceiling on inverse-variance weights: the
// weight of a strain with capReads reads on both sides. Strains with
// very deep counts otherwise dominate their gene's average.
func weightCap(capReads int) float64 {
	c := float64(capReads)
	return 1 / countVariance(c, c)
}

// StrainFitness is the scored form of one observation, parallel to
// Filtered.Obs.
type StrainFitness struct {
	Obs
	Fitness float64
	Weight  float64
}

// GeneFitness is one (gene, sample) group. Fitness is the weighted
// strain average before positional normalization; NormFitness, T and
// Significant are filled in by the later stages.
type GeneFitness struct {
	GeneIdx   int
	SampleIdx int
	// SumCount and SumN0 are the group's counts summed over strains.
	SumCount int
	SumN0    int
	// StrainCount is the gene's global Strains_per_gene.
	StrainCount int
	Fitness     float64
	NormFitness float64
	T           float64
	Significant bool

	// strainRows indexes Filtered.Obs for the group's members.
	strainRows []int
}

// pseudocountModel selects the pseudocount factor for one gene. There
// are two variants: genes with too few strains get the global count
// ratio, genes with enough strains get a factor that folds in a first
// pass estimate of their own fold-change.
type pseudocountModel interface {
	factor(sampleIdx int) float64
}

// fixedFactor applies the experiment-wide count ratio uniformly. Used
// for genes with fewer than three strains, where a gene-specific
// estimate would be noise.
type fixedFactor struct {
	ratio float64
}

func (m fixedFactor) factor(int) float64 { return m.ratio }

// estimatedFactor scales the global ratio by 2^(centered preliminary
// fitness), a per-sample first-pass estimate of the gene's true
// fold-change.
type estimatedFactor struct {
	ratio    float64
	centered map[int]float64 // sampleIdx -> centered preliminary fitness
}

func (m estimatedFactor) factor(sampleIdx int) float64 {
	return math.Exp2(m.centered[sampleIdx]) * m.ratio
}

// Estimate computes strain-level fitness and weights and aggregates
// them into per-(gene, sample) fitness. The returned strain slice is
// parallel to fl.Obs; the gene slice is ordered by (gene, sample).
func Estimate(fl *Filtered, opts Opts) ([]StrainFitness, []GeneFitness, error) {
	var sumAfter, sumN0 float64
	for _, o := range fl.Obs {
		sumAfter += float64(o.Count)
		sumN0 += float64(o.N0)
	}
	if sumN0 == 0 {
		return nil, nil, errors.E("total reference count is zero after filtering")
	}
	ratio := sumAfter / sumN0

	groups := groupByGeneSample(fl)

	// First pass for the >=3-strain regime: per-group median fitness at
	// p=1, centered by the global median so the factor is 1 for a
	// typical gene.
	prelim := map[[2]int]float64{}
	var prelimAll []float64
	for _, g := range groups {
		if fl.StrainsPerGene[g.GeneIdx] < 3 {
			continue
		}
		vals := make([]float64, 0, len(g.strainRows))
		for _, oi := range g.strainRows {
			o := fl.Obs[oi]
			vals = append(vals, strainFitness(float64(o.Count), float64(o.N0), 1))
		}
		med, err := median(vals)
		if err != nil {
			return nil, nil, err
		}
		prelim[[2]int{g.GeneIdx, g.SampleIdx}] = med
		prelimAll = append(prelimAll, med)
	}
	var center float64
	if len(prelimAll) > 0 {
		var err error
		if center, err = median(prelimAll); err != nil {
			return nil, nil, err
		}
	}

	models := map[int]pseudocountModel{}
	model := func(geneIdx int) pseudocountModel {
		m, ok := models[geneIdx]
		if ok {
			return m
		}
		if fl.StrainsPerGene[geneIdx] < 3 {
			m = fixedFactor{ratio: ratio}
		} else {
			centered := map[int]float64{}
			for key, v := range prelim {
				if key[0] == geneIdx {
					centered[key[1]] = v - center
				}
			}
			m = estimatedFactor{ratio: ratio, centered: centered}
		}
		models[geneIdx] = m
		return m
	}

	wCap := weightCap(opts.WeightCapReads)
	strains := make([]StrainFitness, len(fl.Obs))
	genes := make([]GeneFitness, 0, len(groups))
	for _, g := range groups {
		m := model(g.GeneIdx)
		p := m.factor(g.SampleIdx)
		fs := make([]float64, 0, len(g.strainRows))
		ws := make([]float64, 0, len(g.strainRows))
		for _, oi := range g.strainRows {
			o := fl.Obs[oi]
			f := strainFitness(float64(o.Count), float64(o.N0), p)
			w := 1 / countVariance(float64(o.Count), float64(o.N0))
			if w > wCap {
				w = wCap
			}
			strains[oi] = StrainFitness{Obs: o, Fitness: f, Weight: w}
			fs = append(fs, f)
			ws = append(ws, w)
			g.SumCount += o.Count
			g.SumN0 += o.N0
		}
		g.StrainCount = fl.StrainsPerGene[g.GeneIdx]
		var err error
		if g.Fitness, err = weightedMean(fs, ws); err != nil {
			return nil, nil, errors.E(err, "gene fitness for locus",
				fl.Frame.Genes.Genes[g.GeneIdx].LocusID)
		}
		genes = append(genes, g)
	}
	return strains, genes, nil
}

// groupByGeneSample partitions fl.Obs into (gene, sample) groups,
// ordered by (gene, sample) for deterministic downstream medians.
func groupByGeneSample(fl *Filtered) []GeneFitness {
	byKey := map[[2]int]int{}
	var groups []GeneFitness
	for oi, o := range fl.Obs {
		key := [2]int{fl.Frame.Strains[o.StrainIdx].GeneIdx, o.SampleIdx}
		gi, ok := byKey[key]
		if !ok {
			gi = len(groups)
			byKey[key] = gi
			groups = append(groups, GeneFitness{GeneIdx: key[0], SampleIdx: key[1]})
		}
		groups[gi].strainRows = append(groups[gi].strainRows, oi)
	}
	sort.Slice(groups, func(a, b int) bool {
		if groups[a].GeneIdx != groups[b].GeneIdx {
			return groups[a].GeneIdx < groups[b].GeneIdx
		}
		return groups[a].SampleIdx < groups[b].SampleIdx
	})
	return groups
}
