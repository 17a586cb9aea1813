package fitness

import (
	"fmt"
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// madToSD converts a median absolute difference to a standard
// deviation under a normal approximation.
const madToSD = 0.674

type geneCond struct {
	gene int
	cond string
}

// halfGeneSplit compares the two halves of each gene: strains left and
// right of the midpoint measure the same knockout, so the difference
// of their median fitness values is pure noise. Only genes with at
// least opts.MinSideReads time-zero reads on each side enter the
// estimate; sparse genes are excluded from it (and from nothing else).
//
// The returned absDiffs are |median(right) - median(left)| per
// qualifying (gene, condition), pooling strain fitness across the
// condition's samples. Uses the original strain fitness, not the
// positionally normalized gene value.
func halfGeneSplit(fl *Filtered, strains []StrainFitness, opts Opts) (absDiffs []float64, qualified map[geneCond]bool, err error) {
	frame := fl.Frame

	// Time-zero reads per (gene, condition, side). N0 repeats across a
	// condition's samples, so count each (strain, condition) once.
	sideN0 := map[geneCond][2]int{}
	seen := map[strainCond]bool{}
	sideFit := map[geneCond][2][]float64{}
	for oi, o := range fl.Obs {
		strain := frame.Strains[o.StrainIdx]
		g := &frame.Genes.Genes[strain.GeneIdx]
		cond := frame.Samples[o.SampleIdx].Condition
		key := geneCond{strain.GeneIdx, cond}
		side := 0
		if float64(strain.Pos) >= g.Middle {
			side = 1
		}
		sc := strainCond{o.StrainIdx, cond}
		if !seen[sc] {
			seen[sc] = true
			v := sideN0[key]
			v[side] += o.N0
			sideN0[key] = v
		}
		f := sideFit[key]
		f[side] = append(f[side], strains[oi].Fitness)
		sideFit[key] = f
	}

	keys := make([]geneCond, 0, len(sideN0))
	for key := range sideN0 {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].gene != keys[b].gene {
			return keys[a].gene < keys[b].gene
		}
		return keys[a].cond < keys[b].cond
	})

	qualified = map[geneCond]bool{}
	for _, key := range keys {
		n0s := sideN0[key]
		if n0s[0] < opts.MinSideReads || n0s[1] < opts.MinSideReads {
			continue
		}
		fits := sideFit[key]
		left, err := median(fits[0])
		if err != nil {
			return nil, nil, err
		}
		right, err := median(fits[1])
		if err != nil {
			return nil, nil, err
		}
		qualified[key] = true
		absDiffs = append(absDiffs, math.Abs(right-left))
	}
	return absDiffs, qualified, nil
}

// Significance fills in T and Significant for every gene group. The
// per-gene variance combines an empirical residual term with a prior
// scaled by the gene's count depth, with the prior calibrated from
// half-gene splits.
func Significance(fl *Filtered, strains []StrainFitness, genes []GeneFitness, opts Opts, stats *Stats) error {
	absDiffs, qualified, err := halfGeneSplit(fl, strains, opts)
	if err != nil {
		return err
	}
	if len(absDiffs) == 0 {
		return errors.E(fmt.Sprintf(
			"no gene has %d time-zero reads on both sides of its midpoint; the prior variance is undefined",
			opts.MinSideReads))
	}
	mad12, err := median(absDiffs)
	if err != nil {
		return err
	}
	vt := (mad12 / (2 * madToSD)) * (mad12 / (2 * madToSD))
	log.Printf("variance prior: %d qualifying gene/condition pairs, mad12=%g, Vt=%g",
		len(absDiffs), mad12, vt)

	// The prior is scaled per gene by Vn/median(Vn), where Vn is the
	// naive count variance of the gene's summed reads and the median
	// runs over the genes that calibrated the prior, per sample.
	naive := make([]float64, len(genes))
	medianVn := map[int]float64{}
	perSample := map[int][]int{}
	var sampleIdxs []int
	for gi := range genes {
		g := &genes[gi]
		naive[gi] = countVariance(float64(g.SumCount), float64(g.SumN0))
		j := g.SampleIdx
		if _, ok := perSample[j]; !ok {
			sampleIdxs = append(sampleIdxs, j)
		}
		perSample[j] = append(perSample[j], gi)
	}
	sort.Ints(sampleIdxs)
	for _, j := range sampleIdxs {
		cond := fl.Frame.Samples[j].Condition
		var vns []float64
		for _, gi := range perSample[j] {
			if qualified[geneCond{genes[gi].GeneIdx, cond}] {
				vns = append(vns, naive[gi])
			}
		}
		if len(vns) == 0 {
			// No calibrating gene in this sample; fall back to all of
			// its genes rather than leaving every t undefined.
			stats.DegenerateGroups++
			log.Error.Printf("sample %s: no variance-calibrating gene, using all genes for median Vn",
				fl.Frame.Samples[j].Filename)
			for _, gi := range perSample[j] {
				vns = append(vns, naive[gi])
			}
		}
		med, err := median(vns)
		if err != nil {
			return errors.E(err, "median naive variance for sample", fl.Frame.Samples[j].Filename)
		}
		medianVn[j] = med
	}

	for gi := range genes {
		g := &genes[gi]
		vn := naive[gi]
		vg := vt * vn / medianVn[g.SampleIdx]
		var sumW, sumVi float64
		for _, oi := range g.strainRows {
			s := &strains[oi]
			d := s.Fitness - g.NormFitness
			sumW += s.Weight
			sumVi += s.Weight * d * d
		}
		ve := (sumVi/sumW + vg) / float64(g.StrainCount)
		v := ve
		if vn > v {
			v = vn
		}
		g.T = g.NormFitness / math.Sqrt(opts.VarianceFloor*opts.VarianceFloor+v)
		g.Significant = math.Abs(g.T) > opts.TThreshold
	}
	return nil
}
