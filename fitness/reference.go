package fitness

import (
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Obs is one surviving (strain, sample) observation. N0 is the summed
// time-zero count for the strain in the sample's condition; it is the
// same value for every non-reference sample of that condition.
type Obs struct {
	StrainIdx int
	SampleIdx int
	Count     int
	N0        int
}

// Filtered is the coverage-filtered working set: only non-reference
// observations survive, with the reference information folded into N0.
type Filtered struct {
	Frame *Frame
	// Obs is ordered by (StrainIdx, SampleIdx).
	Obs []Obs
	// StrainsPerGene[g] is the number of distinct strains of gene g
	// that survive in at least one condition. It is computed once over
	// the whole dataset, not per condition.
	StrainsPerGene []int
}

type strainCond struct {
	strain int
	cond   string
}

// FilterReference pools each condition's reference samples into
// per-strain time-zero totals and drops low-coverage strains and
// genes. Filtering is per condition: a strain can be scored in one
// condition and dropped in another.
func FilterReference(frame *Frame, opts Opts, stats *Stats) (*Filtered, error) {
	refSamples := map[string][]int{}
	conditions := map[string]bool{}
	nNonRef := 0
	for j, s := range frame.Samples {
		if s.Reference {
			refSamples[s.Condition] = append(refSamples[s.Condition], j)
		} else {
			conditions[s.Condition] = true
			nNonRef++
		}
	}
	if nNonRef == 0 {
		return nil, errors.E("metadata table has no non-reference samples")
	}

	condNames := make([]string, 0, len(conditions))
	for c := range conditions {
		condNames = append(condNames, c)
	}
	sort.Strings(condNames)

	// n0 per (strain, condition): sum over the condition's reference
	// replicates. Conditions with no reference samples cannot be scored.
	n0 := map[strainCond]int{}
	for _, cond := range condNames {
		refs := refSamples[cond]
		if len(refs) == 0 {
			stats.EmptyConditions++
			log.Error.Printf("condition %q has no reference sample; skipping it", cond)
			continue
		}
		for i := range frame.Strains {
			sum := 0
			for _, j := range refs {
				sum += frame.Counts[i][j]
			}
			n0[strainCond{i, cond}] = sum
		}
	}

	// Per-condition coverage filters: strain n0 floor first, then the
	// gene floor over surviving strains.
	ok := map[strainCond]bool{}
	for _, cond := range condNames {
		if len(refSamples[cond]) == 0 {
			continue
		}
		geneSum := map[int]int{}
		for i := range frame.Strains {
			v := n0[strainCond{i, cond}]
			if v < opts.MinStrainReads {
				stats.StrainsFiltered++
				continue
			}
			ok[strainCond{i, cond}] = true
			geneSum[frame.Strains[i].GeneIdx] += v
		}
		nStrains := 0
		for i := range frame.Strains {
			key := strainCond{i, cond}
			if !ok[key] {
				continue
			}
			if geneSum[frame.Strains[i].GeneIdx] < opts.MinGeneReads {
				delete(ok, key)
				continue
			}
			nStrains++
		}
		// GenesFiltered counts genes, not strains, so tally separately.
		for _, sum := range geneSum {
			if sum < opts.MinGeneReads {
				stats.GenesFiltered++
			}
		}
		if nStrains == 0 {
			stats.EmptyConditions++
			log.Error.Printf("condition %q: no strain passes coverage filters", cond)
		}
	}

	fl := &Filtered{Frame: frame, StrainsPerGene: make([]int, len(frame.Genes.Genes))}
	strainUsed := make([]bool, len(frame.Strains))
	for i := range frame.Strains {
		for j, s := range frame.Samples {
			if s.Reference {
				continue
			}
			key := strainCond{i, s.Condition}
			if !ok[key] {
				continue
			}
			fl.Obs = append(fl.Obs, Obs{
				StrainIdx: i,
				SampleIdx: j,
				Count:     frame.Counts[i][j],
				N0:        n0[key],
			})
			strainUsed[i] = true
		}
	}
	if len(fl.Obs) == 0 {
		return nil, errors.E("no observation passes the reference coverage filters in any condition")
	}
	for i, used := range strainUsed {
		if used {
			fl.StrainsPerGene[frame.Strains[i].GeneIdx]++
		}
	}
	stats.Observations = len(fl.Obs)
	return fl, nil
}
