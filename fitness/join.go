package fitness

import (
	"github.com/biogo/store/interval"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Frame is the unified per-(strain, sample) view of the three input
// tables: joined strains (each owning gene resolved), the sample for
// every count column, and the count matrix.
type Frame struct {
	Genes   *GeneDB
	Strains []Strain
	Samples []Sample
	// Counts[i][j] is the read count of Strains[i] in Samples[j].
	Counts [][]int
}

// geneSpan is the central portion of one gene, inserted into a
// per-scaffold interval tree for position lookup.
type geneSpan struct {
	start, end int
	geneIdx    int
}

func (s geneSpan) Overlap(b interval.IntRange) bool {
	return s.start < b.End && s.end > b.Start
}
func (s geneSpan) ID() uintptr { return uintptr(s.geneIdx) }
func (s geneSpan) Range() interval.IntRange {
	return interval.IntRange{Start: s.start, End: s.end}
}

// centralSpan returns the trustworthy insertion range of g:
// [begin + CentralMin*len, begin + CentralMax*len).
func centralSpan(g *Gene, opts Opts) (int, int) {
	length := float64(g.End - g.Begin)
	start := g.Begin + int(opts.CentralMin*length)
	end := g.Begin + int(opts.CentralMax*length)
	return start, end
}

// Join merges the gene annotation, count table and sample metadata
// into a Frame. Every count column must have a metadata row; metadata
// rows without a count column are ignored. Barcodes that land in no
// gene's central span are dropped silently, counted in stats: they are
// intergenic or near-terminus insertions, not errors.
func Join(db *GeneDB, counts *CountTable, samples []Sample, opts Opts, stats *Stats) (*Frame, error) {
	stats.CountRows = len(counts.Strains)

	bySample := make(map[string]Sample, len(samples))
	for _, s := range samples {
		bySample[s.Filename] = s
	}
	frame := &Frame{Genes: db}
	for _, name := range counts.Samples {
		s, ok := bySample[name]
		if !ok {
			return nil, errors.E("count table column", name, "has no row in the metadata table")
		}
		frame.Samples = append(frame.Samples, s)
		delete(bySample, name)
	}
	if len(bySample) > 0 {
		stats.MetadataUnused = len(bySample)
		log.Printf("join: %d metadata row(s) have no count column", len(bySample))
	}

	// One interval tree per scaffold over central gene spans. Genes the
	// annotation marks non-central never enter the tree.
	trees := map[string]*interval.IntTree{}
	for i := range db.Genes {
		g := &db.Genes[i]
		if !g.Central {
			continue
		}
		start, end := centralSpan(g, opts)
		if end <= start {
			continue
		}
		tree := trees[g.Scaffold]
		if tree == nil {
			tree = &interval.IntTree{}
			trees[g.Scaffold] = tree
		}
		if err := tree.Insert(geneSpan{start: start, end: end, geneIdx: i}, true); err != nil {
			return nil, errors.E(err, "indexing gene", g.LocusID)
		}
	}
	for _, tree := range trees {
		tree.AdjustRanges()
	}

	for i, strain := range counts.Strains {
		gi, inGene := locateGene(db, trees[strain.Scaffold], strain.Scaffold, strain.Pos)
		if gi < 0 {
			if inGene {
				stats.NoncentralStrains++
			} else {
				stats.UnjoinedStrains++
			}
			continue
		}
		strain.GeneIdx = gi
		frame.Strains = append(frame.Strains, strain)
		frame.Counts = append(frame.Counts, counts.Counts[i])
	}
	if stats.UnjoinedStrains > 0 || stats.NoncentralStrains > 0 {
		log.Printf("join: dropped %d intergenic and %d non-central insertion(s) of %d",
			stats.UnjoinedStrains, stats.NoncentralStrains, stats.CountRows)
	}
	if len(frame.Strains) == 0 {
		return nil, errors.E("no insertion maps to the central span of any gene")
	}
	return frame, nil
}

// locateGene maps one insertion position to a gene index, or -1. When
// central spans of neighboring genes overlap, the shortest containing
// gene wins (ties break by locusId) so reruns are stable. inGene
// reports whether the position falls within any gene's full span,
// which distinguishes non-central from intergenic drops.
func locateGene(db *GeneDB, tree *interval.IntTree, scaffold string, pos int) (geneIdx int, inGene bool) {
	geneIdx = -1
	if tree != nil {
		query := geneSpan{start: pos, end: pos + 1}
		for _, hit := range tree.Get(query) {
			hi := hit.(geneSpan).geneIdx
			if geneIdx < 0 || better(db, hi, geneIdx) {
				geneIdx = hi
			}
		}
	}
	if geneIdx >= 0 {
		return geneIdx, true
	}
	for _, gi := range db.ScaffoldGenes(scaffold) {
		g := &db.Genes[gi]
		if g.Begin <= pos && pos < g.End {
			return -1, true
		}
	}
	return -1, false
}

func better(db *GeneDB, a, b int) bool {
	ga, gb := &db.Genes[a], &db.Genes[b]
	la, lb := ga.End-ga.Begin, gb.End-gb.Begin
	if la != lb {
		return la < lb
	}
	return ga.LocusID < gb.LocusID
}
