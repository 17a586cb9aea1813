package fitness

import "fmt"

// Stats counts rows seen and dropped at each stage of a run. Dropped
// rows are expected (intergenic insertions, low-coverage strains) but
// the totals need to be visible for diagnostics.
type Stats struct {
	// CountRows is the number of barcode rows read from the count table.
	CountRows int
	// UnjoinedStrains is the number of barcodes whose position matched
	// no gene.
	UnjoinedStrains int
	// NoncentralStrains is the number of barcodes that landed in a gene
	// but outside its central portion.
	NoncentralStrains int
	// StrainsFiltered counts (strain, condition) pairs dropped for
	// insufficient time-zero reads.
	StrainsFiltered int
	// GenesFiltered counts (gene, condition) pairs dropped for
	// insufficient summed time-zero reads.
	GenesFiltered int
	// EmptyConditions is the number of conditions with no surviving
	// strains at all.
	EmptyConditions int
	// MetadataUnused is the number of metadata rows with no matching
	// count column.
	MetadataUnused int
	// DegenerateGroups counts per-sample groups skipped because a
	// median or density estimate was undefined.
	DegenerateGroups int
	// Observations is the number of (strain, sample) observations that
	// enter fitness estimation.
	Observations int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.CountRows += o.CountRows
	s.UnjoinedStrains += o.UnjoinedStrains
	s.NoncentralStrains += o.NoncentralStrains
	s.StrainsFiltered += o.StrainsFiltered
	s.GenesFiltered += o.GenesFiltered
	s.EmptyConditions += o.EmptyConditions
	s.MetadataUnused += o.MetadataUnused
	s.DegenerateGroups += o.DegenerateGroups
	s.Observations += o.Observations
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"rows: %d, unjoined: %d, noncentral: %d, strains filtered: %d, genes filtered: %d, empty conditions: %d, unused metadata: %d, degenerate groups: %d, observations: %d",
		s.CountRows, s.UnjoinedStrains, s.NoncentralStrains, s.StrainsFiltered,
		s.GenesFiltered, s.EmptyConditions, s.MetadataUnused, s.DegenerateGroups,
		s.Observations)
}
