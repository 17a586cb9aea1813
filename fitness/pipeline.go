package fitness

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Result is the full output of one pipeline run.
type Result struct {
	Filtered *Filtered
	Strains  []StrainFitness
	Genes    []GeneFitness
	Tables   *Tables
	Stats    Stats
}

// Run executes the whole pipeline: load, join, filter, estimate,
// normalize, test. The stages are strictly sequential; each consumes
// the full output of the previous one.
func Run(ctx context.Context, genePath, countPath, expPath string, opts Opts) (*Result, error) {
	db, err := ReadGenes(ctx, genePath)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d gene(s) on %d scaffold(s)", len(db.Genes), len(db.Scaffolds()))

	counts, err := ReadCounts(ctx, countPath)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d barcode(s) x %d sample column(s)", len(counts.Strains), len(counts.Samples))

	samples, err := ReadExperiments(ctx, expPath)
	if err != nil {
		return nil, err
	}

	return RunTables(db, counts, samples, opts)
}

// RunTables is Run starting from already-loaded tables.
func RunTables(db *GeneDB, counts *CountTable, samples []Sample, opts Opts) (*Result, error) {
	res := &Result{}

	frame, err := Join(db, counts, samples, opts, &res.Stats)
	if err != nil {
		return nil, errors.E(err, "join")
	}
	fl, err := FilterReference(frame, opts, &res.Stats)
	if err != nil {
		return nil, errors.E(err, "reference filter")
	}
	res.Filtered = fl

	if res.Strains, res.Genes, err = Estimate(fl, opts); err != nil {
		return nil, errors.E(err, "fitness estimation")
	}
	log.Printf("estimated fitness for %d gene group(s) from %d observation(s)",
		len(res.Genes), len(res.Strains))

	if err = Normalize(fl, res.Genes, opts, &res.Stats); err != nil {
		return nil, errors.E(err, "positional normalization")
	}
	if err = Significance(fl, res.Strains, res.Genes, opts, &res.Stats); err != nil {
		return nil, errors.E(err, "significance test")
	}
	if res.Tables, err = Assemble(fl, res.Strains, res.Genes); err != nil {
		return nil, errors.E(err, "output assembly")
	}
	return res, nil
}
