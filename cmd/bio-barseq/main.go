package main

// bio-barseq computes strain- and gene-level fitness from pooled
// mutant barcode counts.
//
// Example:
//
//    bio-barseq -genes genes.tsv -counts poolcount.tsv -experiments exps.tsv \
//        -strain-output strain_fit.tsv.gz -gene-output gene_fit.tsv.gz

import (
	"flag"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/poolseq/barseq/fitness"
)

func main() {
	opts := fitness.DefaultOpts
	var (
		genePath         = flag.String("genes", "", "Gene annotation table (tsv, optionally gzipped).")
		countPath        = flag.String("counts", "", "Barcode count table: barcode, scaffold, pos, then one column per sample.")
		expPath          = flag.String("experiments", "", "Sample metadata table.")
		strainOutputPath = flag.String("strain-output", "strain_fitness.tsv.gz", "Output path for the strain-level fitness table (gzipped tsv).")
		geneOutputPath   = flag.String("gene-output", "gene_fitness.tsv.gz", "Output path for the gene-level fitness table (gzipped tsv).")
		linearScaffolds  = flag.String("linear-scaffolds", "", `Comma-separated scaffold names whose normalization windows truncate at the ends instead of wrapping.`)
	)
	flag.IntVar(&opts.MinStrainReads, "min-strain-reads", fitness.DefaultOpts.MinStrainReads,
		"Minimum summed time-zero reads for a strain to be scored in a condition.")
	flag.IntVar(&opts.MinGeneReads, "min-gene-reads", fitness.DefaultOpts.MinGeneReads,
		"Minimum summed time-zero reads over a gene's strains for the gene to be scored in a condition.")
	flag.IntVar(&opts.WindowRadius, "window-radius", fitness.DefaultOpts.WindowRadius,
		"Number of neighboring genes on each side in the local median window.")
	flag.IntVar(&opts.MinSideReads, "min-side-reads", fitness.DefaultOpts.MinSideReads,
		"Minimum time-zero reads per gene half for the prior variance estimate.")
	flag.Float64Var(&opts.TThreshold, "t-threshold", fitness.DefaultOpts.TThreshold,
		"|t| cutoff for the significance call.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if *genePath == "" || *countPath == "" || *expPath == "" {
		log.Fatalf("-genes, -counts and -experiments are all required")
	}
	if *linearScaffolds != "" {
		opts.LinearScaffolds = map[string]bool{}
		for _, s := range strings.Split(*linearScaffolds, ",") {
			opts.LinearScaffolds[s] = true
		}
	}

	res, err := fitness.Run(ctx, *genePath, *countPath, *expPath, opts)
	if err != nil {
		log.Fatalf("bio-barseq: %v", err)
	}
	if err := res.Tables.WriteStrainTable(ctx, *strainOutputPath); err != nil {
		log.Fatalf("writing %s: %v", *strainOutputPath, err)
	}
	if err := res.Tables.WriteGeneTable(ctx, *geneOutputPath); err != nil {
		log.Fatalf("writing %s: %v", *geneOutputPath, err)
	}
	log.Printf("%s", res.Stats.String())
	log.Printf("wrote %d strain row(s) to %s, %d gene row(s) to %s",
		len(res.Tables.Strains), *strainOutputPath, len(res.Tables.Genes), *geneOutputPath)
}
