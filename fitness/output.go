package fitness

import (
	"context"
	"math"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/klauspost/compress/gzip"
)

// Column order in the two output tables is part of the external
// contract; downstream reporting reads them positionally.
var (
	strainTableHeader = []string{
		"barcode", "locusId", "scaffold", "pos",
		"Filename", "ID", "Date", "Time", "Condition", "Replicate",
		"Counts", "n0", "Strains_per_gene",
		"Strain_fitness", "Norm_fg", "t", "Significant",
	}
	geneTableHeader = []string{
		"locusId", "scaffold",
		"Filename", "ID", "Date", "Time", "Condition", "Replicate",
		"Counts", "n0", "Strains_per_gene",
		"Gene_fitness", "Norm_fg", "log2FC", "t", "Significant",
	}
)

// Tables is the assembled output: one strain row per observation and
// one gene row per (gene, sample) group.
type Tables struct {
	Strains []StrainRow
	Genes   []GeneRow
}

type StrainRow struct {
	Barcode  string
	LocusID  string
	Scaffold string
	Pos      int
	Sample   Sample
	Count    int
	N0       int

	StrainCount int
	Fitness     float64
	NormFitness float64
	T           float64
	Significant bool
}

type GeneRow struct {
	LocusID  string
	Scaffold string
	Sample   Sample

	SumCount    int
	SumN0       int
	StrainCount int
	Fitness     float64
	NormFitness float64
	Log2FC      float64
	T           float64
	Significant bool
}

// Assemble flattens the scored observations into the two output
// tables. Gene-level values are stored once per (gene, sample) group
// by construction; Assemble still verifies that no group is
// duplicated, since a silent duplicate would let strain rows of one
// gene disagree on Norm_fg and the significance call.
func Assemble(fl *Filtered, strains []StrainFitness, genes []GeneFitness) (*Tables, error) {
	frame := fl.Frame
	byKey := map[[2]int]*GeneFitness{}
	for gi := range genes {
		g := &genes[gi]
		key := [2]int{g.GeneIdx, g.SampleIdx}
		if byKey[key] != nil {
			return nil, errors.E("duplicate gene group for locus",
				frame.Genes.Genes[g.GeneIdx].LocusID, "sample", frame.Samples[g.SampleIdx].Filename)
		}
		byKey[key] = g
	}

	t := &Tables{}
	for oi, o := range fl.Obs {
		strain := frame.Strains[o.StrainIdx]
		g := byKey[[2]int{strain.GeneIdx, o.SampleIdx}]
		if g == nil {
			return nil, errors.E("observation for barcode", strain.Barcode,
				"has no gene group; the estimator dropped it")
		}
		t.Strains = append(t.Strains, StrainRow{
			Barcode:     strain.Barcode,
			LocusID:     frame.Genes.Genes[strain.GeneIdx].LocusID,
			Scaffold:    strain.Scaffold,
			Pos:         strain.Pos,
			Sample:      frame.Samples[o.SampleIdx],
			Count:       o.Count,
			N0:          o.N0,
			StrainCount: g.StrainCount,
			Fitness:     strains[oi].Fitness,
			NormFitness: g.NormFitness,
			T:           g.T,
			Significant: g.Significant,
		})
	}
	for gi := range genes {
		g := &genes[gi]
		gene := &frame.Genes.Genes[g.GeneIdx]
		t.Genes = append(t.Genes, GeneRow{
			LocusID:     gene.LocusID,
			Scaffold:    gene.Scaffold,
			Sample:      frame.Samples[g.SampleIdx],
			SumCount:    g.SumCount,
			SumN0:       g.SumN0,
			StrainCount: g.StrainCount,
			Fitness:     g.Fitness,
			NormFitness: g.NormFitness,
			Log2FC:      math.Log2(float64(g.SumCount) / float64(g.SumN0)),
			T:           g.T,
			Significant: g.Significant,
		})
	}
	return t, nil
}

// writeTable writes one gzip-compressed TSV.
func writeTable(ctx context.Context, path string, header []string, nRows int, writeRow func(*tsv.Writer, int)) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	gz := gzip.NewWriter(out.Writer(ctx))
	w := tsv.NewWriter(gz)
	for _, col := range header {
		w.WriteString(col)
	}
	if err = w.EndLine(); err != nil {
		return err
	}
	for i := 0; i < nRows; i++ {
		writeRow(w, i)
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	if err = w.Flush(); err != nil {
		return err
	}
	return gz.Close()
}

// formatFloat renders floats with full round-trip precision so reruns
// are byte-identical.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatBool01(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// WriteStrainTable writes the strain-level fitness table to path as
// gzipped TSV.
func (t *Tables) WriteStrainTable(ctx context.Context, path string) error {
	return writeTable(ctx, path, strainTableHeader, len(t.Strains), func(w *tsv.Writer, i int) {
		r := &t.Strains[i]
		w.WriteString(r.Barcode)
		w.WriteString(r.LocusID)
		w.WriteString(r.Scaffold)
		w.WriteString(strconv.Itoa(r.Pos))
		w.WriteString(r.Sample.Filename)
		w.WriteString(r.Sample.ID)
		w.WriteString(r.Sample.Date)
		w.WriteString(r.Sample.Time)
		w.WriteString(r.Sample.Condition)
		w.WriteString(r.Sample.Replicate)
		w.WriteString(strconv.Itoa(r.Count))
		w.WriteString(strconv.Itoa(r.N0))
		w.WriteString(strconv.Itoa(r.StrainCount))
		w.WriteString(formatFloat(r.Fitness))
		w.WriteString(formatFloat(r.NormFitness))
		w.WriteString(formatFloat(r.T))
		w.WriteString(formatBool01(r.Significant))
	})
}

// WriteGeneTable writes the gene-level fitness table to path as
// gzipped TSV.
func (t *Tables) WriteGeneTable(ctx context.Context, path string) error {
	return writeTable(ctx, path, geneTableHeader, len(t.Genes), func(w *tsv.Writer, i int) {
		r := &t.Genes[i]
		w.WriteString(r.LocusID)
		w.WriteString(r.Scaffold)
		w.WriteString(r.Sample.Filename)
		w.WriteString(r.Sample.ID)
		w.WriteString(r.Sample.Date)
		w.WriteString(r.Sample.Time)
		w.WriteString(r.Sample.Condition)
		w.WriteString(r.Sample.Replicate)
		w.WriteString(strconv.Itoa(r.SumCount))
		w.WriteString(strconv.Itoa(r.SumN0))
		w.WriteString(strconv.Itoa(r.StrainCount))
		w.WriteString(formatFloat(r.Fitness))
		w.WriteString(formatFloat(r.NormFitness))
		w.WriteString(formatFloat(r.Log2FC))
		w.WriteString(formatFloat(r.T))
		w.WriteString(formatBool01(r.Significant))
	})
}
