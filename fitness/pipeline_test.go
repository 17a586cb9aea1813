package fitness

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// endToEndInput is a minimal but complete experiment: two genes on one
// circular scaffold, two strains per gene straddling each midpoint, one
// reference sample and one glucose sample. g1 grows out 2x, g2 is flat.
func endToEndInput(t *testing.T) (*GeneDB, *CountTable, []Sample) {
	db := parseGenes(t, twoGeneTable)
	counts := &CountTable{
		Strains: []Strain{
			{Barcode: "AAAA", Scaffold: "chr", Pos: 120, GeneIdx: -1},
			{Barcode: "CCCC", Scaffold: "chr", Pos: 180, GeneIdx: -1},
			{Barcode: "GGGG", Scaffold: "chr", Pos: 320, GeneIdx: -1},
			{Barcode: "TTTT", Scaffold: "chr", Pos: 380, GeneIdx: -1},
		},
		Samples: []string{"t0.fastq", "c1.fastq"},
		Counts: [][]int{
			{20, 40},
			{20, 40},
			{20, 20},
			{20, 20},
		},
	}
	samples := []Sample{
		{Filename: "t0.fastq", ID: "t0", Condition: "glucose", Reference: true},
		{Filename: "c1.fastq", ID: "c1", Condition: "glucose"},
	}
	return db, counts, samples
}

func TestRunTablesEndToEnd(t *testing.T) {
	db, counts, samples := endToEndInput(t)
	res, err := RunTables(db, counts, samples, DefaultOpts)
	require.NoError(t, err)

	require.Equal(t, 4, len(res.Strains))
	require.Equal(t, 2, len(res.Genes))
	expect.EQ(t, res.Stats.UnjoinedStrains, 0)
	expect.EQ(t, res.Stats.StrainsFiltered, 0)

	// Each gene has two strains, so the fixed pseudocount applies:
	// p = total reads / total time-zero reads = 120/80.
	ratio := 120.0 / 80.0
	fA := strainFitness(40, 20, ratio)
	fB := strainFitness(20, 20, ratio)
	expect.EQ(t, res.Strains[0].Fitness, fA)
	expect.EQ(t, res.Strains[1].Fitness, fA)
	expect.EQ(t, res.Strains[2].Fitness, fB)
	expect.EQ(t, res.Strains[3].Fitness, fB)

	// Equal strains, equal weights: gene fitness collapses to the
	// strain value.
	gA, gB := &res.Genes[0], &res.Genes[1]
	expect.LE(t, math.Abs(gA.Fitness-fA), 1e-12)
	expect.LE(t, math.Abs(gB.Fitness-fB), 1e-12)
	expect.EQ(t, gA.SumCount, 80)
	expect.EQ(t, gA.SumN0, 40)
	expect.EQ(t, gA.StrainCount, 2)

	// Normalization subtracts the same window median and scaffold mode
	// from both genes, so their spread survives it.
	expect.LE(t, math.Abs((gA.NormFitness-gB.NormFitness)-(fA-fB)), 1e-9)
	// The mode lands on the cluster around the flat gene.
	expect.LE(t, math.Abs(gB.NormFitness), 0.2)

	// Two strains and ~0.96 of spread are not enough evidence at these
	// depths.
	expect.True(t, !gA.Significant)
	expect.True(t, !gB.Significant)
	expect.True(t, math.Abs(gA.T) < DefaultOpts.TThreshold)

	require.NotNil(t, res.Tables)
	require.Equal(t, 4, len(res.Tables.Strains))
	require.Equal(t, 2, len(res.Tables.Genes))
	expect.EQ(t, res.Tables.Genes[0].Log2FC, 1.0)
	expect.EQ(t, res.Tables.Strains[0].NormFitness, gA.NormFitness)
	expect.EQ(t, res.Tables.Strains[0].StrainCount, 2)
}

// Four strains per gene, reference counts of 10 everywhere, g1 doubled
// in the condition sample and g2 unchanged. With four strains both
// genes take the estimated pseudocount, and the expected outcome is
// textbook: g1 fitness near 1 (a log2 doubling), g2 near 0, neither
// significant at this depth.
func TestRunTablesFourStrains(t *testing.T) {
	db := parseGenes(t, twoGeneTable)
	counts := &CountTable{Samples: []string{"t0.fastq", "c1.fastq"}}
	for i, pos := range []int{120, 140, 160, 180} {
		counts.Strains = append(counts.Strains,
			Strain{Barcode: fmt.Sprintf("A%d", i), Scaffold: "chr", Pos: pos, GeneIdx: -1})
		counts.Counts = append(counts.Counts, []int{10, 20})
	}
	for i, pos := range []int{320, 340, 360, 380} {
		counts.Strains = append(counts.Strains,
			Strain{Barcode: fmt.Sprintf("B%d", i), Scaffold: "chr", Pos: pos, GeneIdx: -1})
		counts.Counts = append(counts.Counts, []int{10, 10})
	}
	samples := []Sample{
		{Filename: "t0.fastq", ID: "t0", Condition: "glucose", Reference: true},
		{Filename: "c1.fastq", ID: "c1", Condition: "glucose"},
	}

	res, err := RunTables(db, counts, samples, DefaultOpts)
	require.NoError(t, err)
	require.Equal(t, 8, len(res.Strains))
	require.Equal(t, 2, len(res.Genes))

	// Estimated pseudocount per gene: the global ratio scaled by
	// 2^(preliminary median - center).
	ratio := 120.0 / 80.0
	medA := strainFitness(20, 10, 1)
	medB := strainFitness(10, 10, 1)
	center := (medA + medB) / 2
	fA := strainFitness(20, 10, math.Exp2(medA-center)*ratio)
	fB := strainFitness(10, 10, math.Exp2(medB-center)*ratio)
	for i := 0; i < 4; i++ {
		expect.EQ(t, res.Strains[i].Fitness, fA)
		expect.EQ(t, res.Strains[4+i].Fitness, fB)
	}
	expect.LE(t, math.Abs(fA-1), 0.01)
	expect.LE(t, math.Abs(fB), 0.02)

	gA, gB := &res.Genes[0], &res.Genes[1]
	expect.EQ(t, gA.StrainCount, 4)
	expect.EQ(t, gA.SumN0, 40)
	expect.LE(t, math.Abs(gA.Fitness-fA), 1e-12)
	expect.LE(t, math.Abs(gB.Fitness-fB), 1e-12)

	expect.LE(t, math.Abs((gA.NormFitness-gB.NormFitness)-(fA-fB)), 1e-9)
	expect.True(t, math.Abs(gA.T) < DefaultOpts.TThreshold)
	expect.True(t, !gA.Significant)
	expect.True(t, !gB.Significant)
	for _, row := range res.Tables.Strains {
		expect.EQ(t, row.Significant, false)
	}
}

func TestRunTablesDeterministic(t *testing.T) {
	db, counts, samples := endToEndInput(t)
	first, err := RunTables(db, counts, samples, DefaultOpts)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		db2, counts2, samples2 := endToEndInput(t)
		again, err := RunTables(db2, counts2, samples2, DefaultOpts)
		require.NoError(t, err)
		expect.True(t, reflect.DeepEqual(first.Tables, again.Tables))
	}
}

func TestRunFromFiles(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	write := func(name, content string) string {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
		return path
	}
	genePath := write("genes.tsv", twoGeneTable)
	countPath := write("counts.tsv",
		"barcode\tscaffold\tpos\tt0.fastq\tc1.fastq\n"+
			"AAAA\tchr\t120\t20\t40\n"+
			"CCCC\tchr\t180\t20\t40\n"+
			"GGGG\tchr\t320\t20\t20\n"+
			"TTTT\tchr\t380\t20\t20\n")
	expPath := write("exp.tsv",
		"Filename\tDate\tTime\tID\tCondition\tReplicate\tReference\n"+
			"t0.fastq\t2026-01-05\t8\tt0\tglucose\t1\tTRUE\n"+
			"c1.fastq\t2026-01-07\t8\tc1\tglucose\t1\tFALSE\n")

	ctx := vcontext.Background()
	res, err := Run(ctx, genePath, countPath, expPath, DefaultOpts)
	require.NoError(t, err)

	strainOut := filepath.Join(tmpDir, "strain_fitness.tsv.gz")
	geneOut := filepath.Join(tmpDir, "gene_fitness.tsv.gz")
	require.NoError(t, res.Tables.WriteStrainTable(ctx, strainOut))
	require.NoError(t, res.Tables.WriteGeneTable(ctx, geneOut))

	lines := readGzLines(t, geneOut)
	require.Equal(t, 3, len(lines))
	expect.EQ(t, lines[0], strings.Join(geneTableHeader, "\t"))
	row := strings.Split(lines[1], "\t")
	require.Equal(t, len(geneTableHeader), len(row))
	expect.EQ(t, row[0], "g1")
	expect.EQ(t, row[1], "chr")
	expect.EQ(t, row[2], "c1.fastq")
	expect.EQ(t, row[8], "80")  // Counts
	expect.EQ(t, row[9], "40")  // n0
	expect.EQ(t, row[13], "1")  // log2FC
	expect.EQ(t, row[15], "0")  // Significant

	lines = readGzLines(t, strainOut)
	require.Equal(t, 5, len(lines))
	expect.EQ(t, lines[0], strings.Join(strainTableHeader, "\t"))
	row = strings.Split(lines[1], "\t")
	require.Equal(t, len(strainTableHeader), len(row))
	expect.EQ(t, row[0], "AAAA")
	expect.EQ(t, row[1], "g1")
	expect.EQ(t, row[10], "40") // Counts
	expect.EQ(t, row[11], "20") // n0
}

func readGzLines(t *testing.T, path string) []string {
	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	gz, err := gzip.NewReader(strings.NewReader(string(raw)))
	require.NoError(t, err)
	defer gz.Close() // nolint: errcheck
	var lines []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}
