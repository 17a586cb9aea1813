package fitness

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Gene is one annotated locus. Genes are loaded once from the
// annotation table and immutable afterward, except for Index, which is
// assigned once after loading.
type Gene struct {
	LocusID  string
	Scaffold string
	Begin    int
	End      int
	Strand   string
	// Central is the annotation's own flag for whether insertions in
	// this gene are trustworthy. True when the annotation has no such
	// column.
	Central bool
	// Middle is (Begin+End)/2.
	Middle float64
	// Index is the 1-based rank of Middle among the genes of Scaffold.
	Index int
}

// GeneDB holds the gene annotation and derived per-scaffold ordering.
type GeneDB struct {
	Genes []Gene

	byLocus map[string]int
	// scaffolds maps a scaffold name to gene indices ordered by Middle.
	// Genes[scaffolds[s][i]].Index == i+1.
	scaffolds map[string][]int
}

// Locus returns the index into Genes for the given locusId.
func (db *GeneDB) Locus(locusID string) (int, bool) {
	i, ok := db.byLocus[locusID]
	return i, ok
}

// ScaffoldGenes returns the gene indices of one scaffold in Middle
// order. The returned slice must not be modified.
func (db *GeneDB) ScaffoldGenes(scaffold string) []int {
	return db.scaffolds[scaffold]
}

// Scaffolds returns all scaffold names in sorted order.
func (db *GeneDB) Scaffolds() []string {
	names := make([]string, 0, len(db.scaffolds))
	for s := range db.scaffolds {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// assignIndexes orders each scaffold's genes by Middle and assigns the
// scaffold-relative ordinals used by positional normalization. Ties on
// Middle break by locusId so reruns are stable.
func (db *GeneDB) assignIndexes() {
	db.scaffolds = map[string][]int{}
	for i, g := range db.Genes {
		db.scaffolds[g.Scaffold] = append(db.scaffolds[g.Scaffold], i)
	}
	for _, idx := range db.scaffolds {
		sort.Slice(idx, func(a, b int) bool {
			ga, gb := &db.Genes[idx[a]], &db.Genes[idx[b]]
			if ga.Middle != gb.Middle {
				return ga.Middle < gb.Middle
			}
			return ga.LocusID < gb.LocusID
		})
		for rank, gi := range idx {
			db.Genes[gi].Index = rank + 1
		}
	}
}

// geneColumns maps the required gene table columns to their positions.
type geneColumns struct {
	locus, scaffold, begin, end, strand int
	central                             int // -1 when absent
}

func parseGeneHeader(fields []string) (geneColumns, error) {
	cols := geneColumns{locus: -1, scaffold: -1, begin: -1, end: -1, strand: -1, central: -1}
	for i, name := range fields {
		switch name {
		case "locusId":
			cols.locus = i
		case "scaffold", "scaffoldId":
			cols.scaffold = i
		case "begin":
			cols.begin = i
		case "end":
			cols.end = i
		case "strand", "gene_strand":
			cols.strand = i
		case "central":
			cols.central = i
		}
	}
	missing := []string{}
	for _, c := range []struct {
		name string
		idx  int
	}{
		{"locusId", cols.locus},
		{"scaffold", cols.scaffold},
		{"begin", cols.begin},
		{"end", cols.end},
		{"strand", cols.strand},
	} {
		if c.idx < 0 {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return cols, errors.E("gene table is missing required column(s):", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseBool(s string) (bool, error) {
	switch s {
	case "1", "true", "TRUE", "True":
		return true, nil
	case "0", "false", "FALSE", "False":
		return false, nil
	}
	return false, errors.E("cannot parse boolean value:", s)
}

// ReadGenes loads the gene annotation table. The file is
// tab-delimited with a header row; a trailing .gz is handled
// transparently.
func ReadGenes(ctx context.Context, path string) (*GeneDB, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	db, err := readGenes(bufio.NewScanner(r))
	if err != nil {
		return nil, errors.E(err, "reading gene table", path)
	}
	return db, nil
}

func readGenes(scanner *bufio.Scanner) (*GeneDB, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.E("gene table is empty")
	}
	cols, err := parseGeneHeader(strings.Split(scanner.Text(), "\t"))
	if err != nil {
		return nil, err
	}

	db := &GeneDB{byLocus: map[string]int{}}
	lineIdx := 1
	for scanner.Scan() {
		lineIdx++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		get := func(i int) string {
			if i < len(fields) {
				return fields[i]
			}
			return ""
		}
		g := Gene{
			LocusID:  get(cols.locus),
			Scaffold: get(cols.scaffold),
			Strand:   get(cols.strand),
			Central:  true,
		}
		if g.Begin, err = strconv.Atoi(get(cols.begin)); err != nil {
			return nil, errors.E(fmt.Sprintf("line %d bad begin coordinate: %s", lineIdx, get(cols.begin)))
		}
		if g.End, err = strconv.Atoi(get(cols.end)); err != nil {
			return nil, errors.E(fmt.Sprintf("line %d bad end coordinate: %s", lineIdx, get(cols.end)))
		}
		if cols.central >= 0 {
			if g.Central, err = parseBool(get(cols.central)); err != nil {
				return nil, errors.E(err, fmt.Sprintf("line %d column central", lineIdx))
			}
		}
		g.Middle = float64(g.Begin+g.End) / 2
		if prev, dup := db.byLocus[g.LocusID]; dup {
			log.Error.Printf("gene table line %d: duplicate locusId %s (previous at gene %d), keeping first",
				lineIdx, g.LocusID, prev)
			continue
		}
		db.byLocus[g.LocusID] = len(db.Genes)
		db.Genes = append(db.Genes, g)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(db.Genes) == 0 {
		return nil, errors.E("gene table has no data rows")
	}
	db.assignIndexes()
	return db, nil
}
