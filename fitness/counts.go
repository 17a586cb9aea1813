package fitness

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Strain is one barcoded insertion mutant. GeneIdx is -1 until the
// joiner assigns an owning gene.
type Strain struct {
	Barcode  string
	Scaffold string
	Pos      int
	GeneIdx  int
}

// CountTable is the wide barcode count table: one row per strain, one
// numeric column per sample filename.
type CountTable struct {
	Strains []Strain
	// Samples holds the sample filenames in column order.
	Samples []string
	// Counts[i][j] is the read count of Strains[i] in Samples[j].
	Counts [][]int
}

// ReadCounts loads the barcode count table. The sample axis is defined
// by the header: every column after barcode, scaffold and pos is taken
// as a sample filename. base/tsv cannot read this shape (its row
// schemas are fixed at compile time), so the table is scanned by hand.
func ReadCounts(ctx context.Context, path string) (*CountTable, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	tab, err := readCounts(scanner)
	if err != nil {
		return nil, errors.E(err, "reading count table", path)
	}
	return tab, nil
}

func readCounts(scanner *bufio.Scanner) (*CountTable, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.E("count table is empty")
	}
	header := strings.Split(scanner.Text(), "\t")
	if len(header) < 3 || header[0] != "barcode" || header[1] != "scaffold" || header[2] != "pos" {
		return nil, errors.E("count table must start with columns barcode, scaffold, pos; got:",
			strings.Join(header[:min(len(header), 3)], ", "))
	}
	if len(header) == 3 {
		return nil, errors.E("count table has no sample columns")
	}
	tab := &CountTable{Samples: header[3:]}

	lineIdx := 1
	for scanner.Scan() {
		lineIdx++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(header) {
			return nil, errors.E(fmt.Sprintf("count table line %d has %d fields, expected %d",
				lineIdx, len(fields), len(header)))
		}
		pos, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, errors.E(fmt.Sprintf("count table line %d bad pos: %s", lineIdx, fields[2]))
		}
		row := make([]int, len(tab.Samples))
		for j, cell := range fields[3:] {
			if row[j], err = strconv.Atoi(cell); err != nil {
				return nil, errors.E(fmt.Sprintf("count table line %d column %s is not an integer: %s",
					lineIdx, header[3+j], cell))
			}
		}
		tab.Strains = append(tab.Strains, Strain{
			Barcode:  fields[0],
			Scaffold: fields[1],
			Pos:      pos,
			GeneIdx:  -1,
		})
		tab.Counts = append(tab.Counts, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(tab.Strains) == 0 {
		return nil, errors.E("count table has no data rows")
	}
	return tab, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
