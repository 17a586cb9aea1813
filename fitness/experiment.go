package fitness

import (
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// Sample describes one sequenced sample. Reference samples are the
// time-zero controls; every non-reference sample is compared against
// the pooled reference counts of its Condition.
type Sample struct {
	Filename  string
	ID        string
	Date      string
	Time      string
	Condition string
	Replicate string
	Reference bool
}

// experimentRow mirrors one row of the metadata table.
type experimentRow struct {
	Filename  string `tsv:"Filename"`
	Date      string `tsv:"Date"`
	Time      string `tsv:"Time"`
	ID        string `tsv:"ID"`
	Condition string `tsv:"Condition"`
	Replicate string `tsv:"Replicate"`
	Reference string `tsv:"Reference"`
}

// ReadExperiments loads the sample metadata table.
func ReadExperiments(ctx context.Context, path string) ([]Sample, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	samples, err := readExperiments(r)
	if err != nil {
		return nil, errors.E(err, "reading metadata table", path)
	}
	return samples, nil
}

func readExperiments(r io.Reader) ([]Sample, error) {
	tsvReader := tsv.NewReader(r)
	tsvReader.HasHeaderRow = true
	tsvReader.UseHeaderNames = true

	var samples []Sample
	seen := map[string]bool{}
	for {
		var row experimentRow
		if err := tsvReader.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		ref, err := parseBool(row.Reference)
		if err != nil {
			return nil, errors.E(err, "column Reference, sample", row.Filename)
		}
		if seen[row.Filename] {
			return nil, errors.E("duplicate Filename in metadata table:", row.Filename)
		}
		seen[row.Filename] = true
		samples = append(samples, Sample{
			Filename:  row.Filename,
			ID:        row.ID,
			Date:      row.Date,
			Time:      row.Time,
			Condition: row.Condition,
			Replicate: row.Replicate,
			Reference: ref,
		})
	}
	if len(samples) == 0 {
		return nil, errors.E("metadata table has no data rows")
	}
	return samples, nil
}
