package output

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/pulsarsearch/candypicker/internal/cluster"
	"github.com/pulsarsearch/candypicker/internal/ingest"
)

// DefaultMatchedSuffix names per-input files written by match mode.
const DefaultMatchedSuffix = "_matched.csv"

// WritePickedCSV writes the pivots of res to path under the first input's
// header, in pivot order. Each row is its original cells; when sourceCol is
// set a column of that name carries the input path as given.
func WritePickedCSV(path string, batch *ingest.CSVBatch, res *cluster.Result, sourceCol string) error {
	header := batch.Header()
	if sourceCol != "" {
		header = append(append([]string(nil), header...), sourceCol)
	}

	rows := make([][]string, 0, len(res.Pivots))
	for _, p := range res.Pivots {
		c := batch.Candidates[p]
		row := c.Record.Row
		if sourceCol != "" {
			src := batch.Sources[c.Source]
			row = append(append([]string(nil), row...), src.Path)
		}
		rows = append(rows, row)
	}

	data, err := encodeCSV(header, rows)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return writeAtomic(path, data)
}

// MatchedPath is the match-mode output for input: the input's stem plus
// suffix, next to the input.
func MatchedPath(input, suffix string) string {
	if suffix == "" {
		suffix = DefaultMatchedSuffix
	}
	return siblingPath(input, suffix)
}

// WriteMatchedCSV writes, for every input file, the rows whose candidate is
// marked in matched (indexed by candidate id). Rows keep their input order and
// the file keeps its own header. It returns the paths written.
func WriteMatchedCSV(batch *ingest.CSVBatch, matched []bool, suffix string) ([]string, error) {
	// Render everything first so a failure leaves no file behind.
	outputs := make([][]byte, len(batch.Files))
	for i, f := range batch.Files {
		var rows [][]string
		for _, c := range f.Candidates {
			if matched[c.ID] {
				rows = append(rows, c.Record.Row)
			}
		}
		data, err := encodeCSV(f.Header, rows)
		if err != nil {
			return nil, fmt.Errorf("encoding matches for %s: %w", f.Source.Path, err)
		}
		outputs[i] = data
	}

	paths := make([]string, 0, len(batch.Files))
	for i, f := range batch.Files {
		path := MatchedPath(f.Source.Path, suffix)
		if err := writeAtomic(path, outputs[i]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func encodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
