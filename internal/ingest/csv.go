package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pulsarsearch/candypicker/internal/types"
)

// Column aliases, matched against the normalised header in priority order.
var (
	periodColumns = []string{"p0_new", "period", "p0", "p", "p_sec", "per", "per_s"}
	freqColumns   = []string{"f0_opt", "f0_new", "f0", "freq", "frequency_hz"}
	dmColumns     = []string{"dm_new", "dm_opt", "dm", "refdm"}
	accColumns    = []string{"acc_new", "acc_opt", "acc", "acceleration"}
	snrColumns    = []string{"s/n_new", "sn_fold", "snr", "s/n", "sigma"}
)

// Schema holds the column positions of the fields clustering needs. Absent
// columns are -1.
type Schema struct {
	Period int
	Freq   int
	DM     int
	Acc    int
	SNR    int
}

// DetectSchema locates the clustering columns in a CSV header. Header cells
// are compared after trimming, dropping a leading '#' and lowercasing. A
// header must have a period or a frequency column.
func DetectSchema(header []string) (Schema, error) {
	norm := make(map[string]int, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if _, dup := norm[key]; !dup {
			norm[key] = i
		}
	}
	find := func(names []string) int {
		for _, n := range names {
			if i, ok := norm[n]; ok {
				return i
			}
		}
		return -1
	}

	s := Schema{
		Period: find(periodColumns),
		Freq:   find(freqColumns),
		DM:     find(dmColumns),
		Acc:    find(accColumns),
		SNR:    find(snrColumns),
	}
	if s.Period < 0 && s.Freq < 0 {
		return s, fmt.Errorf("%w: no period (%s) or frequency (%s) column",
			ErrUnsupportedSchema, strings.Join(periodColumns, ", "), strings.Join(freqColumns, ", "))
	}
	return s, nil
}

// NormalizeHeader is the form header cells are matched in.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "#")
	return strings.ToLower(strings.TrimSpace(h))
}

// CSVFile is one CSV input held in memory. Rows keeps every data row as read
// so outputs can reproduce them exactly.
type CSVFile struct {
	Source     types.Source
	Header     []string
	Rows       [][]string
	Schema     Schema
	Candidates []*types.Candidate
}

// ReadCSV reads a CSV file and builds a candidate for every usable row.
// Candidate.Record.Index is the row's position in Rows.
func ReadCSV(path string, log logrus.FieldLogger) (*CSVFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if log == nil {
		log = logrus.StandardLogger()
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnsupportedSchema, path)
	}

	schema, err := DetectSchema(rows[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := &CSVFile{
		Source: types.Source{Path: path, Kind: types.SourceCSV},
		Header: rows[0],
		Rows:   rows[1:],
		Schema: schema,
	}
	out.Source.Rows = len(out.Rows)

	for i, row := range out.Rows {
		c, err := schema.candidate(row)
		if err != nil {
			out.Source.Dropped++
			log.WithFields(logrus.Fields{"source": path, "row": i + 1}).Debugf("Dropping row: %v", err)
			continue
		}
		c.Record = types.Record{Index: i, Row: row}
		out.Candidates = append(out.Candidates, c)
	}

	return out, nil
}

// candidate builds a candidate from one row. Empty and "nan" cells are
// missing values; anything else that does not parse is an error.
func (s Schema) candidate(row []string) (*types.Candidate, error) {
	period, ok, err := cell(row, s.Period)
	if err != nil {
		return nil, fmt.Errorf("period: %w", err)
	}
	if !ok {
		f0, fok, err := cell(row, s.Freq)
		if err != nil {
			return nil, fmt.Errorf("frequency: %w", err)
		}
		if !fok {
			return nil, fmt.Errorf("no period or frequency value")
		}
		period = 1 / f0
	}

	dm, err := optional(row, s.DM)
	if err != nil {
		return nil, fmt.Errorf("dm: %w", err)
	}
	acc, err := optional(row, s.Acc)
	if err != nil {
		return nil, fmt.Errorf("acc: %w", err)
	}
	snr, ok, err := cell(row, s.SNR)
	if err != nil {
		return nil, fmt.Errorf("snr: %w", err)
	}
	if !ok {
		snr = math.NaN()
	}

	return types.NewCandidate(period, dm, acc, snr, 0)
}

func optional(row []string, col int) (*float64, error) {
	v, ok, err := cell(row, col)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// cell parses row[col]. ok is false when the column is absent or the value is
// missing.
func cell(row []string, col int) (v float64, ok bool, err error) {
	if col < 0 || col >= len(row) {
		return 0, false, nil
	}
	t := strings.TrimSpace(row[col])
	if t == "" || strings.EqualFold(t, "nan") {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("non-finite value %q", t)
	}
	return v, true, nil
}

// CSVBatch is the result of loading several CSV files.
type CSVBatch struct {
	Set
	Files []*CSVFile
}

// Header is the output header: the first file's.
func (b *CSVBatch) Header() []string {
	return b.Files[0].Header
}

// LoadCSV reads paths in parallel and merges them in input order. Headers
// that differ from the first file are logged and otherwise ignored.
func LoadCSV(ctx context.Context, paths []string, opts Options) (*CSVBatch, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input CSV files")
	}
	log := opts.logger()

	files, err := loadAll(ctx, paths, opts.Workers, func(path string) (*CSVFile, error) {
		return ReadCSV(path, log)
	})
	if err != nil {
		return nil, err
	}

	batch := &CSVBatch{Files: files}
	for i, f := range files {
		if i > 0 && !slices.Equal(f.Header, files[0].Header) {
			log.WithField("source", f.Source.Path).Warn("Header differs from the first file; output keeps the first header")
		}
		batch.Append(f.Source, f.Candidates)
		f.Source = batch.Sources[len(batch.Sources)-1]
		log.WithFields(logrus.Fields{
			"source":  f.Source.Path,
			"rows":    f.Source.Rows,
			"dropped": f.Source.Dropped,
		}).Info("Loaded CSV")
	}

	return batch, nil
}
