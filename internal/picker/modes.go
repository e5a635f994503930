package picker

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pulsarsearch/candypicker/internal/ingest"
	"github.com/pulsarsearch/candypicker/internal/output"
	"github.com/pulsarsearch/candypicker/internal/types"
)

// CSVRequest is a csv-mode job.
type CSVRequest struct {
	Inputs []string
	Output string

	// SourceCol, when set, appends a column of that name holding each row's
	// input file name.
	SourceCol string
}

// RunCSV clusters the rows of one or more CSV files and writes the pivots.
func (p *Picker) RunCSV(ctx context.Context, req CSVRequest) (*Summary, error) {
	if req.Output == "" {
		return nil, fmt.Errorf("%w: an output path is required", ErrInvalidConfig)
	}
	j, err := p.newJob(types.RunModeCSV, req.Inputs)
	if err != nil {
		return nil, err
	}

	batch, err := ingest.LoadCSV(ctx, req.Inputs, p.ingestOptions())
	if err != nil {
		return nil, err
	}
	j.set = &batch.Set

	if err := p.cluster(ctx, j); err != nil {
		return nil, err
	}

	if err := output.WritePickedCSV(req.Output, batch, j.res, req.SourceCol); err != nil {
		return nil, err
	}
	j.outputs = []string{req.Output}

	return p.finish(ctx, j), nil
}

// XMLRequest is an xml-mode job.
type XMLRequest struct {
	Inputs []string

	// PivotsPath is where the pivot summary goes; empty means
	// output.DefaultPivotsFile in the working directory.
	PivotsPath string

	// ObservationDuration, when positive, replaces the size × tsamp value
	// derived from the inputs.
	ObservationDuration float64
}

// RunXML clusters the candidates of one or more peasoup search files, writes
// the pivot summary and splits every input into picked and rejected files.
func (p *Picker) RunXML(ctx context.Context, req XMLRequest) (*Summary, error) {
	j, err := p.newJob(types.RunModeXML, req.Inputs)
	if err != nil {
		return nil, err
	}

	batch, err := ingest.LoadXML(ctx, req.Inputs, p.ingestOptions())
	if err != nil {
		return nil, err
	}
	j.set = &batch.Set

	j.tol.ObservationDuration = batch.ObservationDuration
	if req.ObservationDuration > 0 {
		p.log.WithFields(logrus.Fields{
			"derived_s":  batch.ObservationDuration,
			"override_s": req.ObservationDuration,
		}).Info("Observation duration overridden")
		j.tol.ObservationDuration = req.ObservationDuration
	}

	if err := p.cluster(ctx, j); err != nil {
		return nil, err
	}

	pivotsPath := req.PivotsPath
	if pivotsPath == "" {
		pivotsPath = output.DefaultPivotsFile
	}
	if err := output.WritePivotsCSV(pivotsPath, batch, j.res); err != nil {
		return nil, err
	}
	j.outputs = append(j.outputs, pivotsPath)

	split, err := output.WriteSplitXML(batch, j.res)
	j.outputs = append(j.outputs, split...)
	if err != nil {
		return nil, err
	}

	return p.finish(ctx, j), nil
}

// MatchRequest is a match-mode job.
type MatchRequest struct {
	Inputs []string

	// Suffix replaces each input's extension in its output name; empty means
	// output.DefaultMatchedSuffix.
	Suffix string
}

// RunMatch finds candidates seen in more than one CSV file. Only pairs from
// different files are compared, and both rows of every matching pair are
// kept. Every input gets a companion file with its matched rows.
func (p *Picker) RunMatch(ctx context.Context, req MatchRequest) (*Summary, error) {
	if len(req.Inputs) < 2 {
		return nil, fmt.Errorf("%w: match needs at least two input files (got %d)", ErrInvalidConfig, len(req.Inputs))
	}
	j, err := p.newJob(types.RunModeMatch, req.Inputs)
	if err != nil {
		return nil, err
	}
	j.cross = true

	batch, err := ingest.LoadCSV(ctx, req.Inputs, p.ingestOptions())
	if err != nil {
		return nil, err
	}
	j.set = &batch.Set

	if err := p.crossMatch(ctx, j); err != nil {
		return nil, err
	}

	paths, err := output.WriteMatchedCSV(batch, j.linked, req.Suffix)
	j.outputs = paths
	if err != nil {
		return nil, err
	}

	return p.finish(ctx, j), nil
}
