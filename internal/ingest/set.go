// Package ingest reads candidate files into the in-memory candidate model.
//
// Readers never fail on a bad record: rows with no usable period or with a
// malformed numeric field are dropped and counted on their Source. Only
// file-level problems (unreadable file, unsupported layout, missing
// acquisition parameters) are returned as errors.
package ingest

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pulsarsearch/candypicker/internal/types"
)

var (
	// ErrUnsupportedSchema is returned when a CSV header has no period or
	// frequency column.
	ErrUnsupportedSchema = errors.New("unsupported CSV schema")

	// ErrInconsistentSources is returned when inputs disagree on acquisition
	// parameters the acceleration correction depends on.
	ErrInconsistentSources = errors.New("inconsistent sources")
)

// Options control how files are loaded.
type Options struct {
	// Workers bounds how many files are parsed at once. Zero or less means one.
	Workers int

	// Logger receives per-file progress; nil uses the logrus standard logger.
	Logger logrus.FieldLogger
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger().WithField("component", "ingest")
	}
	return o.Logger.WithField("component", "ingest")
}

// Set is the merged candidate list of a run. Candidate IDs are positions in
// Candidates and Candidate.Source indexes Sources.
type Set struct {
	Sources    []types.Source
	Candidates []*types.Candidate
}

// Append adds one source and its candidates, assigning run-wide ids.
func (s *Set) Append(src types.Source, cands []*types.Candidate) {
	src.ID = len(s.Sources)
	s.Sources = append(s.Sources, src)
	for _, c := range cands {
		c.ID = len(s.Candidates)
		c.Source = src.ID
		s.Candidates = append(s.Candidates, c)
	}
}

// Dropped is the number of records rejected across all sources.
func (s *Set) Dropped() int {
	n := 0
	for _, src := range s.Sources {
		n += src.Dropped
	}
	return n
}

// Rows is the number of records seen across all sources.
func (s *Set) Rows() int {
	n := 0
	for _, src := range s.Sources {
		n += src.Rows
	}
	return n
}

// loadAll runs read for every path with bounded parallelism and returns the
// results in input order.
func loadAll[T any](ctx context.Context, paths []string, workers int, read func(string) (T, error)) ([]T, error) {
	out := make([]T, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := read(path)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
