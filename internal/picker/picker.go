// Package picker runs one candidate-picking job end to end: load the inputs,
// cluster them, write the outputs and record the run.
//
// Outputs are written only after clustering has succeeded, so a fatal error
// never leaves a partial result on disk.
package picker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulsarsearch/candypicker/internal/cluster"
	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/ingest"
	"github.com/pulsarsearch/candypicker/internal/types"
)

// Fatal conditions a caller may want to tell apart.
var (
	ErrNothingToCluster    = cluster.ErrNothingToCluster
	ErrInconsistentSources = ingest.ErrInconsistentSources
	ErrUnsupportedSchema   = ingest.ErrUnsupportedSchema
	ErrInvalidConfig       = config.ErrInvalidConfig
)

// Recorder stores the history of successful runs.
type Recorder interface {
	RecordRun(ctx context.Context, run *types.Run) error
}

// Picker runs jobs under one configuration.
type Picker struct {
	cfg     config.Config
	log     logrus.FieldLogger
	history Recorder
}

// New returns a picker. history may be nil to skip recording runs.
func New(cfg config.Config, log logrus.FieldLogger, history Recorder) *Picker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Picker{
		cfg:     cfg,
		log:     log.WithField("component", "picker"),
		history: history,
	}
}

// Summary describes a finished run.
type Summary struct {
	Run     *types.Run
	Stats   cluster.Stats
	Sources []types.Source

	// Matched is the number of candidates in a cluster of more than one or,
	// in match mode, on either side of a cross-file matching pair.
	Matched int
}

// job is the part of a run shared by every mode.
type job struct {
	mode    types.RunMode
	start   time.Time
	inputs  []string
	tol     config.Tolerance
	cross   bool
	set     *ingest.Set
	res     *cluster.Result
	outputs []string

	// linked marks candidates matched by one from another source. Set in
	// match mode only.
	linked []bool
}

func (p *Picker) newJob(mode types.RunMode, inputs []string) (*job, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no input files", ErrInvalidConfig)
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	return &job{
		mode:   mode,
		start:  time.Now(),
		inputs: inputs,
		tol:    p.cfg.Tolerance,
	}, nil
}

func (p *Picker) ingestOptions() ingest.Options {
	workers := p.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return ingest.Options{Workers: workers, Logger: p.log}
}

func (p *Picker) engine(j *job) (*cluster.Engine, error) {
	p.log.WithFields(logrus.Fields{
		"mode":      j.mode,
		"sources":   len(j.set.Sources),
		"rows":      j.set.Rows(),
		"dropped":   j.set.Dropped(),
		"tolerance": j.tol.String(),
	}).Info("Clustering candidates")

	return cluster.New(j.tol, cluster.Options{
		Workers:         p.cfg.Workers,
		CrossSourceOnly: j.cross,
		Logger:          p.log,
	})
}

// cluster runs the engine over the job's candidate set and checks the result.
func (p *Picker) cluster(ctx context.Context, j *job) error {
	engine, err := p.engine(j)
	if err != nil {
		return err
	}

	res, err := engine.Run(ctx, j.set.Candidates)
	if err != nil {
		return err
	}
	return p.accept(j, res)
}

// crossMatch evaluates every cross-source pair. Membership comes from the
// pairs themselves; the clusters resolved from them only feed the run totals.
func (p *Picker) crossMatch(ctx context.Context, j *job) error {
	engine, err := p.engine(j)
	if err != nil {
		return err
	}

	adj, err := engine.Adjacency(ctx, j.set.Candidates)
	if err != nil {
		return err
	}
	j.linked = adj.Linked()
	return p.accept(j, engine.Resolve(j.set.Candidates, adj))
}

func (p *Picker) accept(j *job, res *cluster.Result) error {
	if err := res.Validate(); err != nil {
		return fmt.Errorf("clustering produced an inconsistent result: %w", err)
	}
	j.res = res
	return nil
}

// finish builds the summary and records the run.
func (p *Picker) finish(ctx context.Context, j *job) *Summary {
	tol, err := json.Marshal(j.tol)
	if err != nil {
		// unreachable: Validate rejects the NaN/Inf values json cannot encode
		tol = []byte("{}")
	}

	run := &types.Run{
		Mode:        j.mode,
		StartedAt:   j.start,
		ElapsedMs:   time.Since(j.start).Milliseconds(),
		Host:        hostname(),
		Inputs:      j.inputs,
		Outputs:     j.outputs,
		Tolerance:   string(tol),
		Rows:        j.set.Rows(),
		Dropped:     j.set.Dropped(),
		Pivots:      j.res.Stats.PivotCount,
		Suppressed:  j.res.Stats.SuppressedCount,
		Comparisons: j.res.Stats.Comparisons,
	}

	matched := 0
	for i := range j.set.Candidates {
		if j.matched(i) {
			matched++
		}
	}

	if p.history != nil {
		if err := p.history.RecordRun(ctx, run); err != nil {
			p.log.WithError(err).Warn("Failed to record run history")
		} else {
			p.log.WithField("run_id", run.ID).Debug("Run recorded")
		}
	}

	p.log.WithFields(logrus.Fields{
		"mode":       j.mode,
		"pivots":     run.Pivots,
		"suppressed": run.Suppressed,
		"outputs":    len(run.Outputs),
		"elapsed_ms": run.ElapsedMs,
	}).Info("Run complete")

	return &Summary{
		Run:     run,
		Stats:   j.res.Stats,
		Sources: j.set.Sources,
		Matched: matched,
	}
}

func (j *job) matched(id int) bool {
	if j.linked != nil {
		return j.linked[id]
	}
	return j.res.Matched(id)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
