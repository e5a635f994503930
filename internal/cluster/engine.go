package cluster

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/index"
	"github.com/pulsarsearch/candypicker/internal/match"
	"github.com/pulsarsearch/candypicker/internal/types"
)

// ErrNothingToCluster is returned when a run has no valid candidates.
var ErrNothingToCluster = errors.New("nothing to cluster: no valid candidates")

// partitionsPerWorker splits the adjacency pass finer than the worker count
// so uneven bucket densities still balance.
const partitionsPerWorker = 4

// Options control how the engine runs, not what it computes.
type Options struct {
	// Workers bounds the adjacency pass. Zero means runtime.GOMAXPROCS(0);
	// one or less evaluates the predicate lazily in a single goroutine.
	Workers int

	// CrossSourceOnly compares only candidates from different sources.
	CrossSourceOnly bool

	// Logger receives progress; nil uses the logrus standard logger.
	Logger logrus.FieldLogger
}

// Engine clusters candidates under a fixed tolerance.
type Engine struct {
	tol     config.Tolerance
	opts    Options
	matcher *match.Matcher
	log     logrus.FieldLogger
}

// New builds an engine. The tolerance is validated here so a bad
// configuration fails before any work is done.
func New(tol config.Tolerance, opts Options) (*Engine, error) {
	if err := tol.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: workers cannot be negative (got %d)", config.ErrInvalidConfig, opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		tol:     tol,
		opts:    opts,
		matcher: match.New(tol),
		log:     logger.WithField("component", "cluster"),
	}, nil
}

// Run clusters cands. Candidate IDs must equal their slice positions.
func (e *Engine) Run(ctx context.Context, cands []*types.Candidate) (*Result, error) {
	startTime := time.Now()

	if len(cands) == 0 {
		return nil, ErrNothingToCluster
	}

	var res *Result
	if e.opts.Workers <= 1 {
		ix, err := e.buildIndex(cands)
		if err != nil {
			return nil, err
		}
		res = e.lazy(cands, ix, Order(cands)).result(cands)
		res.Stats.Buckets = ix.Buckets()
	} else {
		adj, err := e.Adjacency(ctx, cands)
		if err != nil {
			return nil, err
		}
		res = e.Resolve(cands, adj)
	}
	res.Stats.Workers = max(e.opts.Workers, 1)
	res.Stats.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	e.log.WithFields(logrus.Fields{
		"candidates":  res.Stats.TotalCandidates,
		"pivots":      res.Stats.PivotCount,
		"suppressed":  res.Stats.SuppressedCount,
		"comparisons": res.Stats.Comparisons,
		"workers":     res.Stats.Workers,
		"elapsed_ms":  res.Stats.ProcessingTimeMs,
	}).Info("Clustering complete")

	return res, nil
}

// Adjacency is every matching pair found by one full pass over the index.
type Adjacency struct {
	// Links[i] lists the candidates i matches as the reference.
	Links [][]int

	Comparisons int64
	Buckets     int
}

// Linked reports, per candidate, whether it is on either side of at least
// one matching pair.
func (a *Adjacency) Linked() []bool {
	linked := make([]bool, len(a.Links))
	for i, links := range a.Links {
		for _, j := range links {
			linked[i] = true
			linked[j] = true
		}
	}
	return linked
}

// Adjacency evaluates the predicate for every eligible neighbour pair of
// cands, using the configured number of workers.
func (e *Engine) Adjacency(ctx context.Context, cands []*types.Candidate) (*Adjacency, error) {
	if len(cands) == 0 {
		return nil, ErrNothingToCluster
	}
	ix, err := e.buildIndex(cands)
	if err != nil {
		return nil, err
	}
	links, comparisons, err := e.adjacency(ctx, cands, ix)
	if err != nil {
		return nil, err
	}
	return &Adjacency{Links: links, Comparisons: comparisons, Buckets: ix.Buckets()}, nil
}

// Resolve runs the greedy suppression walk over a precomputed adjacency.
func (e *Engine) Resolve(cands []*types.Candidate, adj *Adjacency) *Result {
	g := newGreedy(len(cands))
	g.walk(Order(cands), func(p int) {
		for _, q := range adj.Links[p] {
			if g.free(q) {
				g.claim(p, q)
			}
		}
	})
	g.comparisons = adj.Comparisons

	res := g.result(cands)
	res.Stats.Buckets = adj.Buckets
	res.Stats.Workers = max(e.opts.Workers, 1)
	return res
}

func (e *Engine) buildIndex(cands []*types.Candidate) (*index.Index, error) {
	ix, err := index.Build(cands, e.tol)
	if err != nil {
		return nil, fmt.Errorf("building period index: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"candidates": len(cands),
		"buckets":    ix.Buckets(),
		"padding":    ix.Padding(),
	}).Debug("Period index built")
	return ix, nil
}

// eligible reports whether the pair may be compared at all.
func (e *Engine) eligible(a, b *types.Candidate) bool {
	return !e.opts.CrossSourceOnly || a.Source != b.Source
}

// lazy evaluates the predicate only for neighbours that are still unclaimed
// when their pivot is reached.
func (e *Engine) lazy(cands []*types.Candidate, ix *index.Index, order []int) *greedy {
	g := newGreedy(len(cands))
	g.walk(order, func(p int) {
		for _, q := range ix.Neighbors(p) {
			if !g.free(q) || !e.eligible(cands[p], cands[q]) {
				continue
			}
			g.comparisons++
			if e.matcher.Matches(cands[p], cands[q]) {
				g.claim(p, q)
			}
		}
	})
	return g
}

// adjacency computes, for every candidate, the neighbours it matches as the
// reference. Each partition writes only its own rows of adj.
func (e *Engine) adjacency(ctx context.Context, cands []*types.Candidate, ix *index.Index) ([][]int, int64, error) {
	n := len(cands)
	adj := make([][]int, n)

	parts := min(e.opts.Workers*partitionsPerWorker, n)
	size := (n + parts - 1) / parts
	counts := make([]int64, parts)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for part := 0; part < parts; part++ {
		lo, hi := part*size, min((part+1)*size, n)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for _, j := range ix.Neighbors(i) {
					if !e.eligible(cands[i], cands[j]) {
						continue
					}
					counts[part]++
					if e.matcher.Matches(cands[i], cands[j]) {
						adj[i] = append(adj[i], j)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("adjacency pass: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	e.log.WithFields(logrus.Fields{
		"partitions":  parts,
		"comparisons": total,
	}).Debug("Adjacency pass complete")

	return adj, total, nil
}

// greedy is the state of the suppression walk.
type greedy struct {
	claimedBy   []int
	related     [][]int
	pivots      []int
	comparisons int64
}

func newGreedy(n int) *greedy {
	g := &greedy{
		claimedBy: make([]int, n),
		related:   make([][]int, n),
	}
	for i := range g.claimedBy {
		g.claimedBy[i] = -1
	}
	return g
}

// walk visits candidates in order. Each one still unclaimed becomes a pivot
// and expand is called to let it claim its matches.
func (g *greedy) walk(order []int, expand func(p int)) {
	for _, p := range order {
		if !g.free(p) {
			continue
		}
		g.claimedBy[p] = p
		g.pivots = append(g.pivots, p)
		expand(p)
	}
}

func (g *greedy) free(q int) bool {
	return g.claimedBy[q] < 0
}

func (g *greedy) claim(p, q int) {
	g.claimedBy[q] = p
	g.related[p] = append(g.related[p], q)
}

func (g *greedy) result(cands []*types.Candidate) *Result {
	n := len(cands)
	rejected := make([]int, 0, n-len(g.pivots))
	for i := 0; i < n; i++ {
		if g.claimedBy[i] != i {
			rejected = append(rejected, i)
		}
	}
	for p := range g.related {
		slices.Sort(g.related[p])
	}

	return &Result{
		Candidates: cands,
		Pivots:     g.pivots,
		Rejected:   rejected,
		Related:    g.related,
		ClaimedBy:  g.claimedBy,
		Stats: Stats{
			TotalCandidates: n,
			PivotCount:      len(g.pivots),
			SuppressedCount: len(rejected),
			Comparisons:     g.comparisons,
		},
	}
}

// Order returns candidate ids sorted for pivot selection: finite SNR
// descending, then everything else, ties by id.
func Order(cands []*types.Candidate) []int {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		switch {
		case Before(cands[a], cands[b]):
			return -1
		case Before(cands[b], cands[a]):
			return 1
		}
		return 0
	})
	return order
}

// Before reports whether a outranks b for pivot selection.
func Before(a, b *types.Candidate) bool {
	af, bf := a.HasSNR(), b.HasSNR()
	if af != bf {
		return af
	}
	if af && a.SNR != b.SNR {
		return a.SNR > b.SNR
	}
	return a.ID < b.ID
}
