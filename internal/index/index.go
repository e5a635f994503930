// Package index buckets candidates by period so the clustering engine only
// evaluates the match predicate on pairs that could possibly match.
//
// A candidate with period p lives in bucket floor(p / period_tol). Any direct
// match lies in the same bucket or an adjacent one. With harmonics on, a
// bucket also reaches the buckets its integer multiples and submultiples can
// land in. The index can over-include; the caller always re-checks pairs with
// the exact predicate.
//
// The index is built once and is safe for concurrent queries.
package index

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/match"
	"github.com/pulsarsearch/candypicker/internal/types"
)

// maxBucket keeps k*(b+1)+pad well inside int64 for any supported order.
const maxBucket = math.MaxInt64 / 256

// Index maps bucket ids to candidate ids.
type Index struct {
	ptol  float64
	order int
	pad   int64

	// keys is the sorted list of non-empty bucket ids.
	keys     []int64
	members  map[int64][]int
	bucketOf []int64

	mu   sync.RWMutex
	memo map[int64][]int64
}

// Build indexes cands, whose IDs must equal their slice positions. It fails
// when the period tolerance is so small relative to the periods that bucket
// ids would overflow.
func Build(cands []*types.Candidate, tol config.Tolerance) (*Index, error) {
	ix := &Index{
		ptol:     tol.PeriodTol,
		order:    tol.HarmonicOrder(),
		members:  make(map[int64][]int),
		bucketOf: make([]int64, len(cands)),
		memo:     make(map[int64][]int64),
	}

	for i, c := range cands {
		if c.ID != i {
			return nil, fmt.Errorf("candidate at position %d has id %d", i, c.ID)
		}
		q := c.Period() / ix.ptol
		if q >= maxBucket {
			return nil, fmt.Errorf("period %g is too large for period tolerance %g", c.Period(), ix.ptol)
		}
		b := int64(math.Floor(q))
		ix.bucketOf[i] = b
		if _, ok := ix.members[b]; !ok {
			ix.keys = append(ix.keys, b)
		}
		ix.members[b] = append(ix.members[b], i)
	}
	slices.Sort(ix.keys)

	if tol.AccelAwareIndex {
		ix.pad = accelPadding(cands, tol, ix.order, ix.keySpan())
	}

	return ix, nil
}

// accelPadding is the number of extra buckets every probe must reach so that
// pairs moved by the acceleration correction are still found.
func accelPadding(cands []*types.Candidate, tol config.Tolerance, order int, limit int64) int64 {
	if len(cands) == 0 {
		return 0
	}
	minAcc, maxAcc := math.Inf(1), math.Inf(-1)
	maxPeriod := 0.0
	for _, c := range cands {
		minAcc = min(minAcc, c.Accel())
		maxAcc = max(maxAcc, c.Accel())
		maxPeriod = max(maxPeriod, c.Period())
	}

	drift := match.MaxDrift(maxPeriod, maxAcc-minAcc, tol.ObservationDuration)
	if drift == 0 {
		return 0
	}
	pad := math.Ceil(drift * float64(order) / tol.PeriodTol)
	if math.IsInf(pad, 0) || pad > float64(limit) {
		return limit
	}
	return int64(pad)
}

func (ix *Index) keySpan() int64 {
	if len(ix.keys) == 0 {
		return 0
	}
	return ix.keys[len(ix.keys)-1] - ix.keys[0] + 1
}

// Len returns the number of indexed candidates.
func (ix *Index) Len() int { return len(ix.bucketOf) }

// Buckets returns the number of non-empty buckets.
func (ix *Index) Buckets() int { return len(ix.keys) }

// Padding returns the extra probe radius, in buckets, added for acceleration drift.
func (ix *Index) Padding() int64 { return ix.pad }

// BucketOf returns the bucket id of candidate id.
func (ix *Index) BucketOf(id int) int64 { return ix.bucketOf[id] }

// Neighbors returns the ids of every candidate that may match candidate id,
// in ascending order. The candidate itself is not included.
func (ix *Index) Neighbors(id int) []int {
	var out []int
	for _, b := range ix.NeighborBuckets(ix.bucketOf[id]) {
		for _, j := range ix.members[b] {
			if j != id {
				out = append(out, j)
			}
		}
	}
	slices.Sort(out)
	return out
}

// NeighborBuckets returns the sorted non-empty buckets reachable from bucket b.
// Results are memoised per bucket; the harmonic order is fixed per index.
func (ix *Index) NeighborBuckets(b int64) []int64 {
	ix.mu.RLock()
	nb, ok := ix.memo[b]
	ix.mu.RUnlock()
	if ok {
		return nb
	}

	nb = ix.resolve(ix.probes(b))

	ix.mu.Lock()
	ix.memo[b] = nb
	ix.mu.Unlock()
	return nb
}

type bucketRange struct{ lo, hi int64 }

// probes lists the inclusive bucket ranges to search from bucket b.
func (ix *Index) probes(b int64) []bucketRange {
	r := 1 + ix.pad
	out := []bucketRange{{b - r, b + r}}
	for k := int64(2); k <= int64(ix.order); k++ {
		// multiples of [b, b+1) * ptol land in [k*b, k*(b+1)]
		out = append(out, bucketRange{k*b - r, k*(b+1) + r})
		// submultiples land in [b/k, (b+1)/k]
		out = append(out, bucketRange{floorDiv(b, k) - r, floorDiv(b+1, k) + r})
	}
	return out
}

// resolve merges ranges and returns the non-empty buckets they cover.
func (ix *Index) resolve(ranges []bucketRange) []int64 {
	slices.SortFunc(ranges, func(x, y bucketRange) int {
		switch {
		case x.lo < y.lo:
			return -1
		case x.lo > y.lo:
			return 1
		}
		return 0
	})

	var out []int64
	cur := ranges[0]
	flush := func(s bucketRange) {
		i, _ := slices.BinarySearch(ix.keys, s.lo)
		for ; i < len(ix.keys) && ix.keys[i] <= s.hi; i++ {
			out = append(out, ix.keys[i])
		}
	}
	for _, s := range ranges[1:] {
		if s.lo <= cur.hi+1 {
			cur.hi = max(cur.hi, s.hi)
			continue
		}
		flush(cur)
		cur = s
	}
	flush(cur)
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
