package cluster

import (
	"fmt"

	"github.com/pulsarsearch/candypicker/internal/types"
)

// Result is the outcome of one clustering run. Slices indexed by candidate id
// have one entry per input candidate.
type Result struct {
	// Candidates is the slice the run was given.
	Candidates []*types.Candidate `json:"-"`

	// Pivots are the kept candidates, in the order they were chosen
	// (SNR descending).
	Pivots []int `json:"pivots"`

	// Rejected are the non-pivots in ascending id order.
	Rejected []int `json:"rejected"`

	// Related[p] lists the candidates pivot p claimed, in ascending id order.
	// It is empty for non-pivots.
	Related [][]int `json:"related"`

	// ClaimedBy[i] is the pivot that owns candidate i. Pivots own themselves.
	ClaimedBy []int `json:"claimed_by"`

	Stats Stats `json:"stats"`
}

// Stats provides metrics about a clustering run
type Stats struct {
	// TotalCandidates is the number of candidates clustered
	TotalCandidates int `json:"total_candidates"`

	// PivotCount is the number of clusters
	PivotCount int `json:"pivot_count"`

	// SuppressedCount is the number of candidates claimed by another pivot
	SuppressedCount int `json:"suppressed_count"`

	// Comparisons is the number of match predicate evaluations
	Comparisons int64 `json:"comparisons"`

	// Buckets is the number of non-empty period buckets
	Buckets int `json:"buckets"`

	// Workers is the number of adjacency workers used (1 = lazy sequential)
	Workers int `json:"workers"`

	// ProcessingTimeMs is the time taken for clustering in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// IsPivot reports whether candidate id was kept.
func (r *Result) IsPivot(id int) bool {
	return r.ClaimedBy[id] == id
}

// Matched reports whether candidate id belongs to a cluster of more than one
// member.
func (r *Result) Matched(id int) bool {
	if r.IsPivot(id) {
		return len(r.Related[id]) > 0
	}
	return true
}

// Members returns pivot p followed by the candidates it claimed.
func (r *Result) Members(p int) []int {
	out := make([]int, 0, 1+len(r.Related[p]))
	out = append(out, p)
	return append(out, r.Related[p]...)
}

// Validate checks that the result is internally consistent: counts add up,
// every candidate is a pivot or claimed by exactly one pivot, and no pivot is
// outranked by a member of its own cluster.
func (r *Result) Validate() error {
	n := len(r.Candidates)

	if r.Stats.TotalCandidates != n {
		return fmt.Errorf("stats.total_candidates (%d) does not match candidates length (%d)",
			r.Stats.TotalCandidates, n)
	}
	if len(r.ClaimedBy) != n || len(r.Related) != n {
		return fmt.Errorf("claimed_by (%d) and related (%d) must have one entry per candidate (%d)",
			len(r.ClaimedBy), len(r.Related), n)
	}
	if r.Stats.PivotCount != len(r.Pivots) {
		return fmt.Errorf("stats.pivot_count (%d) does not match pivots length (%d)",
			r.Stats.PivotCount, len(r.Pivots))
	}
	if r.Stats.SuppressedCount != len(r.Rejected) {
		return fmt.Errorf("stats.suppressed_count (%d) does not match rejected length (%d)",
			r.Stats.SuppressedCount, len(r.Rejected))
	}
	if len(r.Pivots)+len(r.Rejected) != n {
		return fmt.Errorf("pivots (%d) + rejected (%d) does not equal total candidates (%d)",
			len(r.Pivots), len(r.Rejected), n)
	}

	for _, p := range r.Pivots {
		if p < 0 || p >= n || r.ClaimedBy[p] != p {
			return fmt.Errorf("pivot %d does not own itself", p)
		}
	}

	seen := make([]bool, n)
	for p := range r.Related {
		if len(r.Related[p]) > 0 && r.ClaimedBy[p] != p {
			return fmt.Errorf("candidate %d has related candidates but is not a pivot", p)
		}
		for _, q := range r.Related[p] {
			if q < 0 || q >= n {
				return fmt.Errorf("pivot %d relates invalid index %d (total: %d)", p, q, n)
			}
			if seen[q] {
				return fmt.Errorf("candidate %d is claimed by more than one pivot", q)
			}
			seen[q] = true
			if r.ClaimedBy[q] != p {
				return fmt.Errorf("candidate %d is related to pivot %d but claimed by %d", q, p, r.ClaimedBy[q])
			}
			if Before(r.Candidates[q], r.Candidates[p]) {
				return fmt.Errorf("pivot %d (snr %v) is outranked by member %d (snr %v)",
					p, r.Candidates[p].SNR, q, r.Candidates[q].SNR)
			}
		}
	}

	for _, q := range r.Rejected {
		if q < 0 || q >= n || !seen[q] {
			return fmt.Errorf("rejected candidate %d is not related to any pivot", q)
		}
	}

	return nil
}
