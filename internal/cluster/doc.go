// Package cluster reduces a set of candidates to one pivot per group of
// detections of the same signal.
//
// # Overview
//
// A periodicity search reports the same pulsar many times: at neighbouring
// trial DMs and accelerations, at harmonics of its true period, and in every
// beam or file that saw it. The engine groups those detections and keeps the
// strongest one.
//
// # Algorithm
//
// The match relation is not transitive (A may match B and B match C while A
// does not match C), so the engine does not compute equivalence classes.
// Instead it runs a greedy suppression over candidates in SNR order:
//
//  1. Sort by SNR descending. Candidates without a finite SNR go last; ties
//     keep ingestion order.
//  2. Walk the sorted list. The first candidate not yet claimed becomes a
//     pivot and claims every unclaimed neighbour it matches, with itself as the
//     reference for the acceleration correction.
//  3. Claimed candidates never become pivots.
//
// Every candidate ends up either a pivot or related to exactly one pivot, and
// no member of a cluster outranks its pivot.
//
// # Execution modes
//
// With one worker the predicate is evaluated lazily during the greedy walk,
// skipping pairs whose second member is already claimed. With more workers the
// engine first computes each candidate's matching neighbours in parallel
// (contiguous id ranges, one writer per range) and then runs the same greedy
// walk sequentially. Both modes return identical pivots and clusters; only
// the comparison count differs.
//
// # Cross-source mode
//
// With Options.CrossSourceOnly, pairs from the same source are never compared.
// This is used to find re-detections of a signal across independent inputs;
// duplicates within one input are left alone.
//
// # Usage
//
//	eng, err := cluster.New(cfg.Tolerance, cluster.Options{Workers: cfg.Workers})
//	if err != nil {
//	    return err
//	}
//	res, err := eng.Run(ctx, candidates)
//	if errors.Is(err, cluster.ErrNothingToCluster) {
//	    // every input row was dropped
//	}
//	for _, id := range res.Pivots {
//	    fmt.Println(candidates[id].Label(), len(res.Related[id]))
//	}
package cluster
