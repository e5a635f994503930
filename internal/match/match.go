// Package match decides whether two candidates are detections of the same
// signal.
//
// The test has three stages: optional DM and acceleration gates, an
// acceleration correction that moves the second candidate's period into the
// first candidate's trial frame, and a period comparison that optionally
// accepts integer multiples in either direction.
//
// The first argument is always the reference. With equal accelerations the
// relation is symmetric; with differing accelerations the correction is applied
// to the second candidate only, so callers that need a canonical answer must
// pick the reference themselves (the clustering engine uses the pivot).
package match

import (
	"math"

	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/types"
)

// SpeedOfLight in m/s.
const SpeedOfLight = 299_792_458.0

// Matcher evaluates the match predicate under a fixed tolerance.
type Matcher struct {
	tol       config.Tolerance
	tobsOverC float64
	order     int
}

// New builds a Matcher. The tolerance is assumed to be validated.
func New(tol config.Tolerance) *Matcher {
	return &Matcher{
		tol:       tol,
		tobsOverC: tol.ObservationDuration / SpeedOfLight,
		order:     tol.HarmonicOrder(),
	}
}

// Tolerance returns the tolerance the matcher was built with.
func (m *Matcher) Tolerance() config.Tolerance {
	return m.tol
}

// Matches reports whether b is the same signal as the reference a.
func (m *Matcher) Matches(a, b *types.Candidate) bool {
	if a == b {
		return true
	}
	if !Gate(a.DM, b.DM, m.tol.DMTol) {
		return false
	}
	if !Gate(a.Acceleration, b.Acceleration, m.tol.AccTol) {
		return false
	}

	pb, ok := m.CorrectedPeriod(a, b)
	if !ok {
		return false
	}
	return PeriodsMatch(a.Period(), pb, m.tol.PeriodTol, m.order)
}

// CorrectedPeriod returns b's period moved into a's acceleration frame over
// the observation baseline. ok is false when the corrected frequency is not a
// usable positive finite number.
func (m *Matcher) CorrectedPeriod(a, b *types.Candidate) (float64, bool) {
	return CorrectPeriod(a.Accel(), b.Accel(), b.Frequency(), m.tobsOverC)
}

// CorrectPeriod applies the acceleration correction
//
//	f0' = f0 - (accB - accA) * f0 * T/c
//
// and returns 1/f0'.
func CorrectPeriod(accA, accB, freqB, tobsOverC float64) (float64, bool) {
	f0 := freqB - (accB-accA)*freqB*tobsOverC
	if !(f0 > 0) || math.IsInf(f0, 0) {
		return 0, false
	}
	p := 1 / f0
	if math.IsInf(p, 0) || math.IsNaN(p) {
		return 0, false
	}
	return p, true
}

// Gate applies an optional absolute tolerance to one dimension. With no
// tolerance the gate always passes; with one, both values must be present
// and within it.
func Gate(a, b, tol *float64) bool {
	if tol == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return math.Abs(*a-*b) <= *tol
}

// PeriodsMatch tests |pa - pb| <= tol, then for k = 2..order the multiples
// |pa - k*pb| and |k*pa - pb|. order <= 1 means direct comparison only.
func PeriodsMatch(pa, pb, tol float64, order int) bool {
	if math.Abs(pa-pb) <= tol {
		return true
	}
	for k := 2; k <= order; k++ {
		kf := float64(k)
		if math.Abs(pa-kf*pb) <= tol {
			return true
		}
		if math.Abs(kf*pa-pb) <= tol {
			return true
		}
	}
	return false
}

// MaxDrift bounds the period shift the acceleration correction can cause for
// periods up to maxPeriod when trial accelerations span accRange.
func MaxDrift(maxPeriod, accRange, tobs float64) float64 {
	if accRange <= 0 || maxPeriod <= 0 {
		return 0
	}
	x := accRange * tobs / SpeedOfLight
	if x >= 1 {
		return math.Inf(1)
	}
	// 1/(1-x) - 1 is the worst relative change of 1/f0'
	return maxPeriod * x / (1 - x)
}
