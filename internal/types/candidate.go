package types

import (
	"fmt"
	"math"
)

// Candidate is one periodicity search detection.
//
// Period and frequency are kept consistent by the constructor and SetPeriod;
// callers cannot change one without the other. Everything else is read-only
// once ingestion is done. Clustering results are recorded by the engine in
// its own arrays, indexed by ID, never on the Candidate itself.
type Candidate struct {
	// ID is the candidate's position in the run's candidate slice.
	ID int `json:"id"`

	// Source is the index of the input this detection was read from.
	Source int `json:"source"`

	period float64
	freq   float64

	// DM and Acceleration are nil when the input did not carry a value.
	DM           *float64 `json:"dm,omitempty"`
	Acceleration *float64 `json:"acc,omitempty"`

	// SNR may be NaN for rows without a usable significance; those sort last.
	SNR float64 `json:"snr"`

	// Harmonic is the harmonic fold number (nh) reported by the search.
	Harmonic   int     `json:"nh"`
	PeriodMs   int     `json:"period_ms"`
	PulseWidth float64 `json:"pulse_width"`

	// Record carries everything needed to reproduce the original input.
	Record Record `json:"-"`
}

// Record is the provenance of a candidate: enough to write it back out
// exactly as it was read.
type Record struct {
	// Index is the row (CSV) or candidate block (XML) position within its source.
	Index int
	// Row holds the original CSV cells, untouched.
	Row []string
	// Raw holds the original XML markup of the candidate block.
	Raw string
	// Key is a stable external identifier (database uuid or file_id).
	Key string
}

// NewCandidate builds a candidate and its derived attributes. The period must
// be positive and finite.
func NewCandidate(period float64, dm, acc *float64, snr float64, nh int) (*Candidate, error) {
	c := &Candidate{
		DM:           dm,
		Acceleration: acc,
		SNR:          snr,
		Harmonic:     nh,
	}
	if err := c.SetPeriod(period); err != nil {
		return nil, err
	}
	return c, nil
}

// SetPeriod updates the period and recomputes every quantity derived from it.
func (c *Candidate) SetPeriod(period float64) error {
	if !(period > 0) || math.IsInf(period, 0) {
		return fmt.Errorf("period must be positive and finite (got %v)", period)
	}
	c.period = period
	c.freq = 1 / period
	c.PeriodMs = int(math.Round(period * 1000))
	c.PulseWidth = period / math.Pow(2, float64(c.Harmonic))
	return nil
}

// Period returns the fundamental period in seconds.
func (c *Candidate) Period() float64 { return c.period }

// Frequency returns 1/Period in Hz.
func (c *Candidate) Frequency() float64 { return c.freq }

// Accel returns the trial acceleration, or zero when the input had none.
// Only the acceleration correction uses this; gates look at Acceleration.
func (c *Candidate) Accel() float64 {
	if c.Acceleration == nil {
		return 0
	}
	return *c.Acceleration
}

// HasSNR reports whether SNR is usable for ranking.
func (c *Candidate) HasSNR() bool {
	return !math.IsNaN(c.SNR) && !math.IsInf(c.SNR, 0)
}

// Label returns the external key if known, otherwise "source:index".
func (c *Candidate) Label() string {
	if c.Record.Key != "" {
		return c.Record.Key
	}
	return fmt.Sprintf("%d:%d", c.Source, c.Record.Index)
}

// Float returns a pointer to v, for building optional DM/ACC values.
func Float(v float64) *float64 {
	return &v
}
