package types

import (
	"fmt"
	"time"
)

// RunMode is the command a run was started with
type RunMode string

const (
	RunModeCSV   RunMode = "csv"
	RunModeXML   RunMode = "xml"
	RunModeMatch RunMode = "match"
)

// IsValid checks if the run mode value is valid
func (m RunMode) IsValid() bool {
	switch m {
	case RunModeCSV, RunModeXML, RunModeMatch:
		return true
	}
	return false
}

// Run is the record kept of one successful clustering run.
type Run struct {
	ID        string    `json:"id"`
	Mode      RunMode   `json:"mode"`
	StartedAt time.Time `json:"started_at"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Host      string    `json:"host,omitempty"`

	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`

	// Tolerance is the run's tolerance configuration as JSON.
	Tolerance string `json:"tolerance"`

	Rows        int   `json:"rows"`
	Dropped     int   `json:"dropped"`
	Pivots      int   `json:"pivots"`
	Suppressed  int   `json:"suppressed"`
	Comparisons int64 `json:"comparisons"`
}

// Candidates is the number of records that took part in clustering.
func (r *Run) Candidates() int {
	return r.Pivots + r.Suppressed
}

// Validate checks if the run has valid field values
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if !r.Mode.IsValid() {
		return fmt.Errorf("invalid run mode: %s", r.Mode)
	}
	if len(r.Inputs) == 0 {
		return fmt.Errorf("run must have at least one input")
	}
	if r.ElapsedMs < 0 {
		return fmt.Errorf("elapsed_ms cannot be negative (got %d)", r.ElapsedMs)
	}
	if r.Rows < 0 || r.Dropped < 0 || r.Pivots < 0 || r.Suppressed < 0 || r.Comparisons < 0 {
		return fmt.Errorf("run counts cannot be negative")
	}
	if r.Dropped > r.Rows {
		return fmt.Errorf("dropped (%d) cannot exceed rows (%d)", r.Dropped, r.Rows)
	}
	if r.Candidates() != r.Rows-r.Dropped {
		return fmt.Errorf("pivots + suppressed (%d) must equal accepted rows (%d)", r.Candidates(), r.Rows-r.Dropped)
	}
	return nil
}
