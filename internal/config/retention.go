package config

import "fmt"

// Retention bounds how much run history the database keeps. Zero values
// disable the corresponding limit.
type Retention struct {
	// MaxAgeDays prunes runs started more than this many days ago.
	// Default: 180, Range: 0 (keep forever) or 1-3650
	MaxAgeDays int `yaml:"max_age_days"`

	// MaxRuns keeps only the newest runs.
	// Default: 5000, Range: 0 (unlimited) or 10-1000000
	MaxRuns int `yaml:"max_runs"`

	// BatchSize is the number of runs deleted per statement
	// Larger batches = faster pruning but longer locks
	// Default: 500, Range: 1-10000
	BatchSize int `yaml:"batch_size"`

	// Vacuum reclaims disk space after a prune that deleted anything
	// Default: false
	Vacuum bool `yaml:"vacuum"`
}

// DefaultRetention returns the default history retention
func DefaultRetention() Retention {
	return Retention{
		MaxAgeDays: 180,
		MaxRuns:    5000,
		BatchSize:  500,
	}
}

// Validate checks if the retention has valid values
func (r Retention) Validate() error {
	if r.MaxAgeDays < 0 || r.MaxAgeDays > 3650 {
		return fmt.Errorf("%w: max_age_days must be between 0 and 3650 (got %d)", ErrInvalidConfig, r.MaxAgeDays)
	}
	if r.MaxRuns < 0 {
		return fmt.Errorf("%w: max_runs cannot be negative (got %d)", ErrInvalidConfig, r.MaxRuns)
	}
	if r.MaxRuns > 0 && r.MaxRuns < 10 {
		return fmt.Errorf("%w: max_runs must be 0 (unlimited) or >= 10 (got %d)", ErrInvalidConfig, r.MaxRuns)
	}
	if r.MaxRuns > 1000000 {
		return fmt.Errorf("%w: max_runs too large (got %d, max 1000000)", ErrInvalidConfig, r.MaxRuns)
	}
	// Zero batch size falls back to the default when pruning
	if r.BatchSize < 0 || r.BatchSize > 10000 {
		return fmt.Errorf("%w: batch_size must be between 1 and 10000 (got %d)", ErrInvalidConfig, r.BatchSize)
	}
	return nil
}

// Enabled reports whether any limit is set.
func (r Retention) Enabled() bool {
	return r.MaxAgeDays > 0 || r.MaxRuns > 0
}

// String returns a human-readable representation of the retention
func (r Retention) String() string {
	return fmt.Sprintf("Retention{MaxAgeDays: %d, MaxRuns: %d, BatchSize: %d, Vacuum: %t}",
		r.MaxAgeDays, r.MaxRuns, r.BatchSize, r.Vacuum)
}
