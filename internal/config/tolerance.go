package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
)

// ErrInvalidConfig is wrapped by every validation failure so callers can tell
// a bad configuration apart from I/O problems.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	// DefaultMaxHarmonic is the highest integer multiple tried when harmonics are on.
	DefaultMaxHarmonic = 16

	// DefaultMatchMaxHarmonic is the harmonic order of cross-file match runs.
	DefaultMatchMaxHarmonic = 8

	// DefaultObservationDuration is the baseline, in seconds, used to reconcile
	// trial accelerations when the inputs do not say otherwise.
	DefaultObservationDuration = 600.0

	// maxHarmonicLimit bounds the harmonic search so the index probe set stays small.
	maxHarmonicLimit = 64
)

// Tolerance holds the gate parameters of every pairwise comparison.
// A Tolerance is fixed for the duration of a run.
type Tolerance struct {
	// PeriodTol is the absolute |ΔP| acceptance radius in seconds.
	// There is no default: every run must choose one.
	PeriodTol float64 `yaml:"period_tol" json:"period_tol"`

	// DMTol gates on |ΔDM| when set. Unset means DM is never checked.
	// When set, both candidates must carry a DM value to match.
	DMTol *float64 `yaml:"dm_tol,omitempty" json:"dm_tol,omitempty"`

	// AccTol is the same gate applied to acceleration.
	AccTol *float64 `yaml:"acc_tol,omitempty" json:"acc_tol,omitempty"`

	// Harmonics enables integer-multiple period matching up to MaxHarmonic.
	Harmonics   bool `yaml:"harmonics" json:"harmonics"`
	MaxHarmonic int  `yaml:"max_harmonic" json:"max_harmonic"`

	// ObservationDuration is the time span in seconds over which differing
	// trial accelerations are reconciled before periods are compared.
	ObservationDuration float64 `yaml:"observation_duration_s" json:"observation_duration_s"`

	// AccelAwareIndex widens index probes by the largest period drift the
	// acceleration correction can cause in the data set.
	AccelAwareIndex bool `yaml:"accel_aware_index" json:"accel_aware_index"`
}

// DefaultTolerance returns the default tolerance with PeriodTol unset.
func DefaultTolerance() Tolerance {
	return Tolerance{
		Harmonics:           true,
		MaxHarmonic:         DefaultMaxHarmonic,
		ObservationDuration: DefaultObservationDuration,
	}
}

// Validate checks if the tolerance has valid values
func (t Tolerance) Validate() error {
	if !(t.PeriodTol > 0) || math.IsInf(t.PeriodTol, 0) {
		return fmt.Errorf("%w: period_tol must be positive and finite (got %v)", ErrInvalidConfig, t.PeriodTol)
	}
	if err := validateGate("dm_tol", t.DMTol); err != nil {
		return err
	}
	if err := validateGate("acc_tol", t.AccTol); err != nil {
		return err
	}
	if t.Harmonics {
		if t.MaxHarmonic < 1 {
			return fmt.Errorf("%w: max_harmonic must be at least 1 (got %d)", ErrInvalidConfig, t.MaxHarmonic)
		}
		if t.MaxHarmonic > maxHarmonicLimit {
			return fmt.Errorf("%w: max_harmonic too large (got %d, max %d)", ErrInvalidConfig, t.MaxHarmonic, maxHarmonicLimit)
		}
	}
	if !(t.ObservationDuration > 0) || math.IsInf(t.ObservationDuration, 0) {
		return fmt.Errorf("%w: observation_duration_s must be positive and finite (got %v)",
			ErrInvalidConfig, t.ObservationDuration)
	}
	return nil
}

func validateGate(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fmt.Errorf("%w: %s must be a finite, non-negative number (got %v)", ErrInvalidConfig, name, *v)
	}
	return nil
}

// HarmonicOrder is the effective harmonic order: MaxHarmonic when harmonics
// are enabled, 1 otherwise.
func (t Tolerance) HarmonicOrder() int {
	if !t.Harmonics || t.MaxHarmonic < 1 {
		return 1
	}
	return t.MaxHarmonic
}

// String returns a human-readable representation of the tolerance
func (t Tolerance) String() string {
	return fmt.Sprintf(
		"Tolerance{PTol: %g, DMTol: %s, AccTol: %s, Harmonics: %t, MaxHarmonic: %d, TObs: %gs, AccelAwareIndex: %t}",
		t.PeriodTol, gateString(t.DMTol), gateString(t.AccTol), t.Harmonics, t.MaxHarmonic,
		t.ObservationDuration, t.AccelAwareIndex,
	)
}

func gateString(v *float64) string {
	if v == nil {
		return "off"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// Config is everything a run needs besides its inputs.
type Config struct {
	Tolerance Tolerance `yaml:"tolerance"`

	// Workers bounds the parallel adjacency pass. Zero means one worker per
	// available CPU.
	Workers int `yaml:"workers"`

	History Retention `yaml:"history"`
}

// DefaultConfig returns the default run configuration
func DefaultConfig() Config {
	return Config{
		Tolerance: DefaultTolerance(),
		Workers:   runtime.GOMAXPROCS(0),
		History:   DefaultRetention(),
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if err := c.Tolerance.Validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative (got %d)", ErrInvalidConfig, c.Workers)
	}
	return c.History.Validate()
}

// ApplyEnv overlays environment variables onto cfg.
//
// Environment variables:
//   - CANDYPICKER_PTOL: absolute period tolerance in seconds
//   - CANDYPICKER_DMTOL: DM gate; "off" or empty disables it
//   - CANDYPICKER_ACCTOL: acceleration gate; "off" or empty disables it
//   - CANDYPICKER_HARMONICS: enable harmonic matching (true/false)
//   - CANDYPICKER_HMAX: highest harmonic multiple
//   - CANDYPICKER_TOBS: observation duration in seconds
//   - CANDYPICKER_WORKERS: adjacency workers
//   - CANDYPICKER_HISTORY_MAX_AGE_DAYS: prune history older than this
//   - CANDYPICKER_HISTORY_MAX_RUNS: keep only this many runs
//   - CANDYPICKER_HISTORY_VACUUM: VACUUM after pruning (true/false)
//
// Returns an error if any environment variable has an invalid value.
// The result is not validated; callers validate after applying flags.
func ApplyEnv(cfg Config) (Config, error) {
	if err := parseEnvFloat("CANDYPICKER_PTOL", &cfg.Tolerance.PeriodTol); err != nil {
		return cfg, err
	}
	if err := parseEnvGate("CANDYPICKER_DMTOL", &cfg.Tolerance.DMTol); err != nil {
		return cfg, err
	}
	if err := parseEnvGate("CANDYPICKER_ACCTOL", &cfg.Tolerance.AccTol); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("CANDYPICKER_HARMONICS", &cfg.Tolerance.Harmonics); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CANDYPICKER_HMAX", &cfg.Tolerance.MaxHarmonic); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("CANDYPICKER_TOBS", &cfg.Tolerance.ObservationDuration); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CANDYPICKER_WORKERS", &cfg.Workers); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CANDYPICKER_HISTORY_MAX_AGE_DAYS", &cfg.History.MaxAgeDays); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CANDYPICKER_HISTORY_MAX_RUNS", &cfg.History.MaxRuns); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("CANDYPICKER_HISTORY_VACUUM", &cfg.History.Vacuum); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalidConfig, key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvGate parses an optional gate; "off" clears it.
func parseEnvGate(key string, dest **float64) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	if value == "" || value == "off" {
		*dest = nil
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalidConfig, key, err)
	}
	*dest = &parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalidConfig, key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalidConfig, key, err)
	}
	*dest = parsed
	return nil
}
