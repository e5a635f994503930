package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/picker"
	"github.com/pulsarsearch/candypicker/internal/storage/sqlite"
)

// toleranceFlags are the tolerance overrides every clustering command takes.
// A flag only overrides the configuration when it was given.
type toleranceFlags struct {
	ptol            float64
	dmtol           float64
	acctol          float64
	harmonics       bool
	noHarmonics     bool
	hmax            int
	tobs            float64
	accelAwareIndex bool
}

func (f *toleranceFlags) register(cmd *cobra.Command, defaults config.Tolerance) {
	flags := cmd.Flags()
	flags.Float64Var(&f.ptol, "ptol", 0, "Absolute period tolerance in seconds (required unless configured)")
	flags.Float64Var(&f.dmtol, "dmtol", 0, "Maximum |ΔDM| for a match (default: DM not checked)")
	flags.Float64Var(&f.acctol, "acctol", 0, "Maximum |Δacc| for a match (default: acceleration not checked)")
	flags.BoolVar(&f.harmonics, "harmonics", defaults.Harmonics, "Also match periods at integer multiples")
	flags.BoolVar(&f.noHarmonics, "no-harmonics", false, "Only match periods directly, not at integer multiples")
	flags.IntVar(&f.hmax, "hmax", defaults.MaxHarmonic, "Highest harmonic multiple tried")
	flags.Float64Var(&f.tobs, "tobs", defaults.ObservationDuration, "Observation duration in seconds for the acceleration correction")
	flags.BoolVar(&f.accelAwareIndex, "accel-aware-index", false, "Widen index probes by the largest acceleration drift in the data")
}

func (f *toleranceFlags) apply(cmd *cobra.Command, tol *config.Tolerance) {
	flags := cmd.Flags()
	if flags.Changed("ptol") {
		tol.PeriodTol = f.ptol
	}
	if flags.Changed("dmtol") {
		v := f.dmtol
		tol.DMTol = &v
	}
	if flags.Changed("acctol") {
		v := f.acctol
		tol.AccTol = &v
	}
	if flags.Changed("harmonics") {
		tol.Harmonics = f.harmonics
	}
	if flags.Changed("no-harmonics") {
		tol.Harmonics = !f.noHarmonics
	}
	if flags.Changed("hmax") {
		tol.MaxHarmonic = f.hmax
	}
	if flags.Changed("tobs") {
		tol.ObservationDuration = f.tobs
	}
	if flags.Changed("accel-aware-index") {
		tol.AccelAwareIndex = f.accelAwareIndex
	}
}

// loadConfig layers the configuration file, the environment and the flags
// of cmd over base.
func loadConfig(cmd *cobra.Command, base config.Config, tf *toleranceFlags) (config.Config, error) {
	cfg := base
	if configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(configPath, cfg); err != nil {
			return cfg, err
		}
	}

	cfg, err := config.ApplyEnv(cfg)
	if err != nil {
		return cfg, err
	}

	tf.apply(cmd, &cfg.Tolerance)
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	logger.WithField("tolerance", cfg.Tolerance.String()).Debug("Configuration loaded")
	return cfg, nil
}

// observationDurationSet reports whether the observation duration was given
// by a flag, the environment or the configuration file rather than left at
// its default.
func observationDurationSet(cmd *cobra.Command) (bool, error) {
	if cmd.Flags().Changed("tobs") || os.Getenv("CANDYPICKER_TOBS") != "" {
		return true, nil
	}
	if configPath == "" {
		return false, nil
	}
	file, err := config.LoadConfig(configPath, config.Config{})
	if err != nil {
		return false, err
	}
	return file.Tolerance.ObservationDuration != 0, nil
}

// newPicker opens the history database when one is configured. The returned
// close function is always safe to call.
func newPicker(cfg config.Config) (*picker.Picker, func(), error) {
	if historyDB == "" {
		return picker.New(cfg, logger, nil), func() {}, nil
	}
	store, err := sqlite.New(historyDB)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history database: %w", err)
	}
	return picker.New(cfg, logger, store), func() { _ = store.Close() }, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printSummary reports a finished run on stdout.
func printSummary(verb string, sum *picker.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	run := sum.Run
	fmt.Printf("\n%s %s %d of %d candidates (%d suppressed)\n\n",
		green("✓"), verb, sum.Stats.PivotCount, sum.Stats.TotalCandidates, sum.Stats.SuppressedCount)

	fmt.Printf("  Inputs:       %d file(s), %d rows\n", len(run.Inputs), run.Rows)
	if sum.Matched > 0 {
		fmt.Printf("  Matched:      %d candidate(s)\n", sum.Matched)
	}
	fmt.Printf("  Comparisons:  %d\n", sum.Stats.Comparisons)
	fmt.Printf("  Workers:      %d\n", sum.Stats.Workers)
	fmt.Printf("  Elapsed:      %dms\n", run.ElapsedMs)
	for _, out := range run.Outputs {
		fmt.Printf("  Output:       %s\n", cyan(out))
	}
	if run.ID != "" {
		fmt.Printf("  Run ID:       %s\n", gray(run.ID))
	}

	if run.Dropped > 0 {
		fmt.Printf("\n%s %d row(s) dropped at ingestion (run with --log-level debug for details)\n", yellow("⚠"), run.Dropped)
		for _, src := range sum.Sources {
			if src.Dropped > 0 {
				fmt.Printf("  %s: %d of %d\n", src.Path, src.Dropped, src.Rows)
			}
		}
	}
	fmt.Println()
}
