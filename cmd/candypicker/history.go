package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/storage/sqlite"
	"github.com/pulsarsearch/candypicker/internal/types"
)

var (
	historyLimit int

	pruneMaxAgeDays int
	pruneMaxRuns    int
	pruneVacuum     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs recorded in the history database",
	Long: `List the most recent runs recorded with --history-db, newest first.

Example:
  candypicker history --history-db ~/.candypicker/history.db --limit 5`,
	Run: func(cmd *cobra.Command, args []string) {
		if historyDB == "" {
			fatal("--history-db is required")
		}

		store, err := sqlite.New(historyDB)
		if err != nil {
			fatal("%v", err)
		}
		defer func() { _ = store.Close() }()

		runs, err := store.ListRuns(context.Background(), historyLimit)
		if err != nil {
			_ = store.Close()
			fatal("%v", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded")
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Last %d run(s) ===", len(runs))))
		for _, run := range runs {
			printRun(run)
		}
	},
}

func printRun(run *types.Run) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("%s  %s  %-5s  kept %d of %d  (%dms)\n",
		gray(shortID(run.ID)),
		run.StartedAt.Format("2006-01-02 15:04:05"),
		run.Mode,
		run.Pivots, run.Candidates(),
		run.ElapsedMs)
	fmt.Printf("    inputs: %s\n", strings.Join(run.Inputs, ", "))
	if run.Host != "" {
		fmt.Printf("    host: %s\n", run.Host)
	}
	if run.Dropped > 0 {
		fmt.Printf("    %s\n", yellow(fmt.Sprintf("%d of %d rows dropped", run.Dropped, run.Rows)))
	}
	fmt.Printf("    tolerance: %s\n", gray(run.Tolerance))
	fmt.Println()
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs from the history database",
	Long: `Delete runs older than the configured age and everything beyond the
newest configured number of runs.

Limits come from the history section of --config, CANDYPICKER_HISTORY_*
environment variables, then these flags.

Example:
  candypicker history prune --history-db ~/.candypicker/history.db --max-age-days 30`,
	Run: func(cmd *cobra.Command, args []string) {
		if historyDB == "" {
			fatal("--history-db is required")
		}

		retention, err := loadRetention(cmd)
		if err != nil {
			fatal("%v", err)
		}
		if !retention.Enabled() {
			fatal("no retention limit set (use --max-age-days or --max-runs)")
		}

		store, err := sqlite.New(historyDB)
		if err != nil {
			fatal("%v", err)
		}
		defer func() { _ = store.Close() }()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := store.PruneRuns(ctx, retention, time.Now())
		if err != nil {
			_ = store.Close()
			fatal("%v", err)
		}
		logger.WithFields(logrus.Fields{
			"by_age":   res.ByAge,
			"by_count": res.ByCount,
			"vacuum":   res.Vacuum,
		}).Info("History pruned")

		left, err := store.CountRuns(ctx)
		if err != nil {
			_ = store.Close()
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Pruned %d run(s), %d left\n", green("✓"), res.Deleted(), left)
	},
}

// loadRetention layers the configuration file, the environment and the
// prune flags. Only the history section is validated.
func loadRetention(cmd *cobra.Command) (config.Retention, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(configPath, cfg); err != nil {
			return cfg.History, err
		}
	}
	cfg, err := config.ApplyEnv(cfg)
	if err != nil {
		return cfg.History, err
	}

	flags := cmd.Flags()
	if flags.Changed("max-age-days") {
		cfg.History.MaxAgeDays = pruneMaxAgeDays
	}
	if flags.Changed("max-runs") {
		cfg.History.MaxRuns = pruneMaxRuns
	}
	if flags.Changed("vacuum") {
		cfg.History.Vacuum = pruneVacuum
	}
	return cfg.History, cfg.History.Validate()
}

// shortID truncates a UUID to its first group for display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", sqlite.DefaultListLimit, "Number of runs to show")

	defaults := config.DefaultRetention()
	historyPruneCmd.Flags().IntVar(&pruneMaxAgeDays, "max-age-days", defaults.MaxAgeDays, "Delete runs older than this many days (0 = keep)")
	historyPruneCmd.Flags().IntVar(&pruneMaxRuns, "max-runs", defaults.MaxRuns, "Keep only the newest runs (0 = unlimited)")
	historyPruneCmd.Flags().BoolVar(&pruneVacuum, "vacuum", defaults.Vacuum, "Reclaim disk space after pruning")
	historyCmd.AddCommand(historyPruneCmd)
}
