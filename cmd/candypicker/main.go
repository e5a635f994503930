package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pulsarsearch/candypicker/internal/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	historyDB  string
	workers    int

	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "candypicker",
	Short: "Deduplicate pulsar and FRB search candidates",
	Long: `candypicker reduces a set of periodicity-search candidates to one
representative per astrophysical signal.

Candidates whose periods agree within a tolerance (optionally at integer
harmonics, after reconciling differing trial accelerations, and gated on DM and
acceleration) are clustered greedily around the highest-S/N detection, and only
those pivots are kept.

Configuration is read, in increasing precedence, from built-in defaults, the
--config YAML file, CANDYPICKER_* environment variables and command-line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (see 'candypicker config init')")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "SQLite database recording every successful run")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Parallel workers (0 = one per CPU, 1 = sequential)")
}

// setupLogging configures the shared logger from the persistent flags. Logs
// go to stderr so command output on stdout stays clean.
func setupLogging() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("%w: --log-level: %v", config.ErrInvalidConfig, err)
	}
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)

	switch logFormat {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return fmt.Errorf("%w: --log-format must be text or json (got %q)", config.ErrInvalidConfig, logFormat)
	}
	return nil
}

// fatal prints an error the way every command reports one and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
