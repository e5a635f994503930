package main

import (
	"github.com/spf13/cobra"

	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/output"
	"github.com/pulsarsearch/candypicker/internal/picker"
)

var (
	matchInputs    []string
	matchSuffix    string
	matchTolerance toleranceFlags
)

// matchDefaults is the base configuration of match runs: harmonics are
// opt-in (--harmonics) and capped lower than in the other modes.
func matchDefaults() config.Config {
	cfg := config.DefaultConfig()
	cfg.Tolerance.Harmonics = false
	cfg.Tolerance.MaxHarmonic = config.DefaultMatchMaxHarmonic
	return cfg
}

var matchCmd = &cobra.Command{
	Use:   "match -i FILE -i FILE [-i FILE...]",
	Short: "Find candidates detected in more than one CSV file",
	Long: `Compare candidates across CSV files and keep the rows seen in at least two.

Only pairs from different files are compared. For every input X.csv a file
X_matched.csv (see --suffix) is written next to it holding the rows of X that
were matched in another file, in their original order.

Example:
  candypicker match -i beam1.csv -i beam2.csv -i beam3.csv --ptol 1e-4
  candypicker match -i a.csv -i b.csv --ptol 1e-4 --harmonics --hmax 4`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, matchDefaults(), &matchTolerance)
		if err != nil {
			fatal("%v", err)
		}

		p, closeHistory, err := newPicker(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer closeHistory()

		ctx, cancel := signalContext()
		defer cancel()

		sum, err := p.RunMatch(ctx, picker.MatchRequest{
			Inputs: append(matchInputs, args...),
			Suffix: matchSuffix,
		})
		if err != nil {
			closeHistory()
			fatal("%v", err)
		}

		printSummary("Clustered", sum)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().StringSliceVarP(&matchInputs, "input", "i", nil, "Input CSV file (repeatable, at least two)")
	matchCmd.Flags().StringVar(&matchSuffix, "suffix", output.DefaultMatchedSuffix, "Replaces each input's extension in its output name")
	matchTolerance.register(matchCmd, matchDefaults().Tolerance)
}
