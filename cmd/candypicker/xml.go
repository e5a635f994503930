package main

import (
	"github.com/spf13/cobra"

	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/output"
	"github.com/pulsarsearch/candypicker/internal/picker"
)

var (
	xmlPivots    string
	xmlTolerance toleranceFlags
)

var xmlCmd = &cobra.Command{
	Use:   "xml FILE.xml [FILE.xml...]",
	Short: "Pick one candidate per signal from peasoup search XML files",
	Long: `Cluster the candidates of one or more peasoup search files.

All inputs must share search_parameters/size and header_parameters/tsamp; their
product is the observation duration used to reconcile trial accelerations,
unless --tobs, CANDYPICKER_TOBS or observation_duration_s in --config sets it.

For every input X.xml two files are written next to it: X_picked.xml with the
pivots and X_rejected.xml with everything else. Both keep the input's other
sections unchanged. A summary of the pivots and the candidates each one
absorbed is written to --pivots.

Example:
  candypicker xml --ptol 1e-5 --dmtol 1 beam*/overview.xml
  candypicker xml --ptol 1e-5 --pivots run42_pivots.csv search.xml`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, config.DefaultConfig(), &xmlTolerance)
		if err != nil {
			fatal("%v", err)
		}

		req := picker.XMLRequest{
			Inputs:     args,
			PivotsPath: xmlPivots,
		}
		explicit, err := observationDurationSet(cmd)
		if err != nil {
			fatal("%v", err)
		}
		if explicit {
			req.ObservationDuration = cfg.Tolerance.ObservationDuration
		}

		p, closeHistory, err := newPicker(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer closeHistory()

		ctx, cancel := signalContext()
		defer cancel()

		sum, err := p.RunXML(ctx, req)
		if err != nil {
			closeHistory()
			fatal("%v", err)
		}

		printSummary("Picked", sum)
	},
}

func init() {
	rootCmd.AddCommand(xmlCmd)
	xmlCmd.Flags().StringVar(&xmlPivots, "pivots", output.DefaultPivotsFile, "Pivot summary CSV")
	xmlTolerance.register(xmlCmd, config.DefaultTolerance())
}
