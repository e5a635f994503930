package main

import (
	"github.com/spf13/cobra"

	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/picker"
)

var (
	csvInputs    []string
	csvOutput    string
	csvSourceCol string
	csvTolerance toleranceFlags
)

var csvCmd = &cobra.Command{
	Use:   "csv -i FILE [-i FILE...] -o OUTPUT",
	Short: "Pick one candidate per signal from CSV candidate lists",
	Long: `Cluster the candidates of one or more CSV files and write the pivots.

The period column is found by name (p0_new, period, p0, p, p_sec, per, per_s),
falling back to 1/f0 from a frequency column (f0_opt, f0_new, f0, freq,
frequency_hz). DM, acceleration and S/N columns are optional. Rows with no
usable period are dropped and counted.

The output has the header of the first input and the pivot rows, highest S/N
first, exactly as they appeared in their inputs.

Example:
  candypicker csv -i beam1.csv -i beam2.csv -o picked.csv --ptol 1e-4 --dmtol 2
  candypicker csv -i all.csv -o picked.csv --ptol 5e-5 --source-col source_file`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, config.DefaultConfig(), &csvTolerance)
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

		sum, err := p.RunCSV(ctx, picker.CSVRequest{
			Inputs:    append(csvInputs, args...),
			Output:    csvOutput,
			SourceCol: csvSourceCol,
		})
		if err != nil {
			closeHistory()
			fatal("%v", err)
		}

		printSummary("Picked", sum)
	},
}

func init() {
	rootCmd.AddCommand(csvCmd)
	csvCmd.Flags().StringSliceVarP(&csvInputs, "input", "i", nil, "Input CSV file (repeatable)")
	csvCmd.Flags().StringVarP(&csvOutput, "output", "o", "", "Output CSV file")
	csvCmd.Flags().StringVar(&csvSourceCol, "source-col", "", "Append a column of this name holding each row's input file")
	csvTolerance.register(csvCmd, config.DefaultTolerance())
}
