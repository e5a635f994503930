package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pulsarsearch/candypicker/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init PATH",
	Short: "Write a commented default configuration file",
	Long: `Write the default configuration to PATH as commented YAML.

The file leaves tolerance.period_tol at zero, which does not validate: pick a
value before using it.

Example:
  candypicker config init candypicker.yaml
  candypicker --config candypicker.yaml csv -i cands.csv -o picked.csv`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		if _, err := os.Stat(path); err == nil && !configForce {
			fatal("%s already exists (use --force to overwrite)", path)
		}

		if err := config.SaveDefaultConfig(path); err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Wrote default configuration to %s\n", green("✓"), cyan(path))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
}
