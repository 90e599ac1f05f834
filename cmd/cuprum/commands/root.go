package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cuprum",
	Short: "Daily copper futures forecasting pipeline",
	Long: `Cuprum runs the daily LME copper forecast cycle: collect prices,
validate data quality, run the model ensemble, reconcile matured
predictions, score model accuracy and raise operator alerts.

Examples:
  cuprum start
  cuprum run --date 2026-08-28
  cuprum collect
  cuprum backup
  cuprum status`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}
