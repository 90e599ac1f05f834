package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
)

// stepOrder fixes display order for step statuses
var stepOrder = []string{
	contracts.StepValidate,
	contracts.StepPredict,
	contracts.StepReconcile,
	contracts.StepEvaluate,
	contracts.StepAlert,
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one forecast pipeline pass",
	Long: `Run executes the daily pipeline once, outside the scheduler:
validate, predict, reconcile, evaluate, alert.

The pass runs for today unless --date is given. Retries and the
pipeline-failure alert behave exactly as a scheduled run.

Example:
  cuprum run
  cuprum run --date 2026-08-28`,
	RunE: runPipelineOnce,
}

var runDate string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runDate, "date", "", "run date (YYYY-MM-DD, default today)")
}

func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		return calendar.Midnight(time.Now().UTC()), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", value, err)
	}
	return t, nil
}

func runPipelineOnce(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag(runDate)
	if err != nil {
		return err
	}

	d, err := initDeps(false)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer d.close()

	rec, err := d.orchestrator.RunWithRetry(context.Background(), asOf)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	fmt.Printf("Run %s finished: %s\n", rec.RunID, rec.Status)
	for _, step := range stepOrder {
		if status, ok := rec.StepStatuses[step]; ok {
			fmt.Printf("  %-10s %s\n", step, status)
		}
	}

	return nil
}
