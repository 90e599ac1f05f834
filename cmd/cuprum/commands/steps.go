package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ymatsuda/cuprum/internal/pipeline"
)

// Per-step commands run one pipeline stage in isolation, outside the
// run record. Useful for debugging a failing stage without re-running
// the whole cycle.

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the data-quality checks once",
	Long: `Validate runs the quality battery (freshness, missingness,
anomalous moves) against the price store and prints the findings.
The report is not persisted.

Example:
  cuprum validate
  cuprum validate --date 2026-08-28`,
	RunE: runValidate,
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run the model ensemble once",
	Long: `Predict runs every registered model for the given date and
persists the forecasts, including ensemble rows where quorum is met.

Example:
  cuprum predict --date 2026-08-28`,
	RunE: runPredict,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Attach realized prices to matured predictions",
	RunE:  runReconcile,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Recompute rolling model accuracy",
	RunE:  runEvaluate,
}

var stepDate string

func init() {
	for _, cmd := range []*cobra.Command{validateCmd, predictCmd, reconcileCmd, evaluateCmd} {
		cmd.Flags().StringVar(&stepDate, "date", "", "as-of date (YYYY-MM-DD, default today)")
		rootCmd.AddCommand(cmd)
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag(stepDate)
	if err != nil {
		return err
	}

	d, err := initDeps(false)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer d.close()

	runID := pipeline.NewRunID("validate", asOf)
	report, err := d.validator.Validate(context.Background(), runID, asOf)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	fmt.Printf("Validation severity: %s\n", report.Severity())
	for _, res := range report.Results {
		fmt.Printf("  [%s] %-15s %s\n", res.Severity, res.CheckName, res.Detail)
	}
	return nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag(stepDate)
	if err != nil {
		return err
	}

	d, err := initDeps(false)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer d.close()

	result, err := d.predictor.Predict(context.Background(), asOf)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	fmt.Printf("Predicted %d target dates, %d models succeeded\n",
		len(result.TargetDates), len(result.Succeeded))
	failed := make([]string, 0, len(result.Failed))
	for name := range result.Failed {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	for _, name := range failed {
		fmt.Printf("  %s failed: %s\n", name, result.Failed[name])
	}
	if result.EnsembleWritten {
		fmt.Println("Ensemble rows written")
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag(stepDate)
	if err != nil {
		return err
	}

	d, err := initDeps(false)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer d.close()

	stats, err := d.reconciler.Reconcile(context.Background(), asOf)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	fmt.Printf("Reconciled %d predictions, %d still pending\n", stats.Matched, stats.Pending)
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag(stepDate)
	if err != nil {
		return err
	}

	d, err := initDeps(false)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer d.close()

	rows, err := d.evaluator.Evaluate(context.Background(), asOf)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	for _, row := range rows {
		fmt.Printf("  %-15s h=%d mae=%.2f rmse=%.2f mape=%.2f%% dir=%.1f%% n=%d\n",
			row.ModelName, row.HorizonDays, row.MAE, row.RMSE, row.MAPE,
			row.DirectionalAccuracy*100, row.SampleCount)
	}
	return nil
}
