package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/store"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent job run history",
	Long: `Status prints the most recent runs of each job with their terminal
status and per-step outcomes.

Example:
  cuprum status
  cuprum status --job pipeline --limit 10`,
	RunE: runStatus,
}

var (
	statusJob   string
	statusLimit int
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusJob, "job", "", "job name (default: all jobs)")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 5, "runs per job")
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := initDeps(false)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer d.close()

	jobNames := []string{contracts.JobCollection, contracts.JobPipeline, contracts.JobBackup}
	if statusJob != "" {
		jobNames = []string{statusJob}
	}

	ctx := context.Background()
	runs := store.NewRunRepository(d.db.Pool)

	for _, jobName := range jobNames {
		history, err := runs.History(ctx, jobName, statusLimit)
		if err != nil {
			return fmt.Errorf("load history for %s: %w", jobName, err)
		}

		fmt.Printf("%s:\n", jobName)
		if len(history) == 0 {
			fmt.Println("  (no runs)")
			continue
		}
		for _, rec := range history {
			finished := "running"
			if rec.FinishedAt != nil {
				finished = rec.FinishedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("  %-32s %-8s started %s finished %s\n",
				rec.RunID, rec.Status,
				rec.StartedAt.UTC().Format("2006-01-02 15:04:05"), finished)
			for _, step := range stepOrder {
				if status, ok := rec.StepStatuses[step]; ok {
					fmt.Printf("    %-10s %s\n", step, status)
				}
			}
		}
	}

	return nil
}
