package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Pull daily bars from the vendor once",
	Long: `Collect fetches recent daily bars for every configured instrument
and upserts them into the price store. Useful for backfilling after an
outage or before a manual pipeline run.

Example:
  cuprum collect`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	d, err := initDeps(false)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer d.close()

	stats, err := d.collector.Collect(context.Background(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	fmt.Printf("Collected %d bars\n", stats.BarsStored)
	for instrument, reason := range stats.Failed {
		fmt.Printf("  %s failed: %s\n", instrument, reason)
	}

	return nil
}
