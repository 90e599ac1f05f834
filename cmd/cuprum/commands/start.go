package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler daemon and API server",
	Long: `Start runs the full service: the cron scheduler with all registered
jobs and the HTTP API server.

Registered jobs:
  collection  - weekday mornings, pulls daily bars from the vendor
  pipeline    - weekday mornings after collection, runs the forecast cycle
  backup      - nightly database snapshot with count-based retention

Stop with Ctrl+C; in-flight jobs finish before exit.

Example:
  cuprum start`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	d, err := initDeps(true)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer d.close()

	d.scheduler.Start()
	d.log.WithField("jobs", d.scheduler.GetAllJobs()).Info("Scheduler started")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- d.server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		d.scheduler.Stop()
		return err
	case sig := <-quit:
		d.log.WithField("signal", sig.String()).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		d.log.WithError(err).Error("API server shutdown failed")
	}

	d.scheduler.Stop()
	d.log.Info("Scheduler stopped")

	return nil
}
