// Package jobs defines the scheduled entry points of the daily cycle.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/marketdata"
	"github.com/ymatsuda/cuprum/pkg/config"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

// CollectionJob pulls the latest daily bars every weekday morning
type CollectionJob struct {
	collector *marketdata.Collector
	config    *config.Config
	logger    *logger.Logger
}

// NewCollectionJob creates a new collection job
func NewCollectionJob(col *marketdata.Collector, cfg *config.Config, log *logger.Logger) *CollectionJob {
	return &CollectionJob{
		collector: col,
		config:    cfg,
		logger:    log,
	}
}

// Name returns the job name
func (j *CollectionJob) Name() string {
	return contracts.JobCollection
}

// Schedule returns the cron schedule
func (j *CollectionJob) Schedule() string {
	return j.config.Pipeline.CollectionSchedule
}

// Run executes the data collection
func (j *CollectionJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled data collection")

	stats, err := j.collector.Collect(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("collect daily bars: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"bars":               stats.BarsStored,
		"failed_instruments": len(stats.Failed),
	}).Info("Scheduled data collection finished")
	return nil
}
