package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/pipeline"
	"github.com/ymatsuda/cuprum/pkg/config"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

// PipelineJob runs the full daily forecast pipeline
type PipelineJob struct {
	orchestrator *pipeline.Orchestrator
	config       *config.Config
	logger       *logger.Logger
}

// NewPipelineJob creates a new pipeline job
func NewPipelineJob(orch *pipeline.Orchestrator, cfg *config.Config, log *logger.Logger) *PipelineJob {
	return &PipelineJob{
		orchestrator: orch,
		config:       cfg,
		logger:       log,
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return contracts.JobPipeline
}

// Schedule returns the cron schedule
func (j *PipelineJob) Schedule() string {
	return j.config.Pipeline.PipelineSchedule
}

// Run executes the pipeline with its retry policy
func (j *PipelineJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled pipeline run")

	rec, err := j.orchestrator.RunWithRetry(ctx, time.Now().UTC())
	if errors.Is(err, contracts.ErrRunInProgress) {
		j.logger.Warn("Pipeline already running, skipping trigger")
		return nil
	}
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	j.logger.WithField("status", string(rec.Status)).Info("Scheduled pipeline run finished")
	return nil
}
