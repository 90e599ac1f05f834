package jobs

import (
	"context"
	"fmt"

	"github.com/ymatsuda/cuprum/internal/backup"
	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/pkg/config"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

// BackupJob snapshots the database nightly and prunes old snapshots
type BackupJob struct {
	manager *backup.Manager
	config  *config.Config
	logger  *logger.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(mgr *backup.Manager, cfg *config.Config, log *logger.Logger) *BackupJob {
	return &BackupJob{
		manager: mgr,
		config:  cfg,
		logger:  log,
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return contracts.JobBackup
}

// Schedule returns the cron schedule
func (j *BackupJob) Schedule() string {
	return j.config.Backup.Schedule
}

// Run executes the backup
func (j *BackupJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled backup")

	if err := j.manager.Run(ctx); err != nil {
		return fmt.Errorf("backup run: %w", err)
	}

	j.logger.Info("Scheduled backup finished")
	return nil
}
