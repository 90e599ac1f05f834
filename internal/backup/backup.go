// Package backup produces database snapshots and prunes old ones on a
// count-based retention policy.
package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// Snapshotter writes one database snapshot to the given path
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

// PgDump shells out to pg_dump in custom format
type PgDump struct {
	DatabaseURL string
}

func (p PgDump) Snapshot(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "pg_dump", "--format=custom", "--file", path, p.DatabaseURL)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pg_dump: %w: %s", err, out)
	}
	return nil
}

// Config holds backup parameters
type Config struct {
	Dir string

	// Retain is how many most recent snapshots to keep.
	Retain int
}

// Manager runs the backup job under the same single-flight discipline
// as the pipeline.
type Manager struct {
	snapshotter Snapshotter
	runs        contracts.RunRepository
	config      Config
	log         zerolog.Logger
}

// New creates a manager
func New(snapshotter Snapshotter, runs contracts.RunRepository, config Config,
	log zerolog.Logger) *Manager {
	return &Manager{
		snapshotter: snapshotter,
		runs:        runs,
		config:      config,
		log:         log.With().Str("component", "backup.manager").Logger(),
	}
}

const snapshotTimeFormat = "20060102T150405"

// Run takes one snapshot and prunes beyond the retention count. The
// run is recorded in ops.runs; a concurrent backup returns
// ErrRunInProgress.
func (m *Manager) Run(ctx context.Context) (err error) {
	started := time.Now()
	rec := &contracts.RunRecord{
		RunID:        fmt.Sprintf("%s-%s", contracts.JobBackup, started.UTC().Format("20060102T150405.000")),
		JobName:      contracts.JobBackup,
		StartedAt:    started,
		StepStatuses: make(map[string]contracts.StepStatus),
	}
	if err := m.runs.TryStart(ctx, rec); err != nil {
		return err
	}
	defer func() {
		rec.Status = contracts.RunSuccess
		if err != nil {
			rec.Status = contracts.RunFailed
		}
		if finishErr := m.runs.Finish(context.WithoutCancel(ctx), rec); finishErr != nil {
			m.log.Error().Err(finishErr).Msg("failed to finish backup run")
		}
	}()

	if err := os.MkdirAll(m.config.Dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	path := filepath.Join(m.config.Dir,
		fmt.Sprintf("cuprum-%s.dump", started.UTC().Format(snapshotTimeFormat)))
	if err := m.snapshotter.Snapshot(ctx, path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	removed, err := m.prune()
	if err != nil {
		return err
	}

	m.log.Info().
		Str("path", path).
		Int("pruned", removed).
		Dur("elapsed", time.Since(started)).
		Msg("backup completed")
	return nil
}

// prune deletes all but the newest Retain snapshots. Name order equals
// time order because names embed a sortable timestamp.
func (m *Manager) prune() (int, error) {
	matches, err := filepath.Glob(filepath.Join(m.config.Dir, "cuprum-*.dump"))
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}
	if len(matches) <= m.config.Retain {
		return 0, nil
	}

	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	removed := 0
	for _, path := range matches[m.config.Retain:] {
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}
