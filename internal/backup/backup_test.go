package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/store/storetest"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

// fakeSnapshotter writes a marker file instead of dumping a database.
type fakeSnapshotter struct {
	err   error
	calls int
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, path string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, []byte("snapshot"), 0o644)
}

func testManager(t *testing.T, dir string, snap Snapshotter, s *storetest.Store) *Manager {
	t.Helper()
	return New(snap, s.Runs(), Config{Dir: dir, Retain: 7}, logger.NewNop().Zerolog())
}

func snapshots(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "cuprum-*.dump"))
	require.NoError(t, err)
	return matches
}

func TestRunWritesSnapshotAndRecordsRun(t *testing.T) {
	dir := t.TempDir()
	s := storetest.New()
	snap := &fakeSnapshotter{}

	require.NoError(t, testManager(t, dir, snap, s).Run(context.Background()))

	assert.Len(t, snapshots(t, dir), 1)
	runs := s.AllRuns(contracts.JobBackup)
	require.Len(t, runs, 1)
	assert.Equal(t, contracts.RunSuccess, runs[0].Status)
}

func TestRunPrunesBeyondRetention(t *testing.T) {
	dir := t.TempDir()

	// Ten pre-existing snapshots with ascending timestamps.
	var oldest, newest string
	for day := 10; day <= 19; day++ {
		name := filepath.Join(dir, "cuprum-202608"+string(rune('0'+day/10))+string(rune('0'+day%10))+"T020000.dump")
		require.NoError(t, os.WriteFile(name, []byte("old"), 0o644))
		if oldest == "" {
			oldest = name
		}
		newest = name
	}

	s := storetest.New()
	require.NoError(t, testManager(t, dir, &fakeSnapshotter{}, s).Run(context.Background()))

	kept := snapshots(t, dir)
	assert.Len(t, kept, 7)
	assert.NotContains(t, kept, oldest)
	assert.Contains(t, kept, newest)
}

func TestRunSnapshotFailureMarksRunFailed(t *testing.T) {
	dir := t.TempDir()
	s := storetest.New()

	err := testManager(t, dir, &fakeSnapshotter{err: errors.New("disk full")}, s).Run(context.Background())
	require.Error(t, err)

	runs := s.AllRuns(contracts.JobBackup)
	require.Len(t, runs, 1)
	assert.Equal(t, contracts.RunFailed, runs[0].Status)
}

func TestRunSingleFlight(t *testing.T) {
	dir := t.TempDir()
	s := storetest.New()
	require.NoError(t, s.Runs().TryStart(context.Background(), &contracts.RunRecord{
		RunID: "other", JobName: contracts.JobBackup,
	}))

	snap := &fakeSnapshotter{}
	err := testManager(t, dir, snap, s).Run(context.Background())
	assert.ErrorIs(t, err, contracts.ErrRunInProgress)
	assert.Zero(t, snap.calls)
}
