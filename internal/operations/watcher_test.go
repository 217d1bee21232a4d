package operations

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpulse/internal/shared/testutil"
	"callpulse/pkg/contracts/domain"
)

// newWatcherQueue builds a queue that is never started, so enqueued
// jobs accumulate in the store where the tests can observe them.
func newWatcherQueue(t *testing.T) (*JobQueue, *MemoryJobStore) {
	t.Helper()
	queue, store, _ := newTestQueue(t, 4, newStubStep("load"))
	return queue, store
}

func startWatcher(t *testing.T, cfg WatcherConfig, queue *JobQueue) *Watcher {
	t.Helper()
	w := NewWatcher(cfg, queue, testLogger())
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func watcherJobs(t *testing.T, store *MemoryJobStore) []*Job {
	t.Helper()
	jobs, err := store.ListJobs(JobFilter{Trigger: TriggerWatcher})
	require.NoError(t, err)
	return jobs
}

func TestWatcher_EnqueuesDroppedFile(t *testing.T) {
	dir := t.TempDir()
	queue, store := newWatcherQueue(t)

	startWatcher(t, WatcherConfig{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		Options:  domain.RunOptions{Format: "txt", SkipLLM: true},
	}, queue)

	path := filepath.Join(dir, "calls_march.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,handle_time\n2025-03-01,240\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(watcherJobs(t, store)) == 1
	}, 5*time.Second, 25*time.Millisecond, "dropped file was never enqueued")

	job := watcherJobs(t, store)[0]
	assert.Equal(t, TriggerWatcher, job.Trigger)
	assert.Equal(t, path, job.Options.Input)
	assert.Equal(t, "txt", job.Options.Format)
	assert.True(t, job.Options.SkipLLM)
}

func TestWatcher_IgnoresNonMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	queue, store := newWatcherQueue(t)

	startWatcher(t, WatcherConfig{Dir: dir, Debounce: 50 * time.Millisecond}, queue)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a csv"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calls.csv"), []byte("date\n2025-03-01\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(watcherJobs(t, store)) == 1
	}, 5*time.Second, 25*time.Millisecond)

	jobs := watcherJobs(t, store)
	require.Len(t, jobs, 1)
	assert.Equal(t, filepath.Join(dir, "calls.csv"), jobs[0].Options.Input)
}

func TestWatcher_CustomPattern(t *testing.T) {
	dir := t.TempDir()
	queue, store := newWatcherQueue(t)

	startWatcher(t, WatcherConfig{
		Dir:      dir,
		Pattern:  "export_*.csv",
		Debounce: 50 * time.Millisecond,
	}, queue)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "calls.csv"), []byte("date\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export_q1.csv"), []byte("date\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(watcherJobs(t, store)) == 1
	}, 5*time.Second, 25*time.Millisecond)

	jobs := watcherJobs(t, store)
	assert.Equal(t, filepath.Join(dir, "export_q1.csv"), jobs[0].Options.Input)
}

func TestWatcher_DebounceCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	queue, store := newWatcherQueue(t)

	startWatcher(t, WatcherConfig{Dir: dir, Debounce: 100 * time.Millisecond}, queue)

	// Simulate a slow export: create the file, then keep appending
	path := filepath.Join(dir, "calls.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.WriteString("2025-03-01,240\n")
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(watcherJobs(t, store)) == 1
	}, 5*time.Second, 25*time.Millisecond)

	// No further events; a second flush cycle must not enqueue it again
	time.Sleep(700 * time.Millisecond)
	assert.Len(t, watcherJobs(t, store), 1)
}

func TestWatcher_Backfill(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jan.csv"), []byte("date\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feb.csv"), []byte("date\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("ignore"), 0o644))

	queue, store := newWatcherQueue(t)
	startWatcher(t, WatcherConfig{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		Backfill: true,
	}, queue)

	require.Eventually(t, func() bool {
		return len(watcherJobs(t, store)) == 2
	}, 5*time.Second, 25*time.Millisecond, "backfill did not enqueue existing files")
}

func TestWatcher_VanishedFileNotEnqueued(t *testing.T) {
	dir := t.TempDir()
	queue, store := newWatcherQueue(t)

	logger, logs := testutil.NewLogger()
	w := NewWatcher(WatcherConfig{Dir: dir, Debounce: 50 * time.Millisecond}, queue, logger)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	// The file disappears between the create event and the debounce
	// expiring, as when an export is moved away mid-drop
	path := filepath.Join(dir, "calls.csv")
	require.NoError(t, os.WriteFile(path, []byte("date\n"), 0o644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		return logs.Has(slog.LevelWarn, "vanished")
	}, 5*time.Second, 25*time.Millisecond, "vanished file was never reported")

	assert.Empty(t, watcherJobs(t, store))
}

func TestWatcher_StartTwiceIsNoop(t *testing.T) {
	dir := t.TempDir()
	queue, _ := newWatcherQueue(t)

	w := startWatcher(t, WatcherConfig{Dir: dir, Debounce: 50 * time.Millisecond}, queue)
	require.NoError(t, w.Start(context.Background()))
}

func TestWatcher_StartMissingDir(t *testing.T) {
	queue, _ := newWatcherQueue(t)

	w := NewWatcher(WatcherConfig{Dir: "/nonexistent/drop"}, queue, testLogger())
	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch")
}

func TestWatcher_Defaults(t *testing.T) {
	queue, _ := newWatcherQueue(t)

	w := NewWatcher(WatcherConfig{Dir: "drops"}, queue, nil)
	assert.Equal(t, "*.csv", w.cfg.Pattern)
	assert.Equal(t, 2*time.Second, w.cfg.Debounce)
}
