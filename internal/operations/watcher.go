package operations

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"callpulse/pkg/contracts/domain"
)

// WatcherConfig controls the CSV drop-directory watcher.
type WatcherConfig struct {
	Dir      string
	Pattern  string        // filename glob, default *.csv
	Debounce time.Duration // quiet period before a file is enqueued
	Backfill bool          // also enqueue files already present at startup
	Options  domain.RunOptions
}

// Watcher monitors a directory for new CSV exports and enqueues an
// analysis job for each. Events are debounced per file so an export
// still being copied is not picked up mid-write. The configured run
// options are used as a template; Input is set to the dropped file.
type Watcher struct {
	mu      sync.Mutex
	cfg     WatcherConfig
	queue   *JobQueue
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	pending map[string]time.Time
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewWatcher creates a watcher that feeds the given job queue.
func NewWatcher(cfg WatcherConfig, queue *JobQueue, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "*.csv"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	return &Watcher{
		cfg:     cfg,
		queue:   queue,
		logger:  logger.With(slog.String("component", "watcher")),
		pending: make(map[string]time.Time),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins watching. Non-blocking; the event loop runs in its own
// goroutine until Stop is called or the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.setStopped()
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.cfg.Dir); err != nil {
		fw.Close()
		w.setStopped()
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	w.watcher = fw

	w.logger.Info("watching directory",
		slog.String("dir", w.cfg.Dir),
		slog.String("pattern", w.cfg.Pattern))

	if w.cfg.Backfill {
		if err := w.backfill(ctx); err != nil {
			w.logger.Warn("backfill failed", slog.String("error", err.Error()))
		}
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) setStopped() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stop)
	<-w.done

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("error closing watcher", slog.String("error", err.Error()))
	}
	w.logger.Info("watcher stopped")
}

// run is the watcher's event loop.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	flushTicker := time.NewTicker(500 * time.Millisecond)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", slog.String("error", err.Error()))
		case <-flushTicker.C:
			w.flushPending(ctx)
		}
	}
}

// handleEvent records matching create and rename events for debounced
// processing. Writes refresh an already pending file so a file still
// being copied keeps its debounce clock running.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.matches(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Rename) != 0:
		w.pending[event.Name] = time.Now()
	case event.Op&fsnotify.Write != 0:
		if _, ok := w.pending[event.Name]; ok {
			w.pending[event.Name] = time.Now()
		}
	}
}

// flushPending enqueues files whose last event is older than the
// debounce window.
func (w *Watcher) flushPending(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.cfg.Debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		// The file may have been renamed away before the debounce expired
		if _, err := os.Stat(path); err != nil {
			w.logger.Warn("dropped file vanished", slog.String("path", path))
			continue
		}
		w.enqueue(ctx, path)
	}
}

// backfill enqueues matching files already sitting in the directory.
func (w *Watcher) backfill(ctx context.Context) error {
	matches, err := filepath.Glob(filepath.Join(w.cfg.Dir, w.cfg.Pattern))
	if err != nil {
		return err
	}
	for _, path := range matches {
		w.enqueue(ctx, path)
	}
	if len(matches) > 0 {
		w.logger.Info("backfilled existing files", slog.Int("count", len(matches)))
	}
	return nil
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	options := w.cfg.Options
	options.Input = path

	job := &Job{
		Trigger: TriggerWatcher,
		Options: options,
	}
	if err := w.queue.Enqueue(job); err != nil {
		w.logger.ErrorContext(ctx, "failed to enqueue dropped file",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	w.logger.InfoContext(ctx, "file queued for analysis",
		slog.String("path", path),
		slog.String("job_id", job.ID))
}

// matches reports whether the file name matches the configured glob.
func (w *Watcher) matches(path string) bool {
	ok, err := filepath.Match(w.cfg.Pattern, filepath.Base(path))
	return err == nil && ok
}
