package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"etlpipe/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service: runs the pipeline once, on a cron
// schedule, or when watched files change
// ─────────────────────────────────────────────────────────────

// ErrAlreadyRunning is returned when a run is requested while another run of
// the same pipeline is in flight.
var ErrAlreadyRunning = errors.New("pipeline is already running")

// RunFunc executes one full pipeline run.
type RunFunc func(ctx context.Context) (*etl.RunResult, error)

// DebounceDelay is how long the watcher waits after the last file event.
const DebounceDelay = 500 * time.Millisecond

// PipelineService runs the pipeline for one config, guarding against overlap.
type PipelineService struct {
	key     string
	run     RunFunc
	emitter EventEmitter
	log     *slog.Logger
	guard   RunGuard

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	watched     map[string]bool // absolute file paths
	watchedDirs map[string]bool
	cronSched   *cron.Cron
}

// NewPipelineService creates a PipelineService. key identifies the pipeline
// for the running guard (usually the config path).
func NewPipelineService(key string, run RunFunc, emitter EventEmitter, log *slog.Logger) *PipelineService {
	return &PipelineService{
		key:     key,
		run:     run,
		emitter: emitter,
		log:     log,
	}
}

// ── Run ────────────────────────────────────────────────────

// RunOnce executes the pipeline synchronously. It returns ErrAlreadyRunning
// without running if a run is already in flight.
func (s *PipelineService) RunOnce(ctx context.Context) (*etl.RunResult, error) {
	if !s.guard.TryLock(s.key) {
		s.emitter.Emit(ctx, EventRunSkipped, s.key)
		return nil, fmt.Errorf("%s: %w", s.key, ErrAlreadyRunning)
	}
	defer s.guard.Unlock(s.key)

	s.emitter.Emit(ctx, EventRunStarted, s.key)
	result, err := s.run(ctx)
	if err != nil {
		s.emitter.Emit(ctx, EventRunFailed, err.Error())
		return result, err
	}
	s.emitter.Emit(ctx, EventRunCompleted, result)
	return result, nil
}

// trigger runs the pipeline from a background trigger and logs the outcome.
func (s *PipelineService) trigger(ctx context.Context, reason string) {
	s.log.Info("service/pipeline: triggered", "reason", reason, "pipeline", s.key)
	result, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.log.Warn("service/pipeline: previous run still in flight, skipping", "reason", reason)
	case err != nil:
		s.log.Error("service/pipeline: run failed", "reason", reason, "error", err)
	default:
		s.log.Info("service/pipeline: run finished", "reason", reason, "status", result.Status)
	}
}

// ── Schedule (cron) ────────────────────────────────────────

// Schedule starts running the pipeline on a cron expression (five fields, or
// descriptors such as "@hourly" and "@every 10m"). It replaces any previous schedule.
func (s *PipelineService) Schedule(ctx context.Context, expr string) error {
	c := cron.New()
	if _, err := c.AddFunc(expr, func() { s.trigger(ctx, "schedule") }); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	s.mu.Lock()
	if s.cronSched != nil {
		s.cronSched.Stop()
	}
	s.cronSched = c
	s.mu.Unlock()

	c.Start()
	s.log.Info("service/pipeline: scheduled", "cron", expr)
	return nil
}

// NextRun returns the next scheduled run time, or zero if nothing is scheduled.
func (s *PipelineService) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cronSched == nil {
		return time.Time{}
	}
	entries := s.cronSched.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// ── Watch (fsnotify) ───────────────────────────────────────

// Watch runs the pipeline whenever one of paths is written or created.
// Events are debounced by DebounceDelay. It replaces any previous watcher.
func (s *PipelineService) Watch(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no paths to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	if err := addWatchPaths(watcher, watched, dirs, paths); err != nil {
		watcher.Close()
		return err
	}

	s.mu.Lock()
	s.stopWatcherLocked()
	watchCtx, cancel := context.WithCancel(ctx)
	s.watcher = watcher
	s.watchCancel = cancel
	s.watched = watched
	s.watchedDirs = dirs
	s.mu.Unlock()

	go s.watchLoop(watchCtx, watcher)

	s.log.Info("service/pipeline: watching", "files", len(watched))
	return nil
}

// AddWatchPaths extends the running watcher with paths. Paths already
// watched are ignored.
func (s *PipelineService) AddWatchPaths(paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return fmt.Errorf("watcher not running")
	}
	before := len(s.watched)
	if err := addWatchPaths(s.watcher, s.watched, s.watchedDirs, paths); err != nil {
		return err
	}
	if added := len(s.watched) - before; added > 0 {
		s.log.Info("service/pipeline: watching more files", "added", added, "files", len(s.watched))
	}
	return nil
}

// addWatchPaths records each path in watched and adds its parent directory
// to watcher, so editors that replace files are still seen.
func addWatchPaths(watcher *fsnotify.Watcher, watched, dirs map[string]bool, paths []string) error {
	for _, p := range paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("bad path %q: %w", p, err)
		}
		dir := filepath.Dir(absPath)
		if !dirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watch dir %q: %w", dir, err)
			}
			dirs[dir] = true
		}
		watched[absPath] = true
	}
	return nil
}

func (s *PipelineService) isWatched(absPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watched[absPath]
}

func (s *PipelineService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			if !s.isWatched(absPath) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(DebounceDelay, func() {
				s.trigger(ctx, "file changed: "+absPath)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("service/pipeline: watcher error", "error", err)
		}
	}
}

// ── Lifecycle ──────────────────────────────────────────────

// Running reports whether a run is in flight.
func (s *PipelineService) Running() bool {
	return s.guard.Running(s.key)
}

// WaitRunning blocks until the in-flight run finishes or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.guard.WaitAll(ctx)
}

// Stop tears down the watcher and scheduler without waiting for a run in
// flight; use WaitRunning for that. Safe to call more than once.
func (s *PipelineService) Stop() {
	s.mu.Lock()
	s.stopWatcherLocked()
	sched := s.cronSched
	s.cronSched = nil
	s.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
}

func (s *PipelineService) stopWatcherLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	s.watched = nil
	s.watchedDirs = nil
}
