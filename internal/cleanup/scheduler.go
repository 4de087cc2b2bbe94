package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/captioncast/captioncast/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Deletion results reported to metrics.
const (
	ResultDeleted = "deleted"
	ResultMissing = "missing"
	ResultError   = "error"
)

// DefaultPattern matches rendered output files.
const DefaultPattern = "out_*.mp4"

// MetricsRecorder defines the interface for recording expiry metrics.
type MetricsRecorder interface {
	RecordExpiryScheduled()
	RecordExpiryDeleted(result string)
	SetExpiryPending(n int)
}

// Config contains the expiry scheduler configuration.
type Config struct {
	// Dir is the watched output directory.
	Dir string
	// TTL is used by the startup sweep. Zero disables the sweep.
	TTL time.Duration
	// SweepOnStart removes or reschedules leftovers from a previous run.
	SweepOnStart bool
	// Match selects the files the sweep may touch. Defaults to DefaultPattern.
	Match func(name string) bool
}

// SweepResult summarizes a startup sweep.
type SweepResult struct {
	Deleted     int
	Rescheduled int
}

type pendingEntry struct {
	timer *time.Timer
	due   time.Time
	gen   uint64
}

// Scheduler deletes files after a delay. Deletion is best effort: errors
// are logged and counted, never returned.
type Scheduler struct {
	config  Config
	metrics MetricsRecorder
	logger  *logging.Logger

	mu      sync.Mutex
	pending map[string]*pendingEntry
	gen     uint64
	running bool
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	now func() time.Time
}

// NewScheduler creates a new expiry scheduler. metrics may be nil.
func NewScheduler(config Config, metrics MetricsRecorder, logger *logging.Logger) *Scheduler {
	if config.Match == nil {
		config.Match = func(name string) bool {
			ok, _ := filepath.Match(DefaultPattern, name)
			return ok
		}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{
		config:  config,
		metrics: metrics,
		logger:  logger,
		pending: make(map[string]*pendingEntry),
		now:     time.Now,
	}
}

// Schedule deletes path after ttl. Scheduling a path again replaces the
// earlier task.
func (s *Scheduler) Schedule(path string, ttl time.Duration) {
	path = filepath.Clean(path)
	if ttl < 0 {
		ttl = 0
	}

	s.mu.Lock()
	if old, ok := s.pending[path]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending[path] = &pendingEntry{
		due:   s.now().Add(ttl),
		gen:   gen,
		timer: time.AfterFunc(ttl, func() { s.expire(path, gen) }),
	}
	n := len(s.pending)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordExpiryScheduled()
		s.metrics.SetExpiryPending(n)
	}
	s.logger.Debug("expiry scheduled", "path", path, "ttl_seconds", int(ttl.Seconds()))
}

// Cancel drops the pending task for path. It reports whether one existed.
func (s *Scheduler) Cancel(path string) bool {
	path = filepath.Clean(path)

	s.mu.Lock()
	entry, ok := s.pending[path]
	if ok {
		entry.timer.Stop()
		delete(s.pending, path)
	}
	n := len(s.pending)
	s.mu.Unlock()

	if ok {
		s.setPending(n)
	}
	return ok
}

// Pending returns the number of files waiting for deletion.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Due returns when path is scheduled to be deleted.
func (s *Scheduler) Due(path string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[filepath.Clean(path)]
	if !ok {
		return time.Time{}, false
	}
	return entry.due, true
}

func (s *Scheduler) expire(path string, gen uint64) {
	s.mu.Lock()
	entry, ok := s.pending[path]
	if !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, path)
	n := len(s.pending)
	s.mu.Unlock()

	s.remove(path)
	s.setPending(n)
}

func (s *Scheduler) remove(path string) {
	result := ResultDeleted
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			result = ResultMissing
		} else {
			result = ResultError
			s.logger.Warn("failed to delete expired file", "path", path, "error", err)
		}
	} else {
		s.logger.Info("expired file deleted", "path", path)
	}
	if s.metrics != nil {
		s.metrics.RecordExpiryDeleted(result)
	}
}

func (s *Scheduler) setPending(n int) {
	if s.metrics != nil {
		s.metrics.SetExpiryPending(n)
	}
}

// Start runs the startup sweep (when enabled) and watches the output
// directory so files removed by someone else drop their pending task.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("expiry scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	if s.config.SweepOnStart && s.config.TTL > 0 {
		res, err := s.Sweep()
		if err != nil {
			s.logger.Warn("startup sweep failed", "dir", s.config.Dir, "error", err)
		} else if res.Deleted > 0 || res.Rescheduled > 0 {
			s.logger.Info("startup sweep finished", "deleted", res.Deleted, "rescheduled", res.Rescheduled)
		}
	}

	if s.config.Dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.config.Dir); err != nil {
		watcher.Close()
		return err
	}

	s.mu.Lock()
	s.watcher = watcher
	done := s.done
	s.mu.Unlock()

	s.wg.Add(1)
	go s.watch(ctx, watcher, done)
	return nil
}

func (s *Scheduler) watch(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if s.Cancel(event.Name) {
					s.logger.Debug("file removed externally, expiry cancelled", "path", event.Name)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("output directory watcher error", "error", err)
		}
	}
}

// Sweep deletes matching files older than the TTL and reschedules the
// younger ones for their remaining lifetime. A missing directory is not
// an error.
func (s *Scheduler) Sweep() (SweepResult, error) {
	var res SweepResult
	if s.config.TTL <= 0 || s.config.Dir == "" {
		return res, nil
	}

	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}

	now := s.now()
	for _, e := range entries {
		if e.IsDir() || !s.config.Match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(s.config.Dir, e.Name())
		age := now.Sub(info.ModTime())
		if age >= s.config.TTL {
			s.remove(path)
			res.Deleted++
			continue
		}
		s.Schedule(path, s.config.TTL-age)
		res.Rescheduled++
	}
	return res, nil
}

// Stop cancels every pending task and closes the watcher. Files whose
// task is dropped here are picked up by the next startup sweep.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	for path, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, path)
	}
	wasRunning := s.running
	s.running = false
	watcher := s.watcher
	s.watcher = nil
	if wasRunning {
		close(s.done)
	}
	s.mu.Unlock()

	s.setPending(0)

	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	s.wg.Wait()
	return err
}
