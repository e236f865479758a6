package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/domain/vo"
	"github.com/vertextoedge/photo-triage/internal/service/indexer"
	"github.com/vertextoedge/photo-triage/internal/util/ratelimiter"
)

// Config contains watcher configuration
type Config struct {
	// Debounce is the quiet period after the last change before reconciling
	Debounce time.Duration

	// MinInterval is the minimum time between two reconciliations
	MinInterval time.Duration
}

// DefaultConfig returns default watcher configuration
func DefaultConfig() *Config {
	return &Config{
		Debounce:    2 * time.Second,
		MinInterval: 10 * time.Second,
	}
}

// Reconciler rebuilds the index from disk
type Reconciler interface {
	Reconcile(ctx context.Context) (*indexer.Result, error)
}

// Service watches the library tree and schedules reconciliations when
// photos or folders appear, disappear or get renamed
type Service struct {
	config     *Config
	root       string
	reconciler Reconciler
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	watched atomic.Int64
	events  atomic.Int64
	runs    atomic.Int64
}

// New creates a new watcher for the library rooted at root
func New(cfg *Config, root string, reconciler Reconciler, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	return &Service{
		config:     cfg,
		root:       root,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Start registers watches on the library tree and begins processing events
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.addTree(w, s.root)

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	debouncer := ratelimiter.NewDebouncer(s.config.Debounce, s.config.MinInterval, s.reconcile)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		debouncer.Run(ctx)
	}()
	go s.loop(ctx, w, debouncer)

	s.logger.Info("library watcher started",
		zap.String("root", s.root),
		zap.Int64("dirs", s.watched.Load()),
		zap.Duration("debounce", s.config.Debounce),
		zap.Duration("min_interval", s.config.MinInterval))
	return nil
}

// Stop stops watching and waits for a running reconciliation to return
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("library watcher stopped",
		zap.Int64("events", s.events.Load()),
		zap.Int64("reconciles", s.runs.Load()))
}

// Runs returns the number of reconciliations triggered by the watcher
func (s *Service) Runs() int64 {
	return s.runs.Load()
}

func (s *Service) loop(ctx context.Context, w *fsnotify.Watcher, d *ratelimiter.Debouncer) {
	defer s.wg.Done()
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if s.handle(w, ev) {
				s.events.Add(1)
				d.Notify()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events were lost; let a reconciliation catch up
				d.Notify()
			}
			s.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// handle reports whether ev can change the index. New directories get
// watched on the way
func (s *Service) handle(w *fsnotify.Watcher, ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}

	if ev.Has(fsnotify.Create) {
		info, err := os.Lstat(ev.Name)
		if err == nil && info.IsDir() {
			s.addTree(w, ev.Name)
			return true
		}
		return err == nil && info.Mode().IsRegular() && vo.IsImageFile(name)
	}

	// removed or renamed away: the entry is gone, so a directory can only be
	// told apart by its lack of an image extension
	return vo.IsImageFile(name) || filepath.Ext(name) == ""
}

// addTree watches dir and every non-hidden directory below it
func (s *Service) addTree(w *fsnotify.Watcher, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug("skipping unreadable directory", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			s.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		s.watched.Add(1)
		return nil
	})
}

func (s *Service) reconcile(ctx context.Context) {
	s.runs.Add(1)
	res, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("watch-triggered reconciliation failed", zap.Error(err))
		}
		return
	}
	s.logger.Info("watch-triggered reconciliation done",
		zap.Int("added", res.Added),
		zap.Int("removed", res.Removed))
}
