package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/port"
	"github.com/vertextoedge/photo-triage/internal/service/indexer"
)

// orphanBatchSize bounds how many orphaned thumbnails one cleanup pass removes
const orphanBatchSize = 1000

// Config contains maintenance service configuration
type Config struct {
	// ReconcileInterval is how often the index is rebuilt from disk
	ReconcileInterval time.Duration

	// CleanupInterval is how often orphaned thumbnails are collected
	CleanupInterval time.Duration

	// TempFileMaxAge is the maximum age of thumbnail temp files before cleanup
	TempFileMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		ReconcileInterval: 10 * time.Minute,
		CleanupInterval:   time.Hour,
		TempFileMaxAge:    time.Hour,
	}
}

// Reconciler rebuilds the index from disk
type Reconciler interface {
	Reconcile(ctx context.Context) (*indexer.Result, error)
}

// Service handles periodic maintenance tasks
type Service struct {
	config     *Config
	reconciler Reconciler
	thumbRepo  port.ThumbnailRepository
	thumbs     port.ThumbnailFS
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, reconciler Reconciler, thumbRepo port.ThumbnailRepository, thumbs port.ThumbnailFS, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = 10 * time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = time.Hour
	}

	return &Service{
		config:     cfg,
		reconciler: reconciler,
		thumbRepo:  thumbRepo,
		thumbs:     thumbs,
		logger:     logger,
	}
}

// Start runs the maintenance loop until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("reconcile_interval", s.config.ReconcileInterval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	reconcileTicker := time.NewTicker(s.config.ReconcileInterval)
	defer reconcileTicker.Stop()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcileTicker.C:
			s.reconcile(ctx)
		case <-cleanupTicker.C:
			s.CollectOrphans(ctx)
			s.cleanupTempFiles()
		}
	}
}

// reconcile runs a periodic index rebuild
func (s *Service) reconcile(ctx context.Context) {
	res, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("periodic reconciliation failed", zap.Error(err))
		}
		return
	}
	if res.Added > 0 || res.Removed > 0 {
		s.logger.Info("periodic reconciliation changed the index",
			zap.Int("added", res.Added),
			zap.Int("removed", res.Removed))
	}
}

// CollectOrphans removes thumbnails whose original is no longer indexed.
// Returns the number of thumbnails removed
func (s *Service) CollectOrphans(ctx context.Context) int {
	orphans, err := s.thumbRepo.OrphanedThumbnails(ctx, orphanBatchSize)
	if err != nil {
		s.logger.Error("failed to list orphaned thumbnails", zap.Error(err))
		return 0
	}

	removed := 0
	for _, o := range orphans {
		if ctx.Err() != nil {
			break
		}
		if err := s.thumbs.DeleteFile(s.thumbs.ThumbnailPath(o.Key)); err != nil {
			s.logger.Warn("failed to delete orphaned thumbnail",
				zap.String("source", o.SourcePath),
				zap.Error(err))
			continue
		}
		if err := s.thumbRepo.DeleteThumbnail(ctx, o.Key); err != nil {
			s.logger.Warn("failed to delete thumbnail entry",
				zap.String("source", o.SourcePath),
				zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("collected orphaned thumbnails", zap.Int("count", removed))
	}
	return removed
}

// cleanupTempFiles removes abandoned thumbnail temp files
func (s *Service) cleanupTempFiles() {
	fileCount, err := s.thumbs.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
	} else if fileCount > 0 {
		s.logger.Info("cleaned up old temp files from thumbnail cache", zap.Int("count", fileCount))
	}
}
