package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/metrics"
	"github.com/vertextoedge/photo-triage/internal/port"
)

// Config holds reconciliation configuration
type Config struct {
	BatchSize int // Records per insert/delete transaction
}

// DefaultConfig returns default indexer configuration
func DefaultConfig() *Config {
	return &Config{
		BatchSize: 200,
	}
}

// Result summarizes one reconciliation pass
type Result struct {
	Added      int            `json:"added"`
	Removed    int            `json:"removed"`
	Errors     int            `json:"errors"`      // failed index batches
	ScanErrors int            `json:"scanErrors"`  // unreadable subtrees
	Counts     map[string]int `json:"counts"`      // photos per location afterwards
	Duration   time.Duration  `json:"-"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Service keeps the photo index in sync with the library on disk
type Service struct {
	config  *Config
	photos  port.PhotoRepository
	stats   port.StatsRepository
	scanner *Scanner
	logger  *zap.Logger
	metrics *metrics.Metrics

	group singleflight.Group
	last  atomic.Pointer[Result]

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new indexer service
func New(
	cfg *Config,
	photos port.PhotoRepository,
	stats port.StatsRepository,
	scanner *Scanner,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 200
	}

	return &Service{
		config:  cfg,
		photos:  photos,
		stats:   stats,
		scanner: scanner,
		logger:  logger,
		metrics: m,
	}
}

// Start runs an initial reconciliation in the background and returns
// immediately
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Reconcile(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Error("initial reconciliation failed", zap.Error(err))
		}
	}()

	s.logger.Info("indexer started", zap.Int("batch_size", s.config.BatchSize))
	return nil
}

// Stop cancels any running pass and waits for background work
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("indexer stopped")
}

// LastResult returns the result of the most recent completed pass, or nil
func (s *Service) LastResult() *Result {
	return s.last.Load()
}

// passContext is the context a shared pass runs on. It outlives any single
// caller and ends only when the service stops
func (s *Service) passContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.ctx
	}
	return context.Background()
}

// Reconcile brings the index in line with the filesystem. Concurrent callers
// share one in-flight pass; a caller whose ctx ends stops waiting but the
// pass continues
func (s *Service) Reconcile(ctx context.Context) (*Result, error) {
	passCtx := s.passContext()
	ch := s.group.DoChan("reconcile", func() (any, error) {
		return s.reconcile(passCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) reconcile(ctx context.Context) (result *Result, err error) {
	start := time.Now()
	result = &Result{}

	defer func() {
		result.Duration = time.Since(start)
		s.metrics.ObserveReconcile(result.Duration, result.Added, result.Removed, result.ScanErrors, err)
	}()

	scan, err := s.scanner.Scan(ctx)
	if err != nil {
		return result, fmt.Errorf("scan failed: %w", err)
	}
	result.ScanErrors = scan.Errors

	indexed, err := s.photos.All(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load index: %w", err)
	}

	// Diff disk against the index. Every difference is checked against the
	// disk once more: a rating that moved a file after the scan read its old
	// bucket must not be undone
	known := make(map[domain.Key]struct{}, len(indexed))
	var removals []*domain.Photo
	stale := 0
	for _, p := range indexed {
		known[p.Key()] = struct{}{}
		if scan.Files.Contains(p.Location, p.Path) {
			continue
		}
		if s.scanner.Present(p.Location, p.Path) {
			stale++
			continue
		}
		removals = append(removals, p)
	}

	var additions []*domain.Photo
	now := time.Now()
	for loc, paths := range scan.Files {
		for p := range paths {
			if _, ok := known[domain.Key{Path: p, Location: loc}]; ok {
				continue
			}
			if !s.scanner.Present(loc, p) {
				stale++
				continue
			}
			additions = append(additions, &domain.Photo{Path: p, Location: loc, IndexedAt: now})
		}
	}
	if stale > 0 {
		s.logger.Debug("library changed during scan, skipped stale differences", zap.Int("count", stale))
	}

	added, failed, err := s.applyBatches(ctx, additions, s.photos.InsertBatch, "insert")
	result.Added, result.Errors = added, failed
	if err != nil {
		return result, err
	}

	removed, failed, err := s.applyBatches(ctx, removals, s.photos.DeleteBatch, "delete")
	result.Removed, result.Errors = removed, result.Errors+failed
	if err != nil {
		return result, err
	}

	if stats, statsErr := s.stats.GetIndexStats(ctx); statsErr == nil {
		result.Counts = stats.ByName()
		s.metrics.SetIndexedPhotos(result.Counts)
	} else {
		s.logger.Warn("failed to read index stats", zap.Error(statsErr))
	}

	result.FinishedAt = time.Now()
	s.last.Store(result)

	s.logger.Info("reconciliation completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("scanned", scan.TotalFiles),
		zap.Int("added", result.Added),
		zap.Int("removed", result.Removed),
		zap.Int("batch_errors", result.Errors),
		zap.Int("scan_errors", result.ScanErrors))

	return result, nil
}

// applyBatches runs fn over photos in batches, one transaction each. A failed
// batch is logged and counted; the pass moves on to the next batch. Only
// context cancellation stops it early
func (s *Service) applyBatches(
	ctx context.Context,
	photos []*domain.Photo,
	fn func(context.Context, []*domain.Photo) error,
	op string,
) (applied, failed int, err error) {
	for start := 0; start < len(photos); start += s.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return applied, failed, err
		}

		end := min(start+s.config.BatchSize, len(photos))
		batch := photos[start:end]
		if err := fn(ctx, batch); err != nil {
			s.logger.Error("index batch failed",
				zap.String("op", op),
				zap.Int("size", len(batch)),
				zap.Error(err))
			failed++
			continue
		}
		applied += len(batch)
	}
	return applied, failed, nil
}
