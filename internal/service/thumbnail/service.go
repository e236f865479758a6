package thumbnail

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
	"github.com/vertextoedge/photo-triage/internal/metrics"
	"github.com/vertextoedge/photo-triage/internal/port"
)

const (
	// generationTimeout bounds a single thumbnail generation
	generationTimeout = 30 * time.Second

	// shutdownTimeout bounds the wait for the worker on Stop
	shutdownTimeout = 10 * time.Second
)

// ErrNotRunning is returned for cache misses while the worker is stopped
var ErrNotRunning = errors.New("thumbnail worker not running")

// Key returns the cache key of a library-root-relative path
func Key(relPath string) string {
	sum := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(sum[:])
}

// Stats holds thumbnail service counters
type Stats struct {
	Hits      int64 `json:"hits"`
	Queued    int64 `json:"queued"`
	Coalesced int64 `json:"coalesced"`
	Generated int64 `json:"generated"`
	Failed    int64 `json:"failed"`
	Pending   int   `json:"pending"`
}

// Service serves cached thumbnails and generates missing ones one at a time,
// newest request first
type Service struct {
	library   port.PhotoFS
	thumbs    port.ThumbnailFS
	repo      port.ThumbnailRepository
	generator Generator
	logger    *zap.Logger
	metrics   *metrics.Metrics

	queue *queue
	wake  chan struct{}

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	stats struct {
		hits      atomic.Int64
		queued    atomic.Int64
		coalesced atomic.Int64
		generated atomic.Int64
		failed    atomic.Int64
	}
}

// New creates a new thumbnail service
func New(
	library port.PhotoFS,
	thumbs port.ThumbnailFS,
	repo port.ThumbnailRepository,
	generator Generator,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if generator == nil {
		generator = NewImageGenerator(0, 0)
	}
	return &Service{
		library:   library,
		thumbs:    thumbs,
		repo:      repo,
		generator: generator,
		logger:    logger,
		metrics:   m,
		queue:     newQueue(),
		wake:      make(chan struct{}, 1),
	}
}

// Start launches the generation worker
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.worker()

	s.logger.Info("thumbnail worker started", zap.String("dir", s.thumbs.ThumbnailDir()))
	return nil
}

// Stop stops the worker and fails every job still waiting with
// context.Canceled
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

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		s.logger.Warn("thumbnail worker shutdown timeout", zap.Duration("timeout", shutdownTimeout))
	}

	for _, j := range s.queue.shutdown() {
		s.queue.finish(j, context.Canceled)
	}
	s.metrics.SetThumbnailQueue(0)

	st := s.Stats()
	s.logger.Info("thumbnail worker stopped",
		zap.Int64("generated", st.Generated),
		zap.Int64("failed", st.Failed),
		zap.Int64("hits", st.Hits))
}

// Get returns the cache path of the thumbnail for a library-root-relative
// photo path, generating it if needed. A caller whose ctx ends stops waiting;
// the generation itself carries on
func (s *Service) Get(ctx context.Context, relPath string) (string, error) {
	p, err := vo.NewPhotoPath(relPath)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidPath, relPath)
	}
	if loc, rel := vo.SplitBucket(p); !rel.BelongsTo(loc) {
		return "", fmt.Errorf("%w: %q is not a library photo", domain.ErrInvalidPath, relPath)
	}

	original := s.library.PhotoPath(vo.Base, p.String())
	info, err := os.Stat(original)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrOriginalNotFound, p)
	}

	key := Key(p.String())
	out := s.thumbs.ThumbnailPath(key)
	if s.thumbs.FileExists(out) {
		s.stats.hits.Add(1)
		s.metrics.IncThumbnailRequest("hit")
		return out, nil
	}

	if !s.isRunning() {
		return "", fmt.Errorf("%w: %w", domain.ErrThumbnailGenerationFailed, ErrNotRunning)
	}

	j, coalesced, ok := s.queue.push(&job{
		key:      key,
		source:   p.String(),
		original: original,
		queuedAt: time.Now(),
		done:     make(chan struct{}),
	})
	if !ok {
		return "", fmt.Errorf("%w: %w", domain.ErrThumbnailGenerationFailed, ErrNotRunning)
	}

	if coalesced {
		s.stats.coalesced.Add(1)
		s.metrics.IncThumbnailRequest("coalesced")
	} else {
		s.stats.queued.Add(1)
		s.metrics.IncThumbnailRequest("miss")
		s.metrics.SetThumbnailQueue(s.queue.depth())
		s.signal()
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if j.err != nil {
		if errors.Is(j.err, context.Canceled) {
			return "", j.err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrThumbnailGenerationFailed, j.err)
	}
	return out, nil
}

// Stats returns a snapshot of the counters
func (s *Service) Stats() Stats {
	return Stats{
		Hits:      s.stats.hits.Load(),
		Queued:    s.stats.queued.Load(),
		Coalesced: s.stats.coalesced.Load(),
		Generated: s.stats.generated.Load(),
		Failed:    s.stats.failed.Load(),
		Pending:   s.queue.depth(),
	}
}

func (s *Service) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// signal wakes the worker without blocking
func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		for {
			if s.ctx.Err() != nil {
				return
			}
			j := s.queue.pop()
			if j == nil {
				break
			}
			s.metrics.SetThumbnailQueue(s.queue.depth())
			s.queue.finish(j, s.process(j))
		}
	}
}

// process generates one thumbnail. A panic in the generator is turned into
// an error so the worker keeps running
func (s *Service) process(j *job) (err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
		s.metrics.ObserveThumbnail(time.Since(start), err)
		if err != nil {
			s.stats.failed.Add(1)
			s.logger.Warn("thumbnail generation failed",
				zap.String("source", j.source),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			return
		}
		s.stats.generated.Add(1)
		s.logger.Debug("thumbnail generated",
			zap.String("source", j.source),
			zap.Duration("queued", start.Sub(j.queuedAt)),
			zap.Duration("duration", time.Since(start)))
	}()

	// an earlier job may have produced it already
	if s.thumbs.FileExists(s.thumbs.ThumbnailPath(j.key)) {
		return nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, generationTimeout)
	defer cancel()

	var buf bytes.Buffer
	if err := s.generator.Generate(ctx, j.original, &buf); err != nil {
		return err
	}
	if _, _, err := s.thumbs.WriteThumbnail(j.key, &buf); err != nil {
		return err
	}

	if s.repo != nil {
		if err := s.repo.RecordThumbnail(ctx, j.key, j.source); err != nil {
			// the file is usable; only orphan collection misses it
			s.logger.Warn("failed to record thumbnail", zap.String("source", j.source), zap.Error(err))
		}
	}
	return nil
}
