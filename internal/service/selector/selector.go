package selector

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
	"github.com/vertextoedge/photo-triage/internal/metrics"
	"github.com/vertextoedge/photo-triage/internal/port"
	"github.com/vertextoedge/photo-triage/internal/service/indexer"
)

// Config holds selection tuning
type Config struct {
	SortedProbability float64       // Chance of preferring the sorted buckets
	Weights           map[int]int   // Rank -> weight; rank 1 must be 0
	MaxAttempts       int           // Samples per bucket before giving up on it
	ReconcileTimeout  time.Duration // Bound on the fallback reconciliation
}

// DefaultConfig returns default selector configuration
func DefaultConfig() *Config {
	return &Config{
		SortedProbability: 0.2,
		Weights:           map[int]int{1: 0, 2: 20, 3: 30, 4: 30, 5: 20},
		MaxAttempts:       5,
		ReconcileTimeout:  3 * time.Second,
	}
}

// Reconciler rebuilds the index from disk
type Reconciler interface {
	Reconcile(ctx context.Context) (*indexer.Result, error)
}

// Existence reports whether a photo is on disk
type Existence interface {
	Exists(loc vo.Location, path string) bool
}

// Selection is the photo chosen for presentation
type Selection struct {
	Path     string
	Location vo.Location
}

// Option configures a Service
type Option func(*Service)

// WithRand sets the random source, for deterministic tests
func WithRand(r *rand.Rand) Option {
	return func(s *Service) {
		s.rng = r
	}
}

// Service picks the next photo to show
type Service struct {
	config     *Config
	photos     port.PhotoRepository
	fs         Existence
	reconciler Reconciler
	logger     *zap.Logger
	metrics    *metrics.Metrics

	rngMu sync.Mutex
	rng   *rand.Rand

	// fallback order of sorted ranks, heaviest first
	ranks []int
}

// New creates a new selector
func New(
	cfg *Config,
	photos port.PhotoRepository,
	fs Existence,
	reconciler Reconciler,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.ReconcileTimeout <= 0 {
		cfg.ReconcileTimeout = 3 * time.Second
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultConfig().Weights
	}

	s := &Service{
		config:     cfg,
		photos:     photos,
		fs:         fs,
		reconciler: reconciler,
		logger:     logger,
		metrics:    m,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}

	for rank := vo.MinRank + 1; rank <= vo.MaxRank; rank++ {
		if cfg.Weights[rank] > 0 {
			s.ranks = append(s.ranks, rank)
		}
	}
	slices.SortStableFunc(s.ranks, func(a, b int) int {
		return cmp.Compare(cfg.Weights[b], cfg.Weights[a])
	})

	return s
}

// Select returns the next photo. When every bucket comes up empty it runs a
// bounded reconciliation and tries once more before failing with
// domain.ErrNoPhotosAvailable
func (s *Service) Select(ctx context.Context) (*Selection, error) {
	sel, err := s.attempt(ctx)
	if err != nil {
		return nil, err
	}
	if sel != nil {
		return sel, nil
	}

	if s.reconciler != nil {
		rctx, cancel := context.WithTimeout(ctx, s.config.ReconcileTimeout)
		_, rerr := s.reconciler.Reconcile(rctx)
		cancel()
		if rerr != nil {
			s.logger.Warn("fallback reconciliation did not finish", zap.Error(rerr))
		}

		sel, err = s.attempt(ctx)
		if err != nil {
			return nil, err
		}
		if sel != nil {
			return sel, nil
		}
	}

	s.metrics.IncSelection("none")
	return nil, domain.ErrNoPhotosAvailable
}

// attempt tries the preferred source, then the other one
func (s *Service) attempt(ctx context.Context) (*Selection, error) {
	sources := []func(context.Context) (*Selection, error){s.fromBase, s.fromSorted}
	labels := []string{"base", "sorted"}
	if s.roll() < s.config.SortedProbability {
		sources[0], sources[1] = sources[1], sources[0]
		labels[0], labels[1] = labels[1], labels[0]
	}

	for i, source := range sources {
		sel, err := source(ctx)
		if err != nil {
			return nil, err
		}
		if sel != nil {
			s.metrics.IncSelection(labels[i])
			return sel, nil
		}
	}

	// sorted/1 is never a weighted target, but a library holding only
	// rank 1 photos still has something to show
	sel, err := s.sample(ctx, vo.Sorted(vo.MinRank))
	if err != nil || sel == nil {
		return nil, err
	}
	s.metrics.IncSelection("sorted")
	return sel, nil
}

func (s *Service) fromBase(ctx context.Context) (*Selection, error) {
	return s.sample(ctx, vo.Base)
}

// fromSorted samples the bucket drawn from the weights; when it is empty the
// other weighted buckets are tried, heaviest first
func (s *Service) fromSorted(ctx context.Context) (*Selection, error) {
	first := s.weightedRank()
	if first == 0 {
		return nil, nil
	}

	order := []int{first}
	for _, rank := range s.ranks {
		if rank != first {
			order = append(order, rank)
		}
	}

	for _, rank := range order {
		sel, err := s.sample(ctx, vo.Sorted(rank))
		if err != nil || sel != nil {
			return sel, err
		}
	}
	return nil, nil
}

// sample picks uniformly within one bucket, evicting records whose file is
// gone, for at most MaxAttempts draws
func (s *Service) sample(ctx context.Context, loc vo.Location) (*Selection, error) {
	for attempt := 0; attempt < s.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := s.photos.Count(ctx, loc)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", loc, err)
		}
		if n == 0 {
			return nil, nil
		}

		path, err := s.photos.PathAt(ctx, loc, s.pick(n))
		if err != nil {
			return nil, fmt.Errorf("failed to sample %s: %w", loc, err)
		}
		if path == "" {
			// the bucket shrank between count and read
			continue
		}

		if s.fs.Exists(loc, path) {
			return &Selection{Path: path, Location: loc}, nil
		}

		s.logger.Info("evicting missing photo from index",
			zap.String("path", path),
			zap.String("location", loc.String()))
		if err := s.photos.Delete(ctx, path, loc); err != nil {
			s.logger.Warn("failed to evict record", zap.String("path", path), zap.Error(err))
		}
		s.metrics.IncStaleEviction()
	}
	return nil, nil
}

// weightedRank draws a rank from the weights, 0 if all are zero
func (s *Service) weightedRank() int {
	total := 0
	for _, rank := range s.ranks {
		total += s.config.Weights[rank]
	}
	if total == 0 {
		return 0
	}

	r := s.pick(total)
	for rank := vo.MinRank + 1; rank <= vo.MaxRank; rank++ {
		w := s.config.Weights[rank]
		if w <= 0 {
			continue
		}
		if r < w {
			return rank
		}
		r -= w
	}
	return 0
}

func (s *Service) roll() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

func (s *Service) pick(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.IntN(n)
}
