package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
	"github.com/vertextoedge/photo-triage/internal/metrics"
	"github.com/vertextoedge/photo-triage/internal/port"
)

// Request is one rating action from a client. Directory is the photo's
// current bucket in wire form ("" or "sorted/N")
type Request struct {
	Photo     string
	Directory string
	Action    domain.Action
	Rating    int
}

// Outcome describes where a rated photo ended up
type Outcome struct {
	Path  string
	From  vo.Location
	To    vo.Location
	Moved bool
}

// Service applies rating actions by moving files between buckets and
// keeping the index in step
type Service struct {
	fs      port.PhotoFS
	photos  port.PhotoRepository
	logger  *zap.Logger
	metrics *metrics.Metrics

	locks *keyedMutex
}

// New creates a new rating service
func New(fs port.PhotoFS, photos port.PhotoRepository, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		fs:      fs,
		photos:  photos,
		logger:  logger,
		metrics: m,
		locks:   newKeyedMutex(),
	}
}

// Apply validates req, moves the photo to the bucket its action leads to
// and updates the index. Index failures after a successful move are logged
// and left for the next reconciliation
func (s *Service) Apply(ctx context.Context, req Request) (out *Outcome, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = errorKind(err)
		}
		s.metrics.IncRating(string(req.Action), result)
	}()

	if strings.TrimSpace(req.Photo) == "" {
		return nil, domain.ErrMissingField
	}
	photo, err := vo.NewPhotoPath(req.Photo)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPath, req.Photo)
	}
	from, err := vo.ParseLocation(req.Directory)
	if err != nil {
		return nil, err
	}
	if !photo.BelongsTo(from) {
		return nil, fmt.Errorf("%w: %q is not a photo in %s", domain.ErrInvalidPath, req.Photo, from)
	}
	to, err := domain.NextLocation(from, req.Action, req.Rating)
	if err != nil {
		return nil, err
	}

	path := photo.String()
	unlock := s.locks.Lock(path)
	defer unlock()

	if !s.fs.Exists(from, path) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPhotoNotFound, photo.InBucket(from))
	}

	out = &Outcome{Path: path, From: from, To: to}

	if to.Equals(from) {
		// clamped at the top or bottom bucket, nothing to move
		s.ensureIndexed(ctx, path, to)
		return out, nil
	}

	if err := s.fs.MovePhoto(path, from, to); err != nil {
		s.logger.Error("failed to move photo",
			zap.String("path", path),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrMoveFailed, err)
	}
	out.Moved = true

	if err := s.photos.Move(ctx, path, from, to); err != nil {
		s.logger.Warn("index update after move failed, next reconciliation will repair it",
			zap.String("path", path),
			zap.String("to", to.String()),
			zap.Error(err))
	}

	s.logger.Debug("photo rated",
		zap.String("path", path),
		zap.String("action", string(req.Action)),
		zap.String("from", from.String()),
		zap.String("to", to.String()))

	return out, nil
}

func (s *Service) ensureIndexed(ctx context.Context, path string, loc vo.Location) {
	ok, err := s.photos.Exists(ctx, path, loc)
	if err == nil && ok {
		return
	}
	if err := s.photos.InsertBatch(ctx, []*domain.Photo{{Path: path, Location: loc}}); err != nil {
		s.logger.Warn("failed to index photo", zap.String("path", path), zap.Error(err))
	}
}

// errorKind labels an error for metrics
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrPhotoNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrMoveFailed):
		return "move_failed"
	default:
		return "invalid"
	}
}

// keyedMutex serializes work per key. Entries are dropped when their last
// holder unlocks
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for key and returns its release function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size returns the number of live entries
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
