package indexer

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

// ScannerConfig holds scanner configuration
type ScannerConfig struct {
	MaxConcurrency int // Maximum concurrent directory reads
}

// DefaultScannerConfig returns default scanner configuration
func DefaultScannerConfig() *ScannerConfig {
	return &ScannerConfig{
		MaxConcurrency: 4,
	}
}

// FileSet is the set of bucket-relative, slash-separated photo paths found
// in each bucket
type FileSet map[vo.Location]map[string]struct{}

// Contains reports whether path was found in bucket loc
func (f FileSet) Contains(loc vo.Location, p string) bool {
	_, ok := f[loc][p]
	return ok
}

// ScanResult holds the result of a library scan
type ScanResult struct {
	Files      FileSet
	TotalFiles int
	Errors     int
	Skipped    []error // per-subtree read failures, each a *domain.SkippableError
	Duration   time.Duration
}

// BucketLister resolves bucket directories
type BucketLister interface {
	BucketDir(loc vo.Location) string
}

// Scanner walks every bucket of the library and collects image files
type Scanner struct {
	config *ScannerConfig
	fs     BucketLister
	logger *zap.Logger

	// Worker pool
	sem chan struct{}
}

// NewScanner creates a new Scanner
func NewScanner(cfg *ScannerConfig, fs BucketLister, logger *zap.Logger) *Scanner {
	if cfg == nil {
		cfg = DefaultScannerConfig()
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}

	return &Scanner{
		config: cfg,
		fs:     fs,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxConcurrency),
	}
}

// scanState collects one scan's output across goroutines
type scanState struct {
	mu      sync.Mutex
	files   FileSet
	skipped []error

	total  atomic.Int64
	errors atomic.Int64
}

func (st *scanState) add(loc vo.Location, p string) {
	st.mu.Lock()
	st.files[loc][p] = struct{}{}
	st.mu.Unlock()
	st.total.Add(1)
}

func (st *scanState) skip(err error) {
	st.mu.Lock()
	st.skipped = append(st.skipped, err)
	st.mu.Unlock()
	st.errors.Add(1)
}

// Scan walks all buckets. Unreadable subtrees are logged, recorded as
// skippable errors and contribute no files; only context cancellation fails
// the scan
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	start := time.Now()

	st := &scanState{files: make(FileSet)}
	for _, loc := range vo.AllLocations() {
		st.files[loc] = make(map[string]struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, loc := range vo.AllLocations() {
		g.Go(func() error {
			var wg sync.WaitGroup
			s.scanDir(gctx, loc, s.fs.BucketDir(loc), "", st, &wg)
			wg.Wait()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &ScanResult{
		Files:      st.files,
		TotalFiles: int(st.total.Load()),
		Errors:     int(st.errors.Load()),
		Skipped:    st.skipped,
		Duration:   time.Since(start),
	}

	s.logger.Debug("library scan completed",
		zap.Duration("duration", result.Duration),
		zap.Int("total", result.TotalFiles),
		zap.Int("errors", result.Errors))

	return result, nil
}

// scanDir reads one directory and recurses into subdirectories in new
// goroutines. rel is the slash-separated path of dir inside the bucket
func (s *Scanner) scanDir(ctx context.Context, loc vo.Location, dir, rel string, st *scanState, wg *sync.WaitGroup) {
	// Acquire semaphore for the read
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	entries, err := os.ReadDir(dir)

	// Release semaphore
	<-s.sem

	if err != nil {
		if os.IsNotExist(err) && rel == "" {
			// a missing bucket root is an empty bucket
			return
		}
		s.logger.Warn("failed to read directory",
			zap.String("location", loc.String()),
			zap.String("dir", dir),
			zap.Error(err))
		st.skip(domain.NewSkippableError(err, "read "+dir))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childRel := name
		if rel != "" {
			childRel = path.Join(rel, name)
		}

		switch {
		case entry.IsDir():
			// the rating buckets live under the base root but are scanned
			// as their own locations
			if loc.IsBase() && rel == "" && name == vo.SortedDirName {
				continue
			}
			wg.Add(1)
			go func(childDir, childRel string) {
				defer wg.Done()
				s.scanDir(ctx, loc, childDir, childRel, st, wg)
			}(filepath.Join(dir, name), childRel)

		case entry.Type().IsRegular():
			if vo.IsImageFile(name) {
				st.add(loc, childRel)
			}
		}
		// symlinks and other special files are not followed
	}
}

// Present reports whether p is currently a photo of bucket loc, by the same
// rules Scan applies
func (s *Scanner) Present(loc vo.Location, p string) bool {
	pp, err := vo.NewPhotoPath(p)
	if err != nil || !pp.BelongsTo(loc) {
		return false
	}
	info, err := os.Lstat(filepath.Join(s.fs.BucketDir(loc), filepath.FromSlash(p)))
	return err == nil && info.Mode().IsRegular()
}
