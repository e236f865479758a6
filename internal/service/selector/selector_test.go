package selector

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
	"github.com/vertextoedge/photo-triage/internal/port"
	"github.com/vertextoedge/photo-triage/internal/service/indexer"
)

// memIndex is an in-memory port.PhotoRepository ordered by path
type memIndex struct {
	port.PhotoRepository

	mu      sync.Mutex
	buckets map[vo.Location][]string
	deleted []string
	failing error
}

func newMemIndex() *memIndex {
	return &memIndex{buckets: make(map[vo.Location][]string)}
}

func (m *memIndex) put(loc vo.Location, paths ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[loc] = append(m.buckets[loc], paths...)
	slices.Sort(m.buckets[loc])
}

func (m *memIndex) Count(ctx context.Context, loc vo.Location) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return 0, m.failing
	}
	return len(m.buckets[loc]), nil
}

func (m *memIndex) PathAt(ctx context.Context, loc vo.Location, offset int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset < 0 || offset >= len(m.buckets[loc]) {
		return "", nil
	}
	return m.buckets[loc][offset], nil
}

func (m *memIndex) Delete(ctx context.Context, path string, loc vo.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[loc] = slices.DeleteFunc(m.buckets[loc], func(p string) bool { return p == path })
	m.deleted = append(m.deleted, loc.String()+":"+path)
	return nil
}

// diskSet is a fake Existence
type diskSet map[string]bool

func (d diskSet) Exists(loc vo.Location, path string) bool {
	return d[loc.String()+":"+path]
}

func (d diskSet) add(loc vo.Location, paths ...string) {
	for _, p := range paths {
		d[loc.String()+":"+p] = true
	}
}

// fakeReconciler runs fn on every call
type fakeReconciler struct {
	calls atomic.Int32
	fn    func(ctx context.Context) error
}

func (f *fakeReconciler) Reconcile(ctx context.Context) (*indexer.Result, error) {
	f.calls.Add(1)
	if f.fn != nil {
		if err := f.fn(ctx); err != nil {
			return nil, err
		}
	}
	return &indexer.Result{}, nil
}

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(1, 2)))
}

func newService(cfg *Config, idx *memIndex, disk diskSet, rec Reconciler) *Service {
	return New(cfg, idx, disk, rec, nil, zap.NewNop(), seeded())
}

func TestSelect_PrefersBase(t *testing.T) {
	idx, disk := newMemIndex(), diskSet{}
	idx.put(vo.Base, "a.jpg", "b.jpg")
	idx.put(vo.Sorted(3), "c.jpg")
	disk.add(vo.Base, "a.jpg", "b.jpg")
	disk.add(vo.Sorted(3), "c.jpg")

	cfg := DefaultConfig()
	cfg.SortedProbability = 0
	svc := newService(cfg, idx, disk, nil)

	for i := 0; i < 50; i++ {
		sel, err := svc.Select(context.Background())
		require.NoError(t, err)
		assert.True(t, sel.Location.IsBase())
	}
}

func TestSelect_WeightedDistribution(t *testing.T) {
	idx, disk := newMemIndex(), diskSet{}
	for _, loc := range vo.AllLocations() {
		idx.put(loc, "p.jpg")
		disk.add(loc, "p.jpg")
	}

	cfg := DefaultConfig()
	cfg.SortedProbability = 1
	svc := newService(cfg, idx, disk, nil)

	const draws = 20000
	counts := make(map[int]int)
	for i := 0; i < draws; i++ {
		sel, err := svc.Select(context.Background())
		require.NoError(t, err)
		counts[sel.Location.Rank()]++
	}

	assert.Zero(t, counts[0], "base chosen while sorted preferred and available")
	assert.Zero(t, counts[1], "rank 1 must never be a weighted target")
	for rank, weight := range map[int]int{2: 20, 3: 30, 4: 30, 5: 20} {
		got := float64(counts[rank]) / draws
		want := float64(weight) / 100
		assert.InDelta(t, want, got, 0.02, "rank %d share", rank)
	}
}

func TestSelect_SortedPreferenceRatio(t *testing.T) {
	idx, disk := newMemIndex(), diskSet{}
	idx.put(vo.Base, "a.jpg")
	idx.put(vo.Sorted(4), "b.jpg")
	disk.add(vo.Base, "a.jpg")
	disk.add(vo.Sorted(4), "b.jpg")

	svc := newService(nil, idx, disk, nil)

	const draws = 20000
	sorted := 0
	for i := 0; i < draws; i++ {
		sel, err := svc.Select(context.Background())
		require.NoError(t, err)
		if sel.Location.IsSorted() {
			sorted++
		}
	}
	assert.InDelta(t, 0.2, float64(sorted)/draws, 0.02)
}

func TestSelect_EmptyWeightedBucketFallsBackToOtherSorted(t *testing.T) {
	idx, disk := newMemIndex(), diskSet{}
	idx.put(vo.Base, "a.jpg")
	idx.put(vo.Sorted(5), "z.jpg")
	disk.add(vo.Base, "a.jpg")
	disk.add(vo.Sorted(5), "z.jpg")

	cfg := DefaultConfig()
	cfg.SortedProbability = 1
	svc := newService(cfg, idx, disk, nil)

	for i := 0; i < 50; i++ {
		sel, err := svc.Select(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, sel.Location.Rank())
	}
}

func TestSelect_EvictsMissingFiles(t *testing.T) {
	idx, disk := newMemIndex(), diskSet{}
	idx.put(vo.Base, "gone1.jpg", "gone2.jpg", "here.jpg")
	disk.add(vo.Base, "here.jpg")

	cfg := DefaultConfig()
	cfg.SortedProbability = 0
	svc := newService(cfg, idx, disk, nil)

	sel, err := svc.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "here.jpg", sel.Path)

	// keep selecting until both stale records are gone
	for i := 0; i < 20; i++ {
		_, err := svc.Select(context.Background())
		require.NoError(t, err)
	}
	n, _ := idx.Count(context.Background(), vo.Base)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"base:gone1.jpg", "base:gone2.jpg"}, idx.deleted)
}

func TestSelect_OnlyRankOnePhotos(t *testing.T) {
	idx, disk := newMemIndex(), diskSet{}
	idx.put(vo.Sorted(1), "meh.jpg")
	disk.add(vo.Sorted(1), "meh.jpg")

	rec := &fakeReconciler{}
	svc := newService(nil, idx, disk, rec)

	sel, err := svc.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Location.Rank())
	assert.Zero(t, rec.calls.Load())
}

func TestSelect_ReconcilesWhenEmpty(t *testing.T) {
	idx, disk := newMemIndex(), diskSet{}
	disk.add(vo.Base, "fresh.jpg")

	rec := &fakeReconciler{fn: func(ctx context.Context) error {
		idx.put(vo.Base, "fresh.jpg")
		return nil
	}}
	svc := newService(nil, idx, disk, rec)

	sel, err := svc.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh.jpg", sel.Path)
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestSelect_NoPhotosAvailable(t *testing.T) {
	rec := &fakeReconciler{fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	cfg := DefaultConfig()
	cfg.ReconcileTimeout = 20 * time.Millisecond
	svc := newService(cfg, newMemIndex(), diskSet{}, rec)

	start := time.Now()
	_, err := svc.Select(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoPhotosAvailable)
	assert.Less(t, time.Since(start), time.Second, "reconcile timeout not applied")
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestSelect_IndexError(t *testing.T) {
	idx := newMemIndex()
	idx.failing = domain.ErrIndexIO

	svc := newService(nil, idx, diskSet{}, &fakeReconciler{})
	_, err := svc.Select(context.Background())
	assert.True(t, errors.Is(err, domain.ErrIndexIO))
}

func TestNew_RankOrder(t *testing.T) {
	svc := New(nil, newMemIndex(), diskSet{}, nil, nil, zap.NewNop())
	assert.Equal(t, []int{3, 4, 2, 5}, svc.ranks)

	total := 0
	for _, r := range svc.ranks {
		total += svc.config.Weights[r]
	}
	assert.Equal(t, 100, total)
	assert.False(t, math.IsNaN(svc.roll()))
}
