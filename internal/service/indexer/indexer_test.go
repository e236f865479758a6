package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/adapter/filesystem"
	"github.com/vertextoedge/photo-triage/internal/adapter/sqlite"
	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

// mockPhotoRepository implements port.PhotoRepository and
// port.StatsRepository for testing
type mockPhotoRepository struct {
	mu        sync.Mutex
	photos    map[domain.Key]*domain.Photo
	insertErr []error // consumed one per InsertBatch call
	allCalls  atomic.Int32
	allGate   chan struct{}
	allEnter  chan struct{}
}

func newMockRepo() *mockPhotoRepository {
	return &mockPhotoRepository{photos: make(map[domain.Key]*domain.Photo)}
}

func (m *mockPhotoRepository) Query(ctx context.Context, loc vo.Location) ([]string, error) {
	return nil, nil
}
func (m *mockPhotoRepository) Count(ctx context.Context, loc vo.Location) (int, error) {
	return 0, nil
}
func (m *mockPhotoRepository) PathAt(ctx context.Context, loc vo.Location, offset int) (string, error) {
	return "", nil
}
func (m *mockPhotoRepository) All(ctx context.Context) ([]*domain.Photo, error) {
	m.allCalls.Add(1)
	if m.allEnter != nil {
		m.allEnter <- struct{}{}
	}
	if m.allGate != nil {
		<-m.allGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Photo, 0, len(m.photos))
	for _, p := range m.photos {
		out = append(out, p)
	}
	return out, nil
}
func (m *mockPhotoRepository) ListFolder(ctx context.Context, folder string, recursive bool, limit int) ([]*domain.Photo, error) {
	return nil, nil
}
func (m *mockPhotoRepository) Exists(ctx context.Context, path string, loc vo.Location) (bool, error) {
	return false, nil
}
func (m *mockPhotoRepository) InsertBatch(ctx context.Context, photos []*domain.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.insertErr) > 0 {
		err := m.insertErr[0]
		m.insertErr = m.insertErr[1:]
		if err != nil {
			return err
		}
	}
	for _, p := range photos {
		m.photos[p.Key()] = p
	}
	return nil
}
func (m *mockPhotoRepository) DeleteBatch(ctx context.Context, photos []*domain.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range photos {
		delete(m.photos, p.Key())
	}
	return nil
}
func (m *mockPhotoRepository) Delete(ctx context.Context, path string, loc vo.Location) error {
	return nil
}
func (m *mockPhotoRepository) Move(ctx context.Context, path string, from, to vo.Location) error {
	return nil
}
func (m *mockPhotoRepository) GetIndexStats(ctx context.Context) (*domain.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[vo.Location]int)
	for k := range m.photos {
		counts[k.Location]++
	}
	return domain.NewIndexStats(counts), nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func newLibrary(t *testing.T) *filesystem.Manager {
	t.Helper()
	fs, err := filesystem.NewManager(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return fs
}

func TestService_ReconcileAgainstSQLite(t *testing.T) {
	fs := newLibrary(t)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	touch(t, fs.PhotoPath(vo.Base, "a.jpg"))
	touch(t, fs.PhotoPath(vo.Base, "trip/b.JPG"))
	touch(t, fs.PhotoPath(vo.Sorted(3), "trip/c.png"))
	touch(t, fs.PhotoPath(vo.Base, "notes.txt"))

	logger := zap.NewNop()
	svc := New(&Config{BatchSize: 1}, store, store, NewScanner(nil, fs, logger), nil, logger)
	ctx := context.Background()

	res, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Added != 3 || res.Removed != 0 || res.Errors != 0 {
		t.Errorf("first pass = %+v", res)
	}
	if res.Counts["base"] != 2 || res.Counts["sorted/3"] != 1 {
		t.Errorf("Counts = %v", res.Counts)
	}

	// idempotent
	res, err = svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Added != 0 || res.Removed != 0 {
		t.Errorf("second pass = %+v", res)
	}

	// a file moved outside the service is picked up in its new bucket
	if err := fs.MovePhoto("a.jpg", vo.Base, vo.Sorted(5)); err != nil {
		t.Fatal(err)
	}
	res, err = svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Added != 1 || res.Removed != 1 {
		t.Errorf("third pass = %+v", res)
	}
	ok, _ := store.Exists(ctx, "a.jpg", vo.Sorted(5))
	if !ok {
		t.Error("moved photo not indexed in sorted/5")
	}
	if svc.LastResult() != res {
		t.Error("LastResult() is not the latest pass")
	}
}

func TestService_FailedBatchDoesNotStopPass(t *testing.T) {
	fs := newLibrary(t)
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		touch(t, fs.PhotoPath(vo.Base, name))
	}

	repo := newMockRepo()
	repo.insertErr = []error{errors.New("disk I/O error"), nil}

	logger := zap.NewNop()
	svc := New(&Config{BatchSize: 2}, repo, repo, NewScanner(nil, fs, logger), nil, logger)

	res, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Errors != 1 || res.Added != 2 {
		t.Errorf("result = %+v, want 1 failed batch and 2 added", res)
	}

	// the next pass repairs what the failed batch missed
	res, err = svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Added != 2 || res.Counts["base"] != 4 {
		t.Errorf("repair pass = %+v", res)
	}
}

func TestService_ConcurrentCallersShareOnePass(t *testing.T) {
	fs := newLibrary(t)
	touch(t, fs.PhotoPath(vo.Base, "a.jpg"))

	repo := newMockRepo()
	repo.allGate = make(chan struct{})
	repo.allEnter = make(chan struct{}, 10)

	logger := zap.NewNop()
	svc := New(nil, repo, repo, NewScanner(nil, fs, logger), nil, logger)

	var wg sync.WaitGroup
	results := make(chan *Result, 5)
	call := func() {
		defer wg.Done()
		res, err := svc.Reconcile(context.Background())
		if err != nil {
			t.Errorf("Reconcile() error = %v", err)
			return
		}
		results <- res
	}

	wg.Add(1)
	go call()
	<-repo.allEnter

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go call()
	}
	time.Sleep(50 * time.Millisecond)
	close(repo.allGate)
	wg.Wait()
	close(results)

	if n := repo.allCalls.Load(); n != 1 {
		t.Errorf("index loaded %d times, want 1", n)
	}
	var first *Result
	for res := range results {
		if first == nil {
			first = res
		}
		if res != first {
			t.Error("callers received different results")
		}
	}
}

func TestService_CallerCancelDoesNotAbortPass(t *testing.T) {
	fs := newLibrary(t)
	touch(t, fs.PhotoPath(vo.Base, "a.jpg"))

	repo := newMockRepo()
	repo.allGate = make(chan struct{})
	repo.allEnter = make(chan struct{}, 1)

	logger := zap.NewNop()
	svc := New(nil, repo, repo, NewScanner(nil, fs, logger), nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Reconcile(ctx)
		errCh <- err
	}()

	<-repo.allEnter
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Reconcile() error = %v, want context.Canceled", err)
	}

	close(repo.allGate)
	deadline := time.Now().Add(2 * time.Second)
	for svc.LastResult() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if svc.LastResult() == nil || svc.LastResult().Added != 1 {
		t.Errorf("shared pass did not finish: %+v", svc.LastResult())
	}
}

func TestService_RatingDuringScanIsNotUndone(t *testing.T) {
	fs := newLibrary(t)
	touch(t, fs.PhotoPath(vo.Base, "a.jpg"))
	touch(t, fs.PhotoPath(vo.Base, "b.jpg"))

	repo := newMockRepo()
	repo.photos[domain.Key{Path: "a.jpg", Location: vo.Base}] = &domain.Photo{Path: "a.jpg", Location: vo.Base}
	repo.allGate = make(chan struct{})
	repo.allEnter = make(chan struct{}, 1)

	logger := zap.NewNop()
	svc := New(nil, repo, repo, NewScanner(nil, fs, logger), nil, logger)

	resCh := make(chan *Result, 1)
	go func() {
		res, err := svc.Reconcile(context.Background())
		if err != nil {
			t.Errorf("Reconcile() error = %v", err)
		}
		resCh <- res
	}()

	// the scan has seen a.jpg in base; it is rated before the index is read
	<-repo.allEnter
	if err := fs.MovePhoto("a.jpg", vo.Base, vo.Sorted(4)); err != nil {
		t.Fatal(err)
	}
	repo.mu.Lock()
	delete(repo.photos, domain.Key{Path: "a.jpg", Location: vo.Base})
	repo.photos[domain.Key{Path: "a.jpg", Location: vo.Sorted(4)}] = &domain.Photo{Path: "a.jpg", Location: vo.Sorted(4)}
	repo.mu.Unlock()
	close(repo.allGate)

	res := <-resCh
	if res == nil {
		t.Fatal("no result")
	}
	if res.Added != 1 || res.Removed != 0 {
		t.Errorf("result = %+v, want only b.jpg added", res)
	}
	if res.Counts["sorted/4"] != 1 || res.Counts["base"] != 1 {
		t.Errorf("Counts = %v", res.Counts)
	}
}

func TestService_RemovesRowsOutsideTheirBucket(t *testing.T) {
	fs := newLibrary(t)
	touch(t, fs.PhotoPath(vo.Sorted(3), "b.jpg"))

	repo := newMockRepo()
	bogus := &domain.Photo{Path: "sorted/3/b.jpg", Location: vo.Base}
	repo.photos[bogus.Key()] = bogus

	logger := zap.NewNop()
	svc := New(nil, repo, repo, NewScanner(nil, fs, logger), nil, logger)

	res, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Removed != 1 || res.Added != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.Counts["base"] != 0 || res.Counts["sorted/3"] != 1 {
		t.Errorf("Counts = %v", res.Counts)
	}
}

func TestService_StartStop(t *testing.T) {
	fs := newLibrary(t)
	touch(t, fs.PhotoPath(vo.Sorted(2), "x.jpg"))

	repo := newMockRepo()
	logger := zap.NewNop()
	svc := New(nil, repo, repo, NewScanner(nil, fs, logger), nil, logger)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// second start is a no-op
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for svc.LastResult() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	svc.Stop()
	svc.Stop()

	if svc.LastResult() == nil || svc.LastResult().Counts["sorted/2"] != 1 {
		t.Errorf("initial reconciliation result = %+v", svc.LastResult())
	}
}
