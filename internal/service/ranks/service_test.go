package ranks

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/adapter/sqlite"
	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

func seed(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	photos := []*domain.Photo{
		{Path: "top.jpg", Location: vo.Base},
		{Path: "trip/a.jpg", Location: vo.Sorted(5)},
		{Path: "trip/b.jpg", Location: vo.Sorted(3)},
		{Path: "trip/c.jpg", Location: vo.Base},
		{Path: "trip/day1/d.jpg", Location: vo.Sorted(4)},
		{Path: "home/e.jpg", Location: vo.Sorted(1)},
	}
	require.NoError(t, store.InsertBatch(context.Background(), photos))
	return store
}

func byPath(aggs []*domain.FolderAggregate) map[string]*domain.FolderAggregate {
	out := make(map[string]*domain.FolderAggregate, len(aggs))
	for _, a := range aggs {
		out[a.FolderPath] = a
	}
	return out
}

func checkInvariants(t *testing.T, a *domain.FolderAggregate) {
	t.Helper()
	assert.Equal(t, a.TotalPhotos, a.PhotoCount+a.UnsortedCount, "folder %q totals", a.FolderPath)
	sum := 0
	for _, n := range a.PhotosByRank {
		sum += n
	}
	assert.Equal(t, a.PhotoCount, sum, "folder %q rank sum", a.FolderPath)
}

func TestCompute(t *testing.T) {
	svc := New(nil, seed(t), zap.NewNop())

	aggs, err := svc.Compute(context.Background())
	require.NoError(t, err)
	for _, a := range aggs {
		checkInvariants(t, a)
	}

	m := byPath(aggs)
	require.Len(t, m, 4)

	root := m[""]
	assert.Equal(t, 6, root.TotalPhotos)
	assert.Equal(t, 4, root.PhotoCount)
	assert.InDelta(t, 13.0/4, root.AverageRank, 1e-9)

	trip := m["trip"]
	assert.Equal(t, 4, trip.TotalPhotos)
	assert.Equal(t, 1, trip.UnsortedCount)
	assert.InDelta(t, 4.0, trip.AverageRank, 1e-9)

	assert.Equal(t, 1, m["trip/day1"].PhotosByRank[4])
	assert.Equal(t, 1.0, m["home"].AverageRank)

	// highest average first
	assert.Equal(t, "trip", aggs[0].FolderPath)
	assert.Equal(t, "trip/day1", aggs[1].FolderPath)
	assert.Equal(t, "home", aggs[len(aggs)-1].FolderPath)
}

func TestCompute_MaxDepth(t *testing.T) {
	svc := New(&Config{MaxDepth: 1}, seed(t), zap.NewNop())

	aggs, err := svc.Compute(context.Background())
	require.NoError(t, err)

	m := byPath(aggs)
	assert.NotContains(t, m, "trip/day1")
	assert.Equal(t, 4, m["trip"].TotalPhotos)

	// a folder below the cutoff answers with the row Compute lists for it
	deep, err := svc.Folder(context.Background(), "trip/day1")
	require.NoError(t, err)
	assert.Equal(t, m["trip"], deep)
}

func TestFolder(t *testing.T) {
	svc := New(nil, seed(t), zap.NewNop())

	agg, err := svc.Folder(context.Background(), "/trip/")
	require.NoError(t, err)
	checkInvariants(t, agg)
	assert.Equal(t, "trip", agg.FolderPath)
	assert.Equal(t, 4, agg.TotalPhotos)
	assert.InDelta(t, 4.0, agg.AverageRank, 1e-9)

	empty, err := svc.Folder(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalPhotos)
	assert.Zero(t, empty.AverageRank)
}

func TestWriteCSV(t *testing.T) {
	svc := New(nil, seed(t), zap.NewNop())

	var buf bytes.Buffer
	require.NoError(t, svc.WriteCSV(context.Background(), &buf))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"trip", "4.00", "3", "1", "4", "0", "0", "1", "1", "1"}, rows[1])
}

func TestImages(t *testing.T) {
	svc := New(nil, seed(t), zap.NewNop())
	ctx := context.Background()

	imgs, err := svc.Images(ctx, "trip", false, 0)
	require.NoError(t, err)
	require.Len(t, imgs, 3)
	assert.Equal(t, Image{Photo: "trip/a.jpg", Directory: "sorted/5", Rank: 5}, imgs[0])
	assert.Equal(t, Image{Photo: "trip/c.jpg", Directory: "", Rank: 0}, imgs[2])

	imgs, err = svc.Images(ctx, "trip", true, 2)
	require.NoError(t, err)
	assert.Len(t, imgs, 2)

	has, err := svc.HasImages(ctx, "trip/day1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = svc.HasImages(ctx, "nowhere")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxLimit, ClampLimit(50000))
}
