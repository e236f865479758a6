package ranks

import (
	"cmp"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
	"github.com/vertextoedge/photo-triage/internal/port"
)

// Listing limits for folder image endpoints
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// CSVHeader is the header row of the rankings export
var CSVHeader = []string{
	"folder", "average_rank", "photo_count", "unsorted_count", "total_photos",
	"rank_1", "rank_2", "rank_3", "rank_4", "rank_5",
}

// Config holds aggregation settings
type Config struct {
	MaxDepth int // Folder depth photos are rolled up to; 0 = unlimited
}

// Image is one photo in a folder listing
type Image struct {
	Photo     string `json:"photo"`
	Directory string `json:"directory"`
	Rank      int    `json:"rank"`
}

// Service derives folder rating aggregates from the index. Nothing is
// cached; every call reads the index afresh
type Service struct {
	config *Config
	photos port.PhotoRepository
	logger *zap.Logger
}

// New creates a new ranks service
func New(cfg *Config, photos port.PhotoRepository, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Service{config: cfg, photos: photos, logger: logger}
}

// Compute aggregates every folder, ordered by average rank (highest first)
// and then by path
func (s *Service) Compute(ctx context.Context) ([]*domain.FolderAggregate, error) {
	photos, err := s.photos.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	byFolder := make(map[string]*domain.FolderAggregate)
	for _, p := range photos {
		folder := domain.NormalizeFolder(p.Folder(), s.config.MaxDepth)
		for _, f := range domain.FolderAncestors(folder) {
			agg, ok := byFolder[f]
			if !ok {
				agg = domain.NewFolderAggregate(f)
				byFolder[f] = agg
			}
			agg.Add(p.Location)
		}
	}

	out := make([]*domain.FolderAggregate, 0, len(byFolder))
	for _, agg := range byFolder {
		out = append(out, agg)
	}
	slices.SortFunc(out, func(a, b *domain.FolderAggregate) int {
		if c := cmp.Compare(b.AverageRank, a.AverageRank); c != 0 {
			return c
		}
		return strings.Compare(a.FolderPath, b.FolderPath)
	})

	s.logger.Debug("folder ranks computed",
		zap.Int("photos", len(photos)),
		zap.Int("folders", len(out)))

	return out, nil
}

// Folder aggregates a single folder including its subfolders. A folder
// deeper than MaxDepth reports the ancestor it is grouped under, as in
// Compute. An unknown folder yields an empty aggregate
func (s *Service) Folder(ctx context.Context, folder string) (*domain.FolderAggregate, error) {
	folder = domain.NormalizeFolder(folder, s.config.MaxDepth)
	photos, err := s.photos.ListFolder(ctx, folder, true, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder: %w", err)
	}

	agg := domain.NewFolderAggregate(folder)
	for _, p := range photos {
		agg.Add(p.Location)
	}
	return agg, nil
}

// WriteCSV writes every folder aggregate as CSV
func (s *Service) WriteCSV(ctx context.Context, w io.Writer) error {
	aggs, err := s.Compute(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, a := range aggs {
		folder := a.FolderPath
		if folder == "" {
			folder = "/"
		}
		row := []string{
			folder,
			strconv.FormatFloat(a.AverageRank, 'f', 2, 64),
			strconv.Itoa(a.PhotoCount),
			strconv.Itoa(a.UnsortedCount),
			strconv.Itoa(a.TotalPhotos),
		}
		for r := vo.MinRank; r <= vo.MaxRank; r++ {
			row = append(row, strconv.Itoa(a.PhotosByRank[r]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// HasImages reports whether any photo lives in folder or below it
func (s *Service) HasImages(ctx context.Context, folder string) (bool, error) {
	photos, err := s.photos.ListFolder(ctx, strings.Trim(folder, "/"), true, 1)
	if err != nil {
		return false, fmt.Errorf("failed to list folder: %w", err)
	}
	return len(photos) > 0, nil
}

// Images lists photos in folder, across all buckets. limit is clamped to
// 1..MaxLimit, with DefaultLimit for limit <= 0
func (s *Service) Images(ctx context.Context, folder string, recursive bool, limit int) ([]Image, error) {
	limit = ClampLimit(limit)

	photos, err := s.photos.ListFolder(ctx, strings.Trim(folder, "/"), recursive, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder: %w", err)
	}

	out := make([]Image, 0, len(photos))
	for _, p := range photos {
		out = append(out, Image{
			Photo:     p.Path,
			Directory: p.Location.Dir(),
			Rank:      p.Location.Rank(),
		})
	}
	return out, nil
}

// ClampLimit applies the listing limit defaults
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
