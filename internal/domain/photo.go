package domain

import (
	"time"

	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

// Photo is one indexed photo file: its path relative to the bucket root and
// the bucket it currently lives in. (Path, Location) is unique.
type Photo struct {
	ID        int64
	Path      string
	Location  vo.Location
	IndexedAt time.Time
}

// Key identifies a photo record independently of its database ID.
type Key struct {
	Path     string
	Location vo.Location
}

// Key returns the (path, location) identity of the photo.
func (p *Photo) Key() Key {
	return Key{Path: p.Path, Location: p.Location}
}

// RootPath returns the photo's path relative to the library root.
func (p *Photo) RootPath() string {
	if p.Location.IsBase() {
		return p.Path
	}
	return p.Location.Dir() + "/" + p.Path
}

// Folder returns the folder part of the photo's bucket-relative path.
func (p *Photo) Folder() string {
	return vo.FolderOf(p.Path)
}

// IndexStats is a snapshot of photo counts per bucket.
type IndexStats struct {
	Counts map[vo.Location]int
	Total  int
}

// NewIndexStats builds stats from per-location counts.
func NewIndexStats(counts map[vo.Location]int) *IndexStats {
	s := &IndexStats{Counts: make(map[vo.Location]int, len(counts))}
	for _, loc := range vo.AllLocations() {
		s.Counts[loc] = counts[loc]
		s.Total += counts[loc]
	}
	return s
}

// ByName returns counts keyed by the persisted location name.
func (s *IndexStats) ByName() map[string]int {
	out := make(map[string]int, len(s.Counts))
	for loc, n := range s.Counts {
		out[loc.String()] = n
	}
	return out
}
