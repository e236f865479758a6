package domain

import (
	"strings"

	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

// FolderAggregate is a rating rollup for every photo under a folder,
// including its subfolders. It is derived on demand and never stored.
type FolderAggregate struct {
	FolderPath    string      `json:"folderPath"`
	AverageRank   float64     `json:"averageRank"`
	PhotoCount    int         `json:"photoCount"`
	UnsortedCount int         `json:"unsortedCount"`
	TotalPhotos   int         `json:"totalPhotos"`
	PhotosByRank  map[int]int `json:"photosByRank"`

	rankSum int
}

// NewFolderAggregate returns an empty aggregate for folder.
func NewFolderAggregate(folder string) *FolderAggregate {
	byRank := make(map[int]int, vo.MaxRank)
	for r := vo.MinRank; r <= vo.MaxRank; r++ {
		byRank[r] = 0
	}
	return &FolderAggregate{FolderPath: folder, PhotosByRank: byRank}
}

// Add counts one photo in the given bucket.
func (a *FolderAggregate) Add(loc vo.Location) {
	a.TotalPhotos++
	if loc.IsBase() {
		a.UnsortedCount++
		return
	}
	a.PhotoCount++
	a.PhotosByRank[loc.Rank()]++
	a.rankSum += loc.Rank()
	a.AverageRank = float64(a.rankSum) / float64(a.PhotoCount)
}

// NormalizeFolder truncates folder to at most maxDepth segments.
// maxDepth <= 0 leaves the folder untouched.
func NormalizeFolder(folder string, maxDepth int) string {
	folder = strings.Trim(folder, "/")
	if maxDepth <= 0 || folder == "" {
		return folder
	}
	parts := strings.Split(folder, "/")
	if len(parts) <= maxDepth {
		return folder
	}
	return strings.Join(parts[:maxDepth], "/")
}

// FolderAncestors returns folder and all of its ancestors, ending with the
// root folder "".
func FolderAncestors(folder string) []string {
	folder = strings.Trim(folder, "/")
	out := []string{}
	for folder != "" {
		out = append(out, folder)
		i := strings.LastIndex(folder, "/")
		if i < 0 {
			break
		}
		folder = folder[:i]
	}
	return append(out, "")
}
