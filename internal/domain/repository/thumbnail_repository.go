package repository

import (
	"context"
	"time"
)

// ThumbnailEntry records a generated thumbnail and the library-root-relative
// path it was generated from
type ThumbnailEntry struct {
	Key        string
	SourcePath string
	CreatedAt  time.Time
}

// ThumbnailRepository tracks generated thumbnails so orphans can be collected
type ThumbnailRepository interface {
	// RecordThumbnail stores or refreshes a thumbnail entry
	RecordThumbnail(ctx context.Context, key, sourcePath string) error

	// OrphanedThumbnails returns entries whose source path no longer matches
	// any indexed photo
	OrphanedThumbnails(ctx context.Context, limit int) ([]*ThumbnailEntry, error)

	// DeleteThumbnail removes an entry
	DeleteThumbnail(ctx context.Context, key string) error

	// CountThumbnails returns the number of recorded thumbnails
	CountThumbnails(ctx context.Context) (int, error)
}
