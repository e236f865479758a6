package repository

import (
	"context"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

// PhotoRepository defines the interface for photo index persistence
type PhotoRepository interface {
	// Query returns every indexed path in a bucket
	Query(ctx context.Context, loc vo.Location) ([]string, error)

	// Count returns the number of photos in a bucket
	Count(ctx context.Context, loc vo.Location) (int, error)

	// PathAt returns the path at offset within a bucket, ordered by path.
	// Returns "" when offset is out of range
	PathAt(ctx context.Context, loc vo.Location, offset int) (string, error)

	// All returns every indexed photo
	All(ctx context.Context) ([]*domain.Photo, error)

	// ListFolder returns photos in folder across all buckets. With recursive
	// set, photos in subfolders are included. limit <= 0 means no limit
	ListFolder(ctx context.Context, folder string, recursive bool, limit int) ([]*domain.Photo, error)

	// Exists reports whether (path, loc) is indexed
	Exists(ctx context.Context, path string, loc vo.Location) (bool, error)

	// InsertBatch inserts photos in one transaction, ignoring duplicates
	InsertBatch(ctx context.Context, photos []*domain.Photo) error

	// DeleteBatch deletes photos in one transaction
	DeleteBatch(ctx context.Context, photos []*domain.Photo) error

	// Delete removes a single (path, loc) record
	Delete(ctx context.Context, path string, loc vo.Location) error

	// Move relocates a record from one bucket to another in one transaction,
	// so there is never a moment with zero or two records for the photo
	Move(ctx context.Context, path string, from, to vo.Location) error
}
