package port

import (
	"io"
	"time"

	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// PhotoFS defines the filesystem operations on the photo library
type PhotoFS interface {
	// RootDir returns the library root directory
	RootDir() string

	// BucketDir returns the absolute directory of a bucket
	BucketDir(loc vo.Location) string

	// PhotoPath returns the absolute path of a photo in a bucket
	PhotoPath(loc vo.Location, path string) string

	// Exists reports whether a regular file exists at path in bucket loc
	Exists(loc vo.Location, path string) bool

	// MovePhoto renames a photo from one bucket to another, creating
	// destination directories. It never overwrites an existing file
	MovePhoto(path string, from, to vo.Location) error
}

// ThumbnailFS defines the on-disk thumbnail cache operations
type ThumbnailFS interface {
	// ThumbnailDir returns the thumbnail cache root
	ThumbnailDir() string

	// ThumbnailPath returns the sharded cache path for a key
	ThumbnailPath(key string) string

	// WriteThumbnail writes content to the cache path for key through a
	// temp file and an atomic rename
	WriteThumbnail(key string, reader io.Reader) (string, int64, error)

	// FileExists checks if a file exists
	FileExists(path string) bool

	// DeleteFile removes a file, ignoring missing files
	DeleteFile(path string) error

	// GetCacheSize returns total size of the thumbnail cache
	GetCacheSize() (int64, error)

	// GetDiskUsage returns disk usage statistics for the thumbnail cache
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes temp files older than the specified duration
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}
