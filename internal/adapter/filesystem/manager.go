package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/photo-triage/internal/domain/vo"
	"github.com/vertextoedge/photo-triage/internal/port"
)

// tempSuffix marks thumbnails that are still being written
const tempSuffix = ".tmp"

// ErrDestinationExists is returned when a move would overwrite a file
var ErrDestinationExists = errors.New("destination already exists")

// Manager handles local filesystem operations for the photo library and
// the thumbnail cache
type Manager struct {
	rootDir      string
	thumbnailDir string
	bufferSize   int
}

// Ensure Manager implements the filesystem ports
var (
	_ port.PhotoFS     = (*Manager)(nil)
	_ port.ThumbnailFS = (*Manager)(nil)
)

// NewManager creates a new filesystem manager and the library layout:
// the root, sorted/1..sorted/5 and the thumbnail directory
func NewManager(rootDir, thumbnailDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, thumbnailDir, 256*1024)
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir, thumbnailDir string, bufferSize int) (*Manager, error) {
	if thumbnailDir == "" {
		thumbnailDir = filepath.Join(rootDir, ".thumbnails")
	}
	if bufferSize <= 0 {
		bufferSize = 256 * 1024
	}

	m := &Manager{
		rootDir:      rootDir,
		thumbnailDir: thumbnailDir,
		bufferSize:   bufferSize,
	}

	for _, loc := range vo.AllLocations() {
		if err := os.MkdirAll(m.BucketDir(loc), 0755); err != nil {
			return nil, fmt.Errorf("failed to create bucket dir %s: %w", loc, err)
		}
	}
	if err := os.MkdirAll(thumbnailDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail dir: %w", err)
	}

	return m, nil
}

// RootDir returns the library root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// ThumbnailDir returns the thumbnail cache root
func (m *Manager) ThumbnailDir() string {
	return m.thumbnailDir
}

// BucketDir returns the absolute directory of a bucket
func (m *Manager) BucketDir(loc vo.Location) string {
	if loc.IsBase() {
		return m.rootDir
	}
	return filepath.Join(m.rootDir, filepath.FromSlash(loc.Dir()))
}

// PhotoPath returns the absolute path of a photo in a bucket
func (m *Manager) PhotoPath(loc vo.Location, path string) string {
	return filepath.Join(m.BucketDir(loc), filepath.FromSlash(path))
}

// Exists reports whether a regular file exists at path in bucket loc
func (m *Manager) Exists(loc vo.Location, path string) bool {
	info, err := os.Stat(m.PhotoPath(loc, path))
	return err == nil && info.Mode().IsRegular()
}

// MovePhoto renames a photo between buckets. The rename is a single
// os.Rename call, so it either fully happens or not at all
func (m *Manager) MovePhoto(path string, from, to vo.Location) error {
	src := m.PhotoPath(from, path)
	dst := m.PhotoPath(to, path)

	if err := m.EnsureDir(dst); err != nil {
		return fmt.Errorf("failed to create destination dir: %w", err)
	}

	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}

// EnsureDir ensures the directory for a file path exists
func (m *Manager) EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0755)
}

// ThumbnailPath returns the sharded cache path for a key:
// <thumbnailDir>/<key[0:2]>/<key[2:4]>/<key>.jpg
func (m *Manager) ThumbnailPath(key string) string {
	if len(key) < 4 {
		return filepath.Join(m.thumbnailDir, key+".jpg")
	}
	return filepath.Join(m.thumbnailDir, key[0:2], key[2:4], key+".jpg")
}

// WriteThumbnail writes content to the thumbnail cache
func (m *Manager) WriteThumbnail(key string, reader io.Reader) (string, int64, error) {
	cachePath := m.ThumbnailPath(key)

	// Ensure parent directory exists
	if err := m.EnsureDir(cachePath); err != nil {
		return "", 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(cachePath), key+"-*"+tempSuffix)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to close file: %w", err)
	}

	// Rename to final path
	if err := os.Rename(tempPath, cachePath); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return cachePath, written, nil
}

// DeleteFile removes a file
func (m *Manager) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// FileExists checks if a file exists
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetCacheSize returns total size of the thumbnail cache
func (m *Manager) GetCacheSize() (int64, error) {
	var size int64
	err := filepath.WalkDir(m.thumbnailDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// CleanOldTempFiles removes thumbnail temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.WalkDir(m.thumbnailDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, tempSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}
