package vo

import (
	"errors"
	"path"
	"strings"
)

// PhotoPath is a slash-separated path relative to a bucket root (or to the
// library root, for thumbnail requests). It never escapes its root.
type PhotoPath struct {
	value string
}

var (
	ErrEmptyPath   = errors.New("photo path cannot be empty")
	ErrInvalidPath = errors.New("invalid photo path")
)

// imageExtensions is the allow-list of indexed file types.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
}

// NewPhotoPath validates and normalizes a relative photo path.
// Absolute paths, ".." segments, backslashes and NUL bytes are rejected.
func NewPhotoPath(p string) (PhotoPath, error) {
	if p == "" {
		return PhotoPath{}, ErrEmptyPath
	}
	if strings.ContainsAny(p, "\\\x00") || strings.HasPrefix(p, "/") {
		return PhotoPath{}, ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return PhotoPath{}, ErrInvalidPath
		}
	}

	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == "" {
		return PhotoPath{}, ErrEmptyPath
	}
	return PhotoPath{value: cleaned}, nil
}

// MustPhotoPath creates a PhotoPath, panicking if invalid.
// Use only when path is known to be valid.
func MustPhotoPath(p string) PhotoPath {
	pp, err := NewPhotoPath(p)
	if err != nil {
		panic(err)
	}
	return pp
}

// IsImageFile reports whether name carries an allowed image extension.
func IsImageFile(name string) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

// String returns the normalized path.
func (p PhotoPath) String() string {
	return p.value
}

// IsEmpty returns true if the path is empty.
func (p PhotoPath) IsEmpty() bool {
	return p.value == ""
}

// FileName returns the base name of the file.
func (p PhotoPath) FileName() string {
	return path.Base(p.value)
}

// Extension returns the file extension (including the dot).
func (p PhotoPath) Extension() string {
	return path.Ext(p.value)
}

// IsImage reports whether the path has an allowed image extension.
func (p PhotoPath) IsImage() bool {
	return IsImageFile(p.value)
}

// BelongsTo reports whether p names a photo that would be indexed in loc:
// an image file with no dot-prefixed segment which, for the base bucket,
// does not live under the sorted directory.
func (p PhotoPath) BelongsTo(loc Location) bool {
	if p.value == "" || !p.IsImage() {
		return false
	}
	segs := strings.Split(p.value, "/")
	if loc.IsBase() && len(segs) > 1 && segs[0] == SortedDirName {
		return false
	}
	for _, seg := range segs {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	return true
}

// Folder returns the directory part of the path, "" for top-level files.
func (p PhotoPath) Folder() string {
	return FolderOf(p.value)
}

// InBucket returns the path relative to the library root for loc.
func (p PhotoPath) InBucket(loc Location) string {
	if loc.IsBase() {
		return p.value
	}
	return loc.Dir() + "/" + p.value
}

// Equals checks if two paths are equal.
func (p PhotoPath) Equals(other PhotoPath) bool {
	return p.value == other.value
}

// FolderOf returns the folder of a slash-separated path, "" for top level.
func FolderOf(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// SplitBucket splits a library-root-relative path ("sorted/3/trip/a.jpg")
// into its bucket and the bucket-relative photo path ("trip/a.jpg").
func SplitBucket(rootRel PhotoPath) (Location, PhotoPath) {
	rest, ok := strings.CutPrefix(rootRel.value, SortedDirName+"/")
	if !ok {
		return Base, rootRel
	}
	rankPart, photo, ok := strings.Cut(rest, "/")
	if !ok {
		return Base, rootRel
	}
	loc, err := ParseLocation(SortedDirName + "/" + rankPart)
	if err != nil {
		return Base, rootRel
	}
	return loc, PhotoPath{value: photo}
}
