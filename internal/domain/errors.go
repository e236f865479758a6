package domain

import (
	"errors"

	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

// Common domain errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// Selection errors
	ErrNoPhotosAvailable = errors.New("no photos available")

	// Rating errors
	ErrPhotoNotFound   = errors.New("photo not found")
	ErrInvalidRating   = errors.New("rating must be an integer between 1 and 5")
	ErrInvalidLocation = vo.ErrInvalidLocation
	ErrMissingField    = errors.New("missing photo or directory")
	ErrMoveFailed      = errors.New("failed to move photo")

	// Thumbnail errors
	ErrInvalidPath               = vo.ErrInvalidPath
	ErrOriginalNotFound          = errors.New("original photo not found")
	ErrThumbnailGenerationFailed = errors.New("thumbnail generation failed")

	// Index errors
	ErrIndexIO = errors.New("photo index I/O error")
)

// SkippableError represents an error that can be logged and skipped.
// Processing can continue with the next item when this error occurs.
type SkippableError struct {
	Err     error
	Context string
}

// Error returns the error message
func (e *SkippableError) Error() string {
	if e.Context != "" {
		if e.Err != nil {
			return e.Context + ": " + e.Err.Error()
		}
		return e.Context
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "skippable error"
}

// Unwrap returns the underlying error
func (e *SkippableError) Unwrap() error {
	return e.Err
}

// NewSkippableError creates a new skippable error
func NewSkippableError(err error, context string) *SkippableError {
	return &SkippableError{Err: err, Context: context}
}

// IsSkippable returns true if the error can be skipped
func IsSkippable(err error) bool {
	var se *SkippableError
	return errors.As(err, &se)
}
