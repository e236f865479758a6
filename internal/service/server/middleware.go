package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/metrics"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingMiddleware tags every request with an ID, logs it and counts it
func LoggingMiddleware(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()[:8]
			}
			w.Header().Set(RequestIDHeader, requestID)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.IncHTTPRequest(r.Method, rw.statusCode)
			logger.Debug("HTTP request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", rw.statusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()))
		})
	}
}

// statusFor maps service errors onto HTTP status codes and the plain-text
// message clients see
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMissingField):
		return http.StatusBadRequest, "Missing photo or directory"
	case errors.Is(err, domain.ErrInvalidRating):
		return http.StatusBadRequest, "Rating must be an integer between 1 and 5"
	case errors.Is(err, domain.ErrInvalidPath),
		errors.Is(err, domain.ErrInvalidLocation),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrPhotoNotFound):
		return http.StatusNotFound, "Photo not found"
	case errors.Is(err, domain.ErrOriginalNotFound):
		return http.StatusNotFound, "Original not found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrNoPhotosAvailable):
		return http.StatusInternalServerError, "No photos available"
	case errors.Is(err, domain.ErrMoveFailed):
		return http.StatusInternalServerError, "Error moving photo"
	case errors.Is(err, domain.ErrThumbnailGenerationFailed):
		return http.StatusInternalServerError, "Thumbnail generation failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request cancelled"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError writes the mapped status for err, logging server-side failures
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", code), zap.Error(err))
	}
	http.Error(w, msg, code)
}
