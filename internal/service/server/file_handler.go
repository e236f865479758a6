package server

import (
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// thumbnailCacheControl lets clients keep thumbnails forever; the key
// changes whenever the photo moves
const thumbnailCacheControl = "public, max-age=31536000, immutable"

// FileHandler serves thumbnails and original photos
type FileHandler struct {
	thumbnails  Thumbnailer
	libraryRoot string
	logger      *zap.Logger
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(thumbnails Thumbnailer, libraryRoot string, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		thumbnails:  thumbnails,
		libraryRoot: libraryRoot,
		logger:      logger,
	}
}

// HandleThumbnail serves the thumbnail of a photo: /thumbnail/{root-relative path}
func (h *FileHandler) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	cachePath, err := h.thumbnails.Get(r.Context(), relPath)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	f, err := os.Open(cachePath)
	if err != nil {
		h.logger.Error("failed to open thumbnail", zap.String("path", cachePath), zap.Error(err))
		http.Error(w, "Thumbnail not available", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		h.logger.Error("failed to stat thumbnail", zap.String("path", cachePath), zap.Error(err))
		http.Error(w, "Thumbnail not available", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", thumbnailCacheControl)
	http.ServeContent(w, r, "", stat.ModTime(), f)
}

// PhotoServer serves original photos under the library root. Hidden
// entries (the index database, the thumbnail cache) and directory listings
// are not exposed
func (h *FileHandler) PhotoServer() http.Handler {
	return http.StripPrefix("/photos", http.FileServer(photoFS{http.Dir(h.libraryRoot)}))
}

// photoFS hides dot entries and directories from http.FileServer
type photoFS struct {
	root http.FileSystem
}

func (p photoFS) Open(name string) (http.File, error) {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return nil, fs.ErrNotExist
		}
	}

	f, err := p.root.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
