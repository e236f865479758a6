package server

import (
	"bytes"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/service/ranks"
)

// FolderHandler handles the folder rating endpoints
type FolderHandler struct {
	ranks  Ranker
	logger *zap.Logger
}

// NewFolderHandler creates a new FolderHandler
func NewFolderHandler(r Ranker, logger *zap.Logger) *FolderHandler {
	return &FolderHandler{ranks: r, logger: logger}
}

type hasImagesResponse struct {
	Folder    string `json:"folder"`
	HasImages bool   `json:"hasImages"`
}

// HandleRanks lists every folder aggregate
func (h *FolderHandler) HandleRanks(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.ranks.Compute(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, aggs)
}

// HandleDownload returns the folder aggregates as a CSV attachment
func (h *FolderHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.ranks.WriteCSV(r.Context(), &buf); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="folder-rankings.csv"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}

// HandleFolder returns the aggregate of one folder
func (h *FolderHandler) HandleFolder(w http.ResponseWriter, r *http.Request) {
	agg, err := h.ranks.Folder(r.Context(), r.URL.Query().Get("folder"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// HandleImages lists photos directly in a folder
func (h *FolderHandler) HandleImages(w http.ResponseWriter, r *http.Request) {
	h.images(w, r, false)
}

// HandleImagesRecursive lists photos in a folder and below it
func (h *FolderHandler) HandleImagesRecursive(w http.ResponseWriter, r *http.Request) {
	h.images(w, r, true)
}

func (h *FolderHandler) images(w http.ResponseWriter, r *http.Request, recursive bool) {
	q := r.URL.Query()

	limit := ranks.DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = ranks.ClampLimit(n)
	}

	imgs, err := h.ranks.Images(r.Context(), q.Get("folder"), recursive, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, imgs)
}

// HandleHasImages reports whether a folder holds any photo
func (h *FolderHandler) HandleHasImages(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	has, err := h.ranks.HasImages(r.Context(), folder)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hasImagesResponse{Folder: folder, HasImages: has})
}
