package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/port"
	"github.com/vertextoedge/photo-triage/internal/service/indexer"
	"github.com/vertextoedge/photo-triage/internal/service/thumbnail"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	stats      port.StatsRepository
	thumbnails Thumbnailer
	thumbFS    port.ThumbnailFS
	indexer    Indexer
	logger     *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(stats port.StatsRepository, thumbnails Thumbnailer, thumbFS port.ThumbnailFS, idx Indexer, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		stats:      stats,
		thumbnails: thumbnails,
		thumbFS:    thumbFS,
		indexer:    idx,
		logger:     logger,
	}
}

type thumbnailCacheStats struct {
	thumbnail.Stats
	SizeBytes     int64   `json:"sizeBytes"`
	DiskUsedPct   float64 `json:"diskUsedPct,omitempty"`
	DiskFreeBytes uint64  `json:"diskFreeBytes,omitempty"`
}

type debugStats struct {
	Photos        map[string]int       `json:"photos"`
	TotalPhotos   int                  `json:"totalPhotos"`
	Thumbnails    *thumbnailCacheStats `json:"thumbnails,omitempty"`
	LastReconcile *indexer.Result      `json:"lastReconcile,omitempty"`
}

// HandleStats reports index counts, thumbnail queue state and cache usage
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetIndexStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get index stats", zap.Error(err))
		http.Error(w, "Failed to get index stats", http.StatusInternalServerError)
		return
	}

	resp := debugStats{
		Photos:      stats.ByName(),
		TotalPhotos: stats.Total,
	}

	if h.thumbnails != nil {
		ts := &thumbnailCacheStats{Stats: h.thumbnails.Stats()}
		if h.thumbFS != nil {
			if size, err := h.thumbFS.GetCacheSize(); err == nil {
				ts.SizeBytes = size
			} else {
				h.logger.Warn("failed to get thumbnail cache size", zap.Error(err))
			}
			if usage, err := h.thumbFS.GetDiskUsage(); err == nil && usage != nil {
				ts.DiskUsedPct = usage.UsedPct
				ts.DiskFreeBytes = usage.Free
			}
		}
		resp.Thumbnails = ts
	}

	if h.indexer != nil {
		resp.LastReconcile = h.indexer.LastResult()
	}

	writeJSON(w, http.StatusOK, resp)
}
