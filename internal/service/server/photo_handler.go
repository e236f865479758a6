package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/service/rating"
)

// PhotoHandler handles the triage endpoints
type PhotoHandler struct {
	selector Selector
	rater    Rater
	indexer  Indexer
	ranks    Ranker
	logger   *zap.Logger
}

// NewPhotoHandler creates a new PhotoHandler
func NewPhotoHandler(sel Selector, rater Rater, idx Indexer, ranks Ranker, logger *zap.Logger) *PhotoHandler {
	return &PhotoHandler{
		selector: sel,
		rater:    rater,
		indexer:  idx,
		ranks:    ranks,
		logger:   logger,
	}
}

type photoResponse struct {
	Photo     string `json:"photo"`
	Directory string `json:"directory"`
}

type ratingRequest struct {
	Photo     string `json:"photo"`
	Directory string `json:"directory"`
	Rating    *int   `json:"rating,omitempty"`
}

type ratingResponse struct {
	Photo     string `json:"photo"`
	Directory string `json:"directory"`
	Rank      int    `json:"rank"`
}

type refreshResponse struct {
	Counts  map[string]int `json:"counts"`
	Added   int            `json:"added"`
	Removed int            `json:"removed"`
	Errors  int            `json:"errors"`
	Folders []string       `json:"folders"`
}

// HandleRandom returns the next photo to triage
func (h *PhotoHandler) HandleRandom(w http.ResponseWriter, r *http.Request) {
	sel, err := h.selector.Select(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, photoResponse{Photo: sel.Path, Directory: sel.Location.Dir()})
}

// HandleLike moves a photo one bucket up
func (h *PhotoHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, domain.ActionLike)
}

// HandleDislike moves a photo one bucket down
func (h *PhotoHandler) HandleDislike(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, domain.ActionDislike)
}

// HandleRate moves a photo to the bucket of an explicit rating
func (h *PhotoHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, domain.ActionRate)
}

func (h *PhotoHandler) apply(w http.ResponseWriter, r *http.Request, action domain.Action) {
	var body ratingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: malformed body", domain.ErrInvalidInput))
		return
	}

	req := rating.Request{Photo: body.Photo, Directory: body.Directory, Action: action}
	if action == domain.ActionRate {
		if body.Rating == nil {
			writeError(w, h.logger, domain.ErrInvalidRating)
			return
		}
		req.Rating = *body.Rating
	}

	out, err := h.rater.Apply(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ratingResponse{
		Photo:     out.Path,
		Directory: out.To.Dir(),
		Rank:      out.To.Rank(),
	})
}

// HandleRefresh runs a reconciliation and reports the resulting index
func (h *PhotoHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.indexer.Reconcile(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	folders := []string{}
	if aggs, err := h.ranks.Compute(r.Context()); err != nil {
		h.logger.Warn("failed to list folders after refresh", zap.Error(err))
	} else {
		for _, a := range aggs {
			if a.FolderPath != "" {
				folders = append(folders, a.FolderPath)
			}
		}
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Counts:  res.Counts,
		Added:   res.Added,
		Removed: res.Removed,
		Errors:  res.Errors + res.ScanErrors,
		Folders: folders,
	})
}
