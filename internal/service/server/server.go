package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/metrics"
	"github.com/vertextoedge/photo-triage/internal/port"
	"github.com/vertextoedge/photo-triage/internal/service/indexer"
	"github.com/vertextoedge/photo-triage/internal/service/ranks"
	"github.com/vertextoedge/photo-triage/internal/service/rating"
	"github.com/vertextoedge/photo-triage/internal/service/selector"
	"github.com/vertextoedge/photo-triage/internal/service/thumbnail"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	LibraryRoot  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "0.0.0.0:3000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Selector picks the next photo to present
type Selector interface {
	Select(ctx context.Context) (*selector.Selection, error)
}

// Rater applies rating actions
type Rater interface {
	Apply(ctx context.Context, req rating.Request) (*rating.Outcome, error)
}

// Indexer rebuilds the index on demand and remembers the last pass
type Indexer interface {
	Reconcile(ctx context.Context) (*indexer.Result, error)
	LastResult() *indexer.Result
}

// Ranker serves folder rating aggregates
type Ranker interface {
	Compute(ctx context.Context) ([]*domain.FolderAggregate, error)
	Folder(ctx context.Context, folder string) (*domain.FolderAggregate, error)
	WriteCSV(ctx context.Context, w io.Writer) error
	HasImages(ctx context.Context, folder string) (bool, error)
	Images(ctx context.Context, folder string, recursive bool, limit int) ([]ranks.Image, error)
}

// Thumbnailer serves cached thumbnails
type Thumbnailer interface {
	Get(ctx context.Context, relPath string) (string, error)
	Stats() thumbnail.Stats
}

// Pinger checks the index database connection
type Pinger interface {
	Ping() error
}

// Deps are the services the HTTP API is built on
type Deps struct {
	Selector   Selector
	Rater      Rater
	Indexer    Indexer
	Ranks      Ranker
	Thumbnails Thumbnailer
	Stats      port.StatsRepository
	ThumbFS    port.ThumbnailFS
	DB         Pinger
	Metrics    *metrics.Metrics
}

// Server represents the HTTP API server
type Server struct {
	config *Config
	deps   Deps
	logger *zap.Logger
	server *http.Server

	photoHandler  *PhotoHandler
	folderHandler *FolderHandler
	fileHandler   *FileHandler
	debugHandler  *DebugHandler
}

// New creates a new HTTP server
func New(cfg *Config, deps Deps, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}

	s.photoHandler = NewPhotoHandler(deps.Selector, deps.Rater, deps.Indexer, deps.Ranks, logger)
	s.folderHandler = NewFolderHandler(deps.Ranks, logger)
	s.fileHandler = NewFileHandler(deps.Thumbnails, cfg.LibraryRoot, logger)
	s.debugHandler = NewDebugHandler(deps.Stats, deps.Thumbnails, deps.ThumbFS, deps.Indexer, logger)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware(s.logger, s.deps.Metrics))
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/health", s.handleHealth)

	// Triage
	r.Get("/random-photo", s.photoHandler.HandleRandom)
	r.Post("/like", s.photoHandler.HandleLike)
	r.Post("/dislike", s.photoHandler.HandleDislike)
	r.Post("/rate", s.photoHandler.HandleRate)
	r.Get("/refresh-cache", s.photoHandler.HandleRefresh)

	// Folder ratings
	r.Get("/folder-ranks", s.folderHandler.HandleRanks)
	r.Get("/download-folder-rankings", s.folderHandler.HandleDownload)
	r.Route("/api", func(r chi.Router) {
		r.Get("/folder-ratings", s.folderHandler.HandleFolder)
		r.Get("/folder-images", s.folderHandler.HandleImages)
		r.Get("/folder-images-recursive", s.folderHandler.HandleImagesRecursive)
		r.Get("/folder-has-images", s.folderHandler.HandleHasImages)
	})

	// Files
	r.Get("/thumbnail/*", s.fileHandler.HandleThumbnail)
	r.Handle("/photos/*", s.fileHandler.PhotoServer())

	// Operations
	if s.deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}
	r.Get("/debug/stats", s.debugHandler.HandleStats)

	return r
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
