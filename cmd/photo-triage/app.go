package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/adapter/filesystem"
	"github.com/vertextoedge/photo-triage/internal/adapter/sqlite"
	"github.com/vertextoedge/photo-triage/internal/config"
	"github.com/vertextoedge/photo-triage/internal/logger"
	"github.com/vertextoedge/photo-triage/internal/metrics"
	"github.com/vertextoedge/photo-triage/internal/service/indexer"
	"github.com/vertextoedge/photo-triage/internal/service/ranks"
)

// app holds the pieces every command needs: configuration, logging, the
// library on disk and the index
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	fs      *filesystem.Manager
	store   *sqlite.Store
	metrics *metrics.Metrics
	indexer *indexer.Service
	ranks   *ranks.Service
}

// newApp loads configuration and opens the library. The caller must call
// Close
func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath, opts.flags)
	if err != nil {
		return nil, err
	}

	zapLogger, err := logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	fsManager, err := filesystem.NewManager(cfg.Library.RootDir, cfg.Library.ThumbnailDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	dbPath := cfg.DatabasePath()
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	scanner := indexer.NewScanner(&indexer.ScannerConfig{
		MaxConcurrency: cfg.Index.ScanConcurrency,
	}, fsManager, logger.Component("scanner"))

	idx := indexer.New(&indexer.Config{
		BatchSize: cfg.Index.BatchSize,
	}, store, store, scanner, m, logger.Component("indexer"))

	rk := ranks.New(&ranks.Config{MaxDepth: cfg.Ranks.MaxDepth}, store, logger.Component("ranks"))

	return &app{
		cfg:     cfg,
		logger:  zapLogger,
		fs:      fsManager,
		store:   store,
		metrics: m,
		indexer: idx,
		ranks:   rk,
	}, nil
}

// Close releases the index and flushes logs
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close database", zap.Error(err))
	}
	logger.Sync()
}
