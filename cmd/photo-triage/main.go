package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vertextoedge/photo-triage/internal/logger"
	"github.com/vertextoedge/photo-triage/internal/service/maintenance"
	"github.com/vertextoedge/photo-triage/internal/service/rating"
	"github.com/vertextoedge/photo-triage/internal/service/selector"
	"github.com/vertextoedge/photo-triage/internal/service/server"
	"github.com/vertextoedge/photo-triage/internal/service/thumbnail"
	"github.com/vertextoedge/photo-triage/internal/service/watcher"
)

const version = "0.1.0"

// shutdownTimeout bounds the graceful HTTP shutdown
const shutdownTimeout = 30 * time.Second

// rootOptions carries the persistent flags into every command
type rootOptions struct {
	configPath string
	flags      *pflag.FlagSet
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "photo-triage",
		Short:        "Rate a photo library one random photo at a time",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.flags = cmd.Flags()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	pf.String("root", "", "Photo library root directory")
	pf.String("db", "", "Index database path (default <root>/.photo-triage.db)")
	pf.String("addr", "", "HTTP bind address")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(opts)
			},
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "Rebuild the index from disk and print a summary",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runReconcile(cmd.Context(), opts, cmd.OutOrStdout())
			},
		},
		newExportCmd(opts),
	)

	return root
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export-ranks",
		Short: "Write folder rankings as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), opts, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func runServe(opts *rootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return err
	}
	defer a.Close()

	cfg := a.cfg
	zapLogger := a.logger
	zapLogger.Info("starting photo-triage",
		zap.String("version", version),
		zap.String("config", opts.configPath),
		zap.String("root", cfg.Library.RootDir),
	)

	weights, err := cfg.Selector.Weights()
	if err != nil {
		return err
	}
	sel := selector.New(&selector.Config{
		SortedProbability: cfg.Selector.SortedProbability,
		Weights:           weights,
		MaxAttempts:       cfg.Selector.MaxAttempts,
		ReconcileTimeout:  cfg.Selector.GetReconcileTimeout(),
	}, a.store, a.fs, a.indexer, a.metrics, logger.Component("selector"))

	rater := rating.New(a.fs, a.store, a.metrics, logger.Component("rating"))

	thumbs := thumbnail.New(a.fs, a.fs, a.store,
		thumbnail.NewImageGenerator(cfg.Thumbnail.Size, cfg.Thumbnail.Quality),
		a.metrics, logger.Component("thumbnail"))

	maintenanceService := maintenance.New(&maintenance.Config{
		ReconcileInterval: cfg.Maintenance.GetReconcileInterval(),
		CleanupInterval:   cfg.Maintenance.GetCleanupInterval(),
		TempFileMaxAge:    cfg.Maintenance.GetTempFileMaxAge(),
	}, a.indexer, a.store, a.fs, logger.Component("maintenance"))

	var watchService *watcher.Service
	if cfg.Watch.Enabled {
		watchService = watcher.New(&watcher.Config{
			Debounce:    cfg.Watch.GetDebounce(),
			MinInterval: cfg.Watch.GetMinInterval(),
		}, cfg.Library.RootDir, a.indexer, logger.Component("watcher"))
	}

	httpServer := server.New(&server.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		LibraryRoot:  cfg.Library.RootDir,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
	}, server.Deps{
		Selector:   sel,
		Rater:      rater,
		Indexer:    a.indexer,
		Ranks:      a.ranks,
		Thumbnails: thumbs,
		Stats:      a.store,
		ThumbFS:    a.fs,
		DB:         a.store,
		Metrics:    a.metrics,
	}, logger.Component("http"))

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.indexer.Start(ctx); err != nil {
		return err
	}
	if err := thumbs.Start(ctx); err != nil {
		return err
	}
	if watchService != nil {
		if err := watchService.Start(ctx); err != nil {
			zapLogger.Warn("library watcher unavailable", zap.Error(err))
			watchService = nil
		}
	}

	go func() {
		if err := maintenanceService.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Start()
	}()

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("root", cfg.Library.RootDir),
	)

	var runErr error
	select {
	case <-ctx.Done():
		zapLogger.Info("shutdown signal received, stopping services...")
	case runErr = <-serveErr:
		if runErr != nil {
			zapLogger.Error("HTTP server failed", zap.Error(runErr))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	if watchService != nil {
		watchService.Stop()
	}
	maintenanceService.Stop()
	thumbs.Stop()
	a.indexer.Stop()

	zapLogger.Info("application stopped successfully")
	return runErr
}

func runReconcile(ctx context.Context, opts *rootOptions, out io.Writer) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.indexer.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	fmt.Fprintf(out, "added:   %d\n", res.Added)
	fmt.Fprintf(out, "removed: %d\n", res.Removed)
	if res.Errors > 0 || res.ScanErrors > 0 {
		fmt.Fprintf(out, "errors:  %d failed batches, %d unreadable folders\n", res.Errors, res.ScanErrors)
	}
	fmt.Fprintln(out, "photos per bucket:")
	for _, name := range []string{"base", "sorted/1", "sorted/2", "sorted/3", "sorted/4", "sorted/5"} {
		fmt.Fprintf(out, "  %-9s %d\n", name, res.Counts[name])
	}
	return nil
}

func runExport(ctx context.Context, opts *rootOptions, output string, stdout io.Writer) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.indexer.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	w := stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if err := a.ranks.WriteCSV(ctx, w); err != nil {
		return fmt.Errorf("failed to write rankings: %w", err)
	}
	a.logger.Info("folder rankings exported", zap.String("output", output))
	return nil
}
