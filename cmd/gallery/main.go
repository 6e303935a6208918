package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spullara/ComfyUI-Gallery/internal/api"
	"github.com/spullara/ComfyUI-Gallery/internal/config"
	"github.com/spullara/ComfyUI-Gallery/internal/event"
	"github.com/spullara/ComfyUI-Gallery/internal/gallery"
	"github.com/spullara/ComfyUI-Gallery/internal/logging"
	"github.com/spullara/ComfyUI-Gallery/internal/metadata"
	"github.com/spullara/ComfyUI-Gallery/internal/monitor"
	"github.com/spullara/ComfyUI-Gallery/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("GALLERY_CONFIG_PATH")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging via the logging Manager
	logManager, logger := logging.NewManager(logging.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		FilePath:      cfg.Logging.FilePath,
		FileMaxSizeMB: cfg.Logging.FileMaxSizeMB,
		FileMaxFiles:  cfg.Logging.FileMaxFiles,
	})
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	logger.Info("starting gallery",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	galleryRoot, err := filepath.Abs(cfg.Gallery.Root)
	if err != nil {
		return fmt.Errorf("resolving gallery root: %w", err)
	}
	allowedRoot, err := filepath.Abs(cfg.Gallery.AllowedRoot)
	if err != nil {
		return fmt.Errorf("resolving allowed root: %w", err)
	}
	placeholder, err := filepath.Abs(cfg.Gallery.PlaceholderDir)
	if err != nil {
		return fmt.Errorf("resolving placeholder dir: %w", err)
	}
	if err := os.MkdirAll(placeholder, 0o755); err != nil {
		return fmt.Errorf("creating placeholder dir: %w", err)
	}

	// Initialize event bus
	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	defer eventBus.Stop()

	scanner := gallery.NewScanner(metadata.Extract, logger)
	mount := api.NewMountPoint(placeholder)
	supervisor := monitor.NewSupervisor(scanner, eventBus, mount, placeholder, logger)
	defer supervisor.Stop()

	// Push file-change and lifecycle events to websocket clients
	hub := api.NewHub(logger)
	hub.SubscribeBus(eventBus, event.FileChange, event.MonitorStarted, event.MonitorStopped)

	router := api.NewRouter(api.RouterDeps{
		Scanner:     scanner,
		Supervisor:  supervisor,
		Mount:       mount,
		Hub:         hub,
		Logger:      logger,
		BasePath:    cfg.Server.BasePath,
		GalleryRoot: galleryRoot,
		AllowedRoot: allowedRoot,
		Debounce:    time.Duration(cfg.Gallery.DebounceMS) * time.Millisecond,
		UsePolling:  cfg.Gallery.UsePolling,
	})

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Gallery.WatchOnStart {
		if _, err := supervisor.Start(galleryRoot, monitor.Options{
			Debounce:     time.Duration(cfg.Gallery.DebounceMS) * time.Millisecond,
			UsePolling:   cfg.Gallery.UsePolling,
			PollInterval: time.Duration(cfg.Gallery.PollIntervalS) * time.Second,
		}); err != nil {
			logger.Error("starting initial watch", "root", galleryRoot, "error", err)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("listening", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
