package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/goclaw/recall/config"
	"github.com/goclaw/recall/pkg/api"
	"github.com/goclaw/recall/pkg/api/events"
	"github.com/goclaw/recall/pkg/api/handlers"
	"github.com/goclaw/recall/pkg/logger"
	"github.com/goclaw/recall/pkg/monitor"
	"github.com/goclaw/recall/pkg/telemetry/tracing"
	"github.com/goclaw/recall/pkg/version"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP search service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), opts, cfg, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload log level and alert thresholds when the config file changes")
	return cmd
}

func runServe(parent context.Context, opts *rootOptions, cfg *config.Config, watch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	log := newLogger(cfg)

	log.Info("starting recall",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("configuration loaded", "config", cfg.String())

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	shutdownTracing, err := tracing.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error("error shutting down tracing", "error", err)
		}
	}()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("error closing resources", "error", err)
		}
	}()
	eng := a.engine

	// The API port serves /metrics as well; a distinct metrics port gets
	// its own listener.
	if a.metrics.Enabled() && cfg.Metrics.Port != cfg.Server.Port {
		go func() {
			log.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := a.metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()
	eng.OnPerformanceAlert(broadcaster.BroadcastAlert)

	alerts := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	defer alerts.Close()
	go alerts.Forward(ctx, broadcaster)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	if watch && opts.configPath != "" {
		startWatcher(ctx, opts.configPath, cfg, log, a)
	}

	apiHandlers := &api.Handlers{
		Search:         handlers.NewSearchHandler(eng, log),
		Strategies:     handlers.NewStrategyHandler(eng, log).WithEvents(broadcaster),
		Config:         handlers.NewConfigHandler(eng, log).WithEvents(broadcaster),
		Health:         handlers.NewHealthHandler(eng),
		Alerts:         alerts,
		MetricsHandler: a.metrics.Handler(),
	}
	if a.metrics.Enabled() {
		apiHandlers.Metrics = a.metrics
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	// Start HTTP server in a separate goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("recall is running",
		"addr", httpServer.Addr(),
		"storage", cfg.Storage.Type,
		"cache", cfg.Cache.Type,
		"strategies", len(eng.AvailableStrategies()),
	)

	// Wait for shutdown signal or server error
	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig)
	case runErr = <-serverErrChan:
		log.Error("HTTP server error", "error", runErr)
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	shutdownTimeout := cfg.Server.HTTP.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server first
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down HTTP server", "error", err)
	}

	log.Info("stopping engine")
	if err := eng.Stop(shutdownCtx); err != nil {
		log.Error("error during engine shutdown", "error", err)
	}

	log.Info("recall stopped")
	return runErr
}

// startWatcher applies hot-reloadable settings when the config file
// changes.
func startWatcher(ctx context.Context, path string, cfg *config.Config, log logger.Logger, a *app) {
	watcher, err := config.NewWatcher(path, config.NewLoader(), config.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config hot reload disabled", "error", err)
		return
	}

	r := newReloader(cfg, log, a.engine.SetThresholds)
	watcher.OnChange(r.apply)

	go func() {
		defer watcher.Stop()
		if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("config watcher stopped", "error", err)
		}
	}()
}

// reloader applies the hot-reloadable subset of a reloaded config.
// Watcher callbacks run concurrently, so apply is serialized.
type reloader struct {
	mu            sync.Mutex
	current       config.HotReloadableConfig
	log           logger.Logger
	setThresholds func(monitor.Thresholds)
}

func newReloader(cfg *config.Config, log logger.Logger, setThresholds func(monitor.Thresholds)) *reloader {
	return &reloader{
		current:       config.ExtractHotReloadable(cfg),
		log:           log,
		setThresholds: setThresholds,
	}
}

func (r *reloader) apply(next *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reloaded := config.ExtractHotReloadable(next)
	if !r.current.Changed(reloaded) {
		return
	}
	if reloaded.LogLevel != r.current.LogLevel {
		r.log.SetLevel(logger.ParseLevel(reloaded.LogLevel))
		r.log.Info("log level reloaded", "level", reloaded.LogLevel)
	}
	if r.current.ThresholdsChanged(reloaded) {
		r.setThresholds(next.Monitor.Thresholds())
		r.log.Info("alert thresholds reloaded",
			"max_response_time", reloaded.MaxResponseTime,
			"max_error_rate", reloaded.MaxErrorRate,
			"max_memory_bytes", reloaded.MaxMemoryBytes,
		)
	}
	r.current = reloaded
}
