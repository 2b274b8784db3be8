package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/goclaw/recall/config"
	"github.com/goclaw/recall/pkg/cache"
	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/logger"
	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/memory/badgerstore"
	"github.com/goclaw/recall/pkg/memory/bleveindex"
	"github.com/goclaw/recall/pkg/memory/sqlitestore"
	"github.com/goclaw/recall/pkg/metrics"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// app holds the components shared by the serve, search and strategies
// commands.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	store   memory.Store
	metrics *metrics.Manager
	configs *strategyconfig.Manager
	engine  *engine.Engine
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (a *app, err error) {
	a = &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = openStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	a.metrics = metrics.NewManager(cfg.Metrics.ToMetricsConfig())

	a.configs, err = openConfigs(cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.configs.Close)

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMetrics(a.metrics),
		engine.WithConfigManager(a.configs),
		engine.WithBreaker(cfg.Breaker.ToBreakerConfig()),
		engine.WithMonitor(cfg.Monitor.ToMonitorOptions()),
	}
	shared, err := openCache(ctx, cfg, a.metrics)
	if err != nil {
		return nil, err
	}
	if shared != nil {
		opts = append(opts, engine.WithCache(shared))
		a.closers = append(a.closers, shared.Close)
	}

	a.engine, err = engine.New(a.store, cfg.ToEngineConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return a, nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openStore opens the configured memory store and, when enabled, layers
// the bleve index over it.
func openStore(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (memory.Store, error) {
	var store memory.Store
	switch cfg.Type {
	case "badger":
		s, err := badgerstore.Open(badgerstore.Config{
			Path:             cfg.Badger.Path,
			SyncWrites:       cfg.Badger.SyncWrites,
			ValueLogFileSize: cfg.Badger.ValueLogFileSize,
		})
		if err != nil {
			return nil, err
		}
		log.Info("initialized badger store", "path", cfg.Badger.Path)
		store = s
	case "sqlite":
		if err := ensureParent(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		s, err := sqlitestore.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info("initialized sqlite store", "path", cfg.SQLite.Path)
		store = s
	case "memory", "":
		store = memory.NewMemStore()
		log.Info("initialized memory store")
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	if !cfg.Index.Enabled {
		return store, nil
	}
	idx, err := bleveindex.New(store, cfg.Index.Path)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := idx.Rebuild(ctx); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to build search index: %w", err)
	}
	count, _ := idx.DocCount()
	log.Info("initialized bleve index", "path", cfg.Index.Path, "documents", count)
	return idx, nil
}

// openConfigs opens the strategy configuration directory.
func openConfigs(cfg *config.Config, log logger.Logger) (*strategyconfig.Manager, error) {
	m, err := strategyconfig.NewManager(cfg.Strategies.ToManagerOptions(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open strategy configurations: %w", err)
	}
	return m, nil
}

// closingCache is a result cache holding a connection.
type closingCache interface {
	cache.Cache
	Close() error
}

// openCache returns the shared Redis cache, or nil when the engine should
// keep its in-process LRU.
func openCache(ctx context.Context, cfg *config.Config, rec cache.Recorder) (closingCache, error) {
	if cfg.Cache.Type != "redis" {
		return nil, nil
	}
	client := cache.NewRedisClient(&redis.Options{
		Addr:     cfg.Cache.Redis.Address,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	c := cache.NewRedis(client, cfg.Cache.ToRedisConfig(), rec)
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Cache.Redis.Address, err)
	}
	return c, nil
}

func ensureParent(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	return nil
}
