package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/conduit/internal/artifacts"
	"github.com/haasonsaas/conduit/internal/config"
	"github.com/haasonsaas/conduit/internal/janitor"
	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/internal/store"
)

// app holds the wired runtime shared by the serve and inspection commands.
type app struct {
	cfg       *config.Config
	logger    *observability.Logger
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	db        *sql.DB
	artifacts *artifacts.Repository
	store     *store.TraceStore
}

// buildApp loads config and opens the databases. The caller owns shutdown
// via app.close.
func buildApp(ctx context.Context, configPath string, debug bool) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:          level,
		Format:         cfg.Logging.Format,
		Output:         os.Stderr,
		RedactPatterns: cfg.Logging.RedactPatterns,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	if err := os.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(cfg.Store.Dir, "conduit.db"))
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	payloads, err := openPayloadStore(ctx, cfg)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	repo, err := artifacts.NewRepository(db, payloads, logger.Slog(), metrics)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	traceStore, err := store.New(store.Options{
		Dir:     cfg.Store.Dir,
		DB:      db,
		Logger:  logger.Slog(),
		Metrics: metrics,
	})
	if err != nil {
		repo.Close() //nolint:errcheck
		db.Close()   //nolint:errcheck
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		metrics:   metrics,
		db:        db,
		artifacts: repo,
		store:     traceStore,
	}, nil
}

func (a *app) close() {
	if a.artifacts != nil {
		if err := a.artifacts.Close(); err != nil {
			a.logger.Warn(context.Background(), "artifact store close failed", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close() //nolint:errcheck
	}
}

func (a *app) newJanitor() (*janitor.Janitor, error) {
	return janitor.New(janitor.Options{
		Schedule:         a.cfg.Janitor.Schedule,
		Artifacts:        a.artifacts,
		Store:            a.store,
		TraceRetention:   a.cfg.Store.TraceRetention,
		MetricsRetention: a.cfg.Store.MetricsRetention,
		Logger:           a.logger.Slog(),
	})
}

func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigName {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func openPayloadStore(ctx context.Context, cfg *config.Config) (artifacts.Store, error) {
	switch cfg.Artifacts.Backend {
	case "s3":
		return artifacts.NewS3Store(ctx, artifacts.S3StoreConfig{
			Bucket:          cfg.Artifacts.S3.Bucket,
			Region:          cfg.Artifacts.S3.Region,
			Endpoint:        cfg.Artifacts.S3.Endpoint,
			Prefix:          cfg.Artifacts.S3.Prefix,
			AccessKeyID:     cfg.Artifacts.S3.AccessKeyID,
			SecretAccessKey: cfg.Artifacts.S3.SecretAccessKey,
			UsePathStyle:    cfg.Artifacts.S3.UsePathStyle,
		})
	default:
		return artifacts.NewLocalStore(cfg.Artifacts.Dir)
	}
}
