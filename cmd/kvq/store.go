package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/skshohagmiah/kvquery/internal/config"
	"github.com/skshohagmiah/kvquery/internal/kv"
	"github.com/skshohagmiah/kvquery/internal/logger"
	"github.com/skshohagmiah/kvquery/internal/metrics"
	"github.com/skshohagmiah/kvquery/internal/storage"
)

type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	store   *kv.Store
}

// openApp loads configuration and opens the store it describes.
func openApp(opts *rootOptions) (*app, error) {
	cfg, err := config.LoadWith(opts.v, opts.configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(metrics.Config{EnableDefaultCollectors: true})
	}

	st, err := storage.Open(storage.Options{
		Dir:        cfg.Storage.DataDir,
		InMemory:   cfg.Storage.InMemory,
		SyncWrites: cfg.Storage.SyncWrites,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	store, err := kv.New(st, kv.Options{
		DeviceID:      cfg.Device.ID,
		PlanCacheSize: cfg.Query.PlanCacheSize,
		NotifyWorkers: cfg.Notify.Workers,
		Logger:        log,
		Metrics:       m,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &app{cfg: cfg, log: log, metrics: m, store: store}, nil
}

func (a *app) Close() error {
	err := a.store.Close()
	_ = a.log.Sync()
	return err
}
