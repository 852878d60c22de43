package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefeed/config"
	storehttp "storefeed/http"
	"storefeed/internal/events"
	"storefeed/internal/lease"
	"storefeed/internal/logging"
	"storefeed/internal/metrics"
	"storefeed/internal/retry"
	"storefeed/storage"
	"storefeed/youtube"
)

// app holds the long-lived dependencies shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   storage.Store
	metrics *metrics.Metrics

	closers []func() error
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newApp(cfg *config.Config) (*app, error) {
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(cfg.MetricsNamespace),
	}
	a.closers = append(a.closers, store.Close)
	return a, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return storage.OpenPostgres(cfg.StorageDSN)
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.StorageDSN), 0o755); err != nil {
			return nil, err
		}
		return storage.OpenSQLite(cfg.StorageDSN)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.StorageDSN), 0o755); err != nil {
			return nil, err
		}
		return storage.NewJSONStore(cfg.StorageDSN)
	}
}

// syncManager builds the fetch pipeline. It fails when YouTube credentials
// are missing.
func (a *app) syncManager(ctx context.Context) (*youtube.SyncManager, error) {
	if err := a.cfg.ValidateSync(); err != nil {
		return nil, err
	}

	httpCfg := storehttp.DefaultConfig()
	httpCfg.Timeout = a.cfg.HTTPTimeout
	httpCfg.RateLimiter.DefaultRPS = a.cfg.RequestsPerSecond
	httpCfg.Logger = a.logger.Named("http")

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = a.cfg.MaxRetries
	retryCfg.InitialBackoff = a.cfg.InitialBackoff
	retryCfg.MaxBackoff = a.cfg.MaxBackoff
	retryCfg.Multiplier = a.cfg.BackoffMultiplier

	catalog, err := youtube.NewAPICatalog(ctx, youtube.APICatalogConfig{
		APIKey: a.cfg.YouTubeAPIKey,
		HTTP:   httpCfg,
		Retry:  retryCfg,
		Logger: a.logger.Named("youtube"),
	})
	if err != nil {
		return nil, err
	}

	fetcher := youtube.NewFetcher(catalog, a.cfg.YouTubeChannelID)
	fetcher.OnDrop = func(videoID, reason string) {
		a.metrics.Dropped(reason)
		a.logger.Debug("dropped upload", zap.String("video_id", videoID), zap.String("reason", reason))
	}

	leases, err := a.leaseManager(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.publisher()
	if err != nil {
		return nil, err
	}

	return youtube.NewSyncManager(youtube.SyncManagerConfig{
		Store:        a.store,
		Source:       fetcher,
		Lease:        leases,
		Metrics:      a.metrics,
		Events:       publisher,
		Logger:       a.logger.Named("sync"),
		FetchTimeout: a.cfg.FetchTimeout,
		LeaseTTL:     a.cfg.LeaseTTL,
	})
}

func (a *app) leaseManager(ctx context.Context) (lease.Manager, error) {
	if a.cfg.RedisURL == "" {
		return lease.NewLocal(), nil
	}

	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	a.closers = append(a.closers, rdb.Close)
	a.logger.Info("using redis sync lease", zap.String("addr", opts.Addr))
	return lease.NewRedis(rdb, a.cfg.MetricsNamespace), nil
}

func (a *app) publisher() (events.Publisher, error) {
	if a.cfg.NATSURL == "" {
		return events.Nop{}, nil
	}
	pub, err := events.ConnectNATS(a.cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)
	a.logger.Info("publishing sync events", zap.String("subject", events.SubjectYouTubeSynced))
	return pub, nil
}

func (a *app) limits() youtube.Limits {
	return youtube.Limits{MaxVideos: a.cfg.MaxVideos, MaxShorts: a.cfg.MaxShorts}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
