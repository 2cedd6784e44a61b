package factory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/adapters/cache"
	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
)

// SnapshotStore is a snapshot repository with a background task to stop
type SnapshotStore interface {
	core.SnapshotRepository
	Stop()
}

// CacheFactory creates snapshot repositories based on configuration
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSnapshotRepository creates the repository selected by cache.type.
// "none" keeps snapshots in the cache manager only.
func (f *CacheFactory) CreateSnapshotRepository() (SnapshotStore, error) {
	cacheCfg, err := f.cfg.GetCache()
	if err != nil {
		return nil, err
	}

	switch cacheCfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return cache.NewMemoryCache(f.logger, cacheCfg.CleanupFrequency, cacheCfg.Retention), nil
	case "sqlite":
		if err := ensureDir(cacheCfg.SQLitePath); err != nil {
			return nil, err
		}
		repo, err := cache.NewSQLiteCache(cacheCfg.SQLitePath, f.logger, cacheCfg.CleanupFrequency, cacheCfg.Retention)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mysql":
		repo, err := cache.NewMySQLCache(cacheCfg.MySQLDSN, f.logger, cacheCfg.CleanupFrequency, cacheCfg.Retention)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := cache.NewRedisClient(ctx, cacheCfg.RedisAddress, cacheCfg.RedisPassword, cacheCfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisCache(client, f.logger, cacheCfg.Retention), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheCfg.Type)
	}
}

// CreateCacheOptions returns the cache manager settings
func (f *CacheFactory) CreateCacheOptions() (core.CacheOptions, error) {
	cacheCfg, err := f.cfg.GetCache()
	if err != nil {
		return core.CacheOptions{}, err
	}
	return core.CacheOptions{
		Key:         cacheCfg.Key,
		TTL:         cacheCfg.TTL,
		ScanTimeout: cacheCfg.ScanTimeout,
	}, nil
}
