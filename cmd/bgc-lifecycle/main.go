package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/adapters/httpapi"
	"github.com/mikey/bgc-lifecycle/internal/adapters/scheduler"
	"github.com/mikey/bgc-lifecycle/internal/adapters/store"
	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/di"
	"github.com/mikey/bgc-lifecycle/internal/factory"
	"github.com/mikey/bgc-lifecycle/internal/metrics"
	"github.com/mikey/bgc-lifecycle/internal/ports"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

type params struct {
	dig.In

	Logger    *zap.Logger
	Config    *config.Config
	Cache     *core.CacheManager
	HTTP      *httpapi.Server
	Refresher *scheduler.Refresher
	Metrics   *metrics.Server
	Inbox     ports.Service `name:"inbox"`
	Snapshots factory.SnapshotStore
	Store     *store.SQLStore
	Advisor   core.RiskAdvisor
}

// run is the main application function that gets all dependencies injected
func run(p params) error {
	logger := p.Logger
	defer logger.Sync()

	ctx := context.Background()
	if err := p.Cache.Warm(ctx); err != nil {
		logger.Warn("Failed to warm lifecycle cache", zap.Error(err))
	}

	var started []ports.Service
	start := func(name string, svc ports.Service) error {
		if err := svc.Start(); err != nil {
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		started = append(started, svc)
		return nil
	}

	if p.Inbox != nil {
		if err := start("SMTP inbox", p.Inbox); err != nil {
			return err
		}
	}
	if p.Config.GetMetrics().Enabled {
		if err := start("metrics endpoint", p.Metrics); err != nil {
			return err
		}
	}
	if p.Config.GetHTTP().Enabled {
		if err := start("HTTP API", p.HTTP); err != nil {
			return err
		}
	}

	refreshCfg, err := p.Config.GetRefresh()
	if err != nil {
		return err
	}
	if refreshCfg.Enabled {
		if err := start("refresher", p.Refresher); err != nil {
			return err
		}
	}

	// Populate the cache without delaying start-up
	go func() {
		if _, _, err := p.Cache.Get(ctx); err != nil {
			logger.Error("Initial lifecycle scan failed", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Stop(); err != nil {
			logger.Error("Failed to stop service", zap.Error(err))
		}
	}
	p.Cache.Wait()

	// Close any resources that need closing
	if closer, ok := p.Advisor.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close risk advisor", zap.Error(err))
		}
	}
	if p.Snapshots != nil {
		p.Snapshots.Stop()
	}
	if err := p.Store.Close(); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
