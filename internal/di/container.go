package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/adapters/httpapi"
	"github.com/mikey/bgc-lifecycle/internal/adapters/scheduler"
	"github.com/mikey/bgc-lifecycle/internal/adapters/store"
	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/factory"
	"github.com/mikey/bgc-lifecycle/internal/logging"
	"github.com/mikey/bgc-lifecycle/internal/metrics"
	"github.com/mikey/bgc-lifecycle/internal/ports"
	"github.com/mikey/bgc-lifecycle/internal/utils"
	"github.com/mikey/bgc-lifecycle/internal/whitelist"
)

// MailboxResult carries the mailbox source and, for sources that receive
// mail themselves, the service that must be started
type MailboxResult struct {
	dig.Out

	Source core.MailboxSource
	Inbox  ports.Service `name:"inbox"`
}

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.New); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *metrics.Server {
		return metrics.NewServer(m, cfg.GetMetrics().ListenAddress, logger)
	}); err != nil {
		return nil, err
	}

	// Register snapshot repository
	if err := container.Provide(func(f *factory.CacheFactory) (factory.SnapshotStore, error) {
		return f.CreateSnapshotRepository()
	}); err != nil {
		return nil, err
	}

	// Register cache manager
	if err := container.Provide(func(
		f *factory.CacheFactory,
		engine *core.Engine,
		repo factory.SnapshotStore,
		m *metrics.Metrics,
		cfg *config.Config,
		logger *zap.Logger,
	) (*core.CacheManager, error) {
		opts, err := f.CreateCacheOptions()
		if err != nil {
			return nil, err
		}
		options := []core.CacheOption{}
		if repo != nil {
			options = append(options, core.WithSnapshotRepository(repo))
		}
		if cfg.GetMetrics().Enabled {
			options = append(options, core.WithScanObserver(m))
		}
		return core.NewCacheManager(engine.Scan, logger, opts, options...), nil
	}); err != nil {
		return nil, err
	}

	// Register lifecycle service
	if err := container.Provide(core.NewLifecycleService); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *core.LifecycleService) ports.LifecycleAPI {
		return s
	}); err != nil {
		return nil, err
	}

	// Register HTTP API
	if err := container.Provide(func(cfg *config.Config) (*core.RoleRegistry, error) {
		roles, err := cfg.GetRoles()
		if err != nil {
			return nil, err
		}
		return core.NewRoleRegistry(roles)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		cfg *config.Config,
		api ports.LifecycleAPI,
		roles *core.RoleRegistry,
		logger *zap.Logger,
	) *httpapi.Server {
		httpCfg := cfg.GetHTTP()
		return httpapi.NewServer(api, roles, httpCfg.ListenAddress, httpCfg.RoleHeader, logger)
	}); err != nil {
		return nil, err
	}

	// Register refresher
	if err := container.Provide(func(
		cfg *config.Config,
		cache *core.CacheManager,
		logger *zap.Logger,
	) (*scheduler.Refresher, error) {
		refreshCfg, err := cfg.GetRefresh()
		if err != nil {
			return nil, err
		}
		cacheCfg, err := cfg.GetCache()
		if err != nil {
			return nil, err
		}
		return scheduler.NewRefresher(cache, refreshCfg.Interval, refreshCfg.FullInterval, cacheCfg.ScanTimeout, logger), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideEngine registers everything the scan engine needs. Shared by the
// service and CLI containers, which only differ in config and logger.
func provideEngine(container *dig.Container) error {
	// Register factories
	for _, constructor := range []interface{}{
		factory.NewClassifierFactory,
		factory.NewSourceFactory,
		factory.NewStoreFactory,
		factory.NewCacheFactory,
		factory.NewAdvisorFactory,
		factory.NewEngineFactory,
	} {
		if err := container.Provide(constructor); err != nil {
			return err
		}
	}

	// Register text processor
	if err := container.Provide(func(f *factory.ClassifierFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register classifier and sender filter
	if err := container.Provide(func(f *factory.ClassifierFactory, text *utils.TextProcessor) (*core.Classifier, error) {
		return f.CreateClassifier(text)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.ClassifierFactory) (*whitelist.Checker, error) {
		return f.CreateSenderFilter()
	}); err != nil {
		return err
	}

	// Register mailbox source
	if err := container.Provide(func(f *factory.SourceFactory) (MailboxResult, error) {
		source, inbox, err := f.CreateMailboxSource()
		return MailboxResult{Source: source, Inbox: inbox}, err
	}); err != nil {
		return err
	}

	// Register account and event store
	if err := container.Provide(func(f *factory.StoreFactory) (*store.SQLStore, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}

	// Register risk advisor
	if err := container.Provide(func(f *factory.AdvisorFactory) (core.RiskAdvisor, error) {
		return f.CreateRiskAdvisor(context.Background())
	}); err != nil {
		return err
	}

	// Register engine
	return container.Provide(func(
		f *factory.EngineFactory,
		sf *factory.StoreFactory,
		source core.MailboxSource,
		accounts *store.SQLStore,
		classifier *core.Classifier,
		advisor core.RiskAdvisor,
		senders *whitelist.Checker,
	) (*core.Engine, error) {
		deps := factory.EngineDeps{
			Source:     source,
			Accounts:   accounts,
			Classifier: classifier,
			Advisor:    advisor,
		}
		if sf.PersistEvents() {
			deps.Events = accounts
		}
		if senders.Enabled() {
			deps.Senders = senders
		}
		return f.CreateEngine(deps)
	})
}
