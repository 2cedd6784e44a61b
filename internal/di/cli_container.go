package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	ConfigFile string
	SourceDir  string
	StorePath  string
	Workers    int
	Verbose    bool
	JSONLog    bool
	JSONOutput bool
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")
	flag.StringVar(&flags.SourceDir, "source-dir", "./mail", "Directory of exported mailboxes (<dir>/<account>/<mailbox>/*.eml)")
	flag.StringVar(&flags.StorePath, "store", "./bgc_lifecycle.db", "SQLite account store")
	flag.IntVar(&flags.Workers, "workers", 8, "Accounts scanned concurrently")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.BoolVar(&flags.JSONOutput, "json", false, "Print the report as JSON")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register a cache manager without persistence; the CLI scans once
	if err := container.Provide(func(engine *core.Engine, logger *zap.Logger) *core.CacheManager {
		return core.NewCacheManager(engine.Scan, logger, core.CacheOptions{})
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewLifecycleService); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("source.type", "dir")
	v.Set("source.dir.path", flags.SourceDir)
	v.Set("store.type", "sqlite")
	v.Set("store.sqlite_path", flags.StorePath)
	v.Set("store.persist_events", false)
	v.Set("cache.type", "none")
	v.Set("risk.advisor", "none")
	v.Set("engine.workers", flags.Workers)

	return config.NewFromViper(v)
}
