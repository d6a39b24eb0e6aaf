// Package app wires configuration, storage, clients and services into
// one runnable application core shared by cmd/stockpulse-server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cnquant/stockpulse/internal/clients/eastmoney"
	"github.com/cnquant/stockpulse/internal/clients/gemini"
	"github.com/cnquant/stockpulse/internal/clients/sina"
	"github.com/cnquant/stockpulse/internal/clients/tushare"
	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/fetch"
	"github.com/cnquant/stockpulse/internal/hub"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/scheduler"
	"github.com/cnquant/stockpulse/internal/services/chart"
	"github.com/cnquant/stockpulse/internal/services/kline"
	"github.com/cnquant/stockpulse/internal/services/news"
	"github.com/cnquant/stockpulse/internal/services/realtime"
	"github.com/cnquant/stockpulse/internal/services/registry"
	"github.com/cnquant/stockpulse/internal/services/strategy"
	"github.com/cnquant/stockpulse/internal/storage/redisdb"
)

// App holds all initialized clients and services. It is the shared core
// behind the HTTP surface and the scheduler.
type App struct {
	Config   *common.Config
	Logger   *common.Logger
	Calendar *common.Calendar
	Storage  *redisdb.Manager

	Fabric    *fetch.Fabric
	Registry  interfaces.RegistryService
	Klines    interfaces.KlineService
	Realtime  interfaces.RealtimeService
	Strategy  interfaces.StrategyService
	News      interfaces.NewsService
	Charts    interfaces.ChartService
	Scheduler interfaces.SchedulerService
	Hub       *hub.Hub

	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients and services. configPath may be
// empty, in which case STOCKPULSE_CONFIG and the binary directory are
// consulted.
func NewApp(configPath string) (*App, error) {
	if configPath == "" {
		configPath = os.Getenv("STOCKPULSE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "stockpulse.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/stockpulse.toml" // development fallback
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)
	common.PrintBanner(config, logger)

	storage, err := redisdb.NewManager(&config.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()
	if config.Scheduler.ResetTables {
		deleted, err := storage.FlushNamespaces(ctx)
		if err != nil {
			return nil, fmt.Errorf("reset tables: %w", err)
		}
		logger.Warn().Int("deleted", deleted).Msg("RESET_TABLES: application namespaces flushed")
	}

	calendar := common.NewCalendar()

	// Provider adapters in failover order. Tushare leads because it is
	// the only symbol-master source.
	tushareClient := tushare.NewClient(config.Providers.Tushare.Token,
		tushare.WithLogger(logger),
		tushare.WithTimeout(config.Providers.Tushare.GetTimeout()),
	)
	eastmoneyClient := eastmoney.NewClient(
		eastmoney.WithLogger(logger),
		eastmoney.WithTimeout(config.Providers.Eastmoney.GetTimeout()),
	)
	sinaClient := sina.NewClient(
		sina.WithLogger(logger),
		sina.WithTimeout(config.Providers.Sina.GetTimeout()),
	)
	fabric := fetch.New(&config.Providers, logger, []interfaces.ProviderAdapter{
		tushareClient, eastmoneyClient, sinaClient,
	})

	registrySvc := registry.NewService(storage.Symbols(), fabric, logger)
	klineSvc := kline.NewService(storage.Klines(), fabric, calendar, logger)
	realtimeSvc := realtime.NewService(fabric, klineSvc, registrySvc, storage.Snapshots(),
		calendar, config.Scheduler.GetMaxWorkers(), config.Scheduler.GetMergeQueueSize(), logger)
	strategySvc := strategy.NewService(storage.Klines(), registrySvc, storage.Signals(),
		storage.Cache(), config.Scheduler.GetMaxWorkers(), logger)

	var aiClient interfaces.AIClient
	if config.AI.Enabled && config.AI.APIKey != "" {
		client, err := gemini.NewClient(ctx, config.AI.APIKey,
			gemini.WithModel(config.AI.Model),
			gemini.WithLogger(logger),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("AI client unavailable, news digests will be headline-only")
		} else {
			aiClient = client
		}
	}
	newsSvc := news.NewService(eastmoneyClient, aiClient, storage.Cache(), logger)
	chartSvc := chart.NewService(klineSvc, storage.Cache(), logger)

	sched := scheduler.New(registrySvc, klineSvc, fabric, realtimeSvc, strategySvc,
		newsSvc, chartSvc, storage.ExecLogs(), calendar, &config.Scheduler, logger)

	wsHub := hub.New(realtimeSvc, strategySvc, logger,
		hub.WithTestMode(config.Scheduler.WebSocketTestMode))

	return &App{
		Config:      config,
		Logger:      logger,
		Calendar:    calendar,
		Storage:     storage,
		Fabric:      fabric,
		Registry:    registrySvc,
		Klines:      klineSvc,
		Realtime:    realtimeSvc,
		Strategy:    strategySvc,
		News:        newsSvc,
		Charts:      chartSvc,
		Scheduler:   sched,
		Hub:         wsHub,
		StartupTime: time.Now(),
	}, nil
}

// Start launches the scheduler and the WebSocket hub sweeper.
func (a *App) Start(ctx context.Context) error {
	go a.Hub.Run()
	return a.Scheduler.Start(ctx)
}

// Close stops background work in dependency order.
func (a *App) Close() {
	a.Scheduler.Stop()
	a.Hub.Stop()
	a.Storage.Close()
}
