package interfaces

import (
	"context"

	"github.com/cnquant/stockpulse/internal/models"
)

// KlineService owns every write to a K-line series. Other components
// submit candidates; the store performs the write.
type KlineService interface {
	// Put overwrites the series for tsCode. A put of fewer than 20 bars
	// for a previously unknown symbol is rejected with bad_input.
	Put(ctx context.Context, tsCode string, bars []models.Bar) error

	// Append merges bars by trade date: a same-date incoming bar replaces
	// the stored last bar, newer dates are appended, and the front is
	// trimmed to the retention window.
	Append(ctx context.Context, tsCode string, bars []models.Bar) error

	// MergeRealtime folds a quote into the last bar as a synthetic bar.
	// Only effective during a trading session.
	MergeRealtime(ctx context.Context, tsCode string, quote models.Quote) error

	Get(ctx context.Context, tsCode string) (*models.Series, error)
	Exists(ctx context.Context, tsCode string) (bool, error)

	// Backfill fetches ~days of history upstream and installs it via Put.
	// Concurrent calls for the same tsCode coalesce to one upstream fetch.
	Backfill(ctx context.Context, tsCode string, days int) (*models.Series, error)
}

// RegistryService manages the stock + ETF master list.
type RegistryService interface {
	Load(ctx context.Context) ([]models.Symbol, error)
	LoadETFs(ctx context.Context) ([]models.Symbol, error)

	// Refresh pulls the master list from the registered source and
	// overwrites both namespaces. Returns stock and ETF counts.
	Refresh(ctx context.Context) (stocks int, etfs int, err error)

	// IsReady returns nil when the registry holds at least 5000 stocks
	// and 1 ETF, otherwise a not_ready error with a diagnostic.
	IsReady(ctx context.Context) error

	Get(ctx context.Context, code string) (*models.Symbol, error)
}

// SnapshotOptions configures a realtime snapshot cycle.
type SnapshotOptions struct {
	IncludeETF        bool
	PreferredProvider string // empty means use configured provider
}

// RealtimeService pulls realtime quotes with provider failover and fans
// merged bars out to the K-line store during trading sessions.
type RealtimeService interface {
	SnapshotAll(ctx context.Context, opts SnapshotOptions) (*models.Snapshot, error)

	// SnapshotOne serves a single symbol from the cached batch snapshot
	// (batch is cheaper than per-symbol upstream calls).
	SnapshotOne(ctx context.Context, symbol string) (*models.Quote, error)

	Stats() []models.ProviderStats
}

// RecomputeOptions configures a strategy engine run.
type RecomputeOptions struct {
	Strategies    []string // empty means all registered
	ETFOnly       bool
	ClearExisting bool
}

// StrategyService runs registered strategies over the K-line store and
// owns the persisted signal set.
type StrategyService interface {
	// RecomputeAll replaces the prior signal set under lock; readers never
	// observe a partial update. Returns the number of signals installed.
	RecomputeAll(ctx context.Context, opts RecomputeOptions) (int, error)

	Strategies() []string
	AllSignals(ctx context.Context) ([]models.Signal, error)
	SignalsFor(ctx context.Context, strategy string) ([]models.Signal, error)
}

// SchedulerStatus is the observable scheduler state.
type SchedulerStatus struct {
	Mode string             `json:"mode"`
	Jobs []models.JobStatus `json:"jobs"`
}

// SchedulerService drives the wall-clock job table.
type SchedulerService interface {
	// Start registers the cron table and runs the startup jobs allowed by
	// the configured init mode.
	Start(ctx context.Context) error
	Stop()

	// Trigger runs one job by name. A running non-idempotent job rejects
	// the trigger with conflict_singleton; idempotent jobs may overlap.
	Trigger(ctx context.Context, job string) (*models.ExecutionLog, error)

	Status() SchedulerStatus
}

// NewsService populates and serves the news:latest cache.
type NewsService interface {
	Crawl(ctx context.Context) (int, error)
	Latest(ctx context.Context) (*models.NewsDigest, error)
}

// ChartService builds and caches derived chart artifacts.
type ChartService interface {
	// ChartData returns the chart JSON for (symbol, strategy), built on
	// demand and cached for one minute.
	ChartData(ctx context.Context, symbol, strategy string) (string, error)

	// RenderPNG renders the series with signal markers to a PNG image.
	RenderPNG(ctx context.Context, symbol, strategy string) ([]byte, error)

	// Purge removes all generated chart artifacts.
	Purge(ctx context.Context) (int, error)
}
