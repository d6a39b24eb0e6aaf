// Package interfaces defines service contracts for StockPulse
package interfaces

import (
	"context"

	"github.com/cnquant/stockpulse/internal/models"
)

// Provider names used across the fetch fabric and statistics.
const (
	ProviderTushare   = "tushare"
	ProviderEastmoney = "eastmoney"
	ProviderSina      = "sina"
	ProviderAuto      = "auto"
)

// ProviderAdapter is the uniform contract over upstream market data
// providers. Adapters return normalized shapes only; provider-specific
// field names never leak past the adapter. Rows that fail numeric parse
// or yield a non-positive close are dropped, never surfaced as errors.
type ProviderAdapter interface {
	// Name returns the provider identifier (tushare, eastmoney, sina).
	Name() string

	// SnapshotAllStocks pulls a realtime quote for every listed stock.
	SnapshotAllStocks(ctx context.Context) ([]models.Quote, error)

	// SnapshotAllETFs pulls a realtime quote for every listed ETF.
	SnapshotAllETFs(ctx context.Context) ([]models.Quote, error)

	// DailyBars retrieves daily OHLCV bars for one symbol within
	// [from, to], both canonical YYYY-MM-DD, date-ascending.
	DailyBars(ctx context.Context, tsCode, from, to string) ([]models.Bar, error)
}

// SymbolMasterProvider is implemented by adapters that can serve the
// stock/ETF master list (currently Tushare).
type SymbolMasterProvider interface {
	// SymbolMaster retrieves the listed stock master records.
	SymbolMaster(ctx context.Context) ([]models.Symbol, error)

	// ETFMaster retrieves the listed fund master records.
	ETFMaster(ctx context.Context) ([]models.Symbol, error)
}

// NewsClient crawls the latest market headlines.
type NewsClient interface {
	LatestNews(ctx context.Context, limit int) ([]models.NewsItem, error)
}

// AIClient generates a short natural-language digest of headlines.
// Implementations must tolerate being nil-checked by callers; AI failure
// never fails a crawl.
type AIClient interface {
	SummarizeNews(ctx context.Context, items []models.NewsItem) (string, error)
}
