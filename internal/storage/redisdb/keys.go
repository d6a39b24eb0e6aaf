// Package redisdb implements the Redis keyspace, codec and TTL policy.
// The key vocabulary below is the durable external contract and must be
// preserved bit-for-bit.
package redisdb

import (
	"strings"
	"time"
)

// Key vocabulary.
const (
	KeyStockCodesAll = "stocks:codes:all"
	KeyStockList     = "stock_list" // hash: code -> symbol record
	KeyETFCodesAll   = "etf:codes:all"
	KeyRealtime      = "stock:realtime"
	KeyBuySignals    = "buy_signals" // hash: code:strategy -> signal record
	KeyNewsLatest    = "news:latest"

	prefixStockTrend = "stock_trend:"
	prefixETFTrend   = "etf_trend:"
	prefixChartData  = "chart_data:"
	prefixChartPNG   = "chart_png:"
	prefixExecLog    = "exec_log:"
	prefixFlag       = "flag:"
)

// TTL policy. The symbol registry is persistent; everything derived
// carries a bounded TTL.
const (
	TTLKlineSeries = 30 * 24 * time.Hour // sliding, refreshed on write
	TTLRealtime    = 5 * time.Minute
	TTLSignals     = 1 * time.Hour // refreshed on every recompute
	TTLChartData   = 1 * time.Minute
	TTLExecLog     = 7 * 24 * time.Hour
	TTLFlag        = 24 * time.Hour
	TTLNews        = 24 * time.Hour
)

// SeriesKey returns the K-line series key for a canonical ts_code.
// ETF codes (suffix .ETF or fund exchange codes registered as ETFs) are
// routed to the parallel etf_trend namespace by the caller.
func SeriesKey(tsCode string, etf bool) string {
	if etf {
		return prefixETFTrend + tsCode
	}
	return prefixStockTrend + tsCode
}

// ChartPrefixes lists the chart artifact namespaces, for purge jobs.
var ChartPrefixes = []string{prefixChartData, prefixChartPNG}

// ChartDataKey returns the chart JSON cache key.
func ChartDataKey(symbol, strategy string) string {
	return prefixChartData + symbol + ":" + strategy
}

// ChartPNGKey returns the rendered chart image cache key.
func ChartPNGKey(symbol, strategy string) string {
	return prefixChartPNG + symbol + ":" + strategy
}

// ExecLogKey returns the execution-log key for one run.
func ExecLogKey(job string, startedAt time.Time) string {
	return prefixExecLog + job + ":" + startedAt.UTC().Format("20060102T150405.000000000")
}

// FlagKey returns a one-shot guard flag key.
func FlagKey(name string) string {
	return prefixFlag + name
}

// namespacePatterns lists every application-owned key pattern, used by
// FlushNamespaces so a shared Redis DB is never flushed wholesale.
var namespacePatterns = []string{
	KeyStockCodesAll,
	KeyStockList,
	KeyETFCodesAll,
	KeyRealtime,
	KeyBuySignals,
	KeyNewsLatest,
	prefixStockTrend + "*",
	prefixETFTrend + "*",
	prefixChartData + "*",
	prefixChartPNG + "*",
	prefixExecLog + "*",
	prefixFlag + "*",
}

// IsSeriesKey reports whether key belongs to a K-line namespace and
// returns the embedded ts_code.
func IsSeriesKey(key string) (string, bool) {
	if strings.HasPrefix(key, prefixStockTrend) {
		return strings.TrimPrefix(key, prefixStockTrend), true
	}
	if strings.HasPrefix(key, prefixETFTrend) {
		return strings.TrimPrefix(key, prefixETFTrend), true
	}
	return "", false
}
