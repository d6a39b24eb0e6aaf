package redisdb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

func newTestManager() *Manager {
	return NewManagerWithKV(NewMemKV(), common.NewSilentLogger())
}

func TestSeriesKeyRouting(t *testing.T) {
	assert.Equal(t, "stock_trend:600519.SH", SeriesKey("600519.SH", false))
	assert.Equal(t, "etf_trend:510300.SH", SeriesKey("510300.SH", true))

	// Fund codes start with 1 or 5 and route to the etf namespace.
	assert.Equal(t, "etf_trend:510300.SH", seriesKeyFor("510300.SH"))
	assert.Equal(t, "etf_trend:159915.SZ", seriesKeyFor("159915.SZ"))
	assert.Equal(t, "stock_trend:000001.SZ", seriesKeyFor("000001.SZ"))
	assert.Equal(t, "stock_trend:600519.SH", seriesKeyFor("600519.SH"))
}

func TestIsSeriesKey(t *testing.T) {
	code, ok := IsSeriesKey("stock_trend:600519.SH")
	assert.True(t, ok)
	assert.Equal(t, "600519.SH", code)

	code, ok = IsSeriesKey("etf_trend:510300.SH")
	assert.True(t, ok)
	assert.Equal(t, "510300.SH", code)

	_, ok = IsSeriesKey("buy_signals")
	assert.False(t, ok)
}

func TestKlineStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	series := &models.Series{
		TSCode: "600519.SH",
		Data: []models.Bar{
			{TradeDate: "2026-08-21", Open: 1700, High: 1720, Low: 1690, Close: 1710, Vol: 3200000},
			{TradeDate: "2026-08-24", Open: 1710, High: 1735, Low: 1705, Close: 1730, Vol: 2900000},
		},
		Source:         models.SourceTushare,
		LastUpdateType: models.UpdateTypeBulk,
	}
	require.NoError(t, m.Klines().SaveSeries(ctx, series))

	// SaveSeries stamps UpdatedAt and DataCount.
	assert.Equal(t, 2, series.DataCount)
	assert.False(t, series.UpdatedAt.IsZero())

	got, err := m.Klines().GetSeries(ctx, "600519.SH")
	require.NoError(t, err)
	assert.Equal(t, "600519.SH", got.TSCode)
	assert.Len(t, got.Data, 2)
	assert.Equal(t, "2026-08-24", got.LastBar().TradeDate)
	assert.Equal(t, models.SourceTushare, got.Source)

	exists, err := m.Klines().SeriesExists(ctx, "600519.SH")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.Klines().SeriesExists(ctx, "000001.SZ")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestKlineStoreMissingSeries(t *testing.T) {
	m := newTestManager()
	_, err := m.Klines().GetSeries(context.Background(), "600000.SH")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindNotFound))
}

func TestKlineStoreListSeriesCodes(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	for _, code := range []string{"600519.SH", "000001.SZ", "510300.SH"} {
		require.NoError(t, m.Klines().SaveSeries(ctx, &models.Series{
			TSCode: code,
			Data:   []models.Bar{{TradeDate: "2026-08-24", Open: 1, High: 1, Low: 1, Close: 1}},
		}))
	}

	codes, err := m.Klines().ListSeriesCodes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"600519.SH", "000001.SZ", "510300.SH"}, codes)
}

func TestKlineSeriesTTLExpiry(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()
	m := NewManagerWithKV(kv, common.NewSilentLogger())

	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	kv.SetClock(func() time.Time { return base })

	require.NoError(t, m.Klines().SaveSeries(ctx, &models.Series{
		TSCode: "600519.SH",
		Data:   []models.Bar{{TradeDate: "2026-08-24", Open: 1, High: 1, Low: 1, Close: 1}},
	}))

	kv.SetClock(func() time.Time { return base.Add(31 * 24 * time.Hour) })
	_, err := m.Klines().GetSeries(ctx, "600519.SH")
	assert.True(t, common.IsKind(err, common.KindNotFound))
}

func TestSymbolStoreStockList(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	symbols := []models.Symbol{
		{TSCode: "600519.SH", Code: "600519", Name: "贵州茅台", Market: models.MarketSH, Board: models.BoardMain},
		{TSCode: "300750.SZ", Code: "300750", Name: "宁德时代", Market: models.MarketSZ, Board: models.BoardGEM},
	}
	require.NoError(t, m.Symbols().SaveStockList(ctx, symbols))

	loaded, err := m.Symbols().LoadStockList(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "贵州茅台", loaded[0].Name)

	sym, err := m.Symbols().GetSymbol(ctx, "300750")
	require.NoError(t, err)
	assert.Equal(t, "300750.SZ", sym.TSCode)
	assert.Equal(t, models.BoardGEM, sym.Board)

	n, err := m.Symbols().StockCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSymbolStoreETFFallback(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	etfs := []models.Symbol{
		{TSCode: "510300.SH", Code: "510300", Name: "沪深300ETF", Market: models.MarketETF, TradeMode: models.TradeModeT1},
	}
	require.NoError(t, m.Symbols().SaveETFList(ctx, etfs))

	// Not in the stock hash; lookup falls through to the ETF list.
	sym, err := m.Symbols().GetSymbol(ctx, "510300")
	require.NoError(t, err)
	assert.Equal(t, "510300.SH", sym.TSCode)

	sym, err = m.Symbols().GetSymbol(ctx, "510300.SH")
	require.NoError(t, err)
	assert.Equal(t, "510300", sym.Code)

	_, err = m.Symbols().GetSymbol(ctx, "999999")
	assert.True(t, common.IsKind(err, common.KindNotFound))
}

func TestSymbolStoreCountsEmpty(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	n, err := m.Symbols().StockCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = m.Symbols().ETFCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSymbolStoreReplaceRemovesStale(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	require.NoError(t, m.Symbols().SaveStockList(ctx, []models.Symbol{
		{TSCode: "600000.SH", Code: "600000", Name: "浦发银行"},
	}))
	require.NoError(t, m.Symbols().SaveStockList(ctx, []models.Symbol{
		{TSCode: "600519.SH", Code: "600519", Name: "贵州茅台"},
	}))

	// The delisted code is gone from the hash after the full rewrite.
	_, err := m.Symbols().GetSymbol(ctx, "600000")
	assert.True(t, common.IsKind(err, common.KindNotFound))
}

func TestSignalStoreReplaceAll(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	first := []models.Signal{
		{Code: "600519", Strategy: models.StrategyVolumeWave, SignalType: models.SignalBuy, Price: 1710},
		{Code: "000001", Strategy: models.StrategyTrendContinuation, SignalType: models.SignalBuy, Price: 11.2},
	}
	require.NoError(t, m.Signals().ReplaceAll(ctx, first))

	all, err := m.Signals().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Sorted by code, then strategy.
	assert.Equal(t, "000001", all[0].Code)
	assert.Equal(t, "600519", all[1].Code)

	// A recompute replaces the whole set; earlier signals do not linger.
	second := []models.Signal{
		{Code: "300750", Strategy: models.StrategyVolumeWave, SignalType: models.SignalBuy, Price: 188.8},
	}
	require.NoError(t, m.Signals().ReplaceAll(ctx, second))

	all, err = m.Signals().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "300750", all[0].Code)
}

func TestSignalStoreGetByStrategy(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	require.NoError(t, m.Signals().ReplaceAll(ctx, []models.Signal{
		{Code: "600519", Strategy: models.StrategyVolumeWave, SignalType: models.SignalBuy},
		{Code: "600519", Strategy: models.StrategyVolatilityConserve, SignalType: models.SignalSell},
		{Code: "000001", Strategy: models.StrategyVolumeWave, SignalType: models.SignalBuy},
	}))

	waves, err := m.Signals().GetByStrategy(ctx, models.StrategyVolumeWave)
	require.NoError(t, err)
	require.Len(t, waves, 2)
	for _, sig := range waves {
		assert.Equal(t, models.StrategyVolumeWave, sig.Strategy)
	}

	none, err := m.Signals().GetByStrategy(ctx, "missing_strategy")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSignalStoreEvictUnknownStrategies(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()
	m := NewManagerWithKV(kv, common.NewSilentLogger())

	require.NoError(t, m.Signals().ReplaceAll(ctx, []models.Signal{
		{Code: "600519", Strategy: models.StrategyVolumeWave, SignalType: models.SignalBuy},
	}))
	// Plant a legacy field and one from a removed strategy.
	require.NoError(t, kv.HSet(ctx, KeyBuySignals, map[string]string{
		"000001":               `{"code":"000001"}`,
		"000002:old_strategy":  `{"code":"000002","strategy":"old_strategy"}`,
	}))

	evicted, err := m.Signals().EvictUnknownStrategies(ctx, []string{
		models.StrategyVolumeWave,
		models.StrategyVolumeWaveEnhanced,
		models.StrategyVolatilityConserve,
		models.StrategyTrendContinuation,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)

	all, err := m.Signals().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "600519", all[0].Code)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	snap := &models.Snapshot{
		Quotes: []models.Quote{
			{Code: "600519", Name: "贵州茅台", Price: 1712.5, ChangePercent: 0.82},
		},
		Source:    "eastmoney",
		FetchedAt: time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, m.Snapshots().SaveSnapshot(ctx, snap))

	got, err := m.Snapshots().GetSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Quotes, 1)
	assert.Equal(t, "贵州茅台", got.Quotes[0].Name)
	assert.Equal(t, "eastmoney", got.Source)
}

func TestExecLogStoreNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	base := time.Date(2026, 8, 24, 17, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.ExecLogs().Append(ctx, &models.ExecutionLog{
			Job:       models.JobSmartBarUpdate,
			Status:    models.ExecStatusSuccess,
			Rows:      i,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, m.ExecLogs().Append(ctx, &models.ExecutionLog{
		Job:       models.JobNewsCrawl,
		Status:    models.ExecStatusFail,
		Error:     "upstream timeout",
		StartedAt: base,
	}))

	entries, err := m.ExecLogs().List(ctx, models.JobSmartBarUpdate, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 2, entries[0].Rows)
	assert.Equal(t, 0, entries[2].Rows)

	limited, err := m.ExecLogs().List(ctx, models.JobSmartBarUpdate, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	all, err := m.ExecLogs().List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestCacheStoreMissIsNotError(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	_, hit, err := m.Cache().GetCache(ctx, ChartDataKey("600519", "volume_wave"))
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, m.Cache().SetCache(ctx, ChartDataKey("600519", "volume_wave"), `{"points":[]}`, TTLChartData))
	raw, hit, err := m.Cache().GetCache(ctx, ChartDataKey("600519", "volume_wave"))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, `{"points":[]}`, raw)
}

func TestCacheStoreDeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	require.NoError(t, m.Cache().SetCache(ctx, ChartDataKey("600519", "volume_wave"), "a", time.Minute))
	require.NoError(t, m.Cache().SetCache(ctx, ChartDataKey("000001", "trend_continuation"), "b", time.Minute))
	require.NoError(t, m.Cache().SetCache(ctx, "news:latest", "c", time.Minute))

	n, err := m.Cache().DeleteByPrefix(ctx, "chart_data:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, hit, err := m.Cache().GetCache(ctx, "news:latest")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestCacheStoreFlagOneShot(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	won, err := m.Cache().SetFlag(ctx, FlagKey("signal_migration_v2"), 0)
	require.NoError(t, err)
	assert.True(t, won)

	// Second attempt inside the TTL window loses.
	won, err = m.Cache().SetFlag(ctx, FlagKey("signal_migration_v2"), 0)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestManagerFlushNamespaces(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()
	m := NewManagerWithKV(kv, common.NewSilentLogger())

	require.NoError(t, m.Klines().SaveSeries(ctx, &models.Series{
		TSCode: "600519.SH",
		Data:   []models.Bar{{TradeDate: "2026-08-24", Open: 1, High: 1, Low: 1, Close: 1}},
	}))
	require.NoError(t, m.Symbols().SaveStockList(ctx, []models.Symbol{
		{TSCode: "600519.SH", Code: "600519", Name: "贵州茅台"},
	}))
	require.NoError(t, m.Signals().ReplaceAll(ctx, []models.Signal{
		{Code: "600519", Strategy: models.StrategyVolumeWave, SignalType: models.SignalBuy},
	}))
	// A foreign key in the shared DB must survive the flush.
	require.NoError(t, kv.Set(ctx, "other_app:state", "keep"))

	deleted, err := m.FlushNamespaces(ctx)
	require.NoError(t, err)
	assert.Greater(t, deleted, 0)

	_, err = m.Klines().GetSeries(ctx, "600519.SH")
	assert.True(t, common.IsKind(err, common.KindNotFound))

	kept, err := kv.Get(ctx, "other_app:state")
	require.NoError(t, err)
	assert.Equal(t, "keep", kept)
}

func TestEncodePreservesCJK(t *testing.T) {
	raw, err := encode(&models.Symbol{Code: "600519", Name: "贵州茅台"})
	require.NoError(t, err)
	assert.Contains(t, raw, "贵州茅台")
	assert.False(t, strings.Contains(raw, `\u`))
}

func TestExecLogKeySortable(t *testing.T) {
	earlier := ExecLogKey("smart_bar_update", time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC))
	later := ExecLogKey("smart_bar_update", time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC))
	assert.Less(t, earlier, later)
}
