package kline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
	"github.com/cnquant/stockpulse/internal/storage/redisdb"
)

// tradingClock is a Monday inside the morning session (Shanghai time).
var tradingClock = func() time.Time {
	return time.Date(2026, 8, 24, 10, 0, 0, 0, time.FixedZone("CST", 8*60*60))
}

// eveningClock is the same Monday after the close.
var eveningClock = func() time.Time {
	return time.Date(2026, 8, 24, 18, 0, 0, 0, time.FixedZone("CST", 8*60*60))
}

type fakeFetcher struct {
	bars     []models.Bar
	provider string
	err      error
	delay    time.Duration
	calls    atomic.Int64
}

func (f *fakeFetcher) DailyBars(ctx context.Context, tsCode, from, to string) ([]models.Bar, string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, "", f.err
	}
	return f.bars, f.provider, nil
}

func newTestService(clock func() time.Time, fetcher *fakeFetcher) *Service {
	store := redisdb.NewManagerWithKV(redisdb.NewMemKV(), common.NewSilentLogger()).Klines()
	if fetcher == nil {
		fetcher = &fakeFetcher{provider: "tushare"}
	}
	return NewService(store, fetcher, common.NewCalendarAt(clock), common.NewSilentLogger())
}

// makeBars builds n consecutive valid daily bars ending 2026-08-24.
func makeBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		px := 100.0 + float64(i)
		bars[i] = models.Bar{
			TradeDate: day.AddDate(0, 0, i).Format("2006-01-02"),
			Open:      px,
			High:      px + 1,
			Low:       px - 1,
			Close:     px + 0.5,
			Vol:       1000,
			Amount:    100000,
		}
	}
	return bars
}

func TestPutRejectsShortSeriesForNewSymbol(t *testing.T) {
	svc := newTestService(tradingClock, nil)
	ctx := context.Background()

	err := svc.Put(ctx, "600519.SH", makeBars(19))
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindBadInput))

	exists, err := svc.Exists(ctx, "600519.SH")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPutAcceptsShortSeriesForKnownSymbol(t *testing.T) {
	svc := newTestService(tradingClock, nil)
	ctx := context.Background()

	require.NoError(t, svc.Put(ctx, "600519.SH", makeBars(30)))
	require.NoError(t, svc.Put(ctx, "600519.SH", makeBars(5)))

	series, err := svc.Get(ctx, "600519.SH")
	require.NoError(t, err)
	assert.Len(t, series.Data, 5)
	assert.Equal(t, models.UpdateTypeBulk, series.LastUpdateType)
}

func TestPutTrimsToRetention(t *testing.T) {
	svc := newTestService(tradingClock, nil)
	ctx := context.Background()

	require.NoError(t, svc.Put(ctx, "600519.SH", makeBars(250)))
	series, err := svc.Get(ctx, "600519.SH")
	require.NoError(t, err)
	assert.Len(t, series.Data, 180)
	// The newest bars survive the trim.
	assert.Equal(t, "2026-08-24", series.LastBar().TradeDate)
}

func TestPutDropsInvalidAndDuplicateBars(t *testing.T) {
	svc := newTestService(tradingClock, nil)
	ctx := context.Background()

	bars := makeBars(30)
	bars = append(bars, models.Bar{TradeDate: "2026-08-25", Open: 10, High: 9, Low: 8, Close: 9.5, Vol: 1}) // high < open
	bars = append(bars, models.Bar{TradeDate: "not-a-date", Open: 1, High: 2, Low: 1, Close: 1.5, Vol: 1})
	dup := bars[29]
	dup.Close = 999
	dup.High = 1000
	bars = append(bars, dup)

	require.NoError(t, svc.Put(ctx, "600519.SH", bars))
	series, err := svc.Get(ctx, "600519.SH")
	require.NoError(t, err)
	assert.Len(t, series.Data, 30)
	// The duplicate date collapsed to the later occurrence.
	assert.InDelta(t, 999.0, series.LastBar().Close, 0.001)

	// Strictly increasing trade dates throughout.
	for i := 1; i < len(series.Data); i++ {
		assert.Less(t, series.Data[i-1].TradeDate, series.Data[i].TradeDate)
	}
}

func TestAppendMergesByDate(t *testing.T) {
	svc := newTestService(tradingClock, nil)
	ctx := context.Background()
	require.NoError(t, svc.Put(ctx, "600519.SH", makeBars(30)))

	// Same-date bar replaces the stored last bar.
	replacement := models.Bar{TradeDate: "2026-08-24", Open: 130, High: 140, Low: 129, Close: 139, Vol: 5000}
	require.NoError(t, svc.Append(ctx, "600519.SH", []models.Bar{replacement}))
	series, err := svc.Get(ctx, "600519.SH")
	require.NoError(t, err)
	assert.Len(t, series.Data, 30)
	assert.InDelta(t, 139.0, series.LastBar().Close, 0.001)
	assert.Equal(t, models.UpdateTypeIncremental, series.LastUpdateType)

	// A newer date appends; an older date is ignored.
	newer := models.Bar{TradeDate: "2026-08-25", Open: 139, High: 141, Low: 138, Close: 140, Vol: 4000}
	older := models.Bar{TradeDate: "2026-08-20", Open: 1, High: 2, Low: 1, Close: 1.5, Vol: 1}
	require.NoError(t, svc.Append(ctx, "600519.SH", []models.Bar{older, newer}))
	series, err = svc.Get(ctx, "600519.SH")
	require.NoError(t, err)
	assert.Len(t, series.Data, 31)
	assert.Equal(t, "2026-08-25", series.LastBar().TradeDate)
}

func TestMergeRealtimeDuringSession(t *testing.T) {
	svc := newTestService(tradingClock, nil)
	ctx := context.Background()
	require.NoError(t, svc.Put(ctx, "600519.SH", makeBars(30)))

	quote := models.Quote{
		Code: "600519", Price: 1730.5, Open: 1710, High: 1735, Low: 1705,
		Volume: 2900000, Amount: 4959000000, ChangePercent: 1.2, Change: 20.5,
	}
	require.NoError(t, svc.MergeRealtime(ctx, "600519.SH", quote))

	series, err := svc.Get(ctx, "600519.SH")
	require.NoError(t, err)
	last := series.LastBar()
	assert.Equal(t, "2026-08-24", last.TradeDate)
	assert.InDelta(t, 1730.5, last.Close, 0.001)
	assert.Equal(t, models.UpdateTypeRealtime, series.LastUpdateType)
	assert.Equal(t, models.SourceRealtimeMerged, series.Source)
	// The merge overwrote the last bar in place rather than appending.
	assert.Len(t, series.Data, 30)
}

func TestMergeRealtimeOutsideSessionIsNoop(t *testing.T) {
	svc := newTestService(eveningClock, nil)
	ctx := context.Background()
	require.NoError(t, svc.Put(ctx, "600519.SH", makeBars(30)))

	quote := models.Quote{Code: "600519", Price: 1730.5}
	require.NoError(t, svc.MergeRealtime(ctx, "600519.SH", quote))

	series, err := svc.Get(ctx, "600519.SH")
	require.NoError(t, err)
	assert.Equal(t, models.UpdateTypeBulk, series.LastUpdateType)
}

func TestMergeRealtimeSkipsUnknownSeries(t *testing.T) {
	svc := newTestService(tradingClock, nil)
	quote := models.Quote{Code: "600519", Price: 1730.5}
	require.NoError(t, svc.MergeRealtime(context.Background(), "600519.SH", quote))
}

func TestMergeRealtimeDegradesPartialQuote(t *testing.T) {
	svc := newTestService(tradingClock, nil)
	ctx := context.Background()
	require.NoError(t, svc.Put(ctx, "600519.SH", makeBars(30)))

	// Early-session quote with no OHL yet.
	quote := models.Quote{Code: "600519", Price: 1730.5, Volume: 100}
	require.NoError(t, svc.MergeRealtime(ctx, "600519.SH", quote))

	series, err := svc.Get(ctx, "600519.SH")
	require.NoError(t, err)
	last := series.LastBar()
	assert.InDelta(t, 1730.5, last.Open, 0.001)
	assert.InDelta(t, 1730.5, last.High, 0.001)
	assert.InDelta(t, 1730.5, last.Low, 0.001)
}

func TestBackfillInstallsAndLabelsSource(t *testing.T) {
	fetcher := &fakeFetcher{bars: makeBars(60), provider: "eastmoney"}
	svc := newTestService(tradingClock, fetcher)

	series, err := svc.Backfill(context.Background(), "600519.SH", 180)
	require.NoError(t, err)
	assert.Len(t, series.Data, 60)
	assert.Equal(t, models.SourceAKShare, series.Source)

	fetcher2 := &fakeFetcher{bars: makeBars(60), provider: "tushare"}
	svc2 := newTestService(tradingClock, fetcher2)
	series, err = svc2.Backfill(context.Background(), "510300.SH", 180)
	require.NoError(t, err)
	assert.Equal(t, models.SourceTushare, series.Source)
}

func TestBackfillShortHistoryIsBadInput(t *testing.T) {
	fetcher := &fakeFetcher{bars: makeBars(5), provider: "tushare"}
	svc := newTestService(tradingClock, fetcher)

	_, err := svc.Backfill(context.Background(), "600519.SH", 180)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindBadInput))
}

func TestBackfillCoalescesConcurrentCalls(t *testing.T) {
	fetcher := &fakeFetcher{bars: makeBars(60), provider: "tushare", delay: 50 * time.Millisecond}
	svc := newTestService(tradingClock, fetcher)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Backfill(context.Background(), "600519.SH", 180)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, fmt.Sprintf("caller %d", i))
	}
	assert.Equal(t, int64(1), fetcher.calls.Load())
}
