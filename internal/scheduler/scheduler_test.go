package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
	"github.com/cnquant/stockpulse/internal/storage/redisdb"
)

var cst = time.FixedZone("CST", 8*60*60)

type fakeRegistry struct {
	ready    bool
	stocks   []models.Symbol
	etfs     []models.Symbol
	refreshN atomic.Int64
}

func (f *fakeRegistry) Load(ctx context.Context) ([]models.Symbol, error)     { return f.stocks, nil }
func (f *fakeRegistry) LoadETFs(ctx context.Context) ([]models.Symbol, error) { return f.etfs, nil }
func (f *fakeRegistry) Refresh(ctx context.Context) (int, int, error) {
	f.refreshN.Add(1)
	f.ready = true
	return len(f.stocks), len(f.etfs), nil
}
func (f *fakeRegistry) IsReady(ctx context.Context) error {
	if !f.ready {
		return common.NewError(common.KindNotReady, "registry incomplete")
	}
	return nil
}
func (f *fakeRegistry) Get(ctx context.Context, code string) (*models.Symbol, error) {
	return nil, common.NewError(common.KindNotFound, "not found")
}

type fakeKlines struct {
	mu        sync.Mutex
	series    map[string]*models.Series
	backfills int
	appends   map[string]int
	block     chan struct{}
}

func newFakeKlines() *fakeKlines {
	return &fakeKlines{series: map[string]*models.Series{}, appends: map[string]int{}}
}

func (f *fakeKlines) Get(ctx context.Context, tsCode string) (*models.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.series[tsCode]; ok {
		return s, nil
	}
	return nil, common.NewError(common.KindNotFound, "series %s not found", tsCode)
}
func (f *fakeKlines) Backfill(ctx context.Context, tsCode string, days int) (*models.Series, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backfills++
	return &models.Series{TSCode: tsCode}, nil
}
func (f *fakeKlines) Append(ctx context.Context, tsCode string, bars []models.Bar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends[tsCode] += len(bars)
	return nil
}
func (f *fakeKlines) Put(ctx context.Context, tsCode string, bars []models.Bar) error { return nil }
func (f *fakeKlines) MergeRealtime(ctx context.Context, tsCode string, quote models.Quote) error {
	return nil
}
func (f *fakeKlines) Exists(ctx context.Context, tsCode string) (bool, error) { return false, nil }

type fakeBars struct {
	bars  []models.Bar
	calls atomic.Int64
	from  string
}

func (f *fakeBars) DailyBars(ctx context.Context, tsCode, from, to string) ([]models.Bar, string, error) {
	f.calls.Add(1)
	f.from = from
	return f.bars, "tushare", nil
}

type fakeRealtime struct {
	quotes int
	calls  atomic.Int64
}

func (f *fakeRealtime) SnapshotAll(ctx context.Context, opts interfaces.SnapshotOptions) (*models.Snapshot, error) {
	f.calls.Add(1)
	return &models.Snapshot{Quotes: make([]models.Quote, f.quotes)}, nil
}
func (f *fakeRealtime) SnapshotOne(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, common.NewError(common.KindNotFound, "no quote")
}
func (f *fakeRealtime) Stats() []models.ProviderStats { return nil }

type fakeStrategy struct {
	signals int
	calls   atomic.Int64
	lastOpt interfaces.RecomputeOptions
}

func (f *fakeStrategy) RecomputeAll(ctx context.Context, opts interfaces.RecomputeOptions) (int, error) {
	f.calls.Add(1)
	f.lastOpt = opts
	return f.signals, nil
}
func (f *fakeStrategy) Strategies() []string { return nil }
func (f *fakeStrategy) AllSignals(ctx context.Context) ([]models.Signal, error) {
	return nil, nil
}
func (f *fakeStrategy) SignalsFor(ctx context.Context, strategy string) ([]models.Signal, error) {
	return nil, nil
}

type fakeNews struct{ calls atomic.Int64 }

func (f *fakeNews) Crawl(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return 5, nil
}
func (f *fakeNews) Latest(ctx context.Context) (*models.NewsDigest, error) {
	return nil, common.NewError(common.KindNotFound, "no digest")
}

type fakeCharts struct{ purged int }

func (f *fakeCharts) ChartData(ctx context.Context, symbol, strategy string) (string, error) {
	return "", nil
}
func (f *fakeCharts) RenderPNG(ctx context.Context, symbol, strategy string) ([]byte, error) {
	return nil, nil
}
func (f *fakeCharts) Purge(ctx context.Context) (int, error) { return f.purged, nil }

type fixture struct {
	sched    *Scheduler
	registry *fakeRegistry
	klines   *fakeKlines
	bars     *fakeBars
	realtime *fakeRealtime
	strategy *fakeStrategy
	news     *fakeNews
	mgr      *redisdb.Manager
}

func newFixture(t *testing.T, mode string, clock func() time.Time) *fixture {
	t.Helper()
	registry := &fakeRegistry{
		ready:  true,
		stocks: []models.Symbol{{TSCode: "600000.SH", Code: "600000"}, {TSCode: "000001.SZ", Code: "000001"}},
		etfs:   []models.Symbol{{TSCode: "510300.SH", Code: "510300"}},
	}
	klines := newFakeKlines()
	bars := &fakeBars{}
	realtime := &fakeRealtime{quotes: 3}
	strat := &fakeStrategy{signals: 7}
	news := &fakeNews{}
	mgr := redisdb.NewManagerWithKV(redisdb.NewMemKV(), common.NewSilentLogger())
	cfg := &common.SchedulerConfig{InitMode: mode, MaxWorkers: 4, UseMultithreading: true, RealtimeUpdateInterval: 15}

	sched := New(registry, klines, bars, realtime, strat, news, &fakeCharts{purged: 2},
		mgr.ExecLogs(), common.NewCalendarAt(clock), cfg, common.NewSilentLogger())
	return &fixture{sched: sched, registry: registry, klines: klines, bars: bars,
		realtime: realtime, strategy: strat, news: news, mgr: mgr}
}

func tradingClock() time.Time { return time.Date(2026, 8, 24, 10, 0, 0, 0, cst) }

// advancingTradingClock returns a clock that ticks one nanosecond per
// Now() call, so successive execution-log entries get distinct keys
// while staying inside the same trading session.
func advancingTradingClock() func() time.Time {
	var ticks atomic.Int64
	return func() time.Time {
		return tradingClock().Add(time.Duration(ticks.Add(1)))
	}
}

func TestTriggerUnknownJob(t *testing.T) {
	fx := newFixture(t, "tasks_only", tradingClock)
	_, err := fx.sched.Trigger(context.Background(), "reticulate_splines")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindBadInput))
}

func TestTriggerRecordsExecutionLog(t *testing.T) {
	fx := newFixture(t, "tasks_only", tradingClock)
	ctx := context.Background()

	entry, err := fx.sched.Trigger(ctx, models.JobRefreshSymbolList)
	require.NoError(t, err)
	assert.Equal(t, models.ExecStatusSuccess, entry.Status)
	assert.Equal(t, 3, entry.Rows)

	logs, err := fx.mgr.ExecLogs().List(ctx, models.JobRefreshSymbolList, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ExecStatusSuccess, logs[0].Status)
}

func TestScheduledTriggerSkipsWhileRunning(t *testing.T) {
	fx := newFixture(t, "tasks_only", advancingTradingClock())
	ctx := context.Background()
	fx.klines.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = fx.sched.Trigger(ctx, models.JobFullBarRefresh)
	}()

	// Wait until the run is holding the singleton.
	require.Eventually(t, func() bool {
		fx.sched.jobs[models.JobFullBarRefresh].mu.Lock()
		defer fx.sched.jobs[models.JobFullBarRefresh].mu.Unlock()
		return fx.sched.jobs[models.JobFullBarRefresh].running
	}, time.Second, time.Millisecond)

	_, err := fx.sched.execute(ctx, fx.sched.jobs[models.JobFullBarRefresh], false)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindConflictSingleton))

	// Manual re-trigger of a non-idempotent job is rejected too.
	_, err = fx.sched.Trigger(ctx, models.JobFullBarRefresh)
	assert.True(t, common.IsKind(err, common.KindConflictSingleton))

	close(fx.klines.block)
	<-done

	logs, err := fx.mgr.ExecLogs().List(ctx, models.JobFullBarRefresh, 10)
	require.NoError(t, err)
	var skips int
	for _, entry := range logs {
		if entry.Status == models.ExecStatusSkip && entry.Reason == models.SkipAlreadyRunning {
			skips++
		}
	}
	assert.Equal(t, 1, skips)
}

func TestNotReadyJobIsSkipped(t *testing.T) {
	fx := newFixture(t, "tasks_only", tradingClock)
	fx.registry.ready = false
	ctx := context.Background()

	entry, err := fx.sched.Trigger(ctx, models.JobComputeSignals)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindNotReady))
	assert.Equal(t, models.ExecStatusSkip, entry.Status)
	assert.Equal(t, models.SkipNotReady, entry.Reason)
	assert.Zero(t, fx.strategy.calls.Load())
}

func TestSessionGates(t *testing.T) {
	fx := newFixture(t, "tasks_only", tradingClock)

	inSession := time.Date(2026, 8, 24, 10, 0, 0, 0, cst)
	postClose := time.Date(2026, 8, 24, 15, 30, 0, 0, cst)
	evening := time.Date(2026, 8, 24, 18, 0, 0, 0, cst)
	saturday := time.Date(2026, 8, 29, 10, 0, 0, 0, cst)

	assert.Empty(t, fx.sched.sessionGate(inSession))
	assert.Equal(t, models.SkipOutsideSession, fx.sched.sessionGate(evening))
	assert.Equal(t, models.SkipOutsideSession, fx.sched.sessionGate(postClose))

	assert.Empty(t, fx.sched.signalsGate(inSession))
	assert.Empty(t, fx.sched.signalsGate(postClose))
	assert.Equal(t, models.SkipOutsideSession, fx.sched.signalsGate(evening))
	assert.Equal(t, models.SkipOutsideSession, fx.sched.signalsGate(saturday))
}

func TestSkipModeRejectsBulkJobs(t *testing.T) {
	fx := newFixture(t, "skip", tradingClock)
	ctx := context.Background()

	for _, name := range []string{models.JobRefreshSymbolList, models.JobFullBarRefresh, models.JobSmartBarUpdate} {
		_, err := fx.sched.Trigger(ctx, name)
		require.Error(t, err, name)
		assert.True(t, common.IsKind(err, common.KindBadInput), name)
	}
	// Derived jobs stay available.
	_, err := fx.sched.Trigger(ctx, models.JobCleanupCharts)
	require.NoError(t, err)
}

func TestFullBarRefreshCoversUniverse(t *testing.T) {
	fx := newFixture(t, "tasks_only", tradingClock)

	entry, err := fx.sched.Trigger(context.Background(), models.JobFullBarRefresh)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Rows)
	assert.Equal(t, 3, fx.klines.backfills)
}

func TestETFOnlyModeScopesUniverse(t *testing.T) {
	fx := newFixture(t, "etf_only", tradingClock)
	ctx := context.Background()

	entry, err := fx.sched.Trigger(ctx, models.JobFullBarRefresh)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Rows)

	_, err = fx.sched.Trigger(ctx, models.JobComputeSignals)
	require.NoError(t, err)
	assert.True(t, fx.strategy.lastOpt.ETFOnly)
}

func TestSmartBarUpdateAppendsMissing(t *testing.T) {
	fx := newFixture(t, "tasks_only", tradingClock)
	ctx := context.Background()

	// 600000 is stale, 000001 is current, 510300 has no series yet.
	fx.klines.series["600000.SH"] = &models.Series{
		TSCode: "600000.SH",
		Data:   []models.Bar{{TradeDate: "2026-08-20", Open: 10, High: 11, Low: 9, Close: 10, Vol: 1}},
	}
	fx.klines.series["000001.SZ"] = &models.Series{
		TSCode: "000001.SZ",
		Data:   []models.Bar{{TradeDate: "2026-08-24", Open: 10, High: 11, Low: 9, Close: 10, Vol: 1}},
	}
	fx.bars.bars = []models.Bar{
		{TradeDate: "2026-08-21", Open: 10, High: 11, Low: 9, Close: 10.5, Vol: 1},
		{TradeDate: "2026-08-24", Open: 10.5, High: 11, Low: 10, Close: 10.8, Vol: 1},
	}

	entry, err := fx.sched.Trigger(ctx, models.JobSmartBarUpdate)
	require.NoError(t, err)
	// Stale series appended, missing series backfilled; current untouched.
	assert.Equal(t, 2, entry.Rows)
	assert.Equal(t, 2, fx.klines.appends["600000.SH"])
	assert.Zero(t, fx.klines.appends["000001.SZ"])
	assert.Equal(t, 1, fx.klines.backfills)
	assert.EqualValues(t, 1, fx.bars.calls.Load())
}

func TestStartupFullInit(t *testing.T) {
	fx := newFixture(t, "full_init", tradingClock)
	fx.registry.ready = false

	fx.sched.runStartup(context.Background())

	assert.EqualValues(t, 1, fx.registry.refreshN.Load(), "incomplete registry is refreshed")
	assert.Equal(t, 3, fx.klines.backfills)
	assert.EqualValues(t, 1, fx.strategy.calls.Load())
	assert.EqualValues(t, 1, fx.news.calls.Load())
}

func TestStartupSkipModeDoesNothing(t *testing.T) {
	fx := newFixture(t, "skip", tradingClock)
	fx.registry.ready = false

	fx.sched.runStartup(context.Background())

	assert.Zero(t, fx.registry.refreshN.Load())
	assert.Zero(t, fx.klines.backfills)
	assert.Zero(t, fx.news.calls.Load())
}

func TestStartupTasksOnlyRunsDerivedJobs(t *testing.T) {
	fx := newFixture(t, "tasks_only", tradingClock)

	fx.sched.runStartup(context.Background())

	assert.Zero(t, fx.klines.backfills, "no bulk refresh in tasks_only")
	assert.EqualValues(t, 1, fx.strategy.calls.Load())
	assert.EqualValues(t, 1, fx.realtime.calls.Load(), "in-session startup snapshot")
	assert.EqualValues(t, 1, fx.news.calls.Load())
}
