// Package fetch is the rate-limited fabric between services and the
// provider adapters. It owns inter-call spacing, retry with back-off,
// per-provider statistics and the auto provider selection rules.
package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

const (
	// jitterMax is layered on top of the configured spacing so thousands
	// of sequential calls do not form a fixed-period train.
	jitterMax = 500 * time.Millisecond

	// Retry back-off bounds.
	backoffMin = 1500 * time.Millisecond
	backoffMax = 3 * time.Second
)

// Fabric wraps the registered adapters. All upstream traffic from the
// services goes through here; nothing else calls an adapter directly.
type Fabric struct {
	mu         sync.Mutex
	adapters   map[string]interfaces.ProviderAdapter
	order      []string // failover order
	preferred  string
	autoSwitch bool
	spacing    time.Duration
	retries    int
	lastCall   map[string]time.Time
	stats      map[string]*models.ProviderStats
	logger     *common.Logger

	// Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
	randF func() float64
	now   func() time.Time
}

// Option configures the fabric
type Option func(*Fabric)

// WithSleeper replaces the sleep function, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fabric) {
		f.sleep = sleep
	}
}

// WithClock replaces the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Fabric) {
		f.now = now
	}
}

// WithRand replaces the jitter source, for tests.
func WithRand(randF func() float64) Option {
	return func(f *Fabric) {
		f.randF = randF
	}
}

// New creates the fabric over the given adapters. The adapter slice
// fixes the failover order.
func New(cfg *common.ProvidersConfig, logger *common.Logger, adapters []interfaces.ProviderAdapter, opts ...Option) *Fabric {
	f := &Fabric{
		adapters:   make(map[string]interfaces.ProviderAdapter, len(adapters)),
		preferred:  cfg.Realtime,
		autoSwitch: cfg.AutoSwitch,
		spacing:    cfg.GetMinRequestInterval(),
		retries:    cfg.GetRetryTimes(),
		lastCall:   make(map[string]time.Time),
		stats:      make(map[string]*models.ProviderStats),
		logger:     logger,
		sleep:      sleepCtx,
		randF:      rand.Float64,
		now:        time.Now,
	}
	for _, a := range adapters {
		f.adapters[a.Name()] = a
		f.order = append(f.order, a.Name())
		f.stats[a.Name()] = &models.ProviderStats{Provider: a.Name()}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stats returns a copy of the per-provider counters.
func (f *Fabric) Stats() []models.ProviderStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ProviderStats, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, *f.stats[name])
	}
	return out
}

// chain returns the providers to try, preferred first. With "auto" the
// provider with the higher recent success count leads; the rest follow
// in registration order. Without auto-switch the chain is just the
// single selected provider.
func (f *Fabric) chain(preferred string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lead := preferred
	if lead == "" {
		lead = f.preferred
	}
	if lead == "" || lead == interfaces.ProviderAuto {
		lead = f.bestLocked()
	}
	if _, ok := f.adapters[lead]; !ok {
		lead = f.order[0]
	}

	if !f.autoSwitch {
		return []string{lead}
	}
	chain := []string{lead}
	for _, name := range f.order {
		if name != lead {
			chain = append(chain, name)
		}
	}
	return chain
}

func (f *Fabric) bestLocked() string {
	best := f.order[0]
	var bestScore int64 = -1 << 62
	for _, name := range f.order {
		s := f.stats[name]
		score := s.Success - s.Fail
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	return best
}

// pace blocks until the minimum spacing plus jitter has elapsed since
// the previous call to the same provider.
func (f *Fabric) pace(ctx context.Context, provider string) error {
	f.mu.Lock()
	last := f.lastCall[provider]
	wait := f.spacing - f.now().Sub(last)
	f.mu.Unlock()

	wait += time.Duration(f.randF() * float64(jitterMax))
	if wait > 0 {
		if err := f.sleep(ctx, wait); err != nil {
			return common.WrapError(common.KindCancelled, err, "fetch pacing interrupted")
		}
	}

	f.mu.Lock()
	f.lastCall[provider] = f.now()
	f.mu.Unlock()
	return nil
}

func (f *Fabric) record(provider string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stats[provider]
	if err != nil {
		s.Fail++
		return
	}
	s.Success++
	s.LastSuccessAt = f.now()
}

// invoke runs one adapter call with pacing and retry. Cancellation is
// never retried.
func (f *Fabric) invoke(ctx context.Context, provider string, call func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < f.retries; attempt++ {
		if ctx.Err() != nil {
			return common.WrapError(common.KindCancelled, ctx.Err(), "fetch cancelled")
		}
		if attempt > 0 {
			backoff := backoffMin + time.Duration(f.randF()*float64(backoffMax-backoffMin))
			if serr := f.sleep(ctx, backoff); serr != nil {
				return common.WrapError(common.KindCancelled, serr, "fetch backoff interrupted")
			}
		}
		if err = f.pace(ctx, provider); err != nil {
			return err
		}
		err = call(ctx)
		f.record(provider, err)
		if err == nil {
			return nil
		}
		if common.IsKind(err, common.KindCancelled) || ctx.Err() != nil {
			return err
		}
		f.logger.Warn().
			Str("provider", provider).
			Int("attempt", attempt+1).
			Err(err).
			Msg("Provider call failed")
	}
	return err
}

// Snapshot pulls a full realtime snapshot, failing over along the chain
// per the auto-switch rules. Returns the quotes and the serving
// provider's name.
func (f *Fabric) Snapshot(ctx context.Context, etf bool, preferred string) ([]models.Quote, string, error) {
	var lastErr error
	for _, name := range f.chain(preferred) {
		adapter := f.adapters[name]
		var quotes []models.Quote
		err := f.invoke(ctx, name, func(ctx context.Context) error {
			var err error
			if etf {
				quotes, err = adapter.SnapshotAllETFs(ctx)
			} else {
				quotes, err = adapter.SnapshotAllStocks(ctx)
			}
			if err == nil && len(quotes) == 0 {
				err = common.NewError(common.KindProviderEmpty, "%s returned an empty snapshot", name)
			}
			return err
		})
		if err == nil {
			return quotes, name, nil
		}
		lastErr = err
		if common.IsKind(err, common.KindCancelled) {
			break
		}
	}
	return nil, "", lastErr
}

// DailyBars fetches a bar window through the chain.
func (f *Fabric) DailyBars(ctx context.Context, tsCode, from, to string) ([]models.Bar, string, error) {
	var lastErr error
	for _, name := range f.chain("") {
		adapter := f.adapters[name]
		var bars []models.Bar
		err := f.invoke(ctx, name, func(ctx context.Context) error {
			var err error
			bars, err = adapter.DailyBars(ctx, tsCode, from, to)
			if err == nil && len(bars) == 0 {
				err = common.NewError(common.KindProviderEmpty, "%s returned no bars for %s", name, tsCode)
			}
			return err
		})
		if err == nil {
			return bars, name, nil
		}
		lastErr = err
		if common.IsKind(err, common.KindCancelled) {
			break
		}
	}
	return nil, "", lastErr
}

// SymbolMaster fetches the stock master list from the first adapter that
// serves it (pacing and retry apply as usual).
func (f *Fabric) SymbolMaster(ctx context.Context) ([]models.Symbol, error) {
	return f.master(ctx, func(p interfaces.SymbolMasterProvider, ctx context.Context) ([]models.Symbol, error) {
		return p.SymbolMaster(ctx)
	})
}

// ETFMaster fetches the fund master list.
func (f *Fabric) ETFMaster(ctx context.Context) ([]models.Symbol, error) {
	return f.master(ctx, func(p interfaces.SymbolMasterProvider, ctx context.Context) ([]models.Symbol, error) {
		return p.ETFMaster(ctx)
	})
}

func (f *Fabric) master(ctx context.Context, call func(interfaces.SymbolMasterProvider, context.Context) ([]models.Symbol, error)) ([]models.Symbol, error) {
	for _, name := range f.order {
		provider, ok := f.adapters[name].(interfaces.SymbolMasterProvider)
		if !ok {
			continue
		}
		var symbols []models.Symbol
		err := f.invoke(ctx, name, func(ctx context.Context) error {
			var err error
			symbols, err = call(provider, ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		return symbols, nil
	}
	return nil, common.NewError(common.KindNotReady, "no registered provider serves the symbol master")
}
