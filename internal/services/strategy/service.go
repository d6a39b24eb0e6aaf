package strategy

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// migrationFlag guards the one-shot eviction of signals left behind by
// strategies that no longer exist.
const migrationFlag = "flag:signal_strategy_migration"

// Service implements interfaces.StrategyService over the compile-time
// strategy registry.
type Service struct {
	klines  interfaces.KlineStorage
	symbols interfaces.RegistryService
	signals interfaces.SignalStorage
	cache   interfaces.CacheStorage
	logger  *common.Logger
	workers int
	now     func() time.Time

	recomputeMu sync.Mutex
	migrateOnce sync.Once
}

// NewService creates the strategy service. workers bounds the per-run
// fan-out; values below 1 mean sequential.
func NewService(
	klines interfaces.KlineStorage,
	symbols interfaces.RegistryService,
	signals interfaces.SignalStorage,
	cache interfaces.CacheStorage,
	workers int,
	logger *common.Logger,
) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		klines:  klines,
		symbols: symbols,
		signals: signals,
		cache:   cache,
		logger:  logger,
		workers: workers,
		now:     time.Now,
	}
}

// Strategies returns the registered strategy names.
func (s *Service) Strategies() []string {
	return Registered()
}

// RecomputeAll runs the selected strategies over the universe and
// replaces the stored signal set. The run is serialised: readers observe
// the prior set until the new one is installed whole.
func (s *Service) RecomputeAll(ctx context.Context, opts interfaces.RecomputeOptions) (int, error) {
	s.recomputeMu.Lock()
	defer s.recomputeMu.Unlock()

	strategies, err := s.selectStrategies(opts.Strategies)
	if err != nil {
		return 0, err
	}
	universe, err := s.universe(ctx, opts.ETFOnly)
	if err != nil {
		return 0, err
	}

	started := s.now()
	calcTime := started.Format("2006-01-02 15:04:05")

	var mu sync.Mutex
	var fresh []models.Signal

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, sym := range universe {
		g.Go(func() error {
			series, err := s.klines.GetSeries(gctx, sym.TSCode)
			if err != nil {
				if common.IsKind(err, common.KindNotFound) {
					return nil // symbol not yet ingested
				}
				return err
			}
			if len(series.Data) == 0 {
				return nil
			}

			for _, st := range strategies {
				result := st.Apply(series.Data)
				// Only a signal fired on the latest bar is current.
				for _, sig := range result.Signals {
					if sig.Index != len(series.Data)-1 {
						continue
					}
					sig.Code = sym.Code
					sig.Name = sym.Name
					sig.Market = sym.Market
					sig.CalculatedTime = calcTime
					mu.Lock()
					fresh = append(fresh, sig)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	installed, err := s.install(ctx, fresh, strategies, opts)
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Int("symbols", len(universe)).
		Int("strategies", len(strategies)).
		Int("signals", installed).
		Dur("elapsed", s.now().Sub(started)).
		Msg("Signal recompute complete")
	return installed, nil
}

// install swaps the signal set. A partial recompute (strategy subset
// without clear_existing) preserves the other strategies' signals.
func (s *Service) install(ctx context.Context, fresh []models.Signal, ran []Strategy, opts interfaces.RecomputeOptions) (int, error) {
	if !opts.ClearExisting && len(ran) < len(Registered()) {
		ranSet := make(map[string]bool, len(ran))
		for _, st := range ran {
			ranSet[st.Name()] = true
		}
		existing, err := s.signals.GetAll(ctx)
		if err != nil {
			return 0, err
		}
		for _, sig := range existing {
			if !ranSet[sig.Strategy] {
				fresh = append(fresh, sig)
			}
		}
	}
	if err := s.signals.ReplaceAll(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

func (s *Service) selectStrategies(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		names = Registered()
	}
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		st := Lookup(name)
		if st == nil {
			return nil, common.NewError(common.KindBadInput, "unknown strategy %q", name)
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) universe(ctx context.Context, etfOnly bool) ([]models.Symbol, error) {
	etfs, err := s.symbols.LoadETFs(ctx)
	if err != nil && !common.IsKind(err, common.KindNotFound) {
		return nil, err
	}
	if etfOnly {
		return etfs, nil
	}
	stocks, err := s.symbols.Load(ctx)
	if err != nil && !common.IsKind(err, common.KindNotFound) {
		return nil, err
	}
	return append(stocks, etfs...), nil
}

// AllSignals returns the stored signal set, running the one-shot
// unknown-strategy eviction on first read.
func (s *Service) AllSignals(ctx context.Context) ([]models.Signal, error) {
	s.migrate(ctx)
	return s.signals.GetAll(ctx)
}

// SignalsFor returns the stored signals for one strategy.
func (s *Service) SignalsFor(ctx context.Context, strategy string) ([]models.Signal, error) {
	s.migrate(ctx)
	return s.signals.GetByStrategy(ctx, strategy)
}

// migrate evicts signals whose strategy left the registry. A 24-hour
// flag keeps restarts from repeating the sweep.
func (s *Service) migrate(ctx context.Context) {
	s.migrateOnce.Do(func() {
		won, err := s.cache.SetFlag(ctx, migrationFlag, 0)
		if err != nil || !won {
			return
		}
		evicted, err := s.signals.EvictUnknownStrategies(ctx, Registered())
		if err != nil {
			s.logger.Warn().Err(err).Msg("Signal migration sweep failed")
			return
		}
		if evicted > 0 {
			s.logger.Info().Int("evicted", evicted).Msg("Evicted signals of retired strategies")
		}
	})
}

// Compile-time check
var _ interfaces.StrategyService = (*Service)(nil)
