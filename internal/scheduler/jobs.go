package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

const backfillDays = 180

// register builds the job table.
func (s *Scheduler) register() {
	s.add(&job{
		name:       models.JobRefreshSymbolList,
		idempotent: true,
		run:        s.refreshSymbolList,
	})
	s.add(&job{
		name: models.JobFullBarRefresh,
		run:  s.fullBarRefresh,
	})
	s.add(&job{
		name: models.JobSmartBarUpdate,
		run:  s.smartBarUpdate,
	})
	s.add(&job{
		name:       models.JobComputeSignals,
		idempotent: true,
		run:        s.computeSignals,
		gate:       s.signalsGate,
	})
	s.add(&job{
		name:       models.JobRealtimeSnapshot,
		idempotent: true,
		run:        s.realtimeSnapshot,
		gate:       s.sessionGate,
	})
	s.add(&job{
		name:       models.JobNewsCrawl,
		idempotent: true,
		run:        s.newsCrawl,
	})
	s.add(&job{
		name:       models.JobCleanupCharts,
		idempotent: true,
		run:        s.cleanupCharts,
	})
}

// sessionGate drops scheduled triggers outside a trading session.
func (s *Scheduler) sessionGate(now time.Time) string {
	if !s.calendar.IsTradingTime(now) {
		return models.SkipOutsideSession
	}
	return ""
}

// signalsGate admits in-session triggers plus the 15:30 post-close run.
func (s *Scheduler) signalsGate(now time.Time) string {
	if s.calendar.IsTradingTime(now) {
		return ""
	}
	if s.calendar.IsTradingDay(now) && now.Hour() == 15 && now.Minute() == 30 {
		return ""
	}
	return models.SkipOutsideSession
}

// runStartup executes the jobs the init mode allows before the first
// scheduled tick.
func (s *Scheduler) runStartup(ctx context.Context) {
	if s.mode == common.InitModeSkip {
		s.logger.Info().Msg("Init mode skip: no startup jobs")
		return
	}

	// Symbol registry first: everything downstream needs the universe.
	if err := s.registry.IsReady(ctx); err != nil {
		if _, err := s.execute(ctx, s.jobs[models.JobRefreshSymbolList], true); err != nil {
			s.logger.Warn().Err(err).Msg("Startup symbol refresh failed")
		}
	}

	switch s.mode {
	case common.InitModeFullInit, common.InitModeETFOnly:
		if _, err := s.execute(ctx, s.jobs[models.JobFullBarRefresh], true); err != nil {
			s.logger.Warn().Err(err).Msg("Startup bar refresh failed")
		}
		s.startupTask(ctx, models.JobComputeSignals)
	case common.InitModeTasksOnly:
		s.startupTask(ctx, models.JobComputeSignals)
		if s.calendar.IsTradingTime(s.calendar.Now()) {
			s.startupTask(ctx, models.JobRealtimeSnapshot)
		}
	}

	s.startupTask(ctx, models.JobNewsCrawl)
}

func (s *Scheduler) startupTask(ctx context.Context, name string) {
	if _, err := s.execute(ctx, s.jobs[name], true); err != nil && !common.IsKind(err, common.KindNotReady) {
		s.logger.Warn().Err(err).Str("job", name).Msg("Startup job failed")
	}
}

// refreshSymbolList pulls the stock and ETF master lists.
func (s *Scheduler) refreshSymbolList(ctx context.Context) (int, error) {
	stocks, etfs, err := s.registry.Refresh(ctx)
	if err != nil {
		return 0, err
	}
	return stocks + etfs, nil
}

// fullBarRefresh rebuilds the K-line series for the whole universe. In
// etf_only mode the universe is the ETF list.
func (s *Scheduler) fullBarRefresh(ctx context.Context) (int, error) {
	if err := s.registry.IsReady(ctx); err != nil {
		return 0, err
	}
	universe, err := s.universe(ctx)
	if err != nil {
		return 0, err
	}

	var refreshed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.GetMaxWorkers())
	for _, sym := range universe {
		g.Go(func() error {
			if _, err := s.klines.Backfill(gctx, sym.TSCode, backfillDays); err != nil {
				if common.IsKind(err, common.KindCancelled) {
					return err
				}
				// One unreachable symbol must not fail the run.
				s.logger.Debug().Err(err).Str("ts_code", sym.TSCode).Msg("Backfill skipped")
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(refreshed.Load()), err
	}
	return int(refreshed.Load()), nil
}

// smartBarUpdate appends the bars missing since each series' last date.
func (s *Scheduler) smartBarUpdate(ctx context.Context) (int, error) {
	if err := s.registry.IsReady(ctx); err != nil {
		return 0, err
	}
	universe, err := s.universe(ctx)
	if err != nil {
		return 0, err
	}
	today := s.calendar.Now().Format("2006-01-02")

	var updated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.GetMaxWorkers())
	for _, sym := range universe {
		g.Go(func() error {
			n, err := s.updateOne(gctx, sym.TSCode, today)
			if err != nil {
				if common.IsKind(err, common.KindCancelled) {
					return err
				}
				s.logger.Debug().Err(err).Str("ts_code", sym.TSCode).Msg("Smart update skipped")
				return nil
			}
			if n > 0 {
				updated.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(updated.Load()), err
	}
	return int(updated.Load()), nil
}

// updateOne fetches and appends the bars a single series is missing.
// A symbol without a stored series is backfilled instead.
func (s *Scheduler) updateOne(ctx context.Context, tsCode, today string) (int, error) {
	series, err := s.klines.Get(ctx, tsCode)
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			if _, err := s.klines.Backfill(ctx, tsCode, backfillDays); err != nil {
				return 0, err
			}
			return 1, nil
		}
		return 0, err
	}

	last := series.LastBar()
	if last == nil {
		return 0, common.NewError(common.KindInternal, "series %s has no bars", tsCode)
	}
	if last.TradeDate >= today {
		return 0, nil // already current
	}

	bars, _, err := s.bars.DailyBars(ctx, tsCode, last.TradeDate, today)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := s.klines.Append(ctx, tsCode, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}

// computeSignals recomputes the stored signal set.
func (s *Scheduler) computeSignals(ctx context.Context) (int, error) {
	if err := s.registry.IsReady(ctx); err != nil {
		return 0, err
	}
	return s.strategy.RecomputeAll(ctx, interfaces.RecomputeOptions{
		ETFOnly: s.mode == common.InitModeETFOnly,
	})
}

// realtimeSnapshot runs one quote cycle with ETFs included.
func (s *Scheduler) realtimeSnapshot(ctx context.Context) (int, error) {
	if err := s.registry.IsReady(ctx); err != nil {
		return 0, err
	}
	snap, err := s.realtime.SnapshotAll(ctx, interfaces.SnapshotOptions{IncludeETF: true})
	if err != nil {
		return 0, err
	}
	return len(snap.Quotes), nil
}

// newsCrawl refreshes the news:latest cache.
func (s *Scheduler) newsCrawl(ctx context.Context) (int, error) {
	return s.news.Crawl(ctx)
}

// cleanupCharts purges all generated chart artifacts.
func (s *Scheduler) cleanupCharts(ctx context.Context) (int, error) {
	return s.charts.Purge(ctx)
}

// universe returns the symbols in scope for bulk jobs per the init mode.
func (s *Scheduler) universe(ctx context.Context) ([]models.Symbol, error) {
	etfs, err := s.registry.LoadETFs(ctx)
	if err != nil && !common.IsKind(err, common.KindNotFound) {
		return nil, err
	}
	if s.mode == common.InitModeETFOnly {
		return etfs, nil
	}
	stocks, err := s.registry.Load(ctx)
	if err != nil && !common.IsKind(err, common.KindNotFound) {
		return nil, err
	}
	return append(stocks, etfs...), nil
}
