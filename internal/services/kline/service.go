// Package kline owns every write to the K-line series store: bulk puts,
// incremental appends, realtime merges and on-demand backfill.
package kline

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

const (
	// retentionBars bounds the stored series length.
	retentionBars = 180

	// minBulkBars rejects a bulk install too short to run strategies on.
	minBulkBars = 20
)

// BarFetcher is the slice of the fetch fabric this service needs.
type BarFetcher interface {
	DailyBars(ctx context.Context, tsCode, from, to string) ([]models.Bar, string, error)
}

// Service implements interfaces.KlineService.
type Service struct {
	store    interfaces.KlineStorage
	fetcher  BarFetcher
	calendar *common.Calendar
	logger   *common.Logger
	backfill singleflight.Group
}

// NewService creates the K-line service.
func NewService(store interfaces.KlineStorage, fetcher BarFetcher, calendar *common.Calendar, logger *common.Logger) *Service {
	return &Service{
		store:    store,
		fetcher:  fetcher,
		calendar: calendar,
		logger:   logger,
	}
}

// sanitize drops invalid bars, sorts by date and collapses duplicate
// dates keeping the later occurrence.
func (s *Service) sanitize(tsCode string, bars []models.Bar) []models.Bar {
	clean := make([]models.Bar, 0, len(bars))
	dropped := 0
	for i := range bars {
		norm, err := common.NormalizeDate(bars[i].TradeDate)
		if err != nil || !bars[i].Valid() {
			dropped++
			continue
		}
		bar := bars[i]
		bar.TradeDate = norm
		clean = append(clean, bar)
	}
	if dropped > 0 {
		s.logger.Warn().
			Str("ts_code", tsCode).
			Int("dropped", dropped).
			Msg("Dropped invalid bars on ingest")
	}

	sort.SliceStable(clean, func(i, j int) bool { return clean[i].TradeDate < clean[j].TradeDate })

	out := clean[:0]
	for _, bar := range clean {
		if len(out) > 0 && out[len(out)-1].TradeDate == bar.TradeDate {
			out[len(out)-1] = bar
			continue
		}
		out = append(out, bar)
	}
	return out
}

func trimRetention(bars []models.Bar) []models.Bar {
	if len(bars) > retentionBars {
		return bars[len(bars)-retentionBars:]
	}
	return bars
}

// Put overwrites the series for tsCode. A put of fewer than 20 valid
// bars for a previously unknown symbol is rejected with bad_input so a
// thin upstream answer cannot wipe out real history.
func (s *Service) Put(ctx context.Context, tsCode string, bars []models.Bar) error {
	return s.putWithSource(ctx, tsCode, bars, models.SourceTushare)
}

// PutFrom installs bars recording the serving provider's source label.
// Bulk jobs use this so a failover to a spot feed is labelled akshare.
func (s *Service) PutFrom(ctx context.Context, tsCode string, bars []models.Bar, provider string) error {
	return s.putWithSource(ctx, tsCode, bars, sourceLabel(provider))
}

func (s *Service) putWithSource(ctx context.Context, tsCode string, bars []models.Bar, source string) error {
	clean := s.sanitize(tsCode, bars)
	if len(clean) < minBulkBars {
		exists, err := s.store.SeriesExists(ctx, tsCode)
		if err != nil {
			return err
		}
		if !exists {
			return common.NewError(common.KindBadInput,
				"refusing to install %d bars for new symbol %s (minimum %d)", len(clean), tsCode, minBulkBars)
		}
		if len(clean) == 0 {
			return common.NewError(common.KindBadInput, "no valid bars for %s", tsCode)
		}
	}

	series := &models.Series{
		TSCode:         tsCode,
		Data:           trimRetention(clean),
		Source:         source,
		LastUpdateType: models.UpdateTypeBulk,
	}
	return s.store.SaveSeries(ctx, series)
}

// Append merges bars into the stored series by trade date. A same-date
// incoming bar replaces the stored last bar, newer dates are appended,
// older dates are ignored, and the front is trimmed to retention.
func (s *Service) Append(ctx context.Context, tsCode string, bars []models.Bar) error {
	return s.appendAs(ctx, tsCode, bars, models.UpdateTypeIncremental, "")
}

func (s *Service) appendAs(ctx context.Context, tsCode string, bars []models.Bar, updateType, source string) error {
	clean := s.sanitize(tsCode, bars)
	if len(clean) == 0 {
		return common.NewError(common.KindBadInput, "no valid bars to append for %s", tsCode)
	}

	series, err := s.store.GetSeries(ctx, tsCode)
	if err != nil {
		if !common.IsKind(err, common.KindNotFound) {
			return err
		}
		series = &models.Series{TSCode: tsCode}
	}

	for _, bar := range clean {
		last := series.LastBar()
		switch {
		case last == nil || bar.TradeDate > last.TradeDate:
			series.Data = append(series.Data, bar)
		case bar.TradeDate == last.TradeDate:
			*last = bar
		default:
			// Older than the stored tail; history is never rewritten.
		}
	}

	series.Data = trimRetention(series.Data)
	series.LastUpdateType = updateType
	if source != "" {
		series.Source = source
	}
	return s.store.SaveSeries(ctx, series)
}

// MergeRealtime folds a quote into the series as a synthetic bar for the
// current session date. Outside a trading session the call is a no-op;
// quotes for symbols with no stored series are skipped.
func (s *Service) MergeRealtime(ctx context.Context, tsCode string, quote models.Quote) error {
	now := s.calendar.Now()
	if !s.calendar.IsTradingTime(now) {
		return nil
	}

	exists, err := s.store.SeriesExists(ctx, tsCode)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Debug().Str("ts_code", tsCode).Msg("Realtime merge skipped, no stored series")
		return nil
	}

	bar := syntheticBar(quote, now)
	if !bar.Valid() {
		return common.NewError(common.KindBadInput, "quote for %s does not form a valid bar", tsCode)
	}
	return s.appendAs(ctx, tsCode, []models.Bar{bar}, models.UpdateTypeRealtime, models.SourceRealtimeMerged)
}

// syntheticBar builds a daily bar proxy from a realtime quote, treating
// the last price as the close.
func syntheticBar(q models.Quote, now time.Time) models.Bar {
	bar := models.Bar{
		TradeDate: now.Format("2006-01-02"),
		Open:      q.Open,
		High:      q.High,
		Low:       q.Low,
		Close:     q.Price,
		Vol:       q.Volume,
		Amount:    q.Amount,
		PctChg:    q.ChangePercent,
		Change:    q.Change,
	}
	// Early-session feeds may not have OHL yet; degrade to a flat bar.
	if bar.Open <= 0 {
		bar.Open = q.Price
	}
	if bar.High < bar.Close {
		bar.High = bar.Close
	}
	if bar.High < bar.Open {
		bar.High = bar.Open
	}
	if bar.Low <= 0 || bar.Low > bar.Close {
		bar.Low = bar.Close
	}
	if bar.Low > bar.Open {
		bar.Low = bar.Open
	}
	return bar
}

func (s *Service) Get(ctx context.Context, tsCode string) (*models.Series, error) {
	return s.store.GetSeries(ctx, tsCode)
}

func (s *Service) Exists(ctx context.Context, tsCode string) (bool, error) {
	return s.store.SeriesExists(ctx, tsCode)
}

// Backfill fetches ~days of history upstream and installs it. Concurrent
// calls for the same tsCode coalesce to a single upstream fetch.
func (s *Service) Backfill(ctx context.Context, tsCode string, days int) (*models.Series, error) {
	if days <= 0 {
		days = retentionBars
	}

	result, err, _ := s.backfill.Do(tsCode, func() (any, error) {
		now := s.calendar.Now()
		from := now.AddDate(0, 0, -days).Format("2006-01-02")
		to := now.Format("2006-01-02")

		bars, provider, err := s.fetcher.DailyBars(ctx, tsCode, from, to)
		if err != nil {
			return nil, err
		}
		if err := s.putWithSource(ctx, tsCode, bars, sourceLabel(provider)); err != nil {
			return nil, err
		}

		s.logger.Info().
			Str("ts_code", tsCode).
			Str("provider", provider).
			Int("bars", len(bars)).
			Msg("Series backfilled")
		return s.store.GetSeries(ctx, tsCode)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Series), nil
}

// sourceLabel maps a provider name to the recorded series source. The
// spot feeds share the akshare label.
func sourceLabel(provider string) string {
	if provider == interfaces.ProviderTushare {
		return models.SourceTushare
	}
	return models.SourceAKShare
}

// Compile-time check
var _ interfaces.KlineService = (*Service)(nil)
