// Package chart builds and caches derived chart artifacts: per-symbol
// JSON payloads with indicator overlays and signal markers, and rendered
// PNG images.
package chart

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
	"github.com/cnquant/stockpulse/internal/services/strategy"
	"github.com/cnquant/stockpulse/internal/storage/redisdb"
)

// Service implements interfaces.ChartService.
type Service struct {
	klines interfaces.KlineService
	cache  interfaces.CacheStorage
	logger *common.Logger
	now    func() time.Time
}

// NewService creates the chart service.
func NewService(klines interfaces.KlineService, cache interfaces.CacheStorage, logger *common.Logger) *Service {
	return &Service{
		klines: klines,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// payload is the chart_data JSON shape. Indicator gaps (warm-up windows)
// are encoded as nulls.
type payload struct {
	TSCode      string                `json:"ts_code"`
	Strategy    string                `json:"strategy"`
	Bars        []models.Bar          `json:"bars"`
	Indicators  map[string][]*float64 `json:"indicators"`
	Signals     []models.Signal       `json:"signals"`
	GeneratedAt string                `json:"generated_at"`
}

// ChartData returns the chart JSON for (symbol, strategy), building it on
// a cache miss. A symbol without a stored series surfaces not_found so
// the HTTP layer can trigger a backfill.
func (s *Service) ChartData(ctx context.Context, symbol, strategyName string) (string, error) {
	key := redisdb.ChartDataKey(symbol, strategyName)
	if cached, ok, err := s.cache.GetCache(ctx, key); err == nil && ok {
		return cached, nil
	}

	series, result, err := s.compute(ctx, symbol, strategyName)
	if err != nil {
		return "", err
	}

	p := payload{
		TSCode:      series.TSCode,
		Strategy:    strategyName,
		Bars:        series.Data,
		Indicators:  nullableIndicators(result.Indicators),
		Signals:     result.Signals,
		GeneratedAt: s.now().Format("2006-01-02 15:04:05"),
	}
	raw, err := json.Marshal(&p)
	if err != nil {
		return "", common.WrapError(common.KindInternal, err, "encode chart payload")
	}

	if err := s.cache.SetCache(ctx, key, string(raw), redisdb.TTLChartData); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Chart cache write failed")
	}
	return string(raw), nil
}

// RenderPNG renders the series with signal markers to a PNG image,
// cached alongside the JSON artifact.
func (s *Service) RenderPNG(ctx context.Context, symbol, strategyName string) ([]byte, error) {
	key := redisdb.ChartPNGKey(symbol, strategyName)
	if cached, ok, err := s.cache.GetCache(ctx, key); err == nil && ok {
		if png, err := base64.StdEncoding.DecodeString(cached); err == nil {
			return png, nil
		}
	}

	series, result, err := s.compute(ctx, symbol, strategyName)
	if err != nil {
		return nil, err
	}

	png, err := render(series, strategyName, result)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetCache(ctx, key, base64.StdEncoding.EncodeToString(png), redisdb.TTLChartData); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Chart cache write failed")
	}
	return png, nil
}

// Purge removes all generated chart artifacts.
func (s *Service) Purge(ctx context.Context) (int, error) {
	total := 0
	for _, prefix := range redisdb.ChartPrefixes {
		n, err := s.cache.DeleteByPrefix(ctx, prefix)
		if err != nil {
			return total, err
		}
		total += n
	}
	s.logger.Info().Int("artifacts", total).Msg("Chart artifacts purged")
	return total, nil
}

// compute loads the series and applies the strategy.
func (s *Service) compute(ctx context.Context, symbol, strategyName string) (*models.Series, *strategy.Result, error) {
	st := strategy.Lookup(strategyName)
	if st == nil {
		return nil, nil, common.NewError(common.KindBadInput, "unknown strategy %q", strategyName)
	}
	series, err := s.klines.Get(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	if len(series.Data) < 2 {
		return nil, nil, common.NewError(common.KindBadInput, "series %s too short to chart", symbol)
	}
	return series, st.Apply(series.Data), nil
}

// nullableIndicators maps NaN warm-up values to JSON nulls.
func nullableIndicators(indicators map[string][]float64) map[string][]*float64 {
	out := make(map[string][]*float64, len(indicators))
	for name, values := range indicators {
		col := make([]*float64, len(values))
		for i, v := range values {
			if !math.IsNaN(v) {
				val := v
				col[i] = &val
			}
		}
		out[name] = col
	}
	return out
}

// Compile-time check
var _ interfaces.ChartService = (*Service)(nil)
