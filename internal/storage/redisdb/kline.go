package redisdb

import (
	"context"
	"time"

	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// KlineStore persists K-line series with a sliding 30-day TTL. Stock and
// ETF series live in parallel namespaces keyed by ts_code.
type KlineStore struct {
	kv interfaces.KVStore
}

func seriesKeyFor(tsCode string) string {
	return SeriesKey(tsCode, models.IsFundCode(tsCode))
}

func (s *KlineStore) GetSeries(ctx context.Context, tsCode string) (*models.Series, error) {
	raw, err := s.kv.Get(ctx, seriesKeyFor(tsCode))
	if err != nil {
		return nil, err
	}
	var series models.Series
	if err := decode(raw, &series); err != nil {
		return nil, err
	}
	return &series, nil
}

func (s *KlineStore) SaveSeries(ctx context.Context, series *models.Series) error {
	series.UpdatedAt = time.Now()
	series.DataCount = len(series.Data)
	raw, err := encode(series)
	if err != nil {
		return err
	}
	return s.kv.SetEx(ctx, seriesKeyFor(series.TSCode), raw, TTLKlineSeries)
}

func (s *KlineStore) SeriesExists(ctx context.Context, tsCode string) (bool, error) {
	return s.kv.Exists(ctx, seriesKeyFor(tsCode))
}

func (s *KlineStore) DeleteSeries(ctx context.Context, tsCode string) error {
	return s.kv.Delete(ctx, seriesKeyFor(tsCode))
}

// ListSeriesCodes scans both K-line namespaces and returns the stored
// ts_codes.
func (s *KlineStore) ListSeriesCodes(ctx context.Context) ([]string, error) {
	var codes []string
	for _, pattern := range []string{prefixStockTrend + "*", prefixETFTrend + "*"} {
		keys, err := s.kv.Scan(ctx, pattern)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if code, ok := IsSeriesKey(key); ok {
				codes = append(codes, code)
			}
		}
	}
	return codes, nil
}

// Compile-time check
var _ interfaces.KlineStorage = (*KlineStore)(nil)
