// Package realtime pulls full-market quote snapshots with provider
// failover and fans merged bars out to the K-line store during trading
// sessions.
package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// QuoteFetcher is the slice of the fetch fabric this service needs.
type QuoteFetcher interface {
	Snapshot(ctx context.Context, etf bool, preferred string) ([]models.Quote, string, error)
	Stats() []models.ProviderStats
}

// snapshotRefreshWindow throttles miss-triggered refetches: when the
// cached batch has expired, at most one snapshot cycle per window runs
// on behalf of single-symbol reads.
const snapshotRefreshWindow = 30 * time.Second

// Service implements interfaces.RealtimeService.
type Service struct {
	fetcher   QuoteFetcher
	klines    interfaces.KlineService
	symbols   interfaces.RegistryService
	snapshots interfaces.SnapshotStorage
	calendar  *common.Calendar
	logger    *common.Logger
	workers   int
	queueSize int

	// cycleMu keeps overlapping snapshot cycles from interleaving their
	// store writes and fan-out.
	cycleMu sync.Mutex

	refreshMu   sync.Mutex
	lastRefresh time.Time
}

// NewService creates the realtime quote service. workers bounds the
// merge fan-out pool; queueSize bounds the merge queue, beyond which
// excess symbols in a cycle are dropped.
func NewService(
	fetcher QuoteFetcher,
	klines interfaces.KlineService,
	symbols interfaces.RegistryService,
	snapshots interfaces.SnapshotStorage,
	calendar *common.Calendar,
	workers, queueSize int,
	logger *common.Logger,
) *Service {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Service{
		fetcher:   fetcher,
		klines:    klines,
		symbols:   symbols,
		snapshots: snapshots,
		calendar:  calendar,
		logger:    logger,
		workers:   workers,
		queueSize: queueSize,
	}
}

// SnapshotAll runs one snapshot cycle: pull quotes, persist the batch,
// and during a trading session fan the quotes out into the K-line store.
// A cycle that fails upstream leaves the previous snapshot readable.
func (s *Service) SnapshotAll(ctx context.Context, opts interfaces.SnapshotOptions) (*models.Snapshot, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	quotes, source, err := s.fetcher.Snapshot(ctx, false, opts.PreferredProvider)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Snapshot cycle skipped")
		return nil, err
	}

	if opts.IncludeETF {
		etfQuotes, etfSource, err := s.fetcher.Snapshot(ctx, true, opts.PreferredProvider)
		if err != nil {
			// Stock quotes are still worth persisting.
			s.logger.Warn().Err(err).Msg("ETF snapshot failed, cycle continues with stocks only")
		} else {
			quotes = append(quotes, etfQuotes...)
			if etfSource != source {
				source = source + "+" + etfSource
			}
		}
	}

	snap := &models.Snapshot{
		Quotes:    quotes,
		Source:    source,
		FetchedAt: s.calendar.Now(),
	}
	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	if s.calendar.IsTradingTime(snap.FetchedAt) {
		s.fanOut(ctx, quotes)
	}

	s.logger.Info().
		Str("source", source).
		Int("quotes", len(quotes)).
		Msg("Snapshot cycle complete")
	return snap, nil
}

// fanOut merges each quote with a known symbol into its K-line series
// through a bounded worker pool. When the queue fills, the excess of the
// cycle is dropped; the persisted snapshot still holds the full batch.
func (s *Service) fanOut(ctx context.Context, quotes []models.Quote) {
	codes, err := s.codeIndex(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Symbol index unavailable, fan-out skipped")
		return
	}

	queue := make(chan mergeItem, s.queueSize)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				if err := s.klines.MergeRealtime(ctx, item.tsCode, item.quote); err != nil {
					if !common.IsKind(err, common.KindBadInput) {
						s.logger.Debug().Err(err).Str("ts_code", item.tsCode).Msg("Realtime merge failed")
					}
				}
			}
		}()
	}

	merged, dropped := 0, 0
	for _, q := range quotes {
		tsCode, ok := codes[q.Code]
		if !ok {
			continue
		}
		select {
		case queue <- mergeItem{tsCode: tsCode, quote: q}:
			merged++
		default:
			dropped++
		}
	}
	close(queue)
	wg.Wait()

	if dropped > 0 {
		s.logger.Warn().Int("dropped", dropped).Int("merged", merged).Msg("Merge queue full, excess symbols dropped")
	} else {
		s.logger.Debug().Int("merged", merged).Msg("Realtime fan-out complete")
	}
}

type mergeItem struct {
	tsCode string
	quote  models.Quote
}

// codeIndex maps 6-digit on-wire codes to canonical ts_codes for every
// registered stock and ETF.
func (s *Service) codeIndex(ctx context.Context) (map[string]string, error) {
	stocks, err := s.symbols.Load(ctx)
	if err != nil && !common.IsKind(err, common.KindNotFound) {
		return nil, err
	}
	etfs, err := s.symbols.LoadETFs(ctx)
	if err != nil && !common.IsKind(err, common.KindNotFound) {
		return nil, err
	}

	index := make(map[string]string, len(stocks)+len(etfs))
	for _, sym := range stocks {
		index[sym.Code] = sym.TSCode
	}
	for _, sym := range etfs {
		index[sym.Code] = sym.TSCode
	}
	return index, nil
}

// SnapshotOne serves a single symbol from the cached batch snapshot. The
// batch TTL (5 minutes) bounds staleness; when the batch has expired a
// fresh cycle is run so reads between scheduled cycles still see data,
// throttled to one refetch per snapshotRefreshWindow.
func (s *Service) SnapshotOne(ctx context.Context, symbol string) (*models.Quote, error) {
	code := normalizeCode(symbol)
	if code == "" {
		return nil, common.NewError(common.KindBadInput, "invalid symbol %q", symbol)
	}

	snap, err := s.snapshots.GetSnapshot(ctx)
	if common.IsKind(err, common.KindNotFound) {
		snap, err = s.refreshExpired(ctx)
	}
	if err != nil {
		return nil, err
	}
	for i := range snap.Quotes {
		if snap.Quotes[i].Code == code {
			return &snap.Quotes[i], nil
		}
	}
	return nil, common.NewError(common.KindNotFound, "no quote for %s in current snapshot", code)
}

// refreshExpired runs one snapshot cycle on behalf of a read that found
// the cached batch expired. The window keeps a burst of reads during a
// provider outage from turning into repeated full-market pulls.
func (s *Service) refreshExpired(ctx context.Context) (*models.Snapshot, error) {
	s.refreshMu.Lock()
	now := s.calendar.Now()
	if !s.lastRefresh.IsZero() && now.Sub(s.lastRefresh) < snapshotRefreshWindow {
		s.refreshMu.Unlock()
		return nil, common.NewError(common.KindNotFound, "snapshot expired, refresh attempted recently")
	}
	s.lastRefresh = now
	s.refreshMu.Unlock()

	s.logger.Debug().Msg("Snapshot expired, refreshing on read")
	return s.SnapshotAll(ctx, interfaces.SnapshotOptions{IncludeETF: true})
}

// Stats reports the per-provider fetch counters.
func (s *Service) Stats() []models.ProviderStats {
	return s.fetcher.Stats()
}

// normalizeCode reduces a ts_code (600000.SH) or bare code to the
// 6-digit on-wire form.
func normalizeCode(symbol string) string {
	code := symbol
	if idx := strings.Index(code, "."); idx >= 0 {
		code = code[:idx]
	}
	if len(code) != 6 {
		return ""
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return ""
		}
	}
	return code
}

// Compile-time check
var _ interfaces.RealtimeService = (*Service)(nil)
