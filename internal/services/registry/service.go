// Package registry manages the stock and ETF master lists: refresh from
// the upstream master source, exchange/board classification, ETF
// settlement tagging and the completeness gate.
package registry

import (
	"context"
	"strings"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// Completeness gate thresholds. Strategy and realtime jobs stay off
// until the registry holds a plausible full market.
const (
	minStocks = 5000
	minETFs   = 1
)

// t0Keywords tag an ETF as T+0 settled: cross-border, bond, commodity
// and money funds settle same-day on the A-share market.
var t0Keywords = []string{
	"跨境", "QDII", "海外", "全球", "国际", "港股", "恒生", "香港",
	"美股", "纳", "标普", "道琼", "日经", "欧洲", "德国", "英国",
	"法国", "新兴", "亚太", "债", "黄金", "货币", "白银", "原油",
}

// MasterFetcher is the slice of the fetch fabric this service needs.
type MasterFetcher interface {
	SymbolMaster(ctx context.Context) ([]models.Symbol, error)
	ETFMaster(ctx context.Context) ([]models.Symbol, error)
}

// Service implements interfaces.RegistryService.
type Service struct {
	store   interfaces.SymbolStorage
	fetcher MasterFetcher
	logger  *common.Logger
}

// NewService creates the registry service.
func NewService(store interfaces.SymbolStorage, fetcher MasterFetcher, logger *common.Logger) *Service {
	return &Service{store: store, fetcher: fetcher, logger: logger}
}

func (s *Service) Load(ctx context.Context) ([]models.Symbol, error) {
	return s.store.LoadStockList(ctx)
}

func (s *Service) LoadETFs(ctx context.Context) ([]models.Symbol, error) {
	return s.store.LoadETFList(ctx)
}

func (s *Service) Get(ctx context.Context, code string) (*models.Symbol, error) {
	return s.store.GetSymbol(ctx, code)
}

// Refresh pulls both master lists and overwrites the stored namespaces.
func (s *Service) Refresh(ctx context.Context) (int, int, error) {
	stocks, err := s.fetcher.SymbolMaster(ctx)
	if err != nil {
		return 0, 0, err
	}
	classified := make([]models.Symbol, 0, len(stocks))
	for _, sym := range stocks {
		market, board, ok := Classify(sym.Code)
		if !ok {
			s.logger.Warn().Str("code", sym.Code).Msg("Unclassifiable stock code skipped")
			continue
		}
		sym.Market = market
		sym.Board = board
		classified = append(classified, sym)
	}
	if err := s.store.SaveStockList(ctx, classified); err != nil {
		return 0, 0, err
	}

	rawETFs, err := s.fetcher.ETFMaster(ctx)
	if err != nil {
		return 0, 0, err
	}
	etfs := make([]models.Symbol, 0, len(rawETFs))
	for _, sym := range rawETFs {
		if strings.Contains(sym.Name, "LOF") {
			continue
		}
		sym.Market = models.MarketETF
		sym.TradeMode = TradeModeFor(sym.Name)
		etfs = append(etfs, sym)
	}
	if err := s.store.SaveETFList(ctx, etfs); err != nil {
		return 0, 0, err
	}

	s.logger.Info().
		Int("stocks", len(classified)).
		Int("etfs", len(etfs)).
		Msg("Symbol registry refreshed")
	return len(classified), len(etfs), nil
}

// IsReady returns nil when the registry passes the completeness gate.
func (s *Service) IsReady(ctx context.Context) error {
	stocks, err := s.store.StockCount(ctx)
	if err != nil {
		return err
	}
	etfs, err := s.store.ETFCount(ctx)
	if err != nil {
		return err
	}
	if stocks < minStocks || etfs < minETFs {
		return common.NewError(common.KindNotReady,
			"registry incomplete: %d/%d stocks, %d/%d etfs", stocks, minStocks, etfs, minETFs)
	}
	return nil
}

// Classify maps a 6-digit stock code to its exchange and board.
func Classify(code string) (market, board string, ok bool) {
	if len(code) != 6 {
		return "", "", false
	}
	switch {
	case strings.HasPrefix(code, "688"), strings.HasPrefix(code, "689"):
		return models.MarketSH, models.BoardSTAR, true
	case code[0] == '6':
		return models.MarketSH, models.BoardMain, true
	case code[0] == '3':
		return models.MarketSZ, models.BoardGEM, true
	case code[0] == '0':
		return models.MarketSZ, models.BoardMain, true
	case strings.HasPrefix(code, "43"), strings.HasPrefix(code, "83"),
		strings.HasPrefix(code, "87"), strings.HasPrefix(code, "88"):
		return models.MarketBJ, models.BoardBSE, true
	default:
		return "", "", false
	}
}

// TradeModeFor tags an ETF's settlement mode from its name.
func TradeModeFor(name string) string {
	for _, kw := range t0Keywords {
		if strings.Contains(name, kw) {
			return models.TradeModeT0
		}
	}
	return models.TradeModeT1
}

// Compile-time check
var _ interfaces.RegistryService = (*Service)(nil)
