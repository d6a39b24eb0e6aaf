package tushare

import (
	"context"
	"strings"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

// SymbolMaster retrieves the listed stock master records. Exchange and
// board classification happens in the registry; the adapter only carries
// the raw listing fields across.
func (c *Client) SymbolMaster(ctx context.Context) ([]models.Symbol, error) {
	data, err := c.call(ctx, "stock_basic",
		map[string]string{"list_status": "L"},
		"ts_code,symbol,name,area,industry,market,list_date")
	if err != nil {
		return nil, err
	}

	idx := data.index()
	symbols := make([]models.Symbol, 0, len(data.Items))
	for _, cells := range data.Items {
		r := row{idx: idx, cells: cells}
		tsCode := r.str("ts_code")
		code := r.str("symbol")
		if tsCode == "" || code == "" {
			continue
		}
		symbols = append(symbols, models.Symbol{
			TSCode:   tsCode,
			Code:     code,
			Name:     r.str("name"),
			Industry: r.str("industry"),
			Area:     r.str("area"),
			ListDate: normalizeListDate(r.str("list_date")),
		})
	}

	if len(symbols) == 0 {
		return nil, common.NewError(common.KindProviderEmpty, "stock_basic returned no rows")
	}
	return symbols, nil
}

// ETFMaster retrieves exchange-traded fund master records (fund_basic
// with market=E). T+0 tagging and LOF exclusion happen in the registry.
func (c *Client) ETFMaster(ctx context.Context) ([]models.Symbol, error) {
	data, err := c.call(ctx, "fund_basic",
		map[string]string{"market": "E", "status": "L"},
		"ts_code,name,fund_type,list_date,status")
	if err != nil {
		return nil, err
	}

	idx := data.index()
	symbols := make([]models.Symbol, 0, len(data.Items))
	for _, cells := range data.Items {
		r := row{idx: idx, cells: cells}
		tsCode := r.str("ts_code")
		if tsCode == "" {
			continue
		}
		code := tsCode
		if dot := strings.Index(tsCode, "."); dot > 0 {
			code = tsCode[:dot]
		}
		symbols = append(symbols, models.Symbol{
			TSCode:   tsCode,
			Code:     code,
			Name:     r.str("name"),
			Market:   models.MarketETF,
			ListDate: normalizeListDate(r.str("list_date")),
		})
	}

	if len(symbols) == 0 {
		return nil, common.NewError(common.KindProviderEmpty, "fund_basic returned no rows")
	}
	return symbols, nil
}

func normalizeListDate(s string) string {
	norm, err := common.NormalizeDate(s)
	if err != nil {
		return ""
	}
	return norm
}
