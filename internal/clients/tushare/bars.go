package tushare

import (
	"context"
	"sort"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

const dailyFields = "ts_code,trade_date,open,high,low,close,pre_close,change,pct_chg,vol,amount"

// DailyBars retrieves daily OHLCV bars for one symbol within [from, to],
// date-ascending. Stocks come from the daily endpoint, funds from
// fund_daily. Tushare reports vol in hands and amount in thousands of
// yuan; both are normalised here so nothing upstream sees raw units.
func (c *Client) DailyBars(ctx context.Context, tsCode, from, to string) ([]models.Bar, error) {
	apiName := "daily"
	if models.IsFundCode(tsCode) {
		apiName = "fund_daily"
	}

	params := map[string]string{"ts_code": tsCode}
	if from != "" {
		params["start_date"] = common.CompactDate(from)
	}
	if to != "" {
		params["end_date"] = common.CompactDate(to)
	}

	data, err := c.call(ctx, apiName, params, dailyFields)
	if err != nil {
		return nil, err
	}

	idx := data.index()
	bars := make([]models.Bar, 0, len(data.Items))
	dropped := 0
	for _, cells := range data.Items {
		r := row{idx: idx, cells: cells}

		tradeDate, err := common.NormalizeDate(r.str("trade_date"))
		if err != nil {
			dropped++
			continue
		}
		open, okO := r.num("open")
		high, okH := r.num("high")
		low, okL := r.num("low")
		closePx, okC := r.num("close")
		vol, okV := r.num("vol")
		amount, _ := r.num("amount")
		pctChg, _ := r.num("pct_chg")
		change, _ := r.num("change")
		if !okO || !okH || !okL || !okC || !okV {
			dropped++
			continue
		}

		bar := models.Bar{
			TradeDate: tradeDate,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Vol:       vol * 100,     // hands to shares
			Amount:    amount * 1000, // thousands of yuan to yuan
			PctChg:    pctChg,
			Change:    change,
		}
		if !bar.Valid() {
			dropped++
			continue
		}
		bars = append(bars, bar)
	}

	if dropped > 0 {
		c.logger.Warn().
			Str("ts_code", tsCode).
			Int("dropped", dropped).
			Msg("Dropped unparseable daily bars")
	}

	// The API returns newest first; callers want date-ascending.
	sort.Slice(bars, func(i, j int) bool { return bars[i].TradeDate < bars[j].TradeDate })
	return bars, nil
}
