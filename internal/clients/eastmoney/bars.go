package eastmoney

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

// klineResponse wraps the daily candle endpoint. Each kline is one
// comma-joined record: date,open,close,high,low,volume,amount,...
type klineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// DailyBars retrieves forward-adjusted daily bars for one symbol within
// [from, to], date-ascending. Volume arrives in hands and is normalised
// to shares; amount is already in yuan.
func (c *Client) DailyBars(ctx context.Context, tsCode, from, to string) ([]models.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, common.WrapError(common.KindCancelled, err, "rate limit wait")
	}

	beg := "0"
	end := "20500101"
	if from != "" {
		beg = common.CompactDate(from)
	}
	if to != "" {
		end = common.CompactDate(to)
	}

	var result klineResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"secid":   secid(tsCode),
			"klt":     "101", // daily
			"fqt":     "1",   // forward adjusted
			"beg":     beg,
			"end":     end,
			"fields1": "f1,f2,f3,f4,f5,f6",
			"fields2": "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61",
		}).
		SetResult(&result).
		Get(c.hisURL + "/api/qt/stock/kline/get")
	if err != nil {
		return nil, common.WrapError(common.KindProviderHTTP, err, "eastmoney kline request failed")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, common.NewError(common.KindProviderHTTP, "eastmoney kline: status %d", resp.StatusCode())
	}
	if result.Data == nil {
		return nil, common.NewError(common.KindProviderParse, "eastmoney kline: missing data")
	}

	bars := make([]models.Bar, 0, len(result.Data.Klines))
	dropped := 0
	for _, line := range result.Data.Klines {
		bar, ok := parseKline(line)
		if !ok {
			dropped++
			continue
		}
		bars = append(bars, bar)
	}

	if dropped > 0 {
		c.logger.Warn().
			Str("ts_code", tsCode).
			Int("dropped", dropped).
			Msg("Dropped unparseable kline records")
	}
	return bars, nil
}

// parseKline decodes one comma-joined candle record. Record layout:
// date,open,close,high,low,volume,amount,amplitude,pct_chg,change,turnover.
func parseKline(line string) (models.Bar, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 7 {
		return models.Bar{}, false
	}

	tradeDate, err := common.NormalizeDate(parts[0])
	if err != nil {
		return models.Bar{}, false
	}

	nums := make([]float64, 0, len(parts)-1)
	for _, p := range parts[1:] {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			n = 0
		}
		nums = append(nums, n)
	}

	bar := models.Bar{
		TradeDate: tradeDate,
		Open:      nums[0],
		Close:     nums[1],
		High:      nums[2],
		Low:       nums[3],
		Vol:       nums[4] * 100, // hands to shares
		Amount:    nums[5],
	}
	if len(nums) >= 9 {
		bar.PctChg = nums[7]
		bar.Change = nums[8]
	}
	if !bar.Valid() {
		return models.Bar{}, false
	}
	return bar, true
}
