package sina

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

const klineDataPath = "/cn/api/json_v2.php/CN_MarketDataService.getKLineData"

// klineRow is one daily candle from the getKLineData endpoint. Sina
// reports no amount column.
type klineRow struct {
	Day    string  `json:"day"`
	Open   flexNum `json:"open"`
	High   flexNum `json:"high"`
	Low    flexNum `json:"low"`
	Close  flexNum `json:"close"`
	Volume flexNum `json:"volume"` // shares
}

// DailyBars retrieves daily bars for one symbol, date-ascending. The
// from/to window is applied client-side: the endpoint only supports a
// trailing length, so the fetch is sized to the window and filtered.
func (c *Client) DailyBars(ctx context.Context, tsCode, from, to string) ([]models.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, common.WrapError(common.KindCancelled, err, "rate limit wait")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":  sinaSymbol(tsCode),
			"scale":   "240", // daily
			"ma":      "no",
			"datalen": strconv.Itoa(klineFetchLen),
		}).
		Get(c.klineURL + klineDataPath)
	if err != nil {
		return nil, common.WrapError(common.KindProviderHTTP, err, "sina kline request failed")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, common.NewError(common.KindProviderHTTP, "sina kline: status %d", resp.StatusCode())
	}

	body := string(resp.Body())
	if body == "null" || body == "" {
		return nil, common.NewError(common.KindProviderEmpty, "sina kline returned no rows for %s", tsCode)
	}

	var rows []klineRow
	if err := json.Unmarshal([]byte(repairJSON(body)), &rows); err != nil {
		return nil, common.WrapError(common.KindProviderParse, err, "sina kline parse failed")
	}

	bars := make([]models.Bar, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		tradeDate, err := common.NormalizeDate(r.Day)
		if err != nil {
			dropped++
			continue
		}
		if from != "" && tradeDate < from {
			continue
		}
		if to != "" && tradeDate > to {
			continue
		}
		bar := models.Bar{
			TradeDate: tradeDate,
			Open:      float64(r.Open),
			High:      float64(r.High),
			Low:       float64(r.Low),
			Close:     float64(r.Close),
			Vol:       float64(r.Volume),
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
			Msg("Dropped unparseable kline rows")
	}
	return bars, nil
}

// klineFetchLen covers the 180-bar retention window with headroom for
// client-side date filtering.
const klineFetchLen = 250
