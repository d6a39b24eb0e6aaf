package tushare

import (
	"context"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

const realtimeFields = "TS_CODE,NAME,OPEN,HIGH,LOW,PRICE,CLOSE,CHANGE,PCT_CHANGE,VOLUME,AMOUNT,TURNOVER_RATE"

// SnapshotAllStocks pulls the full-market realtime ranking list. The
// endpoint reports uppercase column names, volume in hands and amount in
// thousands of yuan; everything is normalised to the internal shape.
func (c *Client) SnapshotAllStocks(ctx context.Context) ([]models.Quote, error) {
	data, err := c.call(ctx, "realtime_list", map[string]string{"src": "dc"}, realtimeFields)
	if err != nil {
		return nil, err
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	idx := data.index()
	quotes := make([]models.Quote, 0, len(data.Items))
	dropped := 0
	for _, cells := range data.Items {
		r := row{idx: idx, cells: cells}

		tsCode := r.str("TS_CODE")
		code := tsCode
		if len(code) > 6 {
			code = code[:6]
		}
		price, okP := r.num("PRICE")
		if tsCode == "" || !okP || price <= 0 {
			dropped++
			continue
		}
		change, _ := r.num("CHANGE")
		pctChange, _ := r.num("PCT_CHANGE")
		open, _ := r.num("OPEN")
		high, _ := r.num("HIGH")
		low, _ := r.num("LOW")
		preClose, _ := r.num("CLOSE")
		volume, _ := r.num("VOLUME")
		amount, _ := r.num("AMOUNT")
		turnover, _ := r.num("TURNOVER_RATE")

		quotes = append(quotes, models.Quote{
			Code:          code,
			Name:          r.str("NAME"),
			Price:         price,
			Change:        change,
			ChangePercent: pctChange,
			Open:          open,
			High:          high,
			Low:           low,
			PreClose:      preClose,
			Volume:        volume * 100,
			Amount:        amount * 1000,
			TurnoverRate:  turnover,
			UpdateTime:    now,
		})
	}

	if dropped > 0 {
		c.logger.Warn().Int("dropped", dropped).Msg("Dropped unparseable realtime rows")
	}
	if len(quotes) == 0 {
		return nil, common.NewError(common.KindProviderEmpty, "realtime_list returned no usable rows")
	}
	return quotes, nil
}

// SnapshotAllETFs reports provider_empty: the ranking list covers stocks
// only, so ETF snapshots fall through to the other providers.
func (c *Client) SnapshotAllETFs(ctx context.Context) ([]models.Quote, error) {
	return nil, common.NewError(common.KindProviderEmpty, "tushare serves no ETF realtime list")
}
