package sina

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

const nodeDataPath = "/quotes_service/api/json_v2.php/Market_Center.getHQNodeData"

// Market nodes for the ranked quote list.
const (
	nodeAllStocks = "hs_a"
	nodeAllETFs   = "etf_hq_fund"
)

// nodeQuote is one row of the market-center list after JSON repair.
// Numeric fields arrive as a mix of strings and numbers.
type nodeQuote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Trade         flexNum `json:"trade"`
	PriceChange   flexNum `json:"pricechange"`
	ChangePercent flexNum `json:"changepercent"`
	Open          flexNum `json:"open"`
	High          flexNum `json:"high"`
	Low           flexNum `json:"low"`
	Settlement    flexNum `json:"settlement"` // previous close
	Volume        flexNum `json:"volume"`     // shares
	Amount        flexNum `json:"amount"`     // yuan
	TurnoverRatio flexNum `json:"turnoverratio"`
	TickTime      string  `json:"ticktime"`
}

// flexNum decodes a number that may arrive quoted or null.
type flexNum float64

func (f *flexNum) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	if len(s) > 1 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexNum(n)
	return nil
}

// SnapshotAllStocks pulls a realtime quote for every listed A-share.
func (c *Client) SnapshotAllStocks(ctx context.Context) ([]models.Quote, error) {
	return c.snapshot(ctx, nodeAllStocks)
}

// SnapshotAllETFs pulls a realtime quote for every listed ETF.
func (c *Client) SnapshotAllETFs(ctx context.Context) ([]models.Quote, error) {
	return c.snapshot(ctx, nodeAllETFs)
}

// snapshot pages through the market-center node list until a short page.
func (c *Client) snapshot(ctx context.Context, node string) ([]models.Quote, error) {
	now := time.Now().Format("2006-01-02 15:04:05")
	var quotes []models.Quote
	dropped := 0

	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, common.WrapError(common.KindCancelled, err, "rate limit wait")
		}

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"page": strconv.Itoa(page),
				"num":  strconv.Itoa(snapshotPageSize),
				"sort": "symbol",
				"asc":  "1",
				"node": node,
			}).
			Get(nodeDataPath)
		if err != nil {
			return nil, common.WrapError(common.KindProviderHTTP, err, "sina node list request failed")
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, common.NewError(common.KindProviderHTTP, "sina node list: status %d", resp.StatusCode())
		}

		decoded, err := decodeGBK(resp.Body())
		if err != nil {
			return nil, err
		}
		if decoded == "null" || decoded == "" {
			break
		}

		var rows []nodeQuote
		if err := json.Unmarshal([]byte(repairJSON(decoded)), &rows); err != nil {
			return nil, common.WrapError(common.KindProviderParse, err, "sina node list parse failed")
		}
		if len(rows) == 0 {
			break
		}

		for _, q := range rows {
			code, ok := stripSymbol(q.Symbol)
			if !ok || q.Trade <= 0 {
				dropped++
				continue
			}
			quotes = append(quotes, models.Quote{
				Code:          code,
				Name:          q.Name,
				Price:         float64(q.Trade),
				Change:        float64(q.PriceChange),
				ChangePercent: float64(q.ChangePercent),
				Open:          float64(q.Open),
				High:          float64(q.High),
				Low:           float64(q.Low),
				PreClose:      float64(q.Settlement),
				Volume:        float64(q.Volume),
				Amount:        float64(q.Amount),
				TurnoverRate:  float64(q.TurnoverRatio),
				UpdateTime:    now,
			})
		}

		if len(rows) < snapshotPageSize {
			break
		}
	}

	if dropped > 0 {
		c.logger.Warn().Int("dropped", dropped).Msg("Dropped invalid sina rows")
	}
	if len(quotes) == 0 {
		return nil, common.NewError(common.KindProviderEmpty, "sina snapshot returned no usable rows")
	}

	c.logger.Debug().Int("quotes", len(quotes)).Msg("Sina snapshot complete")
	return quotes, nil
}
