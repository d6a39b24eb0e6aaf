package eastmoney

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

// Market filters for the clist endpoint.
const (
	fsAllStocks = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23,m:0+t:81+s:2048"
	fsAllETFs   = "b:MK0021,b:MK0022,b:MK0023,b:MK0024"

	snapshotFields = "f2,f3,f4,f5,f6,f8,f12,f14,f15,f16,f17,f18"
)

// clistResponse is one page of the ranked quote list. With fltt=2 the
// numeric fields arrive as plain floats; halted symbols arrive as the
// string "-".
type clistResponse struct {
	Data *struct {
		Total int         `json:"total"`
		Diff  []clistQuote `json:"diff"`
	} `json:"data"`
}

type clistQuote struct {
	Price         flexNum `json:"f2"`
	ChangePercent flexNum `json:"f3"`
	Change        flexNum `json:"f4"`
	Volume        flexNum `json:"f5"` // hands
	Amount        flexNum `json:"f6"` // yuan
	TurnoverRate  flexNum `json:"f8"`
	Code          string  `json:"f12"`
	Name          string  `json:"f14"`
	High          flexNum `json:"f15"`
	Low           flexNum `json:"f16"`
	Open          flexNum `json:"f17"`
	PreClose      flexNum `json:"f18"`
}

// flexNum decodes a float that may arrive as the placeholder string "-".
type flexNum float64

func (f *flexNum) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == `"-"` || s == "null" || s == `""` {
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
	return c.snapshot(ctx, fsAllStocks)
}

// SnapshotAllETFs pulls a realtime quote for every listed ETF.
func (c *Client) SnapshotAllETFs(ctx context.Context) ([]models.Quote, error) {
	return c.snapshot(ctx, fsAllETFs)
}

// snapshot pages through the clist endpoint until the reported total is
// exhausted.
func (c *Client) snapshot(ctx context.Context, fs string) ([]models.Quote, error) {
	now := time.Now().Format("2006-01-02 15:04:05")
	var quotes []models.Quote

	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, common.WrapError(common.KindCancelled, err, "rate limit wait")
		}

		var result clistResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"pn":     strconv.Itoa(page),
				"pz":     strconv.Itoa(snapshotPageSize),
				"po":     "1",
				"np":     "1",
				"fltt":   "2",
				"invt":   "2",
				"fid":    "f3",
				"fs":     fs,
				"fields": snapshotFields,
			}).
			SetResult(&result).
			Get("/api/qt/clist/get")
		if err != nil {
			return nil, common.WrapError(common.KindProviderHTTP, err, "eastmoney clist request failed")
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, common.NewError(common.KindProviderHTTP, "eastmoney clist: status %d", resp.StatusCode())
		}
		if result.Data == nil || len(result.Data.Diff) == 0 {
			break
		}

		for _, q := range result.Data.Diff {
			if q.Code == "" || q.Price <= 0 {
				continue // halted or placeholder row
			}
			quotes = append(quotes, models.Quote{
				Code:          q.Code,
				Name:          q.Name,
				Price:         float64(q.Price),
				Change:        float64(q.Change),
				ChangePercent: float64(q.ChangePercent),
				Open:          float64(q.Open),
				High:          float64(q.High),
				Low:           float64(q.Low),
				PreClose:      float64(q.PreClose),
				Volume:        float64(q.Volume) * 100, // hands to shares
				Amount:        float64(q.Amount),
				TurnoverRate:  float64(q.TurnoverRate),
				UpdateTime:    now,
			})
		}

		if len(quotes) >= result.Data.Total || len(result.Data.Diff) < snapshotPageSize {
			break
		}
	}

	if len(quotes) == 0 {
		return nil, common.NewError(common.KindProviderEmpty, "eastmoney snapshot returned no usable rows")
	}

	c.logger.Debug().Int("quotes", len(quotes)).Msg("Eastmoney snapshot complete")
	return quotes, nil
}
