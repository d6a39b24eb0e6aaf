package eastmoney

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// newsColumn 350 is the rolling market headline feed.
const newsColumn = "350"

type newsResponse struct {
	Code string `json:"code"`
	Data *struct {
		List []newsRecord `json:"list"`
	} `json:"data"`
}

type newsRecord struct {
	Title     string `json:"title"`
	Digest    string `json:"digest"`
	URL       string `json:"url"`
	UniqueURL string `json:"uniqueUrl"`
	ShowTime  string `json:"showTime"` // 2026-08-25 10:00:00, market local time
}

// LatestNews pulls the most recent market headlines, newest first.
func (c *Client) LatestNews(ctx context.Context, limit int) ([]models.NewsItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, common.WrapError(common.KindCancelled, err, "rate limit wait")
	}
	if limit <= 0 {
		limit = 20
	}

	var result newsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client":     "web",
			"biz":        "web_news",
			"column":     newsColumn,
			"order":      "1",
			"page_index": "1",
			"page_size":  strconv.Itoa(limit),
		}).
		SetResult(&result).
		Get(c.newsURL + "/comm/web/getNewsByColumns")
	if err != nil {
		return nil, common.WrapError(common.KindProviderHTTP, err, "eastmoney news request failed")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, common.NewError(common.KindProviderHTTP, "eastmoney news: status %d", resp.StatusCode())
	}
	if result.Data == nil {
		return nil, common.NewError(common.KindProviderParse, "eastmoney news: missing data")
	}

	items := make([]models.NewsItem, 0, len(result.Data.List))
	for _, rec := range result.Data.List {
		if rec.Title == "" {
			continue
		}
		url := rec.UniqueURL
		if url == "" {
			url = rec.URL
		}
		items = append(items, models.NewsItem{
			Title:       rec.Title,
			URL:         url,
			Source:      c.Name(),
			Summary:     rec.Digest,
			PublishedAt: parseNewsTime(rec.ShowTime),
		})
	}
	if len(items) == 0 {
		return nil, common.NewError(common.KindProviderEmpty, "eastmoney news: empty feed")
	}
	return items, nil
}

func parseNewsTime(s string) time.Time {
	t, err := common.ParseLocalTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Compile-time check
var _ interfaces.NewsClient = (*Client)(nil)
