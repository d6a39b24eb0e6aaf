package eastmoney

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnquant/stockpulse/internal/common"
)

func TestLatestNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/comm/web/getNewsByColumns", r.URL.Path)
		require.Equal(t, "350", r.URL.Query().Get("column"))
		require.Equal(t, "5", r.URL.Query().Get("page_size"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":"1","data":{"list":[
			{"title":"央行宣布降准0.5个百分点","digest":"释放长期资金约1万亿元","uniqueUrl":"https://finance.eastmoney.com/a/1.html","showTime":"2026-08-25 09:15:00"},
			{"title":"沪指收涨1.2%","url":"https://finance.eastmoney.com/a/2.html","showTime":"2026-08-25 08:40:00"},
			{"title":"","url":"https://finance.eastmoney.com/a/3.html"}
		]}}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	items, err := client.LatestNews(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, items, 2, "untitled records are dropped")

	assert.Equal(t, "央行宣布降准0.5个百分点", items[0].Title)
	assert.Equal(t, "https://finance.eastmoney.com/a/1.html", items[0].URL)
	assert.Equal(t, "释放长期资金约1万亿元", items[0].Summary)
	assert.Equal(t, "eastmoney", items[0].Source)
	assert.Equal(t, 9, items[0].PublishedAt.Hour())

	assert.Equal(t, "https://finance.eastmoney.com/a/2.html", items[1].URL)
}

func TestLatestNewsEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":"1","data":{"list":[]}}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := client.LatestNews(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindProviderEmpty))
}
