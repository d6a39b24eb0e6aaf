package news

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
	"github.com/cnquant/stockpulse/internal/storage/redisdb"
)

type fakeNewsClient struct {
	items []models.NewsItem
	err   error
	limit int
}

func (f *fakeNewsClient) LatestNews(ctx context.Context, limit int) ([]models.NewsItem, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeAI struct {
	summary string
	err     error
	calls   int
}

func (f *fakeAI) SummarizeNews(ctx context.Context, items []models.NewsItem) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func headlines() []models.NewsItem {
	return []models.NewsItem{
		{Title: "央行宣布降准0.5个百分点", URL: "https://example.com/1", Source: "eastmoney"},
		{Title: "沪指收涨1.2%创年内新高", URL: "https://example.com/2", Source: "eastmoney"},
	}
}

func newCache() *redisdb.Manager {
	return redisdb.NewManagerWithKV(redisdb.NewMemKV(), common.NewSilentLogger())
}

func TestCrawlStoresDigest(t *testing.T) {
	mgr := newCache()
	client := &fakeNewsClient{items: headlines()}
	ai := &fakeAI{summary: "市场情绪偏暖。"}
	svc := NewService(client, ai, mgr.Cache(), common.NewSilentLogger())
	svc.now = func() time.Time { return time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC) }

	n, err := svc.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, defaultCrawlLimit, client.limit)

	digest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Len(t, digest.Items, 2)
	assert.Equal(t, "央行宣布降准0.5个百分点", digest.Items[0].Title)
	assert.Equal(t, "市场情绪偏暖。", digest.AISummary)
	assert.True(t, digest.CrawledAt.Equal(time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)))
}

func TestCrawlSurvivesAIFailure(t *testing.T) {
	mgr := newCache()
	ai := &fakeAI{err: errors.New("quota exceeded")}
	svc := NewService(&fakeNewsClient{items: headlines()}, ai, mgr.Cache(), common.NewSilentLogger())

	n, err := svc.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, ai.calls)

	digest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, digest.AISummary)
}

func TestCrawlWithoutAIClient(t *testing.T) {
	mgr := newCache()
	svc := NewService(&fakeNewsClient{items: headlines()}, nil, mgr.Cache(), common.NewSilentLogger())

	n, err := svc.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCrawlPropagatesClientError(t *testing.T) {
	mgr := newCache()
	client := &fakeNewsClient{err: common.NewError(common.KindProviderHTTP, "feed down")}
	svc := NewService(client, nil, mgr.Cache(), common.NewSilentLogger())

	_, err := svc.Crawl(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindProviderHTTP))
}

func TestLatestMissIsNotFound(t *testing.T) {
	mgr := newCache()
	svc := NewService(&fakeNewsClient{}, nil, mgr.Cache(), common.NewSilentLogger())

	_, err := svc.Latest(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindNotFound))
}
