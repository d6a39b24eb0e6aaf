// Package news crawls market headlines into the news:latest cache and
// optionally attaches an AI-generated digest.
package news

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
	"github.com/cnquant/stockpulse/internal/storage/redisdb"
)

const defaultCrawlLimit = 20

// Service implements interfaces.NewsService. ai may be nil when the AI
// step is disabled; a failing AI step never fails a crawl.
type Service struct {
	client interfaces.NewsClient
	ai     interfaces.AIClient
	cache  interfaces.CacheStorage
	logger *common.Logger
	limit  int
	now    func() time.Time
}

// NewService creates the news service.
func NewService(client interfaces.NewsClient, ai interfaces.AIClient, cache interfaces.CacheStorage, logger *common.Logger) *Service {
	return &Service{
		client: client,
		ai:     ai,
		cache:  cache,
		logger: logger,
		limit:  defaultCrawlLimit,
		now:    time.Now,
	}
}

// Crawl pulls the latest headlines and replaces news:latest. Returns the
// number of headlines stored.
func (s *Service) Crawl(ctx context.Context) (int, error) {
	items, err := s.client.LatestNews(ctx, s.limit)
	if err != nil {
		return 0, err
	}

	digest := &models.NewsDigest{
		Items:     items,
		CrawledAt: s.now(),
	}

	if s.ai != nil {
		summary, err := s.ai.SummarizeNews(ctx, items)
		if err != nil {
			s.logger.Warn().Err(err).Msg("AI digest failed, storing headlines without summary")
		} else {
			digest.AISummary = summary
		}
	}

	raw, err := json.Marshal(digest)
	if err != nil {
		return 0, common.WrapError(common.KindInternal, err, "encode news digest")
	}
	if err := s.cache.SetCache(ctx, redisdb.KeyNewsLatest, string(raw), redisdb.TTLNews); err != nil {
		return 0, err
	}

	s.logger.Info().Int("headlines", len(items)).Bool("summary", digest.AISummary != "").Msg("News crawl complete")
	return len(items), nil
}

// Latest returns the cached digest, or not_found when the cache slot has
// expired.
func (s *Service) Latest(ctx context.Context) (*models.NewsDigest, error) {
	raw, ok, err := s.cache.GetCache(ctx, redisdb.KeyNewsLatest)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.NewError(common.KindNotFound, "no news digest cached")
	}
	var digest models.NewsDigest
	if err := json.Unmarshal([]byte(raw), &digest); err != nil {
		return nil, common.WrapError(common.KindInternal, err, "decode news digest")
	}
	return &digest, nil
}

// Compile-time check
var _ interfaces.NewsService = (*Service)(nil)
