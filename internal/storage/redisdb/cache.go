package redisdb

import (
	"context"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
)

// CacheStore holds derived artifacts. No derivation is stored without a
// TTL; a zero ttl is coerced to one minute.
type CacheStore struct {
	kv interfaces.KVStore
}

func (s *CacheStore) GetCache(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return raw, true, nil
}

func (s *CacheStore) SetCache(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.kv.SetEx(ctx, key, value, ttl)
}

func (s *CacheStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.kv.Scan(ctx, prefix+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *CacheStore) SetFlag(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = TTLFlag
	}
	return s.kv.SetNX(ctx, key, "1", ttl)
}

// Compile-time check
var _ interfaces.CacheStorage = (*CacheStore)(nil)
