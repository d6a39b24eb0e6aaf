package interfaces

import (
	"context"
	"time"

	"github.com/cnquant/stockpulse/internal/models"
)

// KVStore is the uniform Redis façade. All values are JSON strings with
// UTF-8 preserved (no ASCII escaping of CJK text).
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX sets the key only when absent; reports whether the write won.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, pairs map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	// ReplaceHash atomically swaps the full contents of a hash key
	// (DEL + HSET + EXPIRE inside one transaction). A zero ttl leaves
	// the key persistent.
	ReplaceHash(ctx context.Context, key string, pairs map[string]string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// KlineStorage persists per-symbol bar series under stock_trend:<ts_code>
// (etf_trend:<ts_code> for funds) with a sliding 30-day TTL.
type KlineStorage interface {
	GetSeries(ctx context.Context, tsCode string) (*models.Series, error)
	SaveSeries(ctx context.Context, series *models.Series) error
	SeriesExists(ctx context.Context, tsCode string) (bool, error)
	DeleteSeries(ctx context.Context, tsCode string) error
	ListSeriesCodes(ctx context.Context) ([]string, error)
}

// SymbolStorage persists the stock and ETF master lists. The registry is
// the only writer; lists are always overwritten whole.
type SymbolStorage interface {
	SaveStockList(ctx context.Context, symbols []models.Symbol) error
	LoadStockList(ctx context.Context) ([]models.Symbol, error)
	SaveETFList(ctx context.Context, symbols []models.Symbol) error
	LoadETFList(ctx context.Context) ([]models.Symbol, error)
	GetSymbol(ctx context.Context, code string) (*models.Symbol, error)
	StockCount(ctx context.Context) (int, error)
	ETFCount(ctx context.Context) (int, error)
}

// SignalStorage owns the buy_signals hash. ReplaceAll installs a complete
// new signal set atomically from a reader's point of view and refreshes
// the 1-hour TTL.
type SignalStorage interface {
	ReplaceAll(ctx context.Context, signals []models.Signal) error
	GetAll(ctx context.Context) ([]models.Signal, error)
	GetByStrategy(ctx context.Context, strategy string) ([]models.Signal, error)
	// EvictUnknownStrategies removes signals whose strategy is not in
	// known, returning the number evicted. Guarded upstream by a 24 h
	// one-shot flag.
	EvictUnknownStrategies(ctx context.Context, known []string) (int, error)
}

// SnapshotStorage persists the stock:realtime snapshot with a 5-minute TTL.
type SnapshotStorage interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
	GetSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// ExecLogStorage records job execution outcomes with a 7-day TTL.
type ExecLogStorage interface {
	Append(ctx context.Context, entry *models.ExecutionLog) error
	List(ctx context.Context, job string, limit int) ([]models.ExecutionLog, error)
}

// CacheStorage holds derived artifacts (chart JSON, news digest, one-shot
// flags). Every write carries a bounded TTL.
type CacheStorage interface {
	GetCache(ctx context.Context, key string) (string, bool, error)
	SetCache(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	// SetFlag sets a one-shot guard flag; returns false when the flag was
	// already present (another process won the race).
	SetFlag(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// StorageManager coordinates the Redis-backed stores.
type StorageManager interface {
	KV() KVStore
	Klines() KlineStorage
	Symbols() SymbolStorage
	Signals() SignalStorage
	Snapshots() SnapshotStorage
	ExecLogs() ExecLogStorage
	Cache() CacheStorage

	// FlushNamespaces deletes all keys in the application's namespaces
	// (RESET_TABLES). The shared DB is never flushed wholesale.
	FlushNamespaces(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}
