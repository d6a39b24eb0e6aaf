package redisdb

import (
	"context"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
)

// Manager implements interfaces.StorageManager over one shared KVStore.
type Manager struct {
	kv        interfaces.KVStore
	klines    *KlineStore
	symbols   *SymbolStore
	signals   *SignalStore
	snapshots *SnapshotStore
	execLogs  *ExecLogStore
	cache     *CacheStore
	logger    *common.Logger
}

// NewManager creates a StorageManager connected per config.
func NewManager(cfg *common.RedisConfig, logger *common.Logger) (*Manager, error) {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewManagerWithKV(client, logger), nil
}

// NewManagerWithKV builds a Manager over an existing KVStore. Tests use
// this with an in-memory fake.
func NewManagerWithKV(kv interfaces.KVStore, logger *common.Logger) *Manager {
	return &Manager{
		kv:        kv,
		klines:    &KlineStore{kv: kv},
		symbols:   &SymbolStore{kv: kv},
		signals:   &SignalStore{kv: kv},
		snapshots: &SnapshotStore{kv: kv},
		execLogs:  &ExecLogStore{kv: kv},
		cache:     &CacheStore{kv: kv},
		logger:    logger,
	}
}

func (m *Manager) KV() interfaces.KVStore               { return m.kv }
func (m *Manager) Klines() interfaces.KlineStorage      { return m.klines }
func (m *Manager) Symbols() interfaces.SymbolStorage    { return m.symbols }
func (m *Manager) Signals() interfaces.SignalStorage    { return m.signals }
func (m *Manager) Snapshots() interfaces.SnapshotStorage { return m.snapshots }
func (m *Manager) ExecLogs() interfaces.ExecLogStorage  { return m.execLogs }
func (m *Manager) Cache() interfaces.CacheStorage       { return m.cache }

// FlushNamespaces deletes every application-owned key. The DB itself is
// never flushed: the instance may be shared.
func (m *Manager) FlushNamespaces(ctx context.Context) (int, error) {
	deleted := 0
	for _, pattern := range namespacePatterns {
		keys, err := m.kv.Scan(ctx, pattern)
		if err != nil {
			return deleted, err
		}
		if len(keys) == 0 {
			continue
		}
		if err := m.kv.Delete(ctx, keys...); err != nil {
			return deleted, err
		}
		deleted += len(keys)
	}
	m.logger.Info().Int("keys", deleted).Msg("Namespaced keys flushed")
	return deleted, nil
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.kv.Ping(ctx)
}

func (m *Manager) Close() error {
	return m.kv.Close()
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
