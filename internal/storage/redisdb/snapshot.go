package redisdb

import (
	"context"

	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// SnapshotStore persists the most recent realtime snapshot under
// stock:realtime with a 5-minute TTL. A failed cycle leaves the previous
// snapshot readable until expiry.
type SnapshotStore struct {
	kv interfaces.KVStore
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	raw, err := encode(snap)
	if err != nil {
		return err
	}
	return s.kv.SetEx(ctx, KeyRealtime, raw, TTLRealtime)
}

func (s *SnapshotStore) GetSnapshot(ctx context.Context) (*models.Snapshot, error) {
	raw, err := s.kv.Get(ctx, KeyRealtime)
	if err != nil {
		return nil, err
	}
	var snap models.Snapshot
	if err := decode(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Compile-time check
var _ interfaces.SnapshotStorage = (*SnapshotStore)(nil)
