package redisdb

import (
	"context"
	"sort"

	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// ExecLogStore records job run outcomes, one key per run, 7-day TTL.
type ExecLogStore struct {
	kv interfaces.KVStore
}

func (s *ExecLogStore) Append(ctx context.Context, entry *models.ExecutionLog) error {
	raw, err := encode(entry)
	if err != nil {
		return err
	}
	return s.kv.SetEx(ctx, ExecLogKey(entry.Job, entry.StartedAt), raw, TTLExecLog)
}

// List returns up to limit entries for one job (all jobs when job is
// empty), newest first.
func (s *ExecLogStore) List(ctx context.Context, job string, limit int) ([]models.ExecutionLog, error) {
	pattern := prefixExecLog + "*"
	if job != "" {
		pattern = prefixExecLog + job + ":*"
	}

	keys, err := s.kv.Scan(ctx, pattern)
	if err != nil {
		return nil, err
	}
	// Key suffix is a sortable timestamp; newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	entries := make([]models.ExecutionLog, 0, len(keys))
	for _, key := range keys {
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			continue // expired between scan and get
		}
		var entry models.ExecutionLog
		if err := decode(raw, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Compile-time check
var _ interfaces.ExecLogStorage = (*ExecLogStore)(nil)
