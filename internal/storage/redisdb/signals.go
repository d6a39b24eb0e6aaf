package redisdb

import (
	"context"
	"sort"
	"strings"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// SignalStore owns the buy_signals hash. Fields are keyed code:strategy
// so multiple strategies can hold a verdict on the same symbol.
type SignalStore struct {
	kv interfaces.KVStore
}

func signalField(sig *models.Signal) string {
	return sig.Code + ":" + sig.Strategy
}

// ReplaceAll installs a complete signal set atomically and refreshes the
// one-hour TTL.
func (s *SignalStore) ReplaceAll(ctx context.Context, signals []models.Signal) error {
	pairs := make(map[string]string, len(signals))
	for i := range signals {
		raw, err := encode(&signals[i])
		if err != nil {
			return err
		}
		pairs[signalField(&signals[i])] = raw
	}
	return s.kv.ReplaceHash(ctx, KeyBuySignals, pairs, TTLSignals)
}

func (s *SignalStore) GetAll(ctx context.Context) ([]models.Signal, error) {
	fields, err := s.kv.HGetAll(ctx, KeyBuySignals)
	if err != nil {
		return nil, err
	}
	signals := make([]models.Signal, 0, len(fields))
	for _, raw := range fields {
		var sig models.Signal
		if err := decode(raw, &sig); err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].Code != signals[j].Code {
			return signals[i].Code < signals[j].Code
		}
		return signals[i].Strategy < signals[j].Strategy
	})
	return signals, nil
}

func (s *SignalStore) GetByStrategy(ctx context.Context, strategy string) ([]models.Signal, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Signal, 0, len(all))
	for _, sig := range all {
		if sig.Strategy == strategy {
			out = append(out, sig)
		}
	}
	return out, nil
}

// EvictUnknownStrategies removes hash fields whose strategy suffix is not
// in the known set.
func (s *SignalStore) EvictUnknownStrategies(ctx context.Context, known []string) (int, error) {
	knownSet := make(map[string]bool, len(known))
	for _, name := range known {
		knownSet[name] = true
	}

	fields, err := s.kv.HGetAll(ctx, KeyBuySignals)
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var stale []string
	for field := range fields {
		idx := strings.Index(field, ":")
		if idx < 0 {
			stale = append(stale, field) // legacy single-strategy field
			continue
		}
		if !knownSet[field[idx+1:]] {
			stale = append(stale, field)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.kv.HDel(ctx, KeyBuySignals, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Compile-time check
var _ interfaces.SignalStorage = (*SignalStore)(nil)
