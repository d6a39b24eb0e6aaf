package redisdb

import (
	"context"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

// SymbolStore persists the stock and ETF master lists. Lists are always
// overwritten whole (the registry never deletes) and carry no TTL.
type SymbolStore struct {
	kv interfaces.KVStore
}

func (s *SymbolStore) SaveStockList(ctx context.Context, symbols []models.Symbol) error {
	raw, err := encode(symbols)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeyStockCodesAll, raw); err != nil {
		return err
	}

	// Per-symbol hash for O(1) lookups by 6-digit code.
	pairs := make(map[string]string, len(symbols))
	for i := range symbols {
		rec, err := encode(&symbols[i])
		if err != nil {
			return err
		}
		pairs[symbols[i].Code] = rec
	}
	return s.kv.ReplaceHash(ctx, KeyStockList, pairs, 0)
}

func (s *SymbolStore) LoadStockList(ctx context.Context) ([]models.Symbol, error) {
	raw, err := s.kv.Get(ctx, KeyStockCodesAll)
	if err != nil {
		return nil, err
	}
	var symbols []models.Symbol
	if err := decode(raw, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

func (s *SymbolStore) SaveETFList(ctx context.Context, symbols []models.Symbol) error {
	raw, err := encode(symbols)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, KeyETFCodesAll, raw)
}

func (s *SymbolStore) LoadETFList(ctx context.Context) ([]models.Symbol, error) {
	raw, err := s.kv.Get(ctx, KeyETFCodesAll)
	if err != nil {
		return nil, err
	}
	var symbols []models.Symbol
	if err := decode(raw, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

func (s *SymbolStore) GetSymbol(ctx context.Context, code string) (*models.Symbol, error) {
	raw, err := s.kv.HGet(ctx, KeyStockList, code)
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			// ETFs live outside the hash; fall back to the list.
			return s.findETF(ctx, code)
		}
		return nil, err
	}
	var sym models.Symbol
	if err := decode(raw, &sym); err != nil {
		return nil, err
	}
	return &sym, nil
}

func (s *SymbolStore) findETF(ctx context.Context, code string) (*models.Symbol, error) {
	etfs, err := s.LoadETFList(ctx)
	if err != nil {
		return nil, common.NewError(common.KindNotFound, "symbol %s not found", code)
	}
	for i := range etfs {
		if etfs[i].Code == code || etfs[i].TSCode == code {
			return &etfs[i], nil
		}
	}
	return nil, common.NewError(common.KindNotFound, "symbol %s not found", code)
}

func (s *SymbolStore) StockCount(ctx context.Context) (int, error) {
	symbols, err := s.LoadStockList(ctx)
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(symbols), nil
}

func (s *SymbolStore) ETFCount(ctx context.Context) (int, error) {
	symbols, err := s.LoadETFList(ctx)
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(symbols), nil
}

// Compile-time check
var _ interfaces.SymbolStorage = (*SymbolStore)(nil)
