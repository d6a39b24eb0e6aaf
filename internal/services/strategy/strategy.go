// Package strategy implements the vectorized signal engine: a registry
// of named strategies applied over in-memory views of the K-line store.
// Strategies never mutate stored series.
package strategy

import (
	"sort"
	"sync"

	"github.com/cnquant/stockpulse/internal/models"
)

// Result is one strategy's output over a series: the indicator lines it
// computed (per-bar, NaN where undefined) and every signal it fired.
type Result struct {
	Indicators map[string][]float64
	Signals    []models.Signal
}

// Strategy is one entry in the registry. Apply receives the full bar
// view; emitted signals carry SignalType, Price, SignalDate and Index,
// the engine fills in the symbol identity afterwards.
type Strategy interface {
	Name() string
	Apply(bars []models.Bar) *Result
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Strategy{}
)

// Register adds a strategy to the registry. Called from init functions;
// duplicate names panic at startup.
func Register(s Strategy) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[s.Name()]; dup {
		panic("strategy: duplicate registration of " + s.Name())
	}
	registry[s.Name()] = s
}

// Registered returns the registered strategy names, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named strategy, or nil.
func Lookup(name string) Strategy {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// closes extracts the close column.
func closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// highs extracts the high column.
func highs(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].High
	}
	return out
}

// lows extracts the low column.
func lows(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Low
	}
	return out
}

// signalAt builds the common part of a signal fired at bar i.
func signalAt(bars []models.Bar, i int, strategyName, signalType string) models.Signal {
	return models.Signal{
		Strategy:      strategyName,
		SignalType:    signalType,
		Price:         bars[i].Close,
		ChangePercent: bars[i].PctChg,
		Volume:        bars[i].Vol,
		SignalDate:    bars[i].TradeDate,
		Index:         i,
	}
}
