package strategy

import (
	"github.com/cnquant/stockpulse/internal/models"
)

// Trend-continuation ("123") parameters. A pivot needs pivotLength bars
// of confirmation on each side; a breakout level is stale once price
// touched it within the look-back.
const (
	pivotLength      = 5
	touchLookback    = 10
	stopLossFloorPct = 0.05
	takeProfitRatio  = 1.5
)

func init() {
	Register(&trendContinuation{})
}

// trendContinuation buys the breakout above the last confirmed pivot
// high and sells the breakdown below the last confirmed pivot low,
// attaching a stop loss and take profit to every buy.
type trendContinuation struct{}

func (s *trendContinuation) Name() string { return models.StrategyTrendContinuation }

func (s *trendContinuation) Apply(bars []models.Bar) *Result {
	high := highs(bars)
	low := lows(bars)
	closePx := closes(bars)

	res := &Result{Indicators: map[string][]float64{}}

	lastHigh := -1.0 // last confirmed pivot high level
	lastLow := -1.0  // last confirmed pivot low level

	for i := range bars {
		// A pivot at i-pivotLength is confirmed once bar i closes.
		if p := i - pivotLength; p >= pivotLength {
			if isPivotHigh(high, p) {
				lastHigh = high[p]
			}
			if isPivotLow(low, p) {
				lastLow = low[p]
			}
		}

		if i == 0 {
			continue
		}

		if lastHigh > 0 && closePx[i] > lastHigh && closePx[i-1] <= lastHigh && !touchedAbove(high, i, lastHigh) {
			sig := signalAt(bars, i, s.Name(), models.SignalBuy)
			stopFloor := closePx[i] * (1 - stopLossFloorPct)
			sig.StopLoss = max(lastLow, stopFloor)
			sig.TakeProfit = closePx[i] + takeProfitRatio*(closePx[i]-sig.StopLoss)
			res.Signals = append(res.Signals, sig)
			lastHigh = -1 // one trade per breakout level
		}

		if lastLow > 0 && closePx[i] < lastLow && closePx[i-1] >= lastLow && !touchedBelow(low, i, lastLow) {
			res.Signals = append(res.Signals, signalAt(bars, i, s.Name(), models.SignalSell))
			lastLow = -1
		}
	}
	return res
}

// isPivotHigh reports whether high[p] tops the full 2*pivotLength+1
// window centred on p.
func isPivotHigh(high []float64, p int) bool {
	if p < pivotLength || p+pivotLength >= len(high) {
		return false
	}
	for j := p - pivotLength; j <= p+pivotLength; j++ {
		if j != p && high[j] >= high[p] {
			return false
		}
	}
	return true
}

// isPivotLow reports whether low[p] bottoms the window centred on p.
func isPivotLow(low []float64, p int) bool {
	if p < pivotLength || p+pivotLength >= len(low) {
		return false
	}
	for j := p - pivotLength; j <= p+pivotLength; j++ {
		if j != p && low[j] <= low[p] {
			return false
		}
	}
	return true
}

// touchedAbove reports whether the level was already traded through in
// the prior look-back window, which disqualifies the breakout.
func touchedAbove(high []float64, i int, level float64) bool {
	for j := max(0, i-touchLookback); j < i; j++ {
		if high[j] >= level {
			return true
		}
	}
	return false
}

func touchedBelow(low []float64, i int, level float64) bool {
	for j := max(0, i-touchLookback); j < i; j++ {
		if low[j] <= level {
			return true
		}
	}
	return false
}
