package strategy

import (
	"github.com/cnquant/stockpulse/internal/models"
)

// ATR trailing stop parameters.
const (
	atrKeyValue = 1.0
	atrPeriod   = 10
)

func init() {
	Register(&volatilityConservation{})
}

// volatilityConservation trails an ATR-width stop under an up-trend and
// above a down-trend; crossings of the close through the stop line flip
// the stance.
type volatilityConservation struct{}

func (s *volatilityConservation) Name() string { return models.StrategyVolatilityConserve }

func (s *volatilityConservation) Apply(bars []models.Bar) *Result {
	closePx := closes(bars)
	atr := ATR(highs(bars), lows(bars), closePx, atrPeriod)

	stop := make([]float64, len(bars))
	for i := range bars {
		nLoss := atrKeyValue * atr[i]
		if i == 0 {
			stop[i] = closePx[i] - nLoss
			continue
		}
		prev := stop[i-1]
		switch {
		case closePx[i] > prev && closePx[i-1] > prev:
			// Up-trend: the stop only rises.
			stop[i] = max(prev, closePx[i]-nLoss)
		case closePx[i] < prev && closePx[i-1] < prev:
			// Down-trend: the stop only falls.
			stop[i] = min(prev, closePx[i]+nLoss)
		case closePx[i] > prev:
			stop[i] = closePx[i] - nLoss
		default:
			stop[i] = closePx[i] + nLoss
		}
	}

	res := &Result{
		Indicators: map[string][]float64{
			"trailing_stop": stop,
		},
	}
	for i := range bars {
		if crossAbove(closePx, stop, i) {
			res.Signals = append(res.Signals, signalAt(bars, i, s.Name(), models.SignalBuy))
		} else if crossBelow(closePx, stop, i) {
			res.Signals = append(res.Signals, signalAt(bars, i, s.Name(), models.SignalSell))
		}
	}
	return res
}
