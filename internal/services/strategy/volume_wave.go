package strategy

import (
	"math"

	"github.com/cnquant/stockpulse/internal/models"
)

// Volume-wave parameters.
const (
	angelPeriod   = 2
	devilPeriod   = 42
	xslLength     = 21
	xslMultiplier = 20
	enhancedEMA   = 18
)

func init() {
	Register(&volumeWave{})
	Register(&volumeWaveEnhanced{})
}

// volumeWave trades the crossings of a fast "angel" line over a slow
// "devil" line computed from a slope-adjusted close.
type volumeWave struct{}

func (s *volumeWave) Name() string { return models.StrategyVolumeWave }

func (s *volumeWave) Apply(bars []models.Bar) *Result {
	closePx := closes(bars)
	angel := EMA(closePx, angelPeriod)

	// The devil line runs over the close pushed in the direction of the
	// local regression slope, so it leads plain smoothing in a trend.
	slope := XSL(closePx, xslLength)
	adjusted := make([]float64, len(closePx))
	for i := range closePx {
		if math.IsNaN(slope[i]) {
			adjusted[i] = math.NaN()
			continue
		}
		adjusted[i] = slope[i]*xslMultiplier + closePx[i]
	}
	devil := EMA(adjusted, devilPeriod)

	res := &Result{
		Indicators: map[string][]float64{
			"angel": angel,
			"devil": devil,
		},
	}
	for i := range bars {
		if crossAbove(angel, devil, i) {
			res.Signals = append(res.Signals, signalAt(bars, i, s.Name(), models.SignalBuy))
		} else if crossBelow(angel, devil, i) {
			res.Signals = append(res.Signals, signalAt(bars, i, s.Name(), models.SignalSell))
		}
	}
	return res
}

// volumeWaveEnhanced wraps volumeWave with a single-position state
// machine and an EMA18 trend filter: a buy opens a position only above
// the trend line, a sell is kept only while a position is open.
type volumeWaveEnhanced struct{}

func (s *volumeWaveEnhanced) Name() string { return models.StrategyVolumeWaveEnhanced }

func (s *volumeWaveEnhanced) Apply(bars []models.Bar) *Result {
	base := (&volumeWave{}).Apply(bars)
	trend := EMA(closes(bars), enhancedEMA)

	res := &Result{Indicators: base.Indicators}
	res.Indicators["trend"] = trend

	inPosition := false
	for _, sig := range base.Signals {
		switch sig.SignalType {
		case models.SignalBuy:
			if inPosition {
				continue
			}
			if math.IsNaN(trend[sig.Index]) || bars[sig.Index].Close <= trend[sig.Index] {
				continue
			}
			inPosition = true
		case models.SignalSell:
			if !inPosition {
				continue
			}
			inPosition = false
		}
		sig.Strategy = s.Name()
		res.Signals = append(res.Signals, sig)
	}
	return res
}
