package models

// Signal types.
const (
	SignalBuy  = "buy"
	SignalSell = "sell"
)

// Strategy codes in the compile-time registry.
const (
	StrategyVolumeWave         = "volume_wave"
	StrategyVolumeWaveEnhanced = "volume_wave_enhanced"
	StrategyVolatilityConserve = "volatility_conservation"
	StrategyTrendContinuation  = "trend_continuation"
)

// Signal is a strategy's verdict for one symbol at one bar. Signals are
// advisory; no orders are ever placed.
type Signal struct {
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Market         string  `json:"market"`
	Strategy       string  `json:"strategy"`
	SignalType     string  `json:"signal_type"` // buy or sell
	Price          float64 `json:"price"`
	ChangePercent  float64 `json:"change_percent"`
	Volume         float64 `json:"volume"`
	SignalDate     string  `json:"signal_date"` // YYYY-MM-DD
	CalculatedTime string  `json:"calculated_time"`
	Index          int     `json:"index,omitempty"` // bar index within the input series
	StopLoss       float64 `json:"stop_loss,omitempty"`
	TakeProfit     float64 `json:"take_profit,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}
