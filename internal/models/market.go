// Package models defines data structures for StockPulse
package models

import (
	"time"
)

// Series source values.
const (
	SourceTushare        = "tushare"
	SourceAKShare        = "akshare"
	SourceRealtimeMerged = "realtime-merged"
)

// Last-update-type values for a K-line series.
const (
	UpdateTypeBulk        = "bulk"
	UpdateTypeIncremental = "incremental"
	UpdateTypeRealtime    = "realtime"
)

// Bar represents a single day's OHLCV record for one symbol.
// Volume is always stored in shares; amount in yuan.
type Bar struct {
	TradeDate string  `json:"trade_date"` // canonical YYYY-MM-DD
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Vol       float64 `json:"vol"`
	Amount    float64 `json:"amount"`
	PctChg    float64 `json:"pct_chg"`
	Change    float64 `json:"change"`
}

// Valid reports whether the bar satisfies OHLC sanity:
// low <= min(open,close) <= max(open,close) <= high, vol >= 0, close > 0.
func (b *Bar) Valid() bool {
	if b.Close <= 0 || b.Vol < 0 {
		return false
	}
	lo := b.Open
	hi := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	if b.Close > hi {
		hi = b.Close
	}
	return b.Low <= lo && hi <= b.High
}

// Series is the ordered, date-ascending set of bars for one symbol.
// The last bar may be a realtime proxy overwritten in place during a
// trading session.
type Series struct {
	TSCode         string    `json:"ts_code"`
	Data           []Bar     `json:"data"`
	UpdatedAt      time.Time `json:"updated_at"`
	DataCount      int       `json:"data_count"`
	Source         string    `json:"source"`
	LastUpdateType string    `json:"last_update_type"`
}

// LastBar returns the most recent bar, or nil for an empty series.
func (s *Series) LastBar() *Bar {
	if len(s.Data) == 0 {
		return nil
	}
	return &s.Data[len(s.Data)-1]
}

// Quote is a normalized realtime snapshot of price and volume for one
// symbol. Provider-specific field names never leak past the adapters.
type Quote struct {
	Code          string  `json:"code"` // 6-digit on-wire symbol
	Name          string  `json:"name,omitempty"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Open          float64 `json:"open,omitempty"`
	High          float64 `json:"high,omitempty"`
	Low           float64 `json:"low,omitempty"`
	PreClose      float64 `json:"pre_close,omitempty"`
	Volume        float64 `json:"volume"` // shares
	Amount        float64 `json:"amount"` // yuan
	TurnoverRate  float64 `json:"turnover_rate,omitempty"`
	UpdateTime    string  `json:"update_time"`
}

// Snapshot is one complete pull of all symbols from a provider.
type Snapshot struct {
	Quotes    []Quote        `json:"quotes"`
	Source    string         `json:"source"`
	FetchedAt time.Time      `json:"fetched_at"`
	Stats     *ProviderStats `json:"stats,omitempty"`
}

// ProviderStats tracks per-provider fetch outcomes.
type ProviderStats struct {
	Provider      string    `json:"provider"`
	Success       int64     `json:"success"`
	Fail          int64     `json:"fail"`
	LastSuccessAt time.Time `json:"last_success_at"`
}

// NewsItem is a single crawled headline.
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary,omitempty"`
}

// NewsDigest is the stored news:latest payload.
type NewsDigest struct {
	Items     []NewsItem `json:"items"`
	AISummary string     `json:"ai_summary,omitempty"`
	CrawledAt time.Time  `json:"crawled_at"`
}
