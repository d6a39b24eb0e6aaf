package models

// Market identifiers for symbol classification.
const (
	MarketSH  = "SH"
	MarketSZ  = "SZ"
	MarketBJ  = "BJ"
	MarketETF = "ETF"
)

// Board identifiers within an exchange.
const (
	BoardMain = "main" // 主板
	BoardGEM  = "gem"  // 创业板
	BoardSTAR = "star" // 科创板
	BoardBSE  = "bse"  // 北交所
)

// ETF settlement tags.
const (
	TradeModeT0 = "T+0"
	TradeModeT1 = "T+1"
)

// Symbol is one entry in the stock/ETF master list. TSCode
// (e.g. 600000.SH) is the canonical identifier; Code is the 6-digit
// on-wire form.
type Symbol struct {
	TSCode    string `json:"ts_code"`
	Code      string `json:"symbol"`
	Name      string `json:"name"`
	Market    string `json:"market"` // SH, SZ, BJ or ETF
	Board     string `json:"board,omitempty"`
	Industry  string `json:"industry,omitempty"`
	Area      string `json:"area,omitempty"`
	ListDate  string `json:"list_date,omitempty"`
	TradeMode string `json:"trade_mode,omitempty"` // T+0/T+1, ETFs only
}

// IsETF reports whether the symbol lives in the ETF namespace.
func (s *Symbol) IsETF() bool {
	return s.Market == MarketETF
}

// IsFundCode reports whether a code (6-digit or ts_code form) belongs to
// the fund namespace. SH funds start with 5, SZ funds with 1; everything
// else is a stock code.
func IsFundCode(code string) bool {
	if len(code) == 0 {
		return false
	}
	return code[0] == '1' || code[0] == '5'
}
