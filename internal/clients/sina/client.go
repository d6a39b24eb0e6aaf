// Package sina provides a client for the Sina finance quote APIs.
package sina

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/time/rate"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
)

const (
	DefaultBaseURL   = "https://vip.stock.finance.sina.com.cn"
	DefaultKlineURL  = "https://quotes.sina.cn"
	DefaultTimeout   = 20 * time.Second
	DefaultRateLimit = 3 // requests per second

	snapshotPageSize = 100
)

// Client implements the Sina adapter. Sina symbols carry exchange
// prefixes (sh600519) that are stripped at this boundary; market-list
// responses arrive GBK-encoded with unquoted JSON keys and both quirks
// are repaired here.
type Client struct {
	http     *resty.Client
	klineURL string
	logger   *common.Logger
	limiter  *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL points both endpoints at one host (tests use a local
// server).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.http.SetBaseURL(baseURL)
		c.klineURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// NewClient creates a new Sina client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(DefaultTimeout).
			SetHeader("Referer", "https://finance.sina.com.cn"),
		klineURL: DefaultKlineURL,
		limiter:  rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:   common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "sina" }

// sinaSymbol builds the prefixed on-wire symbol from a ts_code or bare
// 6-digit code.
func sinaSymbol(code string) string {
	if strings.HasSuffix(code, ".SH") {
		return "sh" + strings.TrimSuffix(code, ".SH")
	}
	if strings.HasSuffix(code, ".SZ") {
		return "sz" + strings.TrimSuffix(code, ".SZ")
	}
	if strings.HasSuffix(code, ".BJ") {
		return "bj" + strings.TrimSuffix(code, ".BJ")
	}
	if len(code) > 0 && (code[0] == '6' || code[0] == '5') {
		return "sh" + code
	}
	if len(code) > 0 && (code[0] == '4' || code[0] == '8') {
		return "bj" + code
	}
	return "sz" + code
}

// stripSymbol removes the exchange prefix and validates the 6-digit
// remainder.
func stripSymbol(symbol string) (string, bool) {
	for _, prefix := range []string{"sh", "sz", "bj"} {
		if strings.HasPrefix(symbol, prefix) {
			symbol = symbol[len(prefix):]
			break
		}
	}
	if len(symbol) != 6 {
		return "", false
	}
	for i := 0; i < len(symbol); i++ {
		if symbol[i] < '0' || symbol[i] > '9' {
			return "", false
		}
	}
	return symbol, true
}

// bareKeyPattern matches the unquoted object keys Sina's json_v2
// endpoints emit.
var bareKeyPattern = regexp.MustCompile(`([,{])\s*([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// repairJSON quotes bare object keys so the payload parses as JSON.
func repairJSON(raw string) string {
	return bareKeyPattern.ReplaceAllString(raw, `$1"$2":`)
}

// decodeGBK converts a GBK/GB18030 payload to UTF-8.
func decodeGBK(raw []byte) (string, error) {
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw)
	if err != nil {
		return "", common.WrapError(common.KindProviderParse, err, "gbk decode failed")
	}
	return string(out), nil
}

// Compile-time check
var _ interfaces.ProviderAdapter = (*Client)(nil)
