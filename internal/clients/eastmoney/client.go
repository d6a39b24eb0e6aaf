// Package eastmoney provides a client for the Eastmoney push2 quote API.
package eastmoney

import (
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
)

const (
	DefaultBaseURL   = "https://push2.eastmoney.com"
	DefaultHisURL    = "https://push2his.eastmoney.com"
	DefaultNewsURL   = "https://np-listapi.eastmoney.com"
	DefaultTimeout   = 20 * time.Second
	DefaultRateLimit = 5 // requests per second

	snapshotPageSize = 200
)

// Client implements the Eastmoney adapter. The push2 endpoints return
// field codes (f2, f12, ...) rather than names; the mapping is fixed
// here and nothing upstream ever sees a raw field code.
type Client struct {
	http    *resty.Client
	hisURL  string
	newsURL string
	logger  *common.Logger
	limiter *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL points the quote, history and news endpoints at one host
// (tests use a local server).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.http.SetBaseURL(baseURL)
		c.hisURL = strings.TrimSuffix(baseURL, "/")
		c.newsURL = strings.TrimSuffix(baseURL, "/")
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

// NewClient creates a new Eastmoney client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(DefaultTimeout),
		hisURL:  DefaultHisURL,
		newsURL: DefaultNewsURL,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "eastmoney" }

// secid builds the exchange-prefixed security id the push2 API expects:
// 1.<code> for Shanghai, 0.<code> for Shenzhen and Beijing.
func secid(code string) string {
	code = strings.TrimSuffix(strings.TrimSuffix(code, ".SH"), ".SZ")
	code = strings.TrimSuffix(code, ".BJ")
	if len(code) > 0 && (code[0] == '6' || code[0] == '5') {
		return "1." + code
	}
	return "0." + code
}

// Compile-time check
var _ interfaces.ProviderAdapter = (*Client)(nil)
