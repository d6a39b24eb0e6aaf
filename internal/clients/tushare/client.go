// Package tushare provides a client for the Tushare pro_api.
package tushare

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
)

// Compile-time checks
var (
	_ interfaces.ProviderAdapter      = (*Client)(nil)
	_ interfaces.SymbolMasterProvider = (*Client)(nil)
)

const (
	DefaultBaseURL   = "http://api.tushare.pro"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second; the free tier caps around 120/min
)

// Client implements the Tushare adapter. Every call is one POST to the
// pro_api gateway carrying {api_name, token, params, fields}; responses
// are a columnar {fields, items} frame decoded here.
type Client struct {
	http    *resty.Client
	token   string
	logger  *common.Logger
	limiter *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the gateway URL (tests point this at a local server).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.http.SetBaseURL(baseURL)
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

// NewClient creates a new Tushare client
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(DefaultTimeout).
			SetHeader("Content-Type", "application/json"),
		token:   token,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "tushare" }

type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params,omitempty"`
	Fields  string            `json:"fields,omitempty"`
}

type apiResponse struct {
	RequestID string `json:"request_id"`
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Data      *frame `json:"data"`
}

// frame is the columnar payload every pro_api endpoint returns.
type frame struct {
	Fields []string `json:"fields"`
	Items  [][]any  `json:"items"`
}

// index maps column names to positions for row access.
func (f *frame) index() map[string]int {
	idx := make(map[string]int, len(f.Fields))
	for i, name := range f.Fields {
		idx[name] = i
	}
	return idx
}

// row reads typed cells out of one item by column name.
type row struct {
	idx   map[string]int
	cells []any
}

func (r row) str(col string) string {
	i, ok := r.idx[col]
	if !ok || i >= len(r.cells) || r.cells[i] == nil {
		return ""
	}
	switch v := r.cells[i].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// num parses a numeric cell. Tushare emits JSON numbers but occasionally
// strings or nulls; the second return reports whether a value was present
// and parseable.
func (r row) num(col string) (float64, bool) {
	i, ok := r.idx[col]
	if !ok || i >= len(r.cells) || r.cells[i] == nil {
		return 0, false
	}
	switch v := r.cells[i].(type) {
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// call performs one rate-limited pro_api request.
func (c *Client) call(ctx context.Context, apiName string, params map[string]string, fields string) (*frame, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, common.WrapError(common.KindCancelled, err, "rate limit wait")
	}

	var result apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&apiRequest{
			APIName: apiName,
			Token:   c.token,
			Params:  params,
			Fields:  fields,
		}).
		SetResult(&result).
		Post("/")
	if err != nil {
		return nil, common.WrapError(common.KindProviderHTTP, err, "tushare %s request failed", apiName)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, common.NewError(common.KindProviderHTTP, "tushare %s: status %d", apiName, resp.StatusCode())
	}
	if result.Code != 0 {
		return nil, common.NewError(common.KindProviderHTTP, "tushare %s: code %d: %s", apiName, result.Code, result.Msg)
	}
	if result.Data == nil {
		return nil, common.NewError(common.KindProviderParse, "tushare %s: missing data frame", apiName)
	}

	c.logger.Debug().
		Str("api", apiName).
		Int("rows", len(result.Data.Items)).
		Msg("Tushare API response")

	return result.Data, nil
}
