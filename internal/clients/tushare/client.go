// Package tushare wraps the tushare.pro JSON API. Every endpoint returns
// a tabular payload (fields + items) which is decoded into an
// upstream.Table before field extraction.
package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/clientcache"
	"github.com/argusquant/argus/internal/upstream"
)

const defaultAPIURL = "http://api.tushare.pro"

const providerName = "tushare"

// tierLimits maps subscription points to the vendor's per-minute call
// allowance. The gate scales these down by the safety margin.
var tierLimits = []struct {
	Points int
	CPM    int
}{
	{10000, 1000},
	{5000, 500},
	{2000, 200},
	{600, 90},
	{120, 50},
}

// CallsPerMinute resolves the raw per-minute limit for a points tier.
// Unknown low tiers fall back to a conservative 30.
func CallsPerMinute(points int) int {
	for _, t := range tierLimits {
		if points >= t.Points {
			return t.CPM
		}
	}
	return 30
}

// Client calls tushare.pro through the shared gate.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	gate       *upstream.Gate
	cache      *clientcache.Cache
	log        zerolog.Logger
}

// Option mutates client construction.
type Option func(*Client)

// WithAPIURL overrides the endpoint, used by tests.
func WithAPIURL(u string) Option {
	return func(c *Client) { c.apiURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New builds a tushare client. cache may be nil to disable caching.
func New(token string, gate *upstream.Gate, cache *clientcache.Cache, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     defaultAPIURL,
		token:      token,
		gate:       gate,
		cache:      cache,
		log:        log.With().Str("client", providerName).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiRequest struct {
	APIName string                 `json:"api_name"`
	Token   string                 `json:"token"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Fields  string                 `json:"fields,omitempty"`
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string        `json:"fields"`
		Items  [][]interface{} `json:"items"`
	} `json:"data"`
}

// call posts one API request through the gate and decodes the tabular
// response.
func (c *Client) call(ctx context.Context, apiName string, params map[string]interface{}, fields string) (*upstream.Table, error) {
	var table *upstream.Table

	err := c.gate.Do(ctx, apiName, func(ctx context.Context) error {
		body, err := json.Marshal(apiRequest{
			APIName: apiName,
			Token:   c.token,
			Params:  params,
			Fields:  fields,
		})
		if err != nil {
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, apiName, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
		if err != nil {
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, apiName, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, apiName, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return upstream.NewError(upstream.ClassRateLimited, providerName, apiName,
				fmt.Errorf("http %d", resp.StatusCode))
		case resp.StatusCode >= 500:
			return upstream.NewError(upstream.ClassTransient, providerName, apiName,
				fmt.Errorf("http %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, apiName,
				fmt.Errorf("http %d", resp.StatusCode))
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, apiName, err)
		}

		var decoded apiResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, apiName, err)
		}
		if decoded.Code != 0 {
			return upstream.NewError(classifyAPIError(decoded.Msg), providerName, apiName,
				fmt.Errorf("api code %d: %s", decoded.Code, decoded.Msg))
		}
		if decoded.Data == nil {
			return upstream.NewError(upstream.ClassTransient, providerName, apiName,
				fmt.Errorf("empty data payload"))
		}

		table = upstream.NewTable(decoded.Data.Fields, decoded.Data.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// classifyAPIError maps vendor application errors. Quota messages become
// RateLimited; everything else is a caller or permission problem and must
// not trip the breaker or burn retries.
func classifyAPIError(msg string) upstream.Class {
	if strings.Contains(msg, "每分钟") || strings.Contains(msg, "频率") ||
		strings.Contains(msg, "最多访问") {
		return upstream.ClassRateLimited
	}
	return upstream.ClassInvalidArgument
}

// cached wraps an endpoint fetch with the client cache when present.
func cached[T any](ctx context.Context, c *Client, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.cache != nil {
		var hit T
		if ok, err := c.cache.Get(key, &hit); err == nil && ok {
			return hit, nil
		}
	}
	v, err := fetch(ctx)
	if err != nil {
		return zero, err
	}
	if c.cache != nil {
		if err := c.cache.Put(key, v, ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return v, nil
}
