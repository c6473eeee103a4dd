// Package websearch wraps a JSON web-search API with per-key daily
// quotas. It is the one client backed by the rotating key pool: a quota
// rejection drops the offending key and the next call proceeds on the
// next one.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/upstream"
)

const defaultAPIURL = "https://google.serper.dev"

const providerName = "websearch"

// Headline is one search result, trimmed to what the annotator needs.
type Headline struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client executes searches through the gate and the key pool.
type Client struct {
	httpClient *http.Client
	apiURL     string
	gate       *upstream.Gate
	keys       *upstream.KeyPool
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

// New builds a websearch client over the given key pool.
func New(gate *upstream.Gate, keys *upstream.KeyPool, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiURL:     defaultAPIURL,
		gate:       gate,
		keys:       keys,
		log:        log.With().Str("client", providerName).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num,omitempty"`
	Lang  string `json:"hl,omitempty"`
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search runs one query and returns up to limit headlines.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Headline, error) {
	var out []Headline
	err := c.gate.Do(ctx, "search", func(ctx context.Context) error {
		key, err := c.keys.Acquire()
		if err != nil {
			return err
		}

		body, err := json.Marshal(searchRequest{Query: query, Num: limit, Lang: "zh-cn"})
		if err != nil {
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, "search", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.apiURL+"/search", bytes.NewReader(body))
		if err != nil {
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, "search", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", key)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, "search", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusForbidden:
			// Per-key quota burned; drop it from the pool. The gate
			// retries the call, which acquires the next key.
			c.keys.MarkExhausted(key)
			return upstream.NewError(upstream.ClassRateLimited, providerName, "search",
				fmt.Errorf("http %d: key exhausted", resp.StatusCode))
		case resp.StatusCode >= 500:
			return upstream.NewError(upstream.ClassTransient, providerName, "search",
				fmt.Errorf("http %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, "search",
				fmt.Errorf("http %d", resp.StatusCode))
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, "search", err)
		}
		var decoded searchResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, "search", err)
		}

		c.keys.MarkSuccess(key)
		out = out[:0]
		for _, r := range decoded.Organic {
			out = append(out, Headline{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
			if len(out) >= limit && limit > 0 {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
