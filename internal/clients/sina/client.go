// Package sina wraps the free hq.sinajs.cn realtime quote feed. The
// payload is a JS variable assignment per symbol whose value is a CSV
// record; only the price fields are extracted.
package sina

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/upstream"
)

const defaultAPIURL = "https://hq.sinajs.cn"

const providerName = "sina"

// CSV positions within the hq_str record.
const (
	fieldName      = 0
	fieldOpen      = 1
	fieldPrevClose = 2
	fieldPrice     = 3
	minFields      = 4
)

// Client fetches realtime quotes for exchange-listed instruments.
type Client struct {
	httpClient *http.Client
	apiURL     string
	gate       *upstream.Gate
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

// New builds a sina quote client.
func New(gate *upstream.Gate, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     defaultAPIURL,
		gate:       gate,
		log:        log.With().Str("client", providerName).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote fetches the realtime quote for one exchange-listed instrument.
// Open-end funds have no feed symbol and return NotFound without a call.
func (c *Client) Quote(ctx context.Context, kind domain.Kind, code string) (*domain.Quote, error) {
	symbol := domain.SinaSymbol(kind, code)
	if symbol == "" {
		return nil, upstream.NewError(upstream.ClassNotFound, providerName, "quote",
			fmt.Errorf("no realtime symbol for %s", code))
	}

	var quote *domain.Quote
	err := c.gate.Do(ctx, "quote", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.apiURL+"/list="+symbol, nil)
		if err != nil {
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, "quote", err)
		}
		// The feed rejects requests without a sina referer.
		req.Header.Set("Referer", "https://finance.sina.com.cn")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, "quote", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return upstream.NewError(upstream.ClassRateLimited, providerName, "quote",
				fmt.Errorf("http %d", resp.StatusCode))
		case resp.StatusCode >= 500:
			return upstream.NewError(upstream.ClassTransient, providerName, "quote",
				fmt.Errorf("http %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, "quote",
				fmt.Errorf("http %d", resp.StatusCode))
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, "quote", err)
		}

		q, err := parseQuote(code, string(raw))
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// parseQuote extracts the quote from a `var hq_str_xx="...";` payload.
func parseQuote(code, payload string) (*domain.Quote, error) {
	open := strings.IndexByte(payload, '"')
	close := strings.LastIndexByte(payload, '"')
	if open < 0 || close <= open {
		return nil, upstream.NewError(upstream.ClassTransient, providerName, "quote",
			fmt.Errorf("malformed payload"))
	}
	record := payload[open+1 : close]
	if record == "" {
		// Sina answers unknown symbols with an empty record.
		return nil, upstream.NewError(upstream.ClassNotFound, providerName, "quote",
			fmt.Errorf("no data for %s", code))
	}

	fields := strings.Split(record, ",")
	if len(fields) < minFields {
		return nil, upstream.NewError(upstream.ClassTransient, providerName, "quote",
			fmt.Errorf("short record: %d fields", len(fields)))
	}

	price, err := strconv.ParseFloat(fields[fieldPrice], 64)
	if err != nil {
		return nil, upstream.NewError(upstream.ClassTransient, providerName, "quote",
			fmt.Errorf("parse price: %w", err))
	}
	prevClose, err := strconv.ParseFloat(fields[fieldPrevClose], 64)
	if err != nil {
		return nil, upstream.NewError(upstream.ClassTransient, providerName, "quote",
			fmt.Errorf("parse prev close: %w", err))
	}
	if price <= 0 || prevClose <= 0 {
		// Suspended or pre-open instruments report zeros.
		return nil, upstream.NewError(upstream.ClassNotFound, providerName, "quote",
			fmt.Errorf("no trading price for %s", code))
	}

	q := &domain.Quote{
		Code:      code,
		Price:     price,
		PrevClose: prevClose,
		ChangePct: 100 * (price - prevClose) / prevClose,
		Source:    providerName,
		Timestamp: time.Now(),
	}
	// The feed is GBK-encoded; keep the name only when it happens to be
	// readable as-is.
	if utf8.ValidString(fields[fieldName]) {
		q.Name = fields[fieldName]
	}
	return q, nil
}
