// Package eastmoney wraps two eastmoney surfaces: the push2 realtime
// quote API and the intraday fund valuation table. The valuation table
// arrives with date-prefixed column names that must be resolved by
// substring before extraction.
package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/upstream"
)

const (
	defaultQuoteURL    = "https://push2.eastmoney.com"
	defaultEstimateURL = "https://fundcomapi.eastmoney.com"
)

const providerName = "eastmoney"

// Client calls eastmoney through the shared gate.
type Client struct {
	httpClient  *http.Client
	quoteURL    string
	estimateURL string
	gate        *upstream.Gate
	log         zerolog.Logger
}

// Option mutates client construction.
type Option func(*Client)

// WithQuoteURL overrides the push2 endpoint, used by tests.
func WithQuoteURL(u string) Option {
	return func(c *Client) { c.quoteURL = u }
}

// WithEstimateURL overrides the valuation endpoint, used by tests.
func WithEstimateURL(u string) Option {
	return func(c *Client) { c.estimateURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New builds an eastmoney client.
func New(gate *upstream.Gate, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		quoteURL:    defaultQuoteURL,
		estimateURL: defaultEstimateURL,
		gate:        gate,
		log:         log.With().Str("client", providerName).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get issues one gated GET and hands the body to decode.
func (c *Client) get(ctx context.Context, op, rawURL string, decode func([]byte) error) error {
	return c.gate.Do(ctx, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, op, err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, op, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return upstream.NewError(upstream.ClassRateLimited, providerName, op,
				fmt.Errorf("http %d", resp.StatusCode))
		case resp.StatusCode >= 500:
			return upstream.NewError(upstream.ClassTransient, providerName, op,
				fmt.Errorf("http %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return upstream.NewError(upstream.ClassInvalidArgument, providerName, op,
				fmt.Errorf("http %d", resp.StatusCode))
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, op, err)
		}
		return decode(raw)
	})
}

type quoteResponse struct {
	Data *struct {
		Price     *float64 `json:"f43"`
		Name      string   `json:"f58"`
		PrevClose *float64 `json:"f60"`
		ChangePct *float64 `json:"f170"`
	} `json:"data"`
}

// Quote fetches a push2 realtime quote for an exchange-listed
// instrument. The metered second leg of the quote waterfall.
func (c *Client) Quote(ctx context.Context, kind domain.Kind, code string) (*domain.Quote, error) {
	secID := domain.EastmoneySecID(kind, code)
	if secID == "" {
		return nil, upstream.NewError(upstream.ClassNotFound, providerName, "quote",
			fmt.Errorf("no push2 secid for %s", code))
	}

	q := url.Values{}
	q.Set("secid", secID)
	q.Set("invt", "2")
	q.Set("fltt", "2") // floats, not scaled integers
	q.Set("fields", "f43,f58,f60,f170")
	rawURL := c.quoteURL + "/api/qt/stock/get?" + q.Encode()

	var quote *domain.Quote
	err := c.get(ctx, "quote", rawURL, func(raw []byte) error {
		var decoded quoteResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, "quote", err)
		}
		if decoded.Data == nil || decoded.Data.Price == nil || *decoded.Data.Price <= 0 {
			return upstream.NewError(upstream.ClassNotFound, providerName, "quote",
				fmt.Errorf("no data for %s", code))
		}
		d := decoded.Data

		out := &domain.Quote{
			Code:      code,
			Name:      d.Name,
			Price:     *d.Price,
			Source:    providerName,
			Timestamp: time.Now(),
		}
		if d.PrevClose != nil {
			out.PrevClose = *d.PrevClose
		}
		switch {
		case d.ChangePct != nil:
			out.ChangePct = *d.ChangePct
		case out.PrevClose > 0:
			out.ChangePct = 100 * (out.Price - out.PrevClose) / out.PrevClose
		}
		quote = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// Substrings resolved against the valuation table's dated column names.
const (
	colEstimateNAV = "估算数据-估算值"
	colEstimatePct = "估算数据-估算增长率"
	colUnitNAV     = "-单位净值"
	colPublished   = "公布数据"
	colFundCode    = "基金代码"
)

// Estimate is one fund's intraday valuation row.
type Estimate struct {
	Code               string           `json:"code"` // canonical fund code
	Date               domain.TradeDate `json:"date"`
	EstimatedNAV       *float64         `json:"estimated_nav"`
	EstimatedChangePct *float64         `json:"estimated_change_pct"`
	PrevUnitNAV        *float64         `json:"prev_unit_nav"`
}

type estimateResponse struct {
	ErrCode int    `json:"ErrCode"`
	ErrMsg  string `json:"ErrMsg"`
	Data    *struct {
		Columns []string        `json:"columns"`
		Rows    [][]interface{} `json:"rows"`
	} `json:"data"`
}

// FundEstimates fetches the intraday valuation table for a set of funds
// and returns the rows keyed by canonical code. Funds the vendor does
// not estimate are simply absent from the result.
func (c *Client) FundEstimates(ctx context.Context, codes []string) (map[string]*Estimate, error) {
	if len(codes) == 0 {
		return map[string]*Estimate{}, nil
	}
	bare := make([]string, len(codes))
	byBare := make(map[string]string, len(codes))
	for i, code := range codes {
		bare[i] = domain.Bare(code)
		byBare[bare[i]] = code
	}

	q := url.Values{}
	q.Set("codes", strings.Join(bare, ","))
	rawURL := c.estimateURL + "/FundMApi/FundValuation.ashx?" + q.Encode()

	var out map[string]*Estimate
	err := c.get(ctx, "fund_valuation", rawURL, func(raw []byte) error {
		var decoded estimateResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return upstream.NewError(upstream.ClassTransient, providerName, "fund_valuation", err)
		}
		if decoded.ErrCode != 0 {
			return upstream.NewError(upstream.ClassTransient, providerName, "fund_valuation",
				fmt.Errorf("api code %d: %s", decoded.ErrCode, decoded.ErrMsg))
		}
		if decoded.Data == nil {
			return upstream.NewError(upstream.ClassTransient, providerName, "fund_valuation",
				fmt.Errorf("empty data payload"))
		}
		out = decodeEstimates(upstream.NewTable(decoded.Data.Columns, decoded.Data.Rows), byBare)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeEstimates resolves the dated columns by substring and extracts
// one Estimate per requested fund. A missing column leaves the
// corresponding field nil.
func decodeEstimates(table *upstream.Table, byBare map[string]string) map[string]*Estimate {
	codeCol := table.Col(colFundCode)

	navCol, navName, navOK := table.ResolveColumn(colEstimateNAV)
	pctCol, _, pctOK := table.ResolveColumn(colEstimatePct)
	unitCol, _, unitOK := table.ResolveColumn(colUnitNAV, colPublished)

	var date domain.TradeDate
	if navOK {
		if d, ok := upstream.DateInColumn(navName); ok {
			date = d
		}
	}

	out := make(map[string]*Estimate)
	for i := 0; i < table.Len(); i++ {
		canonical, ok := byBare[table.Str(i, codeCol)]
		if !ok {
			continue
		}
		est := &Estimate{Code: canonical, Date: date}
		if navOK {
			est.EstimatedNAV = table.Float(i, navCol)
		}
		if pctOK {
			est.EstimatedChangePct = table.Float(i, pctCol)
		}
		if unitOK {
			est.PrevUnitNAV = table.Float(i, unitCol)
		}
		if est.EstimatedNAV == nil && est.EstimatedChangePct == nil {
			continue // vendor does not estimate this fund
		}
		out[canonical] = est
	}
	return out
}
