// Package valuation estimates a fund's same-day NAV before the vendor
// publishes it. Three paths are tried in order of freshness and cost:
// the vendor's own estimate, the linked ETF's realtime change applied
// to yesterday's NAV, and a holdings-weighted extrapolation. Funds the
// vendor does not estimate and providers that just failed are remembered
// so retries do not burn call budget.
package valuation

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/clients/eastmoney"
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/upstream"
	"github.com/argusquant/argus/pkg/formulas"
)

// Method names the calculation path that produced an estimate.
type Method string

const (
	MethodVendor       Method = "vendor_estimate"
	MethodETFLinkage   Method = "etf_linkage"
	MethodHoldings     Method = "holdings_weighted"
	MethodNotAvailable Method = "not_available"
)

const (
	vendorMissTTL = time.Hour
	feedDownTTL   = 5 * time.Minute

	maxHoldings      = 30
	linkageMinWeight = 80.0
	navLookbackDays  = 14
)

// Intraday is one same-day NAV estimate.
type Intraday struct {
	Code               string    `json:"code"`
	Method             Method    `json:"calculation_method"`
	EstimatedNAV       *float64  `json:"estimated_nav,omitempty"`
	EstimatedChangePct *float64  `json:"estimated_change_pct,omitempty"`
	PrevNAV            *float64  `json:"prev_nav,omitempty"`
	Coverage           *float64  `json:"coverage_pct,omitempty"` // holdings path only
	Reason             string    `json:"reason,omitempty"`       // not_available only
	Timestamp          time.Time `json:"timestamp"`
}

// VendorSource serves the vendor's published intraday estimates.
type VendorSource interface {
	FundEstimates(ctx context.Context, codes []string) (map[string]*eastmoney.Estimate, error)
}

// NAVSource serves recent NAV history, newest last.
type NAVSource interface {
	FundNAVHistory(ctx context.Context, code string, start domain.TradeDate) ([]domain.NAVPoint, error)
}

// HoldingsSource serves the latest disclosed portfolio.
type HoldingsSource interface {
	FundHoldings(ctx context.Context, code string) ([]domain.FundHolding, error)
}

// QuoteSource is one realtime quote provider.
type QuoteSource interface {
	Quote(ctx context.Context, kind domain.Kind, code string) (*domain.Quote, error)
}

// QuoteFeed pairs a provider with the name its outage is tracked under.
type QuoteFeed struct {
	Name   string
	Source QuoteSource
}

// Estimator runs the three-path waterfall.
type Estimator struct {
	vendor   VendorSource
	navs     NAVSource
	holdings HoldingsSource
	quotes   []QuoteFeed
	links    map[string]string // fund code -> linked ETF code
	log      zerolog.Logger

	mu         sync.Mutex
	vendorMiss map[string]time.Time // funds absent from the vendor endpoint
	feedDown   map[string]time.Time // quote feeds marked unavailable
}

// New builds an estimator. Quote feeds are tried in order; links is the
// static fund-to-ETF map and may be nil.
func New(vendor VendorSource, navs NAVSource, holdings HoldingsSource, quotes []QuoteFeed, links map[string]string, log zerolog.Logger) *Estimator {
	if links == nil {
		links = map[string]string{}
	}
	return &Estimator{
		vendor:     vendor,
		navs:       navs,
		holdings:   holdings,
		quotes:     quotes,
		links:      links,
		log:        log.With().Str("service", "valuation").Logger(),
		vendorMiss: make(map[string]time.Time),
		feedDown:   make(map[string]time.Time),
	}
}

// Estimate computes a same-day NAV estimate for one fund. etfHint, when
// non-empty, overrides linked-ETF detection.
func (e *Estimator) Estimate(ctx context.Context, code, etfHint string) (*Intraday, error) {
	out := &Intraday{Code: code, Timestamp: time.Now().UTC()}

	if est := e.vendorEstimate(ctx, code); est != nil {
		out.Method = MethodVendor
		out.EstimatedNAV = est.EstimatedNAV
		out.EstimatedChangePct = est.EstimatedChangePct
		out.PrevNAV = est.PrevUnitNAV
		return out, nil
	}

	prevNAV := e.prevNAV(ctx, code)
	if prevNAV == nil {
		out.Method = MethodNotAvailable
		out.Reason = "no NAV history for extrapolation"
		return out, nil
	}
	out.PrevNAV = prevNAV

	var held []domain.FundHolding
	etf := etfHint
	if etf == "" {
		etf = e.links[code]
	}
	if etf == "" {
		held = e.topHoldings(ctx, code)
		etf = linkedETF(held)
	}
	if etf != "" {
		if q := e.quote(ctx, domain.KindFund, etf); q != nil {
			out.Method = MethodETFLinkage
			nav := round4(*prevNAV * (1 + q.ChangePct/100))
			pct := formulas.Round2(q.ChangePct)
			out.EstimatedNAV = &nav
			out.EstimatedChangePct = &pct
			return out, nil
		}
	}

	if held == nil {
		held = e.topHoldings(ctx, code)
	}
	if est := e.extrapolate(ctx, held, *prevNAV); est != nil {
		est.Code = code
		est.PrevNAV = prevNAV
		est.Timestamp = out.Timestamp
		return est, nil
	}

	out.Method = MethodNotAvailable
	out.Reason = "no estimate path produced a price"
	return out, nil
}

// vendorEstimate tries the published-estimate endpoint unless the fund
// was recently observed as absent from it.
func (e *Estimator) vendorEstimate(ctx context.Context, code string) *eastmoney.Estimate {
	e.mu.Lock()
	until, missed := e.vendorMiss[code]
	e.mu.Unlock()
	if missed && time.Now().Before(until) {
		return nil
	}

	ests, err := e.vendor.FundEstimates(ctx, []string{code})
	if err != nil {
		e.log.Debug().Err(err).Str("code", code).Msg("vendor estimate failed")
		return nil
	}
	est := ests[code]
	if est == nil || est.EstimatedNAV == nil {
		e.mu.Lock()
		e.vendorMiss[code] = time.Now().Add(vendorMissTTL)
		e.mu.Unlock()
		return nil
	}
	return est
}

func (e *Estimator) prevNAV(ctx context.Context, code string) *float64 {
	start := domain.TradeDateOf(time.Now()).AddCalendarDays(-navLookbackDays)
	navs, err := e.navs.FundNAVHistory(ctx, code, start)
	if err != nil || len(navs) == 0 {
		return nil
	}
	last := navs[len(navs)-1].UnitNAV
	if last <= 0 {
		return nil
	}
	return &last
}

func (e *Estimator) topHoldings(ctx context.Context, code string) []domain.FundHolding {
	held, err := e.holdings.FundHoldings(ctx, code)
	if err != nil {
		e.log.Debug().Err(err).Str("code", code).Msg("holdings fetch failed")
		return nil
	}
	if len(held) > maxHoldings {
		held = held[:maxHoldings]
	}
	return held
}

// linkedETF detects a feeder fund: the whole portfolio is one
// exchange-traded fund.
func linkedETF(held []domain.FundHolding) string {
	if len(held) == 0 {
		return ""
	}
	top := held[0]
	for _, h := range held[1:] {
		if h.Weight > top.Weight {
			top = h
		}
	}
	if top.Weight <= linkageMinWeight {
		return ""
	}
	canonical, err := domain.NormalizeFundCode(top.StockCode)
	if err != nil || !strings.HasSuffix(canonical, ".ETF") {
		return ""
	}
	return canonical
}

// extrapolate weights the realtime change of the disclosed holdings and
// scales by disclosure coverage.
func (e *Estimator) extrapolate(ctx context.Context, held []domain.FundHolding, prevNAV float64) *Intraday {
	var coverage, weighted float64
	for _, h := range held {
		q := e.quote(ctx, domain.KindStock, h.StockCode)
		if q == nil {
			continue
		}
		coverage += h.Weight
		weighted += h.Weight * q.ChangePct / 100
	}
	if coverage <= 0 {
		return nil
	}

	change := weighted / (coverage / 100)
	nav := round4(prevNAV * (1 + change/100))
	pct := formulas.Round2(change)
	cov := formulas.Round2(coverage)
	return &Intraday{
		Method:             MethodHoldings,
		EstimatedNAV:       &nav,
		EstimatedChangePct: &pct,
		Coverage:           &cov,
	}
}

// quote walks the feed waterfall, skipping feeds inside their outage
// window. A feed failure opens a 5 minute window; a plain not-found
// does not.
func (e *Estimator) quote(ctx context.Context, kind domain.Kind, code string) *domain.Quote {
	now := time.Now()
	for _, feed := range e.quotes {
		e.mu.Lock()
		until, down := e.feedDown[feed.Name]
		e.mu.Unlock()
		if down && now.Before(until) {
			continue
		}

		q, err := feed.Source.Quote(ctx, kind, code)
		if err == nil && q != nil {
			return q
		}
		if err != nil && upstream.ClassOf(err) != upstream.ClassNotFound {
			e.mu.Lock()
			e.feedDown[feed.Name] = now.Add(feedDownTTL)
			e.mu.Unlock()
			e.log.Debug().Err(err).Str("feed", feed.Name).Msg("quote feed marked down")
		}
	}
	return nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
