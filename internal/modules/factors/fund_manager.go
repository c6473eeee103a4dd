package factors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/clients/tushare"
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/pkg/formulas"
)

const (
	// benchmarkIndex is the CSI 300, the alpha reference for equity funds.
	benchmarkIndex = "000300.SH"
	// topHoldings caps how many disclosed positions feed the holdings
	// factors.
	topHoldings = 10
	// consistencyWindow is the rolling-return window behind the style
	// consistency factor, in trading days.
	consistencyWindow = 60
)

// ManagerComputer derives the manager and holdings factors: tenure,
// bull/bear alpha against the benchmark, style consistency, size, and
// what the fund actually owns.
type ManagerComputer struct {
	data FundDataSource
	roe  ROELookup
	log  zerolog.Logger
}

// NewManagerComputer builds a fund manager/holdings computer. roe may be
// nil when no stored stock factors are available to read through to.
func NewManagerComputer(data FundDataSource, roe ROELookup, log zerolog.Logger) *ManagerComputer {
	return &ManagerComputer{
		data: data,
		roe:  roe,
		log:  log.With().Str("computer", "fund_manager").Logger(),
	}
}

// Compute fills the manager/holdings slice of the fund factor row.
func (c *ManagerComputer) Compute(ctx context.Context, code string, date domain.TradeDate) (*domain.FundFactors, error) {
	out := &domain.FundFactors{Code: code, TradeDate: date}

	if managers, err := c.data.FundManagers(ctx, code); err != nil {
		c.log.Debug().Err(err).Str("code", code).Msg("manager stints unavailable")
	} else {
		c.fillTenure(out, managers, date)
	}

	c.fillAlphaAndConsistency(ctx, out, code, date)

	if holdings, err := c.data.FundHoldings(ctx, code); err != nil {
		c.log.Debug().Err(err).Str("code", code).Msg("holdings unavailable")
	} else {
		c.fillHoldings(out, holdings)
	}

	c.fillSize(ctx, out, code, date)
	return out, nil
}

func (c *ManagerComputer) fillTenure(out *domain.FundFactors, managers []tushare.FundManager, date domain.TradeDate) {
	var earliest domain.TradeDate
	for _, m := range managers {
		if !m.EndDate.IsZero() {
			continue // past stint
		}
		if earliest.IsZero() || m.BeginDate.Before(earliest) {
			earliest = m.BeginDate
		}
	}
	if earliest.IsZero() {
		return
	}
	days := date.Time().Sub(earliest.Time()).Hours() / 24
	if days < 0 {
		return
	}
	years := days / 365.25
	out.ManagerTenureYears = &years
}

// fillAlphaAndConsistency splits the trailing year into benchmark-up and
// benchmark-down sessions and measures the fund's annualized excess
// return in each regime, plus the steadiness of its rolling returns.
func (c *ManagerComputer) fillAlphaAndConsistency(ctx context.Context, out *domain.FundFactors, code string, date domain.TradeDate) {
	navs, err := c.data.FundNAVHistory(ctx, code, date.AddCalendarDays(-navLookbackDays))
	if err != nil {
		c.log.Debug().Err(err).Str("code", code).Msg("nav history unavailable for alpha")
		return
	}
	bench, err := c.data.IndexDaily(ctx, benchmarkIndex, date.AddCalendarDays(-navLookbackDays), date)
	if err != nil {
		c.log.Debug().Err(err).Str("code", code).Msg("benchmark history unavailable")
		bench = nil
	}

	prices := adjNAVsUpTo(navs, date)
	fundReturns := formulas.CalculateReturns(tail(prices, window1Y+1))

	if len(bench) > 0 && len(fundReturns) >= riskWindow20D {
		// Align by date: map benchmark date -> daily return.
		benchByDate := make(map[domain.TradeDate]float64, len(bench))
		for _, b := range bench {
			if b.PreClose > 0 {
				benchByDate[b.TradeDate] = (b.Close - b.PreClose) / b.PreClose
			}
		}
		navTail := navsUpTo(navs, date)
		var bullExcess, bearExcess []float64
		for i := 1; i < len(navTail); i++ {
			br, ok := benchByDate[navTail[i].Date]
			if !ok || navTail[i-1].AdjNAV <= 0 {
				continue
			}
			fr := (navTail[i].AdjNAV - navTail[i-1].AdjNAV) / navTail[i-1].AdjNAV
			if br > 0 {
				bullExcess = append(bullExcess, fr-br)
			} else if br < 0 {
				bearExcess = append(bearExcess, fr-br)
			}
		}
		if len(bullExcess) >= riskWindow20D {
			a := 100 * formulas.Mean(bullExcess) * formulas.TradingDaysPerYear
			out.BullAlpha = &a
		}
		if len(bearExcess) >= riskWindow20D {
			a := 100 * formulas.Mean(bearExcess) * formulas.TradingDaysPerYear
			out.BearAlpha = &a
		}
	}

	// Style consistency: narrow dispersion of rolling 3-month returns
	// marks a fund that keeps doing the same thing.
	rolling := formulas.RollingReturns(prices, consistencyWindow)
	if len(rolling) >= riskWindow20D {
		consistency := formulas.Clamp(100-4*formulas.StdDev(rolling), 0, 100)
		out.StyleConsistency = &consistency
	}
}

// fillHoldings derives concentration, turnover and read-through quality
// from the two most recent disclosed portfolios.
func (c *ManagerComputer) fillHoldings(out *domain.FundFactors, holdings []domain.FundHolding) {
	if len(holdings) == 0 {
		return
	}
	latest, previous := splitPeriods(holdings)
	top := latest
	if len(top) > topHoldings {
		top = top[:topHoldings]
	}

	// Diversification: the less of the fund its top positions are, the
	// more diversified it is.
	var concentration float64
	for _, h := range top {
		concentration += h.Weight
	}
	div := formulas.Clamp(100-concentration, 0, 100)
	out.HoldingsDiversification = &div

	// Turnover: disclosed weight that changed hands between the two
	// most recent portfolios.
	if len(previous) > 0 {
		prevWeight := make(map[string]float64, len(previous))
		for _, h := range previous {
			prevWeight[h.StockCode] = h.Weight
		}
		var moved, total float64
		for _, h := range latest {
			d := h.Weight - prevWeight[h.StockCode]
			if d < 0 {
				d = -d
			}
			moved += d
			total += h.Weight
		}
		if total > 0 {
			turnover := formulas.Clamp(100*moved/total, 0, 100)
			out.HoldingsTurnover = &turnover
		}
	}

	// Weighted average ROE of the holdings the factor store knows.
	if c.roe != nil {
		var weighted, covered float64
		for _, h := range top {
			if r := c.roe.ROEFor(h.StockCode); r != nil {
				weighted += h.Weight * *r
				covered += h.Weight
			}
		}
		if covered > 0 {
			avg := weighted / covered
			out.HoldingsAvgROE = &avg
		}
	}
}

func (c *ManagerComputer) fillSize(ctx context.Context, out *domain.FundFactors, code string, date domain.TradeDate) {
	share, err := c.data.FundShare(ctx, code)
	if err != nil || share == nil {
		return
	}
	navs, err := c.data.FundNAVHistory(ctx, code, date.AddCalendarDays(-navLookbackDays))
	if err != nil {
		return
	}
	points := navsUpTo(navs, date)
	if len(points) == 0 {
		return
	}
	unit := points[len(points)-1].UnitNAV
	if unit <= 0 {
		return
	}
	// share is in 万份; size lands in 亿元.
	size := *share * unit / 10000
	out.FundSize = &size
}

// splitPeriods partitions holdings (sorted newest period first) into the
// latest reporting period and the one before it.
func splitPeriods(holdings []domain.FundHolding) (latest, previous []domain.FundHolding) {
	latestEnd := holdings[0].EndDate
	var prevEnd domain.TradeDate
	for _, h := range holdings {
		switch {
		case h.EndDate == latestEnd:
			latest = append(latest, h)
		case prevEnd.IsZero() || h.EndDate == prevEnd:
			prevEnd = h.EndDate
			previous = append(previous, h)
		}
	}
	return latest, previous
}

func navsUpTo(navs []domain.NAVPoint, date domain.TradeDate) []domain.NAVPoint {
	out := make([]domain.NAVPoint, 0, len(navs))
	for _, p := range navs {
		if p.Date.After(date) {
			break
		}
		out = append(out, p)
	}
	return out
}
