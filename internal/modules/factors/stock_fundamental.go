package factors

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/clients/tushare"
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/pkg/formulas"
)

const (
	// financialsLookbackDays spans four annual reports plus slack.
	financialsLookbackDays = 4 * 370
	// valuationLookbackDays is the PE/PB percentile history, roughly
	// three trading years.
	valuationLookbackDays = 3 * 365
)

// FundamentalComputer derives the financial-statement factors.
type FundamentalComputer struct {
	data StockDataSource
	log  zerolog.Logger
}

// NewFundamentalComputer builds a fundamental factor computer.
func NewFundamentalComputer(data StockDataSource, log zerolog.Logger) *FundamentalComputer {
	return &FundamentalComputer{
		data: data,
		log:  log.With().Str("computer", "stock_fundamental").Logger(),
	}
}

// Compute fills the fundamental slice of the factor row. Partial data
// produces a partial row; only a total fetch failure is an error.
func (c *FundamentalComputer) Compute(ctx context.Context, code string, date domain.TradeDate) (*domain.StockFactors, error) {
	out := &domain.StockFactors{Code: code, TradeDate: date}

	indicators, err := c.data.FinaIndicators(ctx, code, date.AddCalendarDays(-financialsLookbackDays), date)
	if err != nil {
		return out, err
	}
	c.fillIndicatorFactors(out, indicators)

	if income, err := c.data.IncomeStatements(ctx, code, date.AddCalendarDays(-financialsLookbackDays), date); err != nil {
		c.log.Debug().Err(err).Str("code", code).Msg("income statements unavailable")
	} else {
		fillCAGR(out, income)
	}

	if valuation, err := c.data.ValuationHistory(ctx, code, date.AddCalendarDays(-valuationLookbackDays), date); err != nil {
		c.log.Debug().Err(err).Str("code", code).Msg("valuation history unavailable")
	} else {
		fillValuation(out, valuation)
	}
	return out, nil
}

// fillIndicatorFactors reads the latest reporting period plus history.
func (c *FundamentalComputer) fillIndicatorFactors(out *domain.StockFactors, indicators []tushare.FinaIndicator) {
	if len(indicators) == 0 {
		return
	}
	latest := indicators[len(indicators)-1]
	out.ROE = latest.ROE
	out.GrossMargin = latest.GrossMargin
	out.DebtRatio = latest.DebtToAssets
	out.ProfitGrowthYoY = latest.NetProfitYoY
	out.RevenueGrowthYoY = latest.RevenueYoY

	// OCF to profit from the per-share figures of the same period.
	if latest.OCFPS != nil && latest.EPS != nil && *latest.EPS != 0 {
		r := *latest.OCFPS / *latest.EPS
		out.OCFToProfit = &r
	}

	// ROE change against the same period one year earlier.
	if latest.ROE != nil {
		if prior := samePeriodYearAgo(indicators, latest.EndDate); prior != nil && prior.ROE != nil {
			d := *latest.ROE - *prior.ROE
			out.ROEYoY = &d
		}
	}

	// Gross margin stability: inverse coefficient of variation across
	// the annual reports of the trailing three years.
	var margins []float64
	for _, ind := range indicators {
		if isAnnualReport(ind.EndDate) && ind.GrossMargin != nil {
			margins = append(margins, *ind.GrossMargin)
		}
	}
	if len(margins) >= 3 {
		margins = margins[len(margins)-3:]
		mean, sd := formulas.Mean(margins), formulas.StdDev(margins)
		if sd > 0 && mean != 0 {
			cv := sd / mean
			if cv < 0 {
				cv = -cv
			}
			inv := 1 / cv
			out.GrossMarginStability = &inv
		}
	}
}

// fillCAGR derives the 3-year compound growth rates from annual reports.
func fillCAGR(out *domain.StockFactors, income []tushare.IncomeStatement) {
	var annual []tushare.IncomeStatement
	for _, s := range income {
		if isAnnualReport(s.EndDate) {
			annual = append(annual, s)
		}
	}
	if len(annual) < 4 {
		return
	}
	first, last := annual[len(annual)-4], annual[len(annual)-1]
	if first.Revenue != nil && last.Revenue != nil {
		out.RevenueCAGR3Y = formulas.CAGR(*first.Revenue, *last.Revenue, 3)
	}
	if first.NetIncome != nil && last.NetIncome != nil {
		out.ProfitCAGR3Y = formulas.CAGR(*first.NetIncome, *last.NetIncome, 3)
	}
}

// fillValuation sets the PEG ratio and the rank of the current PE/PB
// within the stock's own trailing history.
func fillValuation(out *domain.StockFactors, valuation []tushare.ValuationPoint) {
	if len(valuation) == 0 {
		return
	}
	latest := valuation[len(valuation)-1]

	if latest.PE != nil && out.ProfitGrowthYoY != nil && *out.ProfitGrowthYoY > 0 {
		peg := *latest.PE / *out.ProfitGrowthYoY
		out.PEGRatio = &peg
	}

	var peHist, pbHist []float64
	for _, v := range valuation {
		if v.PE != nil {
			peHist = append(peHist, *v.PE)
		}
		if v.PB != nil {
			pbHist = append(pbHist, *v.PB)
		}
	}
	if latest.PE != nil {
		out.PEPercentile = formulas.PercentileRank(peHist, *latest.PE)
	}
	if latest.PB != nil {
		out.PBPercentile = formulas.PercentileRank(pbHist, *latest.PB)
	}
}

// samePeriodYearAgo finds the report whose period end is the same
// month-day boundary one year before end.
func samePeriodYearAgo(indicators []tushare.FinaIndicator, end domain.TradeDate) *tushare.FinaIndicator {
	if len(end) != 10 {
		return nil
	}
	year, err := strconv.Atoi(string(end[0:4]))
	if err != nil {
		return nil
	}
	want := strconv.Itoa(year-1) + string(end[4:])
	for i := range indicators {
		if indicators[i].EndDate.String() == want {
			return &indicators[i]
		}
	}
	return nil
}

func isAnnualReport(d domain.TradeDate) bool {
	return strings.HasSuffix(d.String(), "-12-31")
}
