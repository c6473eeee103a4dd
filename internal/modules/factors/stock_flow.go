package factors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/clients/tushare"
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/pkg/formulas"
)

const (
	// flowWindow is the money-flow observation window in trading days.
	flowWindow = 5
	// flowLookbackDays is the calendar span fetched to cover the window
	// across weekends and holidays.
	flowLookbackDays = 14
	// northFlowScalePerPoint converts 5-day northbound millions into
	// score points around the neutral 50: +-10000 million moves the
	// score by +-50.
	northFlowScalePerPoint = 200.0
)

// FlowComputer derives the money-flow and sentiment factors.
type FlowComputer struct {
	data StockDataSource
	log  zerolog.Logger
}

// NewFlowComputer builds a money-flow factor computer.
func NewFlowComputer(data StockDataSource, log zerolog.Logger) *FlowComputer {
	return &FlowComputer{
		data: data,
		log:  log.With().Str("computer", "stock_flow").Logger(),
	}
}

// Compute fills the sentiment/flow slice of the factor row.
func (c *FlowComputer) Compute(ctx context.Context, code string, date domain.TradeDate) (*domain.StockFactors, error) {
	out := &domain.StockFactors{Code: code, TradeDate: date}

	flows, err := c.data.Moneyflow(ctx, code, date.AddCalendarDays(-flowLookbackDays), date)
	if err != nil {
		return out, err
	}
	if len(flows) > flowWindow {
		flows = flows[len(flows)-flowWindow:]
	}
	fillMainInflow(out, flows)
	fillRetailRatio(out, flows)

	if north, err := c.data.MoneyflowHSGT(ctx, date.AddCalendarDays(-flowLookbackDays), date); err != nil {
		c.log.Debug().Err(err).Str("code", code).Msg("northbound flow unavailable")
	} else {
		fillNorthInflow(out, north)
	}
	return out, nil
}

// fillMainInflow sets the 5-day main-money net inflow, normalized by the
// average daily large-order buy amount over the window, and the trend of
// that flow between the window's halves.
func fillMainInflow(out *domain.StockFactors, flows []tushare.MoneyflowDay) {
	if len(flows) == 0 {
		return
	}

	daily := make([]float64, 0, len(flows))
	var netSum, buySum float64
	seen := false
	for _, f := range flows {
		buy := sum2(f.BuyLgAmount, f.BuyElgAmount)
		sell := sum2(f.SellLgAmount, f.SellElgAmount)
		if buy == nil && sell == nil {
			continue
		}
		net := value(buy) - value(sell)
		daily = append(daily, net)
		netSum += net
		buySum += value(buy)
		seen = true
	}
	if !seen {
		return
	}

	avgBuy := buySum / float64(len(daily))
	if avgBuy > 0 {
		inflow := netSum / (avgBuy * float64(len(daily)))
		out.MainInflow5D = &inflow
	}

	// Trend: 50 + 25 * clamp((second half - first half) / |first half|, -2, 2).
	if len(daily) >= 2 {
		mid := len(daily) / 2
		var first, second float64
		for _, v := range daily[:mid] {
			first += v
		}
		for _, v := range daily[mid:] {
			second += v
		}
		if first != 0 {
			denom := first
			if denom < 0 {
				denom = -denom
			}
			trend := 50 + 25*formulas.Clamp((second-first)/denom, -2, 2)
			out.MainInflowTrend = &trend
		}
	}
}

// fillRetailRatio sets retail sell / (retail buy + retail sell) over the
// window, small orders standing in for retail.
func fillRetailRatio(out *domain.StockFactors, flows []tushare.MoneyflowDay) {
	var buy, sell float64
	seen := false
	for _, f := range flows {
		if f.BuySmAmount == nil && f.SellSmAmount == nil {
			continue
		}
		buy += value(f.BuySmAmount)
		sell += value(f.SellSmAmount)
		seen = true
	}
	if !seen || buy+sell <= 0 {
		return
	}
	ratio := sell / (buy + sell)
	out.RetailOutflowRatio = &ratio
}

// fillNorthInflow maps the 5-day northbound sum in millions linearly
// onto [0,100] centred at 50.
func fillNorthInflow(out *domain.StockFactors, north []tushare.NorthFlowDay) {
	if len(north) > flowWindow {
		north = north[len(north)-flowWindow:]
	}
	var total float64
	seen := false
	for _, d := range north {
		if d.NorthMoney != nil {
			total += *d.NorthMoney
			seen = true
		}
	}
	if !seen {
		return
	}
	score := formulas.Clamp(50+total/northFlowScalePerPoint, 0, 100)
	out.NorthInflow5D = &score
}

func sum2(a, b *float64) *float64 {
	if a == nil && b == nil {
		return nil
	}
	s := value(a) + value(b)
	return &s
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
