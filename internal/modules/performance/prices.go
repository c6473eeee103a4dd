package performance

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
)

// PriceData is the vendor slice evaluation closes come from.
type PriceData interface {
	DailyBars(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]domain.DailyBar, error)
	FundNAVHistory(ctx context.Context, tsCode string, start domain.TradeDate) ([]domain.NAVPoint, error)
}

// MarketPrices resolves the close used to grade a recommendation: the
// daily bar close for stocks, the unit NAV for funds. A session with
// no row resolves to nil, never an error.
type MarketPrices struct {
	data PriceData
	log  zerolog.Logger
}

func NewMarketPrices(data PriceData, log zerolog.Logger) *MarketPrices {
	return &MarketPrices{
		data: data,
		log:  log.With().Str("component", "market_prices").Logger(),
	}
}

func (m *MarketPrices) CloseOn(ctx context.Context, kind domain.Kind, code string, date domain.TradeDate) (*float64, error) {
	tsCode := domain.TushareCode(kind, code)

	if kind == domain.KindStock {
		bars, err := m.data.DailyBars(ctx, tsCode, date, date)
		if err != nil {
			return nil, fmt.Errorf("close for %s @%s: %w", code, date, err)
		}
		for _, bar := range bars {
			if bar.TradeDate == date {
				c := bar.Close
				return &c, nil
			}
		}
		return nil, nil
	}

	points, err := m.data.FundNAVHistory(ctx, tsCode, date)
	if err != nil {
		return nil, fmt.Errorf("nav for %s @%s: %w", code, date, err)
	}
	for _, p := range points {
		if p.Date == date && p.UnitNAV > 0 {
			nav := p.UnitNAV
			return &nav, nil
		}
	}
	return nil, nil
}
