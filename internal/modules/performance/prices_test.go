package performance

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/domain"
)

type stubPriceData struct {
	bars    []domain.DailyBar
	navs    []domain.NAVPoint
	lastArg string
}

func (s *stubPriceData) DailyBars(_ context.Context, tsCode string, _, _ domain.TradeDate) ([]domain.DailyBar, error) {
	s.lastArg = tsCode
	return s.bars, nil
}

func (s *stubPriceData) FundNAVHistory(_ context.Context, tsCode string, _ domain.TradeDate) ([]domain.NAVPoint, error) {
	s.lastArg = tsCode
	return s.navs, nil
}

func TestCloseOnStockUsesBarClose(t *testing.T) {
	data := &stubPriceData{bars: []domain.DailyBar{
		{TradeDate: "2026-01-28", Close: 1630.5},
	}}
	prices := NewMarketPrices(data, zerolog.Nop())

	p, err := prices.CloseOn(context.Background(), domain.KindStock, "600519.SH", "2026-01-28")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1630.5, *p)
	assert.Equal(t, "600519.SH", data.lastArg)

	// No bar for the session, e.g. suspension.
	p, err = prices.CloseOn(context.Background(), domain.KindStock, "600519.SH", "2026-01-29")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestCloseOnFundUsesUnitNAVAndVendorCode(t *testing.T) {
	data := &stubPriceData{navs: []domain.NAVPoint{
		{Date: "2026-01-28", UnitNAV: 1.523},
	}}
	prices := NewMarketPrices(data, zerolog.Nop())

	p, err := prices.CloseOn(context.Background(), domain.KindFund, "110011.OF", "2026-01-28")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1.523, *p)
	assert.Equal(t, "110011.OF", data.lastArg)

	_, err = prices.CloseOn(context.Background(), domain.KindFund, "510300.ETF", "2026-01-28")
	require.NoError(t, err)
	assert.Equal(t, "510300.SH", data.lastArg)
}
