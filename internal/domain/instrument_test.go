package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStockCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"600519", "600519.SH"},
		{"600519.SH", "600519.SH"},
		{"sh600519", "600519.SH"},
		{"SH600519", "600519.SH"},
		{"000001", "000001.SZ"},
		{"300750", "300750.SZ"},
		{"002594", "002594.SZ"},
		{"830799", "830799.BJ"},
		{"430047", "430047.BJ"},
		{"900901", "900901.SH"},
		{" 600519.sh ", "600519.SH"},
	}
	for _, c := range cases {
		got, err := NormalizeStockCode(c.in)
		require.NoError(t, err, "input %q", c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}
}

func TestNormalizeStockCodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "60051", "60051x", "600519.XX", "12345678"} {
		_, err := NormalizeStockCode(in)
		assert.ErrorIs(t, err, ErrInvalidCode, "input %q", in)
	}
}

func TestNormalizeFundCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"110011", "110011.OF"},
		{"110011.OF", "110011.OF"},
		{"510300", "510300.ETF"},
		{"510300.SH", "510300.ETF"},
		{"159915", "159915.ETF"},
		{"sz159915", "159915.ETF"},
		{"001594", "001594.OF"},
		{"588000", "588000.ETF"},
	}
	for _, c := range cases {
		got, err := NormalizeFundCode(c.in)
		require.NoError(t, err, "input %q", c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}
}

func TestCodeConversionsRoundTrip(t *testing.T) {
	// Canonical -> wire -> canonical is lossless for every provider format.
	stock := "600519.SH"
	assert.Equal(t, "600519.SH", TushareCode(KindStock, stock))
	assert.Equal(t, "sh600519", SinaSymbol(KindStock, stock))
	assert.Equal(t, "1.600519", EastmoneySecID(KindStock, stock))
	back, err := NormalizeStockCode(TushareCode(KindStock, stock))
	require.NoError(t, err)
	assert.Equal(t, stock, back)

	etf := "510300.ETF"
	assert.Equal(t, "510300.SH", TushareCode(KindFund, etf))
	assert.Equal(t, "sh510300", SinaSymbol(KindFund, etf))
	assert.Equal(t, "1.510300", EastmoneySecID(KindFund, etf))
	back, err = NormalizeFundCode(TushareCode(KindFund, etf))
	require.NoError(t, err)
	assert.Equal(t, etf, back)

	szETF := "159915.ETF"
	assert.Equal(t, "159915.SZ", TushareCode(KindFund, szETF))
	assert.Equal(t, "0.159915", EastmoneySecID(KindFund, szETF))

	of := "110011.OF"
	assert.Equal(t, "110011.OF", TushareCode(KindFund, of))
	assert.Equal(t, "", SinaSymbol(KindFund, of), "open-end funds have no realtime symbol")
}

func TestBareAndExchange(t *testing.T) {
	assert.Equal(t, "600519", Bare("600519.SH"))
	assert.Equal(t, "600519", Bare("600519"))
	assert.Equal(t, "SH", StockExchange("600519.SH"))
	assert.Equal(t, "SZ", FundExchange("159915.ETF"))
	assert.Equal(t, "SH", FundExchange("510300.ETF"))
}

func TestTradeDate(t *testing.T) {
	d, err := ParseTradeDate("2026-01-30")
	require.NoError(t, err)
	assert.Equal(t, "20260130", d.Compact())

	d2, err := ParseTradeDate("20260130")
	require.NoError(t, err)
	assert.Equal(t, d, d2)

	_, err = ParseTradeDate("2026/01/30")
	assert.Error(t, err)

	assert.True(t, TradeDate("2026-01-29").Before(d))
	assert.True(t, d.After(TradeDate("2026-01-29")))
	assert.Equal(t, TradeDate("2026-02-02"), d.AddCalendarDays(3))
}

func TestRecTypeTargets(t *testing.T) {
	cases := []struct {
		rt     RecType
		target float64
		stop   float64
	}{
		{RecShortStock, 5, -3},
		{RecLongStock, 10, -5},
		{RecShortFund, 3, -2},
		{RecLongFund, 8, -4},
	}
	for _, c := range cases {
		target, stop := c.rt.Targets()
		assert.Equal(t, c.target, target, string(c.rt))
		assert.Equal(t, c.stop, stop, string(c.rt))
	}
}

func TestConfidenceBuckets(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(75))
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(92.3))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(60))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(74.99))
	assert.Equal(t, ConfidenceLow, ConfidenceFor(59.99))
	assert.Equal(t, ConfidenceLow, ConfidenceFor(0))
}

func TestStockFactorsMerge(t *testing.T) {
	f := &StockFactors{Code: "600519.SH", TradeDate: "2026-01-30"}
	roe := 22.5
	rsi := 48.0
	f.Merge(&StockFactors{ROE: &roe})
	f.Merge(&StockFactors{RSI14: &rsi})

	require.NotNil(t, f.ROE)
	require.NotNil(t, f.RSI14)
	assert.Equal(t, 22.5, *f.ROE)
	assert.Equal(t, 48.0, *f.RSI14)
	assert.Nil(t, f.PEGRatio)

	// later merges overwrite earlier values, nils never do
	roe2 := 23.0
	f.Merge(&StockFactors{ROE: &roe2})
	assert.Equal(t, 23.0, *f.ROE)
	f.Merge(&StockFactors{})
	assert.Equal(t, 23.0, *f.ROE)
}
