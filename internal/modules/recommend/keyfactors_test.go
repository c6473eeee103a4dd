package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/argusquant/argus/internal/domain"
)

func TestStockKeyFactorsThresholds(t *testing.T) {
	f := &domain.StockFactors{
		Code:          "600519.SH",
		ROE:           f64(22),
		PEGRatio:      f64(0.8),
		MainInflow5D:  f64(1500),
		DebtRatio:     f64(30),
		RevenueCAGR3Y: f64(18.5),
	}
	tags := StockKeyFactors(f, 82)
	assert.Contains(t, tags, "ROE优秀 (22.0%)")
	assert.Contains(t, tags, "估值吸引力强 (PEG=0.80)")
	assert.Contains(t, tags, "营收三年复合增长 (18.5%)")
	assert.LessOrEqual(t, len(tags), 5)
}

func TestStockKeyFactorsBareRowGetsPadded(t *testing.T) {
	tags := StockKeyFactors(&domain.StockFactors{Code: "000001.SZ"}, 65.5)
	assert.Len(t, tags, 3)
	assert.Equal(t, "综合评分 65.5", tags[0])
}

func TestFundKeyFactorsCapAtFive(t *testing.T) {
	f := &domain.FundFactors{
		Code:               "110011.OF",
		Return1Y:           f64(40),
		Rank3M:             f64(92),
		Sharpe1Y:           f64(1.6),
		MaxDrawdown1Y:      f64(7.5),
		ManagerTenureYears: f64(8),
		StyleConsistency:   f64(85),
		HoldingsAvgROE:     f64(19),
	}
	tags := FundKeyFactors(f, 90)
	assert.Len(t, tags, 5)
	assert.Equal(t, "近一年收益优秀 (40.0%)", tags[0])
}

func TestNegativePEGNeverTagsAsCheap(t *testing.T) {
	f := &domain.StockFactors{Code: "600000.SH", PEGRatio: f64(-0.4), ROE: f64(16)}
	tags := StockKeyFactors(f, 70)
	for _, tag := range tags {
		assert.NotContains(t, tag, "PEG")
	}
}
