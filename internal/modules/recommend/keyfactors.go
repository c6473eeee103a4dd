package recommend

import (
	"fmt"

	"github.com/argusquant/argus/internal/domain"
)

// Key-factor tags are short Chinese labels derived from the factor row
// by fixed thresholds. They feed both the API payload and the
// rule-based explanation fallback, so the rules stay deterministic.

const (
	maxKeyFactors = 5
	minKeyFactors = 3
)

// StockKeyFactors derives 3-5 tags from a stock factor row.
func StockKeyFactors(f *domain.StockFactors, score float64) []string {
	var tags []string
	add := func(tag string) {
		if len(tags) < maxKeyFactors {
			tags = append(tags, tag)
		}
	}

	if f.ROE != nil {
		switch {
		case *f.ROE >= 15:
			add(fmt.Sprintf("ROE优秀 (%.1f%%)", *f.ROE))
		case *f.ROE >= 10:
			add(fmt.Sprintf("ROE良好 (%.1f%%)", *f.ROE))
		}
	}
	if f.PEGRatio != nil && *f.PEGRatio > 0 && *f.PEGRatio <= 1 {
		add(fmt.Sprintf("估值吸引力强 (PEG=%.2f)", *f.PEGRatio))
	}
	if f.RevenueCAGR3Y != nil && *f.RevenueCAGR3Y >= 15 {
		add(fmt.Sprintf("营收三年复合增长 (%.1f%%)", *f.RevenueCAGR3Y))
	}
	if f.ConsolidationScore != nil && *f.ConsolidationScore >= 70 {
		add("底部蓄势形态明显")
	}
	if f.VolumePrecursor != nil && *f.VolumePrecursor >= 60 {
		add("量能温和放大")
	}
	if f.MainInflow5D != nil && *f.MainInflow5D > 0 {
		add("主力资金近5日净流入")
	}
	if f.NorthInflow5D != nil && *f.NorthInflow5D > 0 {
		add("北向资金持续买入")
	}
	if f.DebtRatio != nil && *f.DebtRatio <= 40 {
		add(fmt.Sprintf("负债率稳健 (%.1f%%)", *f.DebtRatio))
	}

	return padTags(tags, score)
}

// FundKeyFactors derives 3-5 tags from a fund factor row.
func FundKeyFactors(f *domain.FundFactors, score float64) []string {
	var tags []string
	add := func(tag string) {
		if len(tags) < maxKeyFactors {
			tags = append(tags, tag)
		}
	}

	if f.Return1Y != nil && *f.Return1Y >= 20 {
		add(fmt.Sprintf("近一年收益优秀 (%.1f%%)", *f.Return1Y))
	}
	if f.Rank3M != nil && *f.Rank3M >= 80 {
		add("近三月同类排名居前")
	}
	if f.Sharpe1Y != nil && *f.Sharpe1Y >= 1 {
		add(fmt.Sprintf("夏普比率优秀 (%.2f)", *f.Sharpe1Y))
	}
	if f.MaxDrawdown1Y != nil && *f.MaxDrawdown1Y <= 10 {
		add(fmt.Sprintf("回撤控制良好 (%.1f%%)", *f.MaxDrawdown1Y))
	}
	if f.ManagerTenureYears != nil && *f.ManagerTenureYears >= 5 {
		add(fmt.Sprintf("基金经理经验丰富 (%.1f年)", *f.ManagerTenureYears))
	}
	if f.StyleConsistency != nil && *f.StyleConsistency >= 70 {
		add("投资风格稳定")
	}
	if f.HoldingsAvgROE != nil && *f.HoldingsAvgROE >= 15 {
		add(fmt.Sprintf("重仓股质地优良 (平均ROE %.1f%%)", *f.HoldingsAvgROE))
	}

	return padTags(tags, score)
}

// padTags tops a short list up to the minimum with generic score tags,
// so every recommendation carries something to explain.
func padTags(tags []string, score float64) []string {
	if len(tags) >= minKeyFactors {
		return tags
	}
	pads := []string{
		fmt.Sprintf("综合评分 %.1f", score),
		"多因子模型筛选",
		"符合当前策略条件",
	}
	for _, p := range pads {
		if len(tags) >= minKeyFactors {
			break
		}
		tags = append(tags, p)
	}
	return tags
}
