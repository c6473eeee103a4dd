// Package factors maps (code, trade date) to partial factor rows. Each
// computer fills its own slice of the row and never raises on missing
// data: an unavailable input produces a nil factor, nothing more. The
// computers do not know about strategy scores; the daily pipeline merges
// their output and hands the merged row to the scorers.
package factors

import (
	"context"

	"github.com/argusquant/argus/internal/clients/tushare"
	"github.com/argusquant/argus/internal/domain"
)

// StockDataSource is the slice of the data vendor the stock computers
// consume. *tushare.Client satisfies it.
type StockDataSource interface {
	DailyBars(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]domain.DailyBar, error)
	Moneyflow(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]tushare.MoneyflowDay, error)
	MoneyflowHSGT(ctx context.Context, start, end domain.TradeDate) ([]tushare.NorthFlowDay, error)
	FinaIndicators(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]tushare.FinaIndicator, error)
	IncomeStatements(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]tushare.IncomeStatement, error)
	ValuationHistory(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]tushare.ValuationPoint, error)
}

// FundDataSource is the vendor slice the fund computers consume.
type FundDataSource interface {
	FundNAVHistory(ctx context.Context, tsCode string, start domain.TradeDate) ([]domain.NAVPoint, error)
	FundHoldings(ctx context.Context, tsCode string) ([]domain.FundHolding, error)
	FundManagers(ctx context.Context, tsCode string) ([]tushare.FundManager, error)
	FundShare(ctx context.Context, tsCode string) (*float64, error)
	IndexDaily(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]domain.DailyBar, error)
}

// ROELookup resolves the stored ROE of a stock, used to read through to
// the quality of a fund's holdings without burning upstream budget.
// Implementations read the factor store; a nil result means unknown.
type ROELookup interface {
	ROEFor(code string) *float64
}
