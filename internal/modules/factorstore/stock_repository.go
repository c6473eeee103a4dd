package factorstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
)

// stockFactorColumns is the column list for stock_factors_daily. Order
// must match scanStockRow and the Upsert placeholder list.
const stockFactorColumns = `code, trade_date,
consolidation_score, volume_precursor, ma_convergence, rsi_14, macd_signal, bollinger_position,
roe, roe_yoy, gross_margin, gross_margin_stability, debt_ratio, ocf_to_profit,
revenue_growth_yoy, profit_growth_yoy, revenue_cagr_3y, profit_cagr_3y,
peg_ratio, pe_percentile, pb_percentile,
main_inflow_5d, main_inflow_trend, north_inflow_5d, retail_outflow_ratio,
short_term_score, long_term_score, computed_at`

// StockRepository owns the stock_factors_daily table.
type StockRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStockRepository builds a repository over the factors database.
func NewStockRepository(db *sql.DB, log zerolog.Logger) *StockRepository {
	return &StockRepository{
		db:  db,
		log: log.With().Str("repo", "stock_factors").Logger(),
	}
}

// Upsert writes one factor row, replacing any previous row for the same
// (code, trade_date). Last writer wins.
func (r *StockRepository) Upsert(f *domain.StockFactors) error {
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO stock_factors_daily (`+stockFactorColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Code, f.TradeDate.String(),
		f.ConsolidationScore, f.VolumePrecursor, f.MAConvergence, f.RSI14, f.MACDSignal, f.BollingerPosition,
		f.ROE, f.ROEYoY, f.GrossMargin, f.GrossMarginStability, f.DebtRatio, f.OCFToProfit,
		f.RevenueGrowthYoY, f.ProfitGrowthYoY, f.RevenueCAGR3Y, f.ProfitCAGR3Y,
		f.PEGRatio, f.PEPercentile, f.PBPercentile,
		f.MainInflow5D, f.MainInflowTrend, f.NorthInflow5D, f.RetailOutflowRatio,
		f.ShortTermScore, f.LongTermScore, f.ComputedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert stock factors %s@%s: %w", f.Code, f.TradeDate, err)
	}
	return nil
}

// Get loads one row, or nil when absent.
func (r *StockRepository) Get(code string, date domain.TradeDate) (*domain.StockFactors, error) {
	rows, err := r.db.Query(
		`SELECT `+stockFactorColumns+` FROM stock_factors_daily WHERE code = ? AND trade_date = ?`,
		code, date.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query stock factors %s@%s: %w", code, date, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	f, err := scanStockRow(rows)
	if err != nil {
		return nil, fmt.Errorf("scan stock factors %s@%s: %w", code, date, err)
	}
	return f, nil
}

// TopN returns up to n rows for the date with the strategy score at or
// above minScore, ordered score descending and code ascending on ties.
func (r *StockRepository) TopN(date domain.TradeDate, strategy domain.Strategy, minScore float64, n int) ([]*domain.StockFactors, error) {
	col := scoreColumn(strategy)
	rows, err := r.db.Query(
		`SELECT `+stockFactorColumns+` FROM stock_factors_daily
		 WHERE trade_date = ? AND `+col+` >= ?
		 ORDER BY `+col+` DESC, code ASC LIMIT ?`,
		date.String(), minScore, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query top stock factors @%s: %w", date, err)
	}
	defer rows.Close()

	var out []*domain.StockFactors
	for rows.Next() {
		f, err := scanStockRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan top stock factors @%s: %w", date, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Dates lists the distinct trade dates present, newest first.
func (r *StockRepository) Dates() ([]domain.TradeDate, error) {
	rows, err := r.db.Query(`SELECT DISTINCT trade_date FROM stock_factors_daily ORDER BY trade_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("query stock factor dates: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeDate
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, domain.TradeDate(s))
	}
	return out, rows.Err()
}

// LatestDate returns the newest stored trade date, or zero when empty.
func (r *StockRepository) LatestDate() (domain.TradeDate, error) {
	var s sql.NullString
	err := r.db.QueryRow(`SELECT MAX(trade_date) FROM stock_factors_daily`).Scan(&s)
	if err != nil {
		return "", fmt.Errorf("query latest stock factor date: %w", err)
	}
	return domain.TradeDate(s.String), nil
}

// DeleteForDate removes every row of one trade date and returns the
// count. Run before a recompute so a partial failure never leaves a
// mix of old and new rows.
func (r *StockRepository) DeleteForDate(date domain.TradeDate) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM stock_factors_daily WHERE trade_date = ?`, date.String())
	if err != nil {
		return 0, fmt.Errorf("clear stock factors @%s: %w", date, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneBefore deletes every row older than cutoff and returns the count.
func (r *StockRepository) PruneBefore(cutoff domain.TradeDate) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM stock_factors_daily WHERE trade_date < ?`, cutoff.String())
	if err != nil {
		return 0, fmt.Errorf("prune stock factors before %s: %w", cutoff, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountForDate returns the number of rows stored for a date.
func (r *StockRepository) CountForDate(date domain.TradeDate) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM stock_factors_daily WHERE trade_date = ?`, date.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stock factors @%s: %w", date, err)
	}
	return n, nil
}

func scanStockRow(rows *sql.Rows) (*domain.StockFactors, error) {
	f := &domain.StockFactors{}
	var date, computedAt string
	err := rows.Scan(
		&f.Code, &date,
		&f.ConsolidationScore, &f.VolumePrecursor, &f.MAConvergence, &f.RSI14, &f.MACDSignal, &f.BollingerPosition,
		&f.ROE, &f.ROEYoY, &f.GrossMargin, &f.GrossMarginStability, &f.DebtRatio, &f.OCFToProfit,
		&f.RevenueGrowthYoY, &f.ProfitGrowthYoY, &f.RevenueCAGR3Y, &f.ProfitCAGR3Y,
		&f.PEGRatio, &f.PEPercentile, &f.PBPercentile,
		&f.MainInflow5D, &f.MainInflowTrend, &f.NorthInflow5D, &f.RetailOutflowRatio,
		&f.ShortTermScore, &f.LongTermScore, &computedAt,
	)
	if err != nil {
		return nil, err
	}
	f.TradeDate = domain.TradeDate(date)
	if t, err := time.Parse(time.RFC3339, computedAt); err == nil {
		f.ComputedAt = t
	}
	return f, nil
}

// scoreColumn maps a strategy to its score column. Column names come
// from this fixed map, never from caller input.
func scoreColumn(strategy domain.Strategy) string {
	if strategy == domain.StrategyShortTerm {
		return "short_term_score"
	}
	return "long_term_score"
}
