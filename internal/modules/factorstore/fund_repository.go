package factorstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
)

// fundFactorColumns mirrors fund_factors_daily. Order must match
// scanFundRow and the Upsert placeholder list.
const fundFactorColumns = `code, trade_date,
return_1w, return_1m, return_3m, return_6m, return_1y,
rank_1w, rank_1m, rank_3m, rank_6m, rank_1y,
volatility_20d, volatility_60d, sharpe_20d, sharpe_1y, sortino_1y, calmar_1y,
max_drawdown_1y, avg_recovery_days,
manager_tenure_years, bull_alpha, bear_alpha, style_consistency,
fund_size, holdings_avg_roe, holdings_diversification, holdings_turnover,
short_term_score, long_term_score, computed_at`

// FundRepository owns the fund_factors_daily table.
type FundRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewFundRepository builds a repository over the factors database.
func NewFundRepository(db *sql.DB, log zerolog.Logger) *FundRepository {
	return &FundRepository{
		db:  db,
		log: log.With().Str("repo", "fund_factors").Logger(),
	}
}

// Upsert writes one factor row, last writer wins.
func (r *FundRepository) Upsert(f *domain.FundFactors) error {
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO fund_factors_daily (`+fundFactorColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Code, f.TradeDate.String(),
		f.Return1W, f.Return1M, f.Return3M, f.Return6M, f.Return1Y,
		f.Rank1W, f.Rank1M, f.Rank3M, f.Rank6M, f.Rank1Y,
		f.Volatility20D, f.Volatility60D, f.Sharpe20D, f.Sharpe1Y, f.Sortino1Y, f.Calmar1Y,
		f.MaxDrawdown1Y, f.AvgRecoveryDays,
		f.ManagerTenureYears, f.BullAlpha, f.BearAlpha, f.StyleConsistency,
		f.FundSize, f.HoldingsAvgROE, f.HoldingsDiversification, f.HoldingsTurnover,
		f.ShortTermScore, f.LongTermScore, f.ComputedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert fund factors %s@%s: %w", f.Code, f.TradeDate, err)
	}
	return nil
}

// Get loads one row, or nil when absent.
func (r *FundRepository) Get(code string, date domain.TradeDate) (*domain.FundFactors, error) {
	rows, err := r.db.Query(
		`SELECT `+fundFactorColumns+` FROM fund_factors_daily WHERE code = ? AND trade_date = ?`,
		code, date.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query fund factors %s@%s: %w", code, date, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	f, err := scanFundRow(rows)
	if err != nil {
		return nil, fmt.Errorf("scan fund factors %s@%s: %w", code, date, err)
	}
	return f, nil
}

// TopN returns up to n rows for the date with the strategy score at or
// above minScore, ordered score descending and code ascending on ties.
func (r *FundRepository) TopN(date domain.TradeDate, strategy domain.Strategy, minScore float64, n int) ([]*domain.FundFactors, error) {
	col := scoreColumn(strategy)
	rows, err := r.db.Query(
		`SELECT `+fundFactorColumns+` FROM fund_factors_daily
		 WHERE trade_date = ? AND `+col+` >= ?
		 ORDER BY `+col+` DESC, code ASC LIMIT ?`,
		date.String(), minScore, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query top fund factors @%s: %w", date, err)
	}
	defer rows.Close()

	var out []*domain.FundFactors
	for rows.Next() {
		f, err := scanFundRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan top fund factors @%s: %w", date, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Dates lists the distinct trade dates present, newest first.
func (r *FundRepository) Dates() ([]domain.TradeDate, error) {
	rows, err := r.db.Query(`SELECT DISTINCT trade_date FROM fund_factors_daily ORDER BY trade_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("query fund factor dates: %w", err)
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
func (r *FundRepository) LatestDate() (domain.TradeDate, error) {
	var s sql.NullString
	err := r.db.QueryRow(`SELECT MAX(trade_date) FROM fund_factors_daily`).Scan(&s)
	if err != nil {
		return "", fmt.Errorf("query latest fund factor date: %w", err)
	}
	return domain.TradeDate(s.String), nil
}

// DeleteForDate removes every row of one trade date and returns the
// count.
func (r *FundRepository) DeleteForDate(date domain.TradeDate) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM fund_factors_daily WHERE trade_date = ?`, date.String())
	if err != nil {
		return 0, fmt.Errorf("clear fund factors @%s: %w", date, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneBefore deletes every row older than cutoff and returns the count.
func (r *FundRepository) PruneBefore(cutoff domain.TradeDate) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM fund_factors_daily WHERE trade_date < ?`, cutoff.String())
	if err != nil {
		return 0, fmt.Errorf("prune fund factors before %s: %w", cutoff, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountForDate returns the number of rows stored for a date.
func (r *FundRepository) CountForDate(date domain.TradeDate) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM fund_factors_daily WHERE trade_date = ?`, date.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count fund factors @%s: %w", date, err)
	}
	return n, nil
}

func scanFundRow(rows *sql.Rows) (*domain.FundFactors, error) {
	f := &domain.FundFactors{}
	var date, computedAt string
	err := rows.Scan(
		&f.Code, &date,
		&f.Return1W, &f.Return1M, &f.Return3M, &f.Return6M, &f.Return1Y,
		&f.Rank1W, &f.Rank1M, &f.Rank3M, &f.Rank6M, &f.Rank1Y,
		&f.Volatility20D, &f.Volatility60D, &f.Sharpe20D, &f.Sharpe1Y, &f.Sortino1Y, &f.Calmar1Y,
		&f.MaxDrawdown1Y, &f.AvgRecoveryDays,
		&f.ManagerTenureYears, &f.BullAlpha, &f.BearAlpha, &f.StyleConsistency,
		&f.FundSize, &f.HoldingsAvgROE, &f.HoldingsDiversification, &f.HoldingsTurnover,
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
