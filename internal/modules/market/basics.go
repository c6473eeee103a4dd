package market

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/clients/tushare"
	"github.com/argusquant/argus/internal/database"
	"github.com/argusquant/argus/internal/domain"
)

// BasicsSource provides the listed-instrument metadata. *tushare.Client
// satisfies it.
type BasicsSource interface {
	StockBasics(ctx context.Context) ([]tushare.StockBasic, error)
	FundBasics(ctx context.Context) ([]tushare.FundBasic, error)
}

// StockInfo is one listed stock's metadata row.
type StockInfo struct {
	Code     string           `json:"code"`
	Name     string           `json:"name"`
	Area     string           `json:"area,omitempty"`
	Industry string           `json:"industry,omitempty"`
	Market   string           `json:"market,omitempty"`
	ListDate domain.TradeDate `json:"list_date,omitempty"`
	IsST     bool             `json:"is_st"`
}

// FundInfo is one public fund's metadata row.
type FundInfo struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	FundType   string `json:"fund_type,omitempty"`
	Management string `json:"management,omitempty"`
	IsETF      bool   `json:"is_etf"`
}

// BasicsService syncs and serves the instrument universe.
type BasicsService struct {
	db   *sql.DB
	data BasicsSource
	log  zerolog.Logger
}

// NewBasicsService builds a universe service over the market database.
func NewBasicsService(db *sql.DB, data BasicsSource, log zerolog.Logger) *BasicsService {
	return &BasicsService{
		db:   db,
		data: data,
		log:  log.With().Str("service", "basics").Logger(),
	}
}

// SyncStocks refreshes stock_basic from upstream. ST status is derived
// from the exchange's risk-warning name prefix.
func (s *BasicsService) SyncStocks(ctx context.Context) error {
	basics, err := s.data.StockBasics(ctx)
	if err != nil {
		return fmt.Errorf("fetch stock basics: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO stock_basic
			(code, name, area, industry, market, list_date, is_st, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, b := range basics {
			code, err := domain.NormalizeStockCode(b.TSCode)
			if err != nil {
				continue
			}
			st := 0
			if isSTName(b.Name) {
				st = 1
			}
			if _, err := stmt.Exec(code, b.Name, b.Area, b.Industry, b.Market,
				b.ListDate.String(), st, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store stock basics: %w", err)
	}

	s.log.Info().Int("stocks", len(basics)).Msg("stock universe synced")
	return nil
}

// SyncFunds refreshes fund_basic from upstream.
func (s *BasicsService) SyncFunds(ctx context.Context) error {
	basics, err := s.data.FundBasics(ctx)
	if err != nil {
		return fmt.Errorf("fetch fund basics: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO fund_basic
			(code, name, fund_type, management, found_date, is_etf, status, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, b := range basics {
			code, err := domain.NormalizeFundCode(b.TSCode)
			if err != nil {
				continue
			}
			etf := 0
			if strings.HasSuffix(code, ".ETF") {
				etf = 1
			}
			if _, err := stmt.Exec(code, b.Name, b.FundType, b.Management,
				b.FoundDate.String(), etf, b.Status, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store fund basics: %w", err)
	}

	s.log.Info().Int("funds", len(basics)).Msg("fund universe synced")
	return nil
}

// Stock returns one stock's metadata, nil when unknown.
func (s *BasicsService) Stock(code string) (*StockInfo, error) {
	row := s.db.QueryRow(`SELECT code, name, area, industry, market, list_date, is_st
		FROM stock_basic WHERE code = ?`, code)

	var info StockInfo
	var listDate string
	var st int
	err := row.Scan(&info.Code, &info.Name, &info.Area, &info.Industry,
		&info.Market, &listDate, &st)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("query stock basic %s: %w", code, err)
	}
	info.ListDate = domain.TradeDate(listDate)
	info.IsST = st == 1
	return &info, nil
}

// Fund returns one fund's metadata, nil when unknown.
func (s *BasicsService) Fund(code string) (*FundInfo, error) {
	row := s.db.QueryRow(`SELECT code, name, fund_type, management, is_etf
		FROM fund_basic WHERE code = ?`, code)

	var info FundInfo
	var etf int
	err := row.Scan(&info.Code, &info.Name, &info.FundType, &info.Management, &etf)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("query fund basic %s: %w", code, err)
	}
	info.IsETF = etf == 1
	return &info, nil
}

// StockCodes returns every listed stock code, the default stock
// universe for the daily pipeline.
func (s *BasicsService) StockCodes() ([]string, error) {
	return s.codes(`SELECT code FROM stock_basic ORDER BY code`)
}

// FundCodes returns every listed fund code.
func (s *BasicsService) FundCodes() ([]string, error) {
	return s.codes(`SELECT code FROM fund_basic ORDER BY code`)
}

// FundCodesIn narrows the fund universe by selector: "market" is every
// fund, "market_etf" exchange-traded funds only, "market_otc" open-end
// funds only.
func (s *BasicsService) FundCodesIn(universe string) ([]string, error) {
	switch universe {
	case "", "market":
		return s.FundCodes()
	case "market_etf":
		return s.codes(`SELECT code FROM fund_basic WHERE is_etf = 1 ORDER BY code`)
	case "market_otc":
		return s.codes(`SELECT code FROM fund_basic WHERE code LIKE '%.OF' ORDER BY code`)
	default:
		return nil, fmt.Errorf("unknown fund universe %q", universe)
	}
}

// Name resolves the display name of any instrument; empty when unknown.
func (s *BasicsService) Name(kind domain.Kind, code string) string {
	table := "stock_basic"
	if kind == domain.KindFund {
		table = "fund_basic"
	}
	var name string
	if err := s.db.QueryRow(`SELECT name FROM `+table+` WHERE code = ?`, code).Scan(&name); err != nil {
		return ""
	}
	return name
}

func (s *BasicsService) codes(query string) ([]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query universe: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// isSTName reports the exchange risk-warning prefix: ST, *ST and their
// delisting variants all contain "ST" in the listed name.
func isSTName(name string) bool {
	return strings.Contains(strings.ToUpper(name), "ST")
}
