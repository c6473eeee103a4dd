package tushare

import (
	"context"
	"fmt"
	"sort"

	"github.com/argusquant/argus/internal/clientcache"
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/upstream"
)

// CalendarDay is one exchange calendar entry.
type CalendarDay struct {
	Date   domain.TradeDate
	IsOpen bool
}

// StockBasic is one listed stock's metadata.
type StockBasic struct {
	TSCode   string
	Name     string
	Area     string
	Industry string
	Market   string
	ListDate domain.TradeDate
}

// FundBasic is one public fund's metadata.
type FundBasic struct {
	TSCode     string
	Name       string
	Management string
	FundType   string
	Status     string
	FoundDate  domain.TradeDate
	Market     string // E = exchange traded, O = open end
}

// SnapshotRow is one stock's daily valuation snapshot.
type SnapshotRow struct {
	TSCode       string
	TradeDate    domain.TradeDate
	Close        *float64
	PE           *float64
	PB           *float64
	TotalMV      *float64 // 万元 on the wire
	CircMV       *float64
	TurnoverRate *float64
}

// ValuationPoint is one day of a stock's PE/PB history.
type ValuationPoint struct {
	TradeDate domain.TradeDate
	PE        *float64
	PB        *float64
}

// MoneyflowDay is one day of a stock's order-size money flow, amounts in
// 万元.
type MoneyflowDay struct {
	TradeDate     domain.TradeDate
	BuySmAmount   *float64
	SellSmAmount  *float64
	BuyMdAmount   *float64
	SellMdAmount  *float64
	BuyLgAmount   *float64
	SellLgAmount  *float64
	BuyElgAmount  *float64
	SellElgAmount *float64
	NetAmount     *float64
}

// NorthFlowDay is one day of northbound net flow, in million CNY.
type NorthFlowDay struct {
	TradeDate  domain.TradeDate
	NorthMoney *float64
}

// FinaIndicator is one reporting period of financial indicators.
type FinaIndicator struct {
	EndDate      domain.TradeDate
	ROE          *float64
	GrossMargin  *float64
	DebtToAssets *float64
	NetProfitYoY *float64
	RevenueYoY   *float64
	OCFPS        *float64 // operating cash flow per share
	EPS          *float64
}

// IncomeStatement is one reporting period's revenue and net income.
type IncomeStatement struct {
	EndDate   domain.TradeDate
	Revenue   *float64
	NetIncome *float64
}

// FundManager is one manager stint; EndDate empty means incumbent.
type FundManager struct {
	Name      string
	BeginDate domain.TradeDate
	EndDate   domain.TradeDate
}

// TradeCalendar fetches the SSE calendar over [start, end].
func (c *Client) TradeCalendar(ctx context.Context, start, end domain.TradeDate) ([]CalendarDay, error) {
	key := fmt.Sprintf("ts:cal:%s:%s", start, end)
	return cached(ctx, c, key, clientcache.TTLCalendar, func(ctx context.Context) ([]CalendarDay, error) {
		table, err := c.call(ctx, "trade_cal", map[string]interface{}{
			"exchange":   "SSE",
			"start_date": start.Compact(),
			"end_date":   end.Compact(),
		}, "cal_date,is_open")
		if err != nil {
			return nil, err
		}
		out := make([]CalendarDay, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "cal_date"))
			if err != nil {
				continue
			}
			open := table.FloatByName(i, "is_open")
			out = append(out, CalendarDay{Date: d, IsOpen: open != nil && *open != 0})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
		return out, nil
	})
}

// StockBasics fetches metadata for all listed stocks.
func (c *Client) StockBasics(ctx context.Context) ([]StockBasic, error) {
	table, err := c.call(ctx, "stock_basic", map[string]interface{}{
		"list_status": "L",
	}, "ts_code,name,area,industry,market,list_date")
	if err != nil {
		return nil, err
	}
	out := make([]StockBasic, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		listDate, _ := domain.ParseTradeDate(table.StrByName(i, "list_date"))
		out = append(out, StockBasic{
			TSCode:   table.StrByName(i, "ts_code"),
			Name:     table.StrByName(i, "name"),
			Area:     table.StrByName(i, "area"),
			Industry: table.StrByName(i, "industry"),
			Market:   table.StrByName(i, "market"),
			ListDate: listDate,
		})
	}
	return out, nil
}

// FundBasics fetches metadata for both exchange-traded and open-end
// funds.
func (c *Client) FundBasics(ctx context.Context) ([]FundBasic, error) {
	var out []FundBasic
	for _, market := range []string{"E", "O"} {
		table, err := c.call(ctx, "fund_basic", map[string]interface{}{
			"market": market,
			"status": "L",
		}, "ts_code,name,management,fund_type,found_date,status")
		if err != nil {
			return nil, err
		}
		for i := 0; i < table.Len(); i++ {
			foundDate, _ := domain.ParseTradeDate(table.StrByName(i, "found_date"))
			out = append(out, FundBasic{
				TSCode:     table.StrByName(i, "ts_code"),
				Name:       table.StrByName(i, "name"),
				Management: table.StrByName(i, "management"),
				FundType:   table.StrByName(i, "fund_type"),
				Status:     table.StrByName(i, "status"),
				FoundDate:  foundDate,
				Market:     market,
			})
		}
	}
	return out, nil
}

// DailyBars fetches a stock's daily OHLCV over [start, end], ascending.
func (c *Client) DailyBars(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]domain.DailyBar, error) {
	key := fmt.Sprintf("ts:daily:%s:%s:%s", tsCode, start, end)
	return cached(ctx, c, key, clientcache.TTLDailyBars, func(ctx context.Context) ([]domain.DailyBar, error) {
		table, err := c.call(ctx, "daily", map[string]interface{}{
			"ts_code":    tsCode,
			"start_date": start.Compact(),
			"end_date":   end.Compact(),
		}, "trade_date,open,high,low,close,pre_close,vol,amount")
		if err != nil {
			return nil, err
		}
		return decodeBars(table), nil
	})
}

// IndexDaily fetches an index's daily bars over [start, end], ascending.
func (c *Client) IndexDaily(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]domain.DailyBar, error) {
	key := fmt.Sprintf("ts:idx:%s:%s:%s", tsCode, start, end)
	return cached(ctx, c, key, clientcache.TTLDailyBars, func(ctx context.Context) ([]domain.DailyBar, error) {
		table, err := c.call(ctx, "index_daily", map[string]interface{}{
			"ts_code":    tsCode,
			"start_date": start.Compact(),
			"end_date":   end.Compact(),
		}, "trade_date,open,high,low,close,pre_close,vol,amount")
		if err != nil {
			return nil, err
		}
		return decodeBars(table), nil
	})
}

func decodeBars(table *upstream.Table) []domain.DailyBar {
	out := make([]domain.DailyBar, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		d, err := domain.ParseTradeDate(table.StrByName(i, "trade_date"))
		if err != nil {
			continue
		}
		bar := domain.DailyBar{TradeDate: d}
		if v := table.FloatByName(i, "open"); v != nil {
			bar.Open = *v
		}
		if v := table.FloatByName(i, "high"); v != nil {
			bar.High = *v
		}
		if v := table.FloatByName(i, "low"); v != nil {
			bar.Low = *v
		}
		if v := table.FloatByName(i, "close"); v != nil {
			bar.Close = *v
		}
		if v := table.FloatByName(i, "pre_close"); v != nil {
			bar.PreClose = *v
		}
		if v := table.FloatByName(i, "vol"); v != nil {
			bar.Volume = *v
		}
		if v := table.FloatByName(i, "amount"); v != nil {
			bar.Amount = *v
		}
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out
}

// DailyBasicByDate fetches the whole market's valuation snapshot for one
// trading day.
func (c *Client) DailyBasicByDate(ctx context.Context, date domain.TradeDate) ([]SnapshotRow, error) {
	key := fmt.Sprintf("ts:snapshot:%s", date)
	return cached(ctx, c, key, clientcache.TTLDailyBars, func(ctx context.Context) ([]SnapshotRow, error) {
		table, err := c.call(ctx, "daily_basic", map[string]interface{}{
			"trade_date": date.Compact(),
		}, "ts_code,trade_date,close,pe,pb,total_mv,circ_mv,turnover_rate")
		if err != nil {
			return nil, err
		}
		out := make([]SnapshotRow, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "trade_date"))
			if err != nil {
				continue
			}
			out = append(out, SnapshotRow{
				TSCode:       table.StrByName(i, "ts_code"),
				TradeDate:    d,
				Close:        table.FloatByName(i, "close"),
				PE:           table.FloatByName(i, "pe"),
				PB:           table.FloatByName(i, "pb"),
				TotalMV:      table.FloatByName(i, "total_mv"),
				CircMV:       table.FloatByName(i, "circ_mv"),
				TurnoverRate: table.FloatByName(i, "turnover_rate"),
			})
		}
		return out, nil
	})
}

// ValuationHistory fetches one stock's PE/PB series over [start, end],
// ascending.
func (c *Client) ValuationHistory(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]ValuationPoint, error) {
	key := fmt.Sprintf("ts:valhist:%s:%s:%s", tsCode, start, end)
	return cached(ctx, c, key, clientcache.TTLDailyBars, func(ctx context.Context) ([]ValuationPoint, error) {
		table, err := c.call(ctx, "daily_basic", map[string]interface{}{
			"ts_code":    tsCode,
			"start_date": start.Compact(),
			"end_date":   end.Compact(),
		}, "trade_date,pe,pb")
		if err != nil {
			return nil, err
		}
		out := make([]ValuationPoint, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "trade_date"))
			if err != nil {
				continue
			}
			out = append(out, ValuationPoint{
				TradeDate: d,
				PE:        table.FloatByName(i, "pe"),
				PB:        table.FloatByName(i, "pb"),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
		return out, nil
	})
}

// Moneyflow fetches a stock's order-size money flow over [start, end],
// ascending.
func (c *Client) Moneyflow(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]MoneyflowDay, error) {
	key := fmt.Sprintf("ts:mf:%s:%s:%s", tsCode, start, end)
	return cached(ctx, c, key, clientcache.TTLMoneyflow, func(ctx context.Context) ([]MoneyflowDay, error) {
		table, err := c.call(ctx, "moneyflow", map[string]interface{}{
			"ts_code":    tsCode,
			"start_date": start.Compact(),
			"end_date":   end.Compact(),
		}, "trade_date,buy_sm_amount,sell_sm_amount,buy_md_amount,sell_md_amount,buy_lg_amount,sell_lg_amount,buy_elg_amount,sell_elg_amount,net_mf_amount")
		if err != nil {
			return nil, err
		}
		out := make([]MoneyflowDay, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "trade_date"))
			if err != nil {
				continue
			}
			out = append(out, MoneyflowDay{
				TradeDate:     d,
				BuySmAmount:   table.FloatByName(i, "buy_sm_amount"),
				SellSmAmount:  table.FloatByName(i, "sell_sm_amount"),
				BuyMdAmount:   table.FloatByName(i, "buy_md_amount"),
				SellMdAmount:  table.FloatByName(i, "sell_md_amount"),
				BuyLgAmount:   table.FloatByName(i, "buy_lg_amount"),
				SellLgAmount:  table.FloatByName(i, "sell_lg_amount"),
				BuyElgAmount:  table.FloatByName(i, "buy_elg_amount"),
				SellElgAmount: table.FloatByName(i, "sell_elg_amount"),
				NetAmount:     table.FloatByName(i, "net_mf_amount"),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
		return out, nil
	})
}

// MoneyflowHSGT fetches daily northbound flows over [start, end],
// ascending.
func (c *Client) MoneyflowHSGT(ctx context.Context, start, end domain.TradeDate) ([]NorthFlowDay, error) {
	key := fmt.Sprintf("ts:hsgt:%s:%s", start, end)
	return cached(ctx, c, key, clientcache.TTLMoneyflow, func(ctx context.Context) ([]NorthFlowDay, error) {
		table, err := c.call(ctx, "moneyflow_hsgt", map[string]interface{}{
			"start_date": start.Compact(),
			"end_date":   end.Compact(),
		}, "trade_date,north_money")
		if err != nil {
			return nil, err
		}
		out := make([]NorthFlowDay, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "trade_date"))
			if err != nil {
				continue
			}
			out = append(out, NorthFlowDay{
				TradeDate:  d,
				NorthMoney: table.FloatByName(i, "north_money"),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
		return out, nil
	})
}

// FinaIndicators fetches quarterly financial indicators over [start,
// end], ascending by period end.
func (c *Client) FinaIndicators(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]FinaIndicator, error) {
	key := fmt.Sprintf("ts:fina:%s:%s:%s", tsCode, start, end)
	return cached(ctx, c, key, clientcache.TTLFinancials, func(ctx context.Context) ([]FinaIndicator, error) {
		table, err := c.call(ctx, "fina_indicator", map[string]interface{}{
			"ts_code":    tsCode,
			"start_date": start.Compact(),
			"end_date":   end.Compact(),
		}, "end_date,roe,grossprofit_margin,debt_to_assets,netprofit_yoy,or_yoy,ocfps,eps")
		if err != nil {
			return nil, err
		}
		out := make([]FinaIndicator, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "end_date"))
			if err != nil {
				continue
			}
			out = append(out, FinaIndicator{
				EndDate:      d,
				ROE:          table.FloatByName(i, "roe"),
				GrossMargin:  table.FloatByName(i, "grossprofit_margin"),
				DebtToAssets: table.FloatByName(i, "debt_to_assets"),
				NetProfitYoY: table.FloatByName(i, "netprofit_yoy"),
				RevenueYoY:   table.FloatByName(i, "or_yoy"),
				OCFPS:        table.FloatByName(i, "ocfps"),
				EPS:          table.FloatByName(i, "eps"),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
		return out, nil
	})
}

// IncomeStatements fetches reported revenue and net income over [start,
// end], ascending by period end.
func (c *Client) IncomeStatements(ctx context.Context, tsCode string, start, end domain.TradeDate) ([]IncomeStatement, error) {
	key := fmt.Sprintf("ts:income:%s:%s:%s", tsCode, start, end)
	return cached(ctx, c, key, clientcache.TTLFinancials, func(ctx context.Context) ([]IncomeStatement, error) {
		table, err := c.call(ctx, "income", map[string]interface{}{
			"ts_code":    tsCode,
			"start_date": start.Compact(),
			"end_date":   end.Compact(),
		}, "end_date,revenue,n_income")
		if err != nil {
			return nil, err
		}
		out := make([]IncomeStatement, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "end_date"))
			if err != nil {
				continue
			}
			out = append(out, IncomeStatement{
				EndDate:   d,
				Revenue:   table.FloatByName(i, "revenue"),
				NetIncome: table.FloatByName(i, "n_income"),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
		return out, nil
	})
}

// FundNAVHistory fetches a fund's NAV series from start onward,
// ascending.
func (c *Client) FundNAVHistory(ctx context.Context, tsCode string, start domain.TradeDate) ([]domain.NAVPoint, error) {
	key := fmt.Sprintf("ts:nav:%s:%s", tsCode, start)
	return cached(ctx, c, key, clientcache.TTLNAVHistory, func(ctx context.Context) ([]domain.NAVPoint, error) {
		table, err := c.call(ctx, "fund_nav", map[string]interface{}{
			"ts_code": tsCode,
		}, "nav_date,unit_nav,accum_nav,adj_nav")
		if err != nil {
			return nil, err
		}
		out := make([]domain.NAVPoint, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "nav_date"))
			if err != nil || d.Before(start) {
				continue
			}
			p := domain.NAVPoint{Date: d}
			if v := table.FloatByName(i, "unit_nav"); v != nil {
				p.UnitNAV = *v
			}
			if v := table.FloatByName(i, "accum_nav"); v != nil {
				p.AccumNAV = *v
			}
			if v := table.FloatByName(i, "adj_nav"); v != nil {
				p.AdjNAV = *v
			} else {
				p.AdjNAV = p.UnitNAV
			}
			out = append(out, p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
		return out, nil
	})
}

// FundHoldings fetches a fund's disclosed portfolio rows across recent
// reporting periods, most recent period first within the slice's
// EndDate field.
func (c *Client) FundHoldings(ctx context.Context, tsCode string) ([]domain.FundHolding, error) {
	key := fmt.Sprintf("ts:holdings:%s", tsCode)
	return cached(ctx, c, key, clientcache.TTLHoldings, func(ctx context.Context) ([]domain.FundHolding, error) {
		table, err := c.call(ctx, "fund_portfolio", map[string]interface{}{
			"ts_code": tsCode,
		}, "end_date,symbol,mkv,stk_mkv_ratio")
		if err != nil {
			return nil, err
		}
		out := make([]domain.FundHolding, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "end_date"))
			if err != nil {
				continue
			}
			code, err := domain.NormalizeStockCode(table.StrByName(i, "symbol"))
			if err != nil {
				continue
			}
			h := domain.FundHolding{StockCode: code, EndDate: d}
			if v := table.FloatByName(i, "stk_mkv_ratio"); v != nil {
				h.Weight = *v
			}
			out = append(out, h)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].EndDate != out[j].EndDate {
				return out[i].EndDate.After(out[j].EndDate)
			}
			return out[i].Weight > out[j].Weight
		})
		return out, nil
	})
}

// FundManagers fetches all manager stints for a fund.
func (c *Client) FundManagers(ctx context.Context, tsCode string) ([]FundManager, error) {
	key := fmt.Sprintf("ts:mgr:%s", tsCode)
	return cached(ctx, c, key, clientcache.TTLManager, func(ctx context.Context) ([]FundManager, error) {
		table, err := c.call(ctx, "fund_manager", map[string]interface{}{
			"ts_code": tsCode,
		}, "name,begin_date,end_date")
		if err != nil {
			return nil, err
		}
		out := make([]FundManager, 0, table.Len())
		for i := 0; i < table.Len(); i++ {
			begin, err := domain.ParseTradeDate(table.StrByName(i, "begin_date"))
			if err != nil {
				continue
			}
			m := FundManager{
				Name:      table.StrByName(i, "name"),
				BeginDate: begin,
			}
			if end, err := domain.ParseTradeDate(table.StrByName(i, "end_date")); err == nil {
				m.EndDate = end
			}
			out = append(out, m)
		}
		return out, nil
	})
}

// FundShare fetches the fund's latest outstanding share count, in 万份.
func (c *Client) FundShare(ctx context.Context, tsCode string) (*float64, error) {
	key := fmt.Sprintf("ts:share:%s", tsCode)
	return cached(ctx, c, key, clientcache.TTLBasics, func(ctx context.Context) (*float64, error) {
		table, err := c.call(ctx, "fund_share", map[string]interface{}{
			"ts_code": tsCode,
		}, "trade_date,fd_share")
		if err != nil {
			return nil, err
		}
		var latest *float64
		var latestDate domain.TradeDate
		for i := 0; i < table.Len(); i++ {
			d, err := domain.ParseTradeDate(table.StrByName(i, "trade_date"))
			if err != nil {
				continue
			}
			if v := table.FloatByName(i, "fd_share"); v != nil && d.After(latestDate) {
				latest, latestDate = v, d
			}
		}
		return latest, nil
	})
}
