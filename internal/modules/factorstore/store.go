package factorstore

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
)

// Store is the factor snapshot façade: dated rows in, cache-through
// reads and ranked top-N queries out. It reads only; rows are produced
// solely by the daily pipeline.
type Store struct {
	stocks *StockRepository
	funds  *FundRepository
	cache  *memCache
	log    zerolog.Logger
}

// New builds a store over the two repositories.
func New(stocks *StockRepository, funds *FundRepository, log zerolog.Logger) *Store {
	return &Store{
		stocks: stocks,
		funds:  funds,
		cache:  newMemCache(512, 10*time.Minute),
		log:    log.With().Str("component", "factorstore").Logger(),
	}
}

// PutStock upserts one stock row. Writers bypass the cache; the daily
// pipeline invalidates per date when a run completes.
func (s *Store) PutStock(f *domain.StockFactors) error {
	return s.stocks.Upsert(f)
}

// PutFund upserts one fund row.
func (s *Store) PutFund(f *domain.FundFactors) error {
	return s.funds.Upsert(f)
}

// StockFactors loads one stock row cache-through; nil when absent.
func (s *Store) StockFactors(code string, date domain.TradeDate) (*domain.StockFactors, error) {
	key := rowKey(domain.KindStock, date, code)
	if v, ok := s.cache.get(key); ok {
		return v.(*domain.StockFactors), nil
	}
	f, err := s.stocks.Get(code, date)
	if err != nil || f == nil {
		return f, err
	}
	s.cache.put(key, f)
	return f, nil
}

// FundFactors loads one fund row cache-through; nil when absent.
func (s *Store) FundFactors(code string, date domain.TradeDate) (*domain.FundFactors, error) {
	key := rowKey(domain.KindFund, date, code)
	if v, ok := s.cache.get(key); ok {
		return v.(*domain.FundFactors), nil
	}
	f, err := s.funds.Get(code, date)
	if err != nil || f == nil {
		return f, err
	}
	s.cache.put(key, f)
	return f, nil
}

// TopStocks returns up to n stock rows at or above minScore for the
// strategy, score descending, ties broken by code ascending.
func (s *Store) TopStocks(date domain.TradeDate, strategy domain.Strategy, minScore float64, n int) ([]*domain.StockFactors, error) {
	key := topKey(domain.KindStock, date, strategy, minScore, n)
	if v, ok := s.cache.get(key); ok {
		return v.([]*domain.StockFactors), nil
	}
	rows, err := s.stocks.TopN(date, strategy, minScore, n)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, rows)
	return rows, nil
}

// TopFunds mirrors TopStocks for the fund universe.
func (s *Store) TopFunds(date domain.TradeDate, strategy domain.Strategy, minScore float64, n int) ([]*domain.FundFactors, error) {
	key := topKey(domain.KindFund, date, strategy, minScore, n)
	if v, ok := s.cache.get(key); ok {
		return v.([]*domain.FundFactors), nil
	}
	rows, err := s.funds.TopN(date, strategy, minScore, n)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, rows)
	return rows, nil
}

// LatestDate returns the newest stored trade date for a kind.
func (s *Store) LatestDate(kind domain.Kind) (domain.TradeDate, error) {
	if kind == domain.KindStock {
		return s.stocks.LatestDate()
	}
	return s.funds.LatestDate()
}

// CountForDate returns how many rows a kind has stored for a date.
func (s *Store) CountForDate(kind domain.Kind, date domain.TradeDate) (int, error) {
	if kind == domain.KindStock {
		return s.stocks.CountForDate(date)
	}
	return s.funds.CountForDate(date)
}

// ClearForDate deletes every stored row of one (kind, date) and drops
// cached reads for it. The daily pipeline runs this before a recompute
// so an interrupted run never leaves a mix of old and new rows.
func (s *Store) ClearForDate(kind domain.Kind, date domain.TradeDate) (int64, error) {
	var removed int64
	var err error
	if kind == domain.KindStock {
		removed, err = s.stocks.DeleteForDate(date)
	} else {
		removed, err = s.funds.DeleteForDate(date)
	}
	if err != nil {
		return 0, err
	}
	s.cache.invalidatePrefix(string(kind) + ":" + date.String() + ":")
	s.log.Debug().
		Str("kind", string(kind)).
		Str("date", date.String()).
		Int64("removed", removed).
		Msg("factor rows cleared for date")
	return removed, nil
}

// InvalidateDate drops cached reads for one (kind, date) without
// touching stored rows. The daily pipeline calls this after its final
// batch so the next query observes the freshly written rows.
func (s *Store) InvalidateDate(kind domain.Kind, date domain.TradeDate) {
	s.cache.invalidatePrefix(string(kind) + ":" + date.String() + ":")
}

// Prune keeps only the newest keepDates trade dates for a kind and
// returns the number of rows removed.
func (s *Store) Prune(kind domain.Kind, keepDates int) (int64, error) {
	if keepDates < 1 {
		return 0, fmt.Errorf("prune: keepDates must be positive, got %d", keepDates)
	}
	var dates []domain.TradeDate
	var err error
	if kind == domain.KindStock {
		dates, err = s.stocks.Dates()
	} else {
		dates, err = s.funds.Dates()
	}
	if err != nil {
		return 0, err
	}
	if len(dates) <= keepDates {
		return 0, nil
	}

	cutoff := dates[keepDates-1]
	var removed int64
	if kind == domain.KindStock {
		removed, err = s.stocks.PruneBefore(cutoff)
	} else {
		removed, err = s.funds.PruneBefore(cutoff)
	}
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.cache.clear()
		s.log.Info().
			Str("kind", string(kind)).
			Str("cutoff", cutoff.String()).
			Int64("removed", removed).
			Msg("pruned factor snapshots past retention")
	}
	return removed, nil
}

func rowKey(kind domain.Kind, date domain.TradeDate, code string) string {
	return string(kind) + ":" + date.String() + ":row:" + code
}

func topKey(kind domain.Kind, date domain.TradeDate, strategy domain.Strategy, minScore float64, n int) string {
	return fmt.Sprintf("%s:%s:top:%s:%g:%d", kind, date, strategy, minScore, n)
}
