package factorstore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/database"
	"github.com/argusquant/argus/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "factors.db"),
		Profile: database.ProfileStandard,
		Name:    "factors",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	return New(NewStockRepository(db.Conn(), log), NewFundRepository(db.Conn(), log), log)
}

func f64(v float64) *float64 { return &v }

func stockRow(code string, date domain.TradeDate, short, long float64) *domain.StockFactors {
	return &domain.StockFactors{
		Code:           code,
		TradeDate:      date,
		ROE:            f64(15),
		ShortTermScore: f64(short),
		LongTermScore:  f64(long),
		ComputedAt:     time.Date(2026, 1, 28, 17, 0, 0, 0, time.UTC),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	in := stockRow("600519.SH", "2026-01-28", 70.5, 82.25)
	in.PEGRatio = f64(0.8)
	require.NoError(t, s.PutStock(in))

	out, err := s.StockFactors("600519.SH", "2026-01-28")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Code, out.Code)
	assert.Equal(t, in.TradeDate, out.TradeDate)
	assert.Equal(t, *in.PEGRatio, *out.PEGRatio)
	assert.Equal(t, *in.LongTermScore, *out.LongTermScore)
	assert.Nil(t, out.RSI14, "unset factors stay null")
}

func TestPutIsIdempotentUpsert(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutStock(stockRow("600519.SH", "2026-01-28", 60, 60)))
	require.NoError(t, s.PutStock(stockRow("600519.SH", "2026-01-28", 65, 75)))

	out, err := s.stocks.Get("600519.SH", "2026-01-28")
	require.NoError(t, err)
	assert.Equal(t, 75.0, *out.LongTermScore, "last writer wins")

	n, err := s.CountForDate(domain.KindStock, "2026-01-28")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	out, err := s.StockFactors("000001.SZ", "2026-01-28")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestTopNContract(t *testing.T) {
	s := newTestStore(t)
	date := domain.TradeDate("2026-01-28")
	// Two codes tied at 80 to exercise the tie break, plus one below the
	// floor and one above.
	require.NoError(t, s.PutStock(stockRow("600519.SH", date, 50, 92)))
	require.NoError(t, s.PutStock(stockRow("000002.SZ", date, 50, 80)))
	require.NoError(t, s.PutStock(stockRow("000001.SZ", date, 50, 80)))
	require.NoError(t, s.PutStock(stockRow("300750.SZ", date, 50, 41)))

	rows, err := s.TopStocks(date, domain.StrategyLongTerm, 60, 5)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "600519.SH", rows[0].Code)
	assert.Equal(t, "000001.SZ", rows[1].Code, "ties break by code ascending")
	assert.Equal(t, "000002.SZ", rows[2].Code)
	for _, r := range rows {
		assert.GreaterOrEqual(t, *r.LongTermScore, 60.0)
	}

	// The limit bounds the result set.
	rows, err = s.TopStocks(date, domain.StrategyLongTerm, 0, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestTopNSkipsNullScores(t *testing.T) {
	s := newTestStore(t)
	date := domain.TradeDate("2026-01-28")
	row := stockRow("600519.SH", date, 0, 0)
	row.ShortTermScore = nil
	row.LongTermScore = nil
	require.NoError(t, s.PutStock(row))

	rows, err := s.TopStocks(date, domain.StrategyLongTerm, 0, 5)
	require.NoError(t, err)
	assert.Empty(t, rows, "rows without a composite never rank")
}

func TestClearForDateDropsRowsAndCache(t *testing.T) {
	s := newTestStore(t)
	date := domain.TradeDate("2026-01-28")
	other := domain.TradeDate("2026-01-27")
	require.NoError(t, s.PutStock(stockRow("600519.SH", date, 50, 70)))
	require.NoError(t, s.PutStock(stockRow("000001.SZ", date, 50, 88)))
	require.NoError(t, s.PutStock(stockRow("600519.SH", other, 50, 70)))

	// Warm the cache so the clear has something to invalidate.
	rows, err := s.TopStocks(date, domain.StrategyLongTerm, 60, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	removed, err := s.ClearForDate(domain.KindStock, date)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rows, err = s.TopStocks(date, domain.StrategyLongTerm, 60, 5)
	require.NoError(t, err)
	assert.Empty(t, rows, "cleared date reads empty, not stale cache")

	n, err := s.CountForDate(domain.KindStock, other)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "other dates untouched")
}

func TestPruneKeepsNewestDates(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		date := domain.TradeDate(fmt.Sprintf("2026-01-%02d", 10+i))
		require.NoError(t, s.PutStock(stockRow("600519.SH", date, 50, 70)))
	}

	removed, err := s.Prune(domain.KindStock, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	dates, err := s.stocks.Dates()
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, domain.TradeDate("2026-01-14"), dates[0])
	assert.Equal(t, domain.TradeDate("2026-01-12"), dates[2])

	// Nothing more to prune.
	removed, err = s.Prune(domain.KindStock, 3)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestFundRoundTripAndTopN(t *testing.T) {
	s := newTestStore(t)
	date := domain.TradeDate("2026-01-28")
	in := &domain.FundFactors{
		Code:           "110011.OF",
		TradeDate:      date,
		Sharpe1Y:       f64(1.6),
		MaxDrawdown1Y:  f64(9),
		ShortTermScore: f64(66),
		LongTermScore:  f64(81),
		ComputedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.PutFund(in))

	out, err := s.FundFactors("110011.OF", date)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, *in.Sharpe1Y, *out.Sharpe1Y)

	rows, err := s.TopFunds(date, domain.StrategyShortTerm, 60, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "110011.OF", rows[0].Code)

	latest, err := s.LatestDate(domain.KindFund)
	require.NoError(t, err)
	assert.Equal(t, date, latest)
}

func TestMemCacheExpiry(t *testing.T) {
	c := newMemCache(4, 50*time.Millisecond)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.put("a", 1)
	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(100 * time.Millisecond)
	_, ok = c.get("a")
	assert.False(t, ok, "expired entries evict on read")
}

func TestMemCacheCapacityBound(t *testing.T) {
	c := newMemCache(2, time.Minute)
	c.put("a", 1)
	c.put("b", 2)
	c.put("c", 3)
	assert.LessOrEqual(t, len(c.entries), 2)
}
