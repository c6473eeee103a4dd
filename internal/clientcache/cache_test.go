package clientcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/database"
	"github.com/argusquant/argus/internal/domain"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "clientdata.db"),
		Profile: database.ProfileCache,
		Name:    "clientdata",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return New(db, zerolog.Nop())
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(t)

	bars := []domain.DailyBar{
		{TradeDate: "2026-01-29", Open: 1700, High: 1720, Low: 1695, Close: 1712.5, Volume: 28500},
		{TradeDate: "2026-01-30", Open: 1713, High: 1730, Low: 1701, Close: 1725.0, Volume: 30120},
	}
	require.NoError(t, c.Put("tushare:daily:600519.SH", bars, time.Minute))

	var got []domain.DailyBar
	hit, err := c.Get("tushare:daily:600519.SH", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 2)
	assert.Equal(t, bars[1].Close, got[1].Close)
	assert.Equal(t, bars[0].TradeDate, got[0].TradeDate)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := newTestCache(t)
	var dst []domain.DailyBar
	hit, err := c.Get("absent", &dst)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("short-lived", "payload", -time.Second))

	var dst string
	hit, err := c.Get("short-lived", &dst)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestPutReplacesExisting(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("k", "v1", time.Minute))
	require.NoError(t, c.Put("k", "v2", time.Minute))

	var dst string
	hit, err := c.Get("k", &dst)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "v2", dst)
}

func TestPurgeExpired(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("dead", 1, -time.Second))
	require.NoError(t, c.Put("alive", 2, time.Hour))

	n, err := c.PurgeExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var dst int
	hit, err := c.Get("alive", &dst)
	require.NoError(t, err)
	assert.True(t, hit)
}
