// Package clientcache is a durable TTL cache for upstream responses.
// Slow-moving payloads (NAV history, holdings, financials) are cached so
// reruns and overlapping computers do not burn call budget re-fetching
// identical data.
package clientcache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/argusquant/argus/internal/database"
)

// Cache lifetimes per payload family. Chosen against each dataset's
// actual upstream refresh cadence.
const (
	TTLQuote      = 5 * time.Minute
	TTLEstimate   = 10 * time.Minute
	TTLDailyBars  = time.Hour
	TTLNAVHistory = time.Hour
	TTLMoneyflow  = time.Hour
	TTLBasics     = 24 * time.Hour
	TTLHoldings   = 24 * time.Hour
	TTLCalendar   = 7 * 24 * time.Hour
	TTLManager    = 7 * 24 * time.Hour
	TTLFinancials = 45 * 24 * time.Hour
)

// Cache stores msgpack-encoded payloads with an expiry in the clientdata
// database.
type Cache struct {
	db  *database.DB
	log zerolog.Logger
}

// New builds a cache over the clientdata database.
func New(db *database.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "clientcache").Logger(),
	}
}

// Put stores v under key with the given lifetime, replacing any previous
// entry.
func (c *Cache) Put(key string, v interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	expiresAt := time.Now().Add(ttl).Unix()
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO api_cache (cache_key, payload, expires_at, updated_at) VALUES (?, ?, ?, ?)`,
		key, payload, expiresAt, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store cache entry %s: %w", key, err)
	}
	return nil
}

// Get loads a fresh entry into dst. Returns false when the key is absent
// or expired; expired rows are removed opportunistically.
func (c *Cache) Get(key string, dst interface{}) (bool, error) {
	var payload []byte
	var expiresAt int64
	err := c.db.QueryRow(
		`SELECT payload, expires_at FROM api_cache WHERE cache_key = ?`, key,
	).Scan(&payload, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load cache entry %s: %w", key, err)
	}

	if time.Now().Unix() >= expiresAt {
		_, _ = c.db.Exec(`DELETE FROM api_cache WHERE cache_key = ?`, key)
		return false, nil
	}

	if err := msgpack.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

// Delete removes one entry.
func (c *Cache) Delete(key string) error {
	_, err := c.db.Exec(`DELETE FROM api_cache WHERE cache_key = ?`, key)
	return err
}

// PurgeExpired removes every expired entry and returns the count.
func (c *Cache) PurgeExpired() (int64, error) {
	res, err := c.db.Exec(`DELETE FROM api_cache WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.log.Debug().Int64("removed", n).Msg("purged expired cache entries")
	}
	return n, nil
}

// Clear removes everything.
func (c *Cache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM api_cache`)
	return err
}
