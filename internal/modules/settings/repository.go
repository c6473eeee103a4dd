// Package settings persists runtime configuration in config.db: a
// key-value settings table plus the single-user preference profile
// that drives recommendation screening and the scheduled analysis
// times. Values stored here take precedence over environment defaults
// so behavior can change without a restart.
package settings

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles the settings key-value table. Values are stored
// as strings; typed getters convert on the way out.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "settings").Logger(),
	}
}

// Get returns nil when the key does not exist.
func (r *Repository) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	return &value, nil
}

func (r *Repository) Set(key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (r *Repository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

// GetAll returns every stored setting, for the settings endpoint.
func (r *Repository) GetAll() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			r.log.Warn().Err(err).Msg("failed to scan setting row")
			continue
		}
		result[key] = value
	}
	return result, rows.Err()
}

// GetBool reads a setting as a boolean, falling back to def when the
// key is absent or unparseable.
func (r *Repository) GetBool(key string, def bool) bool {
	v, err := r.Get(key)
	if err != nil || v == nil {
		return def
	}
	b, err := strconv.ParseBool(*v)
	if err != nil {
		return def
	}
	return b
}

// GetInt reads a setting as an integer, falling back to def.
func (r *Repository) GetInt(key string, def int) int {
	v, err := r.Get(key)
	if err != nil || v == nil {
		return def
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		return def
	}
	return n
}

// GetFloat reads a setting as a float, falling back to def.
func (r *Repository) GetFloat(key string, def float64) float64 {
	v, err := r.Get(key)
	if err != nil || v == nil {
		return def
	}
	f, err := strconv.ParseFloat(*v, 64)
	if err != nil {
		return def
	}
	return f
}
