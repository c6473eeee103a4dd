package settings

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
)

// DefaultUserID is the profile row a single-user deployment uses.
const DefaultUserID = "default"

// Profile is the stored preference record: screening preferences plus
// the optional HH:MM local times for scheduled analysis runs.
type Profile struct {
	UserID       string           `json:"user_id"`
	Prefs        domain.UserPrefs `json:"prefs"`
	PreMarketAt  *string          `json:"pre_market_at,omitempty"`
	PostMarketAt *string          `json:"post_market_at,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// PrefsRepository handles the user_prefs table in config.db.
type PrefsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewPrefsRepository(db *sql.DB, log zerolog.Logger) *PrefsRepository {
	return &PrefsRepository{
		db:  db,
		log: log.With().Str("repository", "user_prefs").Logger(),
	}
}

// Get returns nil when no profile is stored for the user.
func (r *PrefsRepository) Get(userID string) (*Profile, error) {
	var (
		p         Profile
		rawPrefs  string
		pre, post sql.NullString
		updatedAt string
	)
	err := r.db.QueryRow(`
		SELECT user_id, prefs, pre_market_at, post_market_at, updated_at
		FROM user_prefs WHERE user_id = ?
	`, userID).Scan(&p.UserID, &rawPrefs, &pre, &post, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prefs for %s: %w", userID, err)
	}

	if err := json.Unmarshal([]byte(rawPrefs), &p.Prefs); err != nil {
		return nil, fmt.Errorf("decode prefs for %s: %w", userID, err)
	}
	if pre.Valid {
		p.PreMarketAt = &pre.String
	}
	if post.Valid {
		p.PostMarketAt = &post.String
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		p.UpdatedAt = t
	}
	return &p, nil
}

// Put upserts the whole profile row.
func (r *PrefsRepository) Put(p *Profile) error {
	raw, err := json.Marshal(p.Prefs)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.Exec(`
		INSERT INTO user_prefs (user_id, prefs, pre_market_at, post_market_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			prefs = excluded.prefs,
			pre_market_at = excluded.pre_market_at,
			post_market_at = excluded.post_market_at,
			updated_at = excluded.updated_at
	`, p.UserID, string(raw), strArg(p.PreMarketAt), strArg(p.PostMarketAt), now)
	if err != nil {
		return fmt.Errorf("put prefs for %s: %w", p.UserID, err)
	}
	return nil
}

func strArg(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
