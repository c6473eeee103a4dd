package settings

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
)

// Service wraps the two repositories and validates writes. A schedule
// listener, when set, is notified after the analysis times change so
// the scheduler can re-register its cron entries.
type Service struct {
	settings *Repository
	prefs    *PrefsRepository
	log      zerolog.Logger

	onScheduleChange func()
}

func NewService(settings *Repository, prefs *PrefsRepository, log zerolog.Logger) *Service {
	return &Service{
		settings: settings,
		prefs:    prefs,
		log:      log.With().Str("service", "settings").Logger(),
	}
}

// OnScheduleChange registers the scheduler's reload hook.
func (s *Service) OnScheduleChange(fn func()) {
	s.onScheduleChange = fn
}

// Profile returns the stored profile, or an empty default one when
// nothing has been saved yet.
func (s *Service) Profile() (*Profile, error) {
	p, err := s.prefs.Get(DefaultUserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &Profile{UserID: DefaultUserID, Prefs: domain.UserPrefs{}}, nil
	}
	return p, nil
}

// SaveProfile validates and persists the profile, then notifies the
// schedule listener when either analysis time changed.
func (s *Service) SaveProfile(p *Profile) error {
	if p.UserID == "" {
		p.UserID = DefaultUserID
	}
	if err := validateClock(p.PreMarketAt); err != nil {
		return fmt.Errorf("pre_market_at: %w", err)
	}
	if err := validateClock(p.PostMarketAt); err != nil {
		return fmt.Errorf("post_market_at: %w", err)
	}
	for i, code := range p.Prefs.TrackedFunds {
		canonical, err := domain.NormalizeFundCode(code)
		if err != nil {
			return fmt.Errorf("tracked fund %q: %w", code, err)
		}
		p.Prefs.TrackedFunds[i] = canonical
	}

	prev, err := s.prefs.Get(p.UserID)
	if err != nil {
		return err
	}
	if err := s.prefs.Put(p); err != nil {
		return err
	}
	s.log.Info().Str("user", p.UserID).Msg("preference profile saved")

	if s.onScheduleChange != nil && scheduleChanged(prev, p) {
		s.onScheduleChange()
	}
	return nil
}

// Get reads one key-value setting.
func (s *Service) Get(key string) (*string, error) {
	return s.settings.Get(key)
}

// Set writes one key-value setting.
func (s *Service) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("setting key must not be empty")
	}
	return s.settings.Set(key, value)
}

// All returns every stored key-value setting.
func (s *Service) All() (map[string]string, error) {
	return s.settings.GetAll()
}

// validateClock checks an optional HH:MM wall-clock string.
func validateClock(v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, err := time.Parse("15:04", *v); err != nil {
		return fmt.Errorf("invalid time %q, want HH:MM", *v)
	}
	return nil
}

func scheduleChanged(prev, next *Profile) bool {
	if prev == nil {
		return next.PreMarketAt != nil || next.PostMarketAt != nil
	}
	return !strEq(prev.PreMarketAt, next.PreMarketAt) || !strEq(prev.PostMarketAt, next.PostMarketAt)
}

func strEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
