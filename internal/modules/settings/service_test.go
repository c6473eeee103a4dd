package settings

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/database"
	"github.com/argusquant/argus/internal/domain"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    t.TempDir() + "/config.db",
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db.Conn(), zerolog.Nop())
	prefs := NewPrefsRepository(db.Conn(), zerolog.Nop())
	return NewService(repo, prefs, zerolog.Nop())
}

func str(s string) *string { return &s }

func TestProfileDefaultsWhenUnsaved(t *testing.T) {
	svc := newTestService(t)

	p, err := svc.Profile()
	require.NoError(t, err)
	assert.Equal(t, DefaultUserID, p.UserID)
	assert.False(t, p.Prefs.ExcludeST)
	assert.Nil(t, p.PreMarketAt)
}

func TestSaveProfileRoundTrip(t *testing.T) {
	svc := newTestService(t)

	roe := 12.0
	in := &Profile{
		Prefs: domain.UserPrefs{
			ExcludeST:           true,
			ExcludeIndustries:   []string{"房地产"},
			PreferredIndustries: []string{"半导体"},
			MinROE:              &roe,
			TrackedFunds:        []string{"110011", "510300"},
		},
		PreMarketAt:  str("08:45"),
		PostMarketAt: str("15:30"),
	}
	require.NoError(t, svc.SaveProfile(in))

	out, err := svc.Profile()
	require.NoError(t, err)
	assert.True(t, out.Prefs.ExcludeST)
	assert.Equal(t, []string{"房地产"}, out.Prefs.ExcludeIndustries)
	require.NotNil(t, out.Prefs.MinROE)
	assert.Equal(t, 12.0, *out.Prefs.MinROE)
	require.NotNil(t, out.PreMarketAt)
	assert.Equal(t, "08:45", *out.PreMarketAt)
	assert.False(t, out.UpdatedAt.IsZero())
}

func TestSaveProfileNormalizesTrackedFunds(t *testing.T) {
	svc := newTestService(t)

	p := &Profile{Prefs: domain.UserPrefs{TrackedFunds: []string{"510300", "110011.OF"}}}
	require.NoError(t, svc.SaveProfile(p))

	out, err := svc.Profile()
	require.NoError(t, err)
	assert.Equal(t, []string{"510300.ETF", "110011.OF"}, out.Prefs.TrackedFunds)
}

func TestSaveProfileRejectsBadClock(t *testing.T) {
	svc := newTestService(t)

	err := svc.SaveProfile(&Profile{PreMarketAt: str("25:99")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre_market_at")

	err = svc.SaveProfile(&Profile{PostMarketAt: str("soon")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want HH:MM")
}

func TestScheduleChangeNotifiesListener(t *testing.T) {
	svc := newTestService(t)

	notified := 0
	svc.OnScheduleChange(func() { notified++ })

	require.NoError(t, svc.SaveProfile(&Profile{PreMarketAt: str("08:45")}))
	assert.Equal(t, 1, notified)

	// Same times again, no notification.
	require.NoError(t, svc.SaveProfile(&Profile{PreMarketAt: str("08:45")}))
	assert.Equal(t, 1, notified)

	require.NoError(t, svc.SaveProfile(&Profile{PreMarketAt: str("09:00")}))
	assert.Equal(t, 2, notified)
}

func TestSettingsKeyValueStore(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.Set("recommend_top_n", "15"))
	require.NoError(t, svc.Set("auto_backup", "true"))

	v, err := svc.Get("recommend_top_n")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "15", *v)

	missing, err := svc.Get("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := svc.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Error(t, svc.Set("", "x"))
}

func TestTypedGetters(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.Set("auto_backup", "true"))
	require.NoError(t, svc.Set("top_n", "15"))
	require.NoError(t, svc.Set("min_score", "62.5"))

	assert.True(t, svc.settings.GetBool("auto_backup", false))
	assert.Equal(t, 15, svc.settings.GetInt("top_n", 10))
	assert.Equal(t, 62.5, svc.settings.GetFloat("min_score", 60))
	assert.Equal(t, 10, svc.settings.GetInt("missing", 10))
}
