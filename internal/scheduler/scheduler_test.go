package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusquant/argus/internal/config"
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/modules/compute"
	"github.com/argusquant/argus/internal/modules/settings"
)

func TestAddJobRunsOnSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	var runs atomic.Int32
	_, err := s.AddJob("@every 10ms", FuncJob{"tick", func() error {
		runs.Add(1)
		return nil
	}})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestEmptyScheduleDisablesJob(t *testing.T) {
	s := New(zerolog.Nop())

	id, err := s.AddJob("", FuncJob{"disabled", func() error {
		t.Fatal("disabled job must never run")
		return nil
	}})
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestInvalidScheduleErrors(t *testing.T) {
	s := New(zerolog.Nop())

	_, err := s.AddJob("not a cron", FuncJob{"broken", func() error { return nil }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRunNowExecutesImmediately(t *testing.T) {
	s := New(zerolog.Nop())

	ran := false
	err := s.RunNow(FuncJob{"adhoc", func() error {
		ran = true
		return nil
	}})
	require.NoError(t, err)
	assert.True(t, ran)

	wantErr := errors.New("boom")
	err = s.RunNow(FuncJob{"failing", func() error { return wantErr }})
	assert.ErrorIs(t, err, wantErr)
}

type stubStarter struct {
	kinds []domain.Kind
	err   error
}

func (s *stubStarter) Start(kind domain.Kind, _ compute.StartOptions) (string, error) {
	s.kinds = append(s.kinds, kind)
	return "run-1", s.err
}

func TestComputeJobSwallowsAlreadyRunning(t *testing.T) {
	starter := &stubStarter{err: compute.ErrAlreadyRunning}
	s := New(zerolog.Nop())

	cfg := configWithOnly("stock")
	require.NoError(t, RegisterAll(s, cfg, Deps{Compute: starter, Log: zerolog.Nop()}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return len(starter.kinds) >= 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.KindStock, starter.kinds[0])
}

func str(s string) *string { return &s }

func TestClockCron(t *testing.T) {
	spec, err := clockCron("08:45")
	require.NoError(t, err)
	assert.Equal(t, "0 45 8 * * MON-FRI", spec)

	_, err = clockCron("25:00")
	assert.Error(t, err)
}

func TestAnalysisReloadSwapsEntries(t *testing.T) {
	s := New(zerolog.Nop())

	profile := &settings.Profile{
		UserID:      settings.DefaultUserID,
		PreMarketAt: str("08:45"),
	}
	var slots []string
	a := NewAnalysisScheduler(s,
		func() (*settings.Profile, error) { return profile, nil },
		func(_ context.Context, slot string, _ domain.UserPrefs) error {
			slots = append(slots, slot)
			return nil
		}, zerolog.Nop())

	require.NoError(t, a.Reload())
	assert.Len(t, a.ids, 1)

	profile.PostMarketAt = str("15:30")
	require.NoError(t, a.Reload())
	assert.Len(t, a.ids, 2)

	profile.PreMarketAt = nil
	profile.PostMarketAt = nil
	require.NoError(t, a.Reload())
	assert.Empty(t, a.ids)
}

func TestAnalysisReloadRejectsBadTime(t *testing.T) {
	s := New(zerolog.Nop())

	a := NewAnalysisScheduler(s,
		func() (*settings.Profile, error) {
			return &settings.Profile{PreMarketAt: str("later")}, nil
		},
		func(context.Context, string, domain.UserPrefs) error { return nil },
		zerolog.Nop())

	err := a.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre_market")
}

func configWithOnly(job string) (cfg config.ScheduleConfig) {
	switch job {
	case "stock":
		cfg.StockFactorsCron = "@every 10ms"
	case "fund":
		cfg.FundFactorsCron = "@every 10ms"
	}
	return cfg
}
