package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/config"
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/modules/compute"
	"github.com/argusquant/argus/internal/modules/settings"
)

// syncTimeout bounds the upstream sync jobs. Factor runs carry their
// own deadline inside the computer.
const syncTimeout = 30 * time.Minute

// ComputeStarter launches a factor computation run.
type ComputeStarter interface {
	Start(kind domain.Kind, opts compute.StartOptions) (string, error)
}

// Evaluator scores pending recommendations against realized prices.
type Evaluator interface {
	EvaluatePending(ctx context.Context) (int, error)
}

// MarketSyncer covers the instrument and calendar refresh surface.
type MarketSyncer interface {
	SyncStocks(ctx context.Context) error
	SyncFunds(ctx context.Context) error
}

// SnapshotSyncer pulls the daily valuation snapshot for a session.
type SnapshotSyncer interface {
	Sync(ctx context.Context, date domain.TradeDate) error
}

// CalendarSyncer keeps the trading calendar current.
type CalendarSyncer interface {
	Sync(ctx context.Context, start, end domain.TradeDate) error
	LatestTradeDate(ref domain.TradeDate) (domain.TradeDate, error)
}

// Refresher is the index board poller.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Deps collects everything the standing jobs touch.
type Deps struct {
	Compute   ComputeStarter
	Tracker   Evaluator
	Basics    MarketSyncer
	Calendar  CalendarSyncer
	Snapshots SnapshotSyncer
	Indices   Refresher
	Backup    Job // nil when backup is not configured
	Log       zerolog.Logger
}

// RegisterAll wires the standing jobs onto the scheduler per the
// configured cron expressions.
func RegisterAll(s *Scheduler, cfg config.ScheduleConfig, d Deps) error {
	jobs := []struct {
		schedule string
		job      Job
	}{
		{cfg.StockFactorsCron, FuncJob{"stock_factors", func() error {
			_, err := d.Compute.Start(domain.KindStock, compute.StartOptions{})
			if errors.Is(err, compute.ErrAlreadyRunning) {
				return nil
			}
			return err
		}}},
		{cfg.FundFactorsCron, FuncJob{"fund_factors", func() error {
			_, err := d.Compute.Start(domain.KindFund, compute.StartOptions{})
			if errors.Is(err, compute.ErrAlreadyRunning) {
				return nil
			}
			return err
		}}},
		{cfg.PerformanceEvalCron, FuncJob{"performance_eval", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			n, err := d.Tracker.EvaluatePending(ctx)
			if err != nil {
				return err
			}
			d.Log.Info().Int("evaluated", n).Msg("performance evaluation pass done")
			return nil
		}}},
		{cfg.BasicsSyncCron, FuncJob{"basics_sync", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			today := domain.TradeDateOf(time.Now())
			if err := d.Calendar.Sync(ctx, today.AddCalendarDays(-30), today.AddCalendarDays(30)); err != nil {
				d.Log.Warn().Err(err).Msg("calendar sync failed, continuing with basics")
			}
			if err := d.Basics.SyncStocks(ctx); err != nil {
				return err
			}
			return d.Basics.SyncFunds(ctx)
		}}},
		{cfg.SnapshotSyncCron, FuncJob{"snapshot_sync", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			date, err := d.Calendar.LatestTradeDate(domain.TradeDateOf(time.Now()))
			if err != nil {
				return fmt.Errorf("resolve snapshot date: %w", err)
			}
			return d.Snapshots.Sync(ctx, date)
		}}},
	}
	if d.Backup != nil {
		jobs = append(jobs, struct {
			schedule string
			job      Job
		}{cfg.BackupCron, d.Backup})
	}

	for _, j := range jobs {
		if _, err := s.AddJob(j.schedule, j.job); err != nil {
			return err
		}
	}

	if cfg.IndicesRefreshEvery > 0 {
		spec := fmt.Sprintf("@every %s", cfg.IndicesRefreshEvery)
		_, err := s.AddJob(spec, FuncJob{"indices_refresh", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			return d.Indices.Refresh(ctx)
		}})
		if err != nil {
			return err
		}
	}
	return nil
}

// AnalysisRunner executes one scheduled recommendation analysis with
// the user's stored preferences.
type AnalysisRunner func(ctx context.Context, slot string, prefs domain.UserPrefs) error

// AnalysisScheduler keeps the pre/post-market analysis entries in sync
// with the stored preference profile.
type AnalysisScheduler struct {
	sched   *Scheduler
	profile func() (*settings.Profile, error)
	run     AnalysisRunner
	log     zerolog.Logger

	mu  sync.Mutex
	ids []cron.EntryID
}

func NewAnalysisScheduler(sched *Scheduler, profile func() (*settings.Profile, error), run AnalysisRunner, log zerolog.Logger) *AnalysisScheduler {
	return &AnalysisScheduler{
		sched:   sched,
		profile: profile,
		run:     run,
		log:     log.With().Str("component", "analysis_scheduler").Logger(),
	}
}

// Reload replaces the current analysis entries with ones matching the
// stored profile. Safe to call from the settings change hook.
func (a *AnalysisScheduler) Reload() error {
	p, err := a.profile()
	if err != nil {
		return fmt.Errorf("load profile for analysis schedule: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range a.ids {
		a.sched.Remove(id)
	}
	a.ids = a.ids[:0]

	slots := []struct {
		name string
		at   *string
	}{
		{"pre_market", p.PreMarketAt},
		{"post_market", p.PostMarketAt},
	}
	for _, slot := range slots {
		if slot.at == nil || *slot.at == "" {
			continue
		}
		spec, err := clockCron(*slot.at)
		if err != nil {
			return fmt.Errorf("%s analysis time: %w", slot.name, err)
		}
		slot := slot
		prefs := p.Prefs
		id, err := a.sched.AddJob(spec, FuncJob{slot.name + "_analysis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			return a.run(ctx, slot.name, prefs)
		}})
		if err != nil {
			return err
		}
		a.ids = append(a.ids, id)
	}
	a.log.Info().Int("entries", len(a.ids)).Msg("analysis schedule reloaded")
	return nil
}

// clockCron converts an HH:MM wall-clock time to a weekday cron spec.
func clockCron(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", fmt.Errorf("invalid time %q, want HH:MM", hhmm)
	}
	return fmt.Sprintf("0 %d %d * * MON-FRI", t.Minute(), t.Hour()), nil
}
