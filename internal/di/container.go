// Package di wires the application graph: databases, upstream gates,
// vendor clients, module services, the scheduler, and the HTTP API.
// Construction is staged so each layer only sees the one below it.
package di

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/clientcache"
	"github.com/argusquant/argus/internal/clients/eastmoney"
	"github.com/argusquant/argus/internal/clients/sina"
	"github.com/argusquant/argus/internal/clients/tushare"
	"github.com/argusquant/argus/internal/clients/websearch"
	"github.com/argusquant/argus/internal/config"
	"github.com/argusquant/argus/internal/database"
	"github.com/argusquant/argus/internal/modules/compute"
	"github.com/argusquant/argus/internal/modules/explain"
	"github.com/argusquant/argus/internal/modules/factors"
	"github.com/argusquant/argus/internal/modules/factorstore"
	"github.com/argusquant/argus/internal/modules/market"
	"github.com/argusquant/argus/internal/modules/performance"
	"github.com/argusquant/argus/internal/modules/recommend"
	"github.com/argusquant/argus/internal/modules/settings"
	"github.com/argusquant/argus/internal/modules/valuation"
	"github.com/argusquant/argus/internal/reliability"
	"github.com/argusquant/argus/internal/scheduler"
	"github.com/argusquant/argus/internal/server"
	"github.com/argusquant/argus/internal/upstream"
)

// Container holds every wired service.
type Container struct {
	Cfg *config.Config
	Log zerolog.Logger

	Databases map[string]*database.DB

	Registry *upstream.Registry

	Tushare   *tushare.Client
	Sina      *sina.Client
	Eastmoney *eastmoney.Client
	WebSearch *websearch.Client

	Basics    *market.BasicsService
	Calendar  *market.CalendarService
	Snapshots *market.SnapshotService
	Indices   *market.IndicesService

	Factors  *factorstore.Store
	RunLog   *compute.RunLog
	Computer *compute.Computer

	PerfRepo *performance.Repository
	Tracker  *performance.Tracker

	Engine    *recommend.Engine
	Annotator *explain.Annotator
	Estimator *valuation.Estimator

	Settings *settings.Service

	Scheduler *scheduler.Scheduler
	Analysis  *scheduler.AnalysisScheduler
	Backup    *reliability.BackupService

	API    *server.API
	System *server.SystemHandlers
}

// New builds the full graph. Nothing starts running yet: the caller
// starts the scheduler and HTTP server.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{Cfg: cfg, Log: log}

	if err := c.initDatabases(); err != nil {
		return nil, err
	}
	c.initUpstream()
	c.initClients()
	c.initMarket()
	c.initPipeline()
	c.initQuery(ctx)
	if err := c.initOperations(); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the databases. Call after the server has shut down.
func (c *Container) Close() {
	for name, db := range c.Databases {
		if err := db.Close(); err != nil {
			c.Log.Warn().Err(err).Str("database", name).Msg("close failed")
		}
	}
}

func (c *Container) initDatabases() error {
	profiles := map[string]database.DatabaseProfile{
		"market":      database.ProfileStandard,
		"factors":     database.ProfileStandard,
		"performance": database.ProfileLedger,
		"config":      database.ProfileStandard,
		"cache":       database.ProfileCache,
		"client_data": database.ProfileCache,
	}

	c.Databases = make(map[string]*database.DB, len(profiles))
	for name, profile := range profiles {
		db, err := database.New(database.Config{
			Path:    filepath.Join(c.Cfg.DataDir, name+".db"),
			Profile: profile,
			Name:    name,
		})
		if err != nil {
			return fmt.Errorf("open %s database: %w", name, err)
		}
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate %s database: %w", name, err)
		}
		c.Databases[name] = db
	}
	return nil
}

func (c *Container) conns() map[string]*sql.DB {
	out := make(map[string]*sql.DB, len(c.Databases))
	for name, db := range c.Databases {
		out[name] = db.Conn()
	}
	return out
}

func (c *Container) initUpstream() {
	up := c.Cfg.Upstream
	c.Registry = upstream.NewRegistry()

	gate := func(provider string, cpm int) *upstream.Gate {
		g := upstream.NewGate(upstream.GateConfig{
			Provider:         provider,
			CallsPerMinute:   cpm,
			SafetyMargin:     up.SafetyMargin,
			FailureThreshold: up.BreakerFailureThreshold,
			Window:           up.BreakerWindow,
			OpenDuration:     up.BreakerOpenDuration,
			RetryAttempts:    up.RetryAttempts,
			RetryBaseDelay:   up.RetryBaseDelay,
			RetryMaxDelay:    up.RetryMaxDelay,
		}, c.Log)
		c.Registry.Register(g)
		return g
	}

	gate("tushare", tushare.CallsPerMinute(up.TusharePoints))
	gate("sina", up.SinaCPM)
	gate("eastmoney", up.EastmoneyCPM)
	gate("websearch", up.WebSearchCPM)
}

func (c *Container) initClients() {
	cache := clientcache.New(c.Databases["client_data"], c.Log)

	c.Tushare = tushare.New(c.Cfg.Upstream.TushareToken, c.Registry.Get("tushare"), cache, c.Log)
	c.Sina = sina.New(c.Registry.Get("sina"), c.Log)
	c.Eastmoney = eastmoney.New(c.Registry.Get("eastmoney"), c.Log)

	keys := upstream.NewKeyPool("websearch", c.Cfg.Upstream.WebSearchKeys, c.Log)
	c.WebSearch = websearch.New(c.Registry.Get("websearch"), keys, c.Log)
}

func (c *Container) initMarket() {
	marketDB := c.Databases["market"].Conn()
	c.Basics = market.NewBasicsService(marketDB, c.Tushare, c.Log)
	c.Calendar = market.NewCalendarService(marketDB, c.Tushare, c.Log)
	c.Snapshots = market.NewSnapshotService(marketDB, c.Tushare, c.Log)
	c.Indices = market.NewIndicesService(marketDB, c.Sina, c.Log)
}

func (c *Container) initPipeline() {
	factorsDB := c.Databases["factors"].Conn()
	c.Factors = factorstore.New(
		factorstore.NewStockRepository(factorsDB, c.Log),
		factorstore.NewFundRepository(factorsDB, c.Log),
		c.Log,
	)
	c.RunLog = compute.NewRunLog(c.Databases["cache"].Conn(), c.Log)

	stockComputers := []compute.StockComputer{
		factors.NewTechnicalComputer(c.Tushare, c.Log),
		factors.NewFundamentalComputer(c.Tushare, c.Log),
		factors.NewFlowComputer(c.Tushare, c.Log),
	}
	fundComputers := []compute.FundComputer{
		factors.NewPerformanceComputer(c.Tushare, c.Log),
		factors.NewRiskComputer(c.Tushare, c.Cfg.RiskFreeRate, c.Log),
		factors.NewManagerComputer(c.Tushare, storeROELookup{c.Factors}, c.Log),
	}

	c.Computer = compute.New(c.Cfg.Compute, c.Factors, c.Basics, c.Calendar,
		stockComputers, fundComputers, c.RunLog, c.Log)
}

func (c *Container) initQuery(ctx context.Context) {
	configDB := c.Databases["config"].Conn()
	c.Settings = settings.NewService(
		settings.NewRepository(configDB, c.Log),
		settings.NewPrefsRepository(configDB, c.Log),
		c.Log,
	)

	perfDB := c.Databases["performance"].Conn()
	c.PerfRepo = performance.NewRepository(perfDB, c.Log)
	prices := performance.NewMarketPrices(c.Tushare, c.Log)
	c.Tracker = performance.NewTracker(c.PerfRepo, prices, c.Calendar, c.Log)

	c.Annotator = c.buildAnnotator(ctx)
	c.Engine = recommend.New(c.Factors, c.Basics, c.Snapshots, c.PerfRepo, c.Annotator, c.Log)

	c.Estimator = valuation.New(c.Eastmoney, c.Tushare, c.Tushare,
		[]valuation.QuoteFeed{
			{Name: "sina", Source: c.Sina},
			{Name: "eastmoney", Source: c.Eastmoney},
		}, nil, c.Log)
}

// buildAnnotator returns a template-only annotator when the LLM is
// not configured; explanations still get filled either way.
func (c *Container) buildAnnotator(ctx context.Context) *explain.Annotator {
	if !c.Cfg.Explain.Enabled || c.Cfg.Explain.APIKey == "" {
		return explain.New(nil, c.WebSearch, c.Log)
	}
	gemini, err := explain.NewGemini(ctx, c.Cfg.Explain.APIKey, c.Cfg.Explain.Model)
	if err != nil {
		c.Log.Warn().Err(err).Msg("llm client unavailable, falling back to templates")
		return explain.New(nil, c.WebSearch, c.Log)
	}
	return explain.New(gemini, c.WebSearch, c.Log)
}

func (c *Container) initOperations() error {
	c.Scheduler = scheduler.New(c.Log)

	var backupJob scheduler.Job
	if c.Cfg.Backup.Enabled {
		store, err := reliability.NewR2Client(
			c.Cfg.Backup.AccountID,
			c.Cfg.Backup.AccessKeyID,
			c.Cfg.Backup.SecretKey,
			c.Cfg.Backup.Bucket,
			c.Log,
		)
		if err != nil {
			return fmt.Errorf("init backup storage: %w", err)
		}
		snaps := reliability.NewSnapshotter(c.conns(), c.Log)
		c.Backup = reliability.NewBackupService(snaps, store, c.Cfg.DataDir, c.Cfg.Backup.RetentionDays, c.Log)
		c.Log.Info().Str("bucket", c.Cfg.Backup.Bucket).Msg("r2 backup enabled")

		svc := c.Backup
		backupJob = scheduler.FuncJob{JobName: "r2_backup", Fn: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
			defer cancel()
			return svc.CreateAndUpload(ctx)
		}}
	}

	err := scheduler.RegisterAll(c.Scheduler, c.Cfg.Schedule, scheduler.Deps{
		Compute:   c.Computer,
		Tracker:   c.Tracker,
		Basics:    c.Basics,
		Calendar:  c.Calendar,
		Snapshots: c.Snapshots,
		Indices:   c.Indices,
		Backup:    backupJob,
		Log:       c.Log,
	})
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	maintenance := reliability.NewMaintenanceJob(c.conns(), c.Cfg.DataDir, c.Log)
	if _, err := c.Scheduler.AddJob(maintenanceCron, maintenance); err != nil {
		return err
	}

	c.Analysis = scheduler.NewAnalysisScheduler(c.Scheduler, c.Settings.Profile, c.runAnalysis, c.Log)
	c.Settings.OnScheduleChange(func() {
		if err := c.Analysis.Reload(); err != nil {
			c.Log.Error().Err(err).Msg("analysis schedule reload failed")
		}
	})
	if err := c.Analysis.Reload(); err != nil {
		c.Log.Warn().Err(err).Msg("analysis schedule not loaded")
	}

	c.API = server.NewAPI(c.Engine, c.Factors, c.Computer, c.RunLog,
		c.Tracker, c.PerfRepo, c.Estimator, c.Indices, c.Settings, c.Log)
	c.System = server.NewSystemHandlers(c.conns(), c.Registry, c.RunLog, c.Cfg.DataDir, c.Log)
	return nil
}
