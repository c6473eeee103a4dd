// Package compute is the daily factor pipeline. One run enumerates the
// instrument universe for a kind, computes factor rows in bounded
// parallel batches through the rate-limited upstream substrate, scores
// them, and persists each batch serially into the factor store. Runs
// are idempotent per (kind, trade date): a re-run first clears the
// date's rows and then overwrites them.
package compute

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/config"
	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/modules/factorstore"
	"github.com/argusquant/argus/internal/modules/scoring"
)

// ErrAlreadyRunning is returned by Start while a run is in flight.
// Interleaved runs would race on the per-date clear.
var ErrAlreadyRunning = errors.New("a factor computation is already running")

// Fund universe selectors accepted by Start.
const (
	UniverseMarket    = "market"
	UniverseMarketETF = "market_etf"
	UniverseMarketOTC = "market_otc"
	UniverseTracked   = "tracked"
)

// StockComputer fills one slice of a stock factor row.
type StockComputer interface {
	Compute(ctx context.Context, code string, date domain.TradeDate) (*domain.StockFactors, error)
}

// FundComputer fills one slice of a fund factor row.
type FundComputer interface {
	Compute(ctx context.Context, code string, date domain.TradeDate) (*domain.FundFactors, error)
}

// UniverseSource enumerates the instruments a run covers.
type UniverseSource interface {
	StockCodes() ([]string, error)
	FundCodesIn(universe string) ([]string, error)
}

// TradeDater resolves the most recent completed trading session.
type TradeDater interface {
	LatestTradeDate(ref domain.TradeDate) (domain.TradeDate, error)
}

// StartOptions narrow one run. The zero value computes today's full
// universe.
type StartOptions struct {
	// TradeDate pins the run to a session; empty resolves the latest.
	TradeDate domain.TradeDate
	// Universe selects the fund universe; ignored for stocks.
	Universe string
	// Codes overrides enumeration. Required for UniverseTracked, where
	// the caller supplies the watchlist.
	Codes []string
}

// Computer orchestrates daily factor runs. At most one run is in
// flight; Start rejects overlap.
type Computer struct {
	cfg      config.ComputeConfig
	store    *factorstore.Store
	universe UniverseSource
	calendar TradeDater
	stock    []StockComputer
	fund     []FundComputer
	runs     *RunLog
	log      zerolog.Logger

	mu       sync.Mutex
	running  bool
	cancelFn context.CancelFunc
	prog     Progress

	bcast *broadcaster
}

// New builds the pipeline. The computer slices run in order per
// instrument; each fills its own factors and the results are merged.
func New(
	cfg config.ComputeConfig,
	store *factorstore.Store,
	universe UniverseSource,
	calendar TradeDater,
	stock []StockComputer,
	fund []FundComputer,
	runs *RunLog,
	log zerolog.Logger,
) *Computer {
	return &Computer{
		cfg:      cfg,
		store:    store,
		universe: universe,
		calendar: calendar,
		stock:    stock,
		fund:     fund,
		runs:     runs,
		log:      log.With().Str("component", "compute").Logger(),
		prog:     Progress{Status: StatusIdle},
		bcast:    newBroadcaster(),
	}
}

// Start launches a run in the background and returns its id. Returns
// ErrAlreadyRunning while a run is in flight.
func (c *Computer) Start(kind domain.Kind, opts StartOptions) (string, error) {
	date := opts.TradeDate
	if date.IsZero() {
		today := domain.TradeDateOf(time.Now())
		resolved, err := c.calendar.LatestTradeDate(today)
		if err != nil || resolved.IsZero() {
			resolved = today
		}
		date = resolved
	}

	codes := opts.Codes
	if len(codes) == 0 {
		var err error
		if kind == domain.KindStock {
			codes, err = c.universe.StockCodes()
		} else if opts.Universe == UniverseTracked {
			err = errors.New("tracked universe requires explicit codes")
		} else {
			codes, err = c.universe.FundCodesIn(opts.Universe)
		}
		if err != nil {
			return "", err
		}
	}
	if len(codes) == 0 {
		return "", errors.New("universe is empty, sync instrument basics first")
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	runID, err := c.runs.Begin("factors_"+string(kind), kind, date, len(codes))
	if err != nil {
		c.mu.Unlock()
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	c.running = true
	c.cancelFn = cancel
	c.prog = Progress{
		RunID:        runID,
		Kind:         kind,
		TradeDate:    date,
		Status:       StatusRunning,
		Total:        len(codes),
		TotalBatches: (len(codes) + c.cfg.BatchSize - 1) / c.cfg.BatchSize,
		StartedAt:    time.Now().UTC(),
	}
	c.mu.Unlock()

	c.bcast.publish(c.Progress())
	go c.run(ctx, cancel, runID, kind, date, codes)
	return runID, nil
}

// Cancel stops the in-flight run, if any. In-flight instruments finish
// or abort on the next upstream call; persisted rows are retained.
func (c *Computer) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.cancelFn()
	return true
}

// Progress returns a snapshot of the active (or last) run.
func (c *Computer) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prog
}

// Subscribe streams progress snapshots until the cancel function runs.
func (c *Computer) Subscribe() (<-chan Progress, func()) {
	return c.bcast.subscribe()
}

func (c *Computer) run(ctx context.Context, cancel context.CancelFunc, runID string, kind domain.Kind, date domain.TradeDate, codes []string) {
	defer cancel()
	log := c.log.With().Str("run", runID).Str("kind", string(kind)).Str("date", date.String()).Logger()
	log.Info().Int("universe", len(codes)).Msg("factor run started")

	// Stale rows from an earlier run of the same date go first, so a
	// partial failure never leaves a mix of old and new rows.
	if _, err := c.store.ClearForDate(kind, date); err != nil {
		c.finish(runID, StatusFailed, err)
		log.Error().Err(err).Msg("factor run aborted")
		return
	}

	var runErr error
	for i := 0; i < len(codes); i += c.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := i + c.cfg.BatchSize
		if end > len(codes) {
			end = len(codes)
		}
		c.setBatch(i/c.cfg.BatchSize + 1)
		c.runBatch(ctx, kind, date, codes[i:end])
	}

	status := StatusCompleted
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		status = StatusCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = StatusFailed
		runErr = errors.New("run deadline exceeded, partial results retained")
	}

	c.store.InvalidateDate(kind, date)
	if status == StatusCompleted {
		if _, err := c.store.Prune(kind, c.cfg.KeepDates); err != nil {
			log.Warn().Err(err).Msg("retention pruning failed")
		}
	}

	c.finish(runID, status, runErr)
	p := c.Progress()
	log.Info().
		Str("status", string(status)).
		Int("completed", p.Completed).
		Int("failed", p.Failed).
		Msg("factor run finished")
}

// runBatch computes rows with a bounded worker pool, then persists the
// results serially. A failed instrument never aborts the batch.
func (c *Computer) runBatch(ctx context.Context, kind domain.Kind, date domain.TradeDate, codes []string) {
	type result struct {
		stock *domain.StockFactors
		fund  *domain.FundFactors
		ok    bool
	}
	results := make([]result, len(codes))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.cfg.Workers)
	for i, code := range codes {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, code string) {
			defer wg.Done()
			defer func() { <-sem }()
			if kind == domain.KindStock {
				row := c.computeStock(ctx, code, date)
				results[i] = result{stock: row, ok: row != nil}
			} else {
				row := c.computeFund(ctx, code, date)
				results[i] = result{fund: row, ok: row != nil}
			}
		}(i, code)
	}
	wg.Wait()

	for i := range results {
		r := results[i]
		if !r.ok {
			c.bump(false)
			continue
		}
		var err error
		if r.stock != nil {
			err = c.store.PutStock(r.stock)
		} else {
			err = c.store.PutFund(r.fund)
		}
		if err != nil {
			c.log.Error().Err(err).Str("code", codes[i]).Msg("persist factor row failed")
			c.bump(false)
			continue
		}
		c.bump(true)
	}
}

// computeStock merges every computer's slice and scores the row. Nil
// when no computer produced a single factor.
func (c *Computer) computeStock(ctx context.Context, code string, date domain.TradeDate) *domain.StockFactors {
	row := &domain.StockFactors{Code: code, TradeDate: date}
	for _, comp := range c.stock {
		if ctx.Err() != nil {
			return nil
		}
		part, err := comp.Compute(ctx, code, date)
		if err != nil {
			c.log.Debug().Err(err).Str("code", code).Msg("stock computer failed")
		}
		row.Merge(part)
	}
	if !anyFilled(row.AsMap()) {
		return nil
	}
	s := scoring.ScoreStock(row)
	row.ShortTermScore = s.ShortTerm
	row.LongTermScore = s.LongTerm
	row.ComputedAt = time.Now().UTC()
	return row
}

func (c *Computer) computeFund(ctx context.Context, code string, date domain.TradeDate) *domain.FundFactors {
	row := &domain.FundFactors{Code: code, TradeDate: date}
	for _, comp := range c.fund {
		if ctx.Err() != nil {
			return nil
		}
		part, err := comp.Compute(ctx, code, date)
		if err != nil {
			c.log.Debug().Err(err).Str("code", code).Msg("fund computer failed")
		}
		row.Merge(part)
	}
	if !anyFilled(row.AsMap()) {
		return nil
	}
	s := scoring.ScoreFund(row)
	row.ShortTermScore = s.ShortTerm
	row.LongTermScore = s.LongTerm
	row.ComputedAt = time.Now().UTC()
	return row
}

func anyFilled(factors map[string]*float64) bool {
	for _, v := range factors {
		if v != nil {
			return true
		}
	}
	return false
}

func (c *Computer) setBatch(n int) {
	c.mu.Lock()
	c.prog.CurrentBatch = n
	p := c.prog
	c.mu.Unlock()
	c.bcast.publish(p)
}

func (c *Computer) bump(ok bool) {
	c.mu.Lock()
	if ok {
		c.prog.Completed++
	} else {
		c.prog.Failed++
	}
	p := c.prog
	c.mu.Unlock()
	c.bcast.publish(p)
}

func (c *Computer) finish(runID string, status Status, runErr error) {
	c.mu.Lock()
	c.prog.Status = status
	c.prog.FinishedAt = time.Now().UTC()
	if runErr != nil {
		c.prog.Error = runErr.Error()
	}
	p := c.prog
	c.running = false
	c.mu.Unlock()

	if err := c.runs.Finish(runID, status, p.Completed, p.Failed, runErr); err != nil {
		c.log.Warn().Err(err).Msg("run log update failed")
	}
	c.bcast.publish(p)
}
