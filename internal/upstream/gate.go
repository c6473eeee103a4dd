package upstream

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GateConfig tunes one provider gate.
type GateConfig struct {
	Provider       string
	CallsPerMinute int     // raw vendor limit; <= 0 means unlimited
	SafetyMargin   float64 // scales the raw limit down, e.g. 0.85
	Burst          int     // token bucket burst, defaults to 1

	FailureThreshold int           // breaker trips at this many failures
	Window           time.Duration // failure counting window while closed
	OpenDuration     time.Duration // how long the breaker stays open

	RetryAttempts  int // retries after the first attempt
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Gate serializes all traffic to one provider through a token bucket and
// a circuit breaker, with bounded full-jitter retries for transient and
// rate-limited failures. Every provider client owns exactly one Gate;
// concurrent callers share its budget.
type Gate struct {
	provider string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	cfg      GateConfig
	log      zerolog.Logger

	calls     atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	retries   atomic.Int64
	rejected  atomic.Int64 // fast-fails while the breaker was open
}

// NewGate builds a gate. The effective rate is
// CallsPerMinute * SafetyMargin, spread evenly across the minute.
func NewGate(cfg GateConfig, log zerolog.Logger) *Gate {
	if cfg.SafetyMargin <= 0 || cfg.SafetyMargin > 1 {
		cfg.SafetyMargin = 0.85
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = time.Minute
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 8 * time.Second
	}

	limit := rate.Inf
	if cfg.CallsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.CallsPerMinute) * cfg.SafetyMargin / 60.0)
	}

	g := &Gate{
		provider: cfg.Provider,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		cfg:      cfg,
		log:      log.With().Str("component", "gate").Str("provider", cfg.Provider).Logger(),
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Provider,
		MaxRequests: 1, // one probe in half-open
		Interval:    cfg.Window,
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= uint32(cfg.FailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().
				Str("from", stateName(from)).
				Str("to", stateName(to)).
				Msg("circuit breaker state change")
		},
	})

	return g
}

// Do runs fn under the gate: waits for rate budget, executes through
// the breaker, and retries retryable failures with full-jitter backoff,
// quota rejections against a wider ceiling. The context bounds the
// whole exchange including budget waits.
func (g *Gate) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := g.once(ctx, op, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= g.cfg.RetryAttempts {
			return err
		}
		g.retries.Add(1)

		delay := g.retryDelay(ClassOf(err), attempt)
		g.log.Debug().
			Str("op", op).
			Str("class", string(ClassOf(err))).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("retrying failed call")
		select {
		case <-ctx.Done():
			return NewError(ClassDeadline, g.provider, op, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (g *Gate) once(ctx context.Context, op string, fn func(context.Context) error) error {
	// An open breaker fails fast without consuming rate budget.
	if g.breaker.State() == gobreaker.StateOpen {
		g.rejected.Add(1)
		return NewError(ClassUnavailable, g.provider, op, gobreaker.ErrOpenState)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return NewError(ClassDeadline, g.provider, op, err)
	}

	g.calls.Add(1)
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.rejected.Add(1)
			return NewError(ClassUnavailable, g.provider, op, err)
		}
		g.failures.Add(1)
		return g.classify(op, err)
	}
	g.successes.Add(1)
	return nil
}

// classify wraps raw client errors; already classified errors pass through.
func (g *Gate) classify(op string, err error) error {
	var ue *Error
	if errors.As(err, &ue) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(ClassDeadline, g.provider, op, err)
	}
	return NewError(ClassTransient, g.provider, op, err)
}

// rateLimitedBackoffFactor widens the backoff ceiling for quota
// rejections; the vendor asked for less traffic, not a quick retry.
const rateLimitedBackoffFactor = 4

// retryDelay draws a full-jitter delay: uniform in [0, ceiling).
func (g *Gate) retryDelay(class Class, attempt int) time.Duration {
	base := g.cfg.RetryBaseDelay
	if class == ClassRateLimited {
		base *= rateLimitedBackoffFactor
	}
	ceiling := backoffCeiling(base, g.cfg.RetryMaxDelay, attempt)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling)))
}

// backoffCeiling is base*2^attempt capped at max.
func backoffCeiling(base, max time.Duration, attempt int) time.Duration {
	ceiling := base << uint(attempt)
	if ceiling > max {
		ceiling = max
	}
	return ceiling
}

// State reports the breaker state as closed, open or half_open.
func (g *Gate) State() string {
	return stateName(g.breaker.State())
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "open"
	}
}

// Snapshot returns current gate counters for the stats surface.
type GateSnapshot struct {
	Provider     string  `json:"provider"`
	State        string  `json:"state"`
	EffectiveCPM float64 `json:"effective_cpm"`
	Calls        int64   `json:"calls"`
	Successes    int64   `json:"successes"`
	Failures     int64   `json:"failures"`
	Retries      int64   `json:"retries"`
	Rejected     int64   `json:"rejected"`
}

// Snapshot captures the gate's counters.
func (g *Gate) Snapshot() GateSnapshot {
	effective := 0.0
	if g.cfg.CallsPerMinute > 0 {
		effective = float64(g.cfg.CallsPerMinute) * g.cfg.SafetyMargin
	}
	return GateSnapshot{
		Provider:     g.provider,
		State:        g.State(),
		EffectiveCPM: effective,
		Calls:        g.calls.Load(),
		Successes:    g.successes.Load(),
		Failures:     g.failures.Load(),
		Retries:      g.retries.Load(),
		Rejected:     g.rejected.Load(),
	}
}
