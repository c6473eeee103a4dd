package upstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickRetryGate(provider string, cfg GateConfig) *Gate {
	cfg.Provider = provider
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 2 * time.Millisecond
	}
	return NewGate(cfg, zerolog.Nop())
}

func TestGateRetriesTransientThenSucceeds(t *testing.T) {
	g := quickRetryGate("flaky", GateConfig{RetryAttempts: 2})

	calls := 0
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return NewError(ClassTransient, "flaky", "fetch", errors.New("connection reset"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	snap := g.Snapshot()
	assert.Equal(t, int64(1), snap.Retries)
	assert.Equal(t, int64(1), snap.Successes)
}

func TestGateRetryBudgetExhausted(t *testing.T) {
	g := quickRetryGate("dead", GateConfig{RetryAttempts: 2, FailureThreshold: 100})

	calls := 0
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return NewError(ClassTransient, "dead", "fetch", errors.New("flap"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
	assert.Equal(t, ClassTransient, ClassOf(err))
}

func TestGateDoesNotRetryCallerErrors(t *testing.T) {
	g := quickRetryGate("strict", GateConfig{RetryAttempts: 2})

	for _, class := range []Class{ClassInvalidArgument, ClassNotFound} {
		calls := 0
		err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
			calls++
			return NewError(class, "strict", "fetch", nil)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls, string(class))
		assert.Equal(t, class, ClassOf(err), string(class))
	}
}

func TestGateRetriesRateLimitedWithLongerBackoff(t *testing.T) {
	g := quickRetryGate("quota", GateConfig{RetryAttempts: 2, FailureThreshold: 100})

	calls := 0
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewError(ClassRateLimited, "quota", "fetch", errors.New("quota"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "rate-limited attempts retry until the budget runs out")
	assert.Equal(t, int64(2), g.Snapshot().Retries)

	// quota rejections draw from a wider ceiling than plain flaps
	transient := g.retryDelay(ClassTransient, 0)
	assert.Less(t, transient, g.cfg.RetryMaxDelay)
	assert.Greater(t,
		backoffCeiling(g.cfg.RetryBaseDelay*rateLimitedBackoffFactor, time.Hour, 0),
		backoffCeiling(g.cfg.RetryBaseDelay, time.Hour, 0))
}

func TestBackoffCeilingDoublesAndCaps(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	assert.Equal(t, 100*time.Millisecond, backoffCeiling(base, max, 0))
	assert.Equal(t, 400*time.Millisecond, backoffCeiling(base, max, 2))
	assert.Equal(t, time.Second, backoffCeiling(base, max, 10))
}

func TestGateWrapsUnclassifiedErrors(t *testing.T) {
	g := quickRetryGate("raw", GateConfig{RetryAttempts: 0})

	cause := errors.New("tcp reset")
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error { return cause })
	require.Error(t, err)
	assert.Equal(t, ClassTransient, ClassOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestGateBreakerOpensAndRecovers(t *testing.T) {
	g := quickRetryGate("breaker", GateConfig{
		FailureThreshold: 2,
		Window:           time.Minute,
		OpenDuration:     40 * time.Millisecond,
	})
	ctx := context.Background()

	calls := 0
	fail := func(ctx context.Context) error {
		calls++
		return NewError(ClassUnavailable, "breaker", "fetch", errors.New("503"))
	}

	_ = g.Do(ctx, "fetch", fail)
	_ = g.Do(ctx, "fetch", fail)
	assert.Equal(t, "open", g.State())

	// while open, calls fail fast without reaching the provider
	before := calls
	err := g.Do(ctx, "fetch", fail)
	require.Error(t, err)
	assert.Equal(t, ClassUnavailable, ClassOf(err))
	assert.Equal(t, before, calls)
	assert.Greater(t, g.Snapshot().Rejected, int64(0))

	// after open_duration one probe is allowed; success closes the breaker
	time.Sleep(60 * time.Millisecond)
	err = g.Do(ctx, "fetch", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", g.State())
}

func TestGateFailedProbeReopensBreaker(t *testing.T) {
	g := quickRetryGate("reopen", GateConfig{
		FailureThreshold: 1,
		OpenDuration:     30 * time.Millisecond,
	})
	ctx := context.Background()
	fail := func(ctx context.Context) error {
		return NewError(ClassUnavailable, "reopen", "fetch", errors.New("503"))
	}

	_ = g.Do(ctx, "fetch", fail)
	assert.Equal(t, "open", g.State())

	time.Sleep(40 * time.Millisecond)
	_ = g.Do(ctx, "fetch", fail)
	assert.Equal(t, "open", g.State(), "failed half-open probe reopens")
}

func TestGateNotFoundDoesNotTripBreaker(t *testing.T) {
	g := quickRetryGate("lookup", GateConfig{FailureThreshold: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := g.Do(ctx, "fetch", func(ctx context.Context) error {
			return NewError(ClassNotFound, "lookup", "fetch", nil)
		})
		require.Error(t, err)
	}
	assert.Equal(t, "closed", g.State())
}

func TestGateRateSpacing(t *testing.T) {
	// 1200 cpm at margin 1.0 is 20 calls/s, so 3 calls need two 50ms waits.
	g := NewGate(GateConfig{
		Provider:       "paced",
		CallsPerMinute: 1200,
		SafetyMargin:   1.0,
	}, zerolog.Nop())

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Do(context.Background(), "fetch", func(ctx context.Context) error { return nil }))
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestGateDeadlineWhileWaitingForBudget(t *testing.T) {
	// 60 cpm at margin 1.0 is 1 call/s; the second call cannot get a
	// token before the 20ms deadline.
	g := NewGate(GateConfig{
		Provider:       "slow",
		CallsPerMinute: 60,
		SafetyMargin:   1.0,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, g.Do(ctx, "fetch", func(ctx context.Context) error { return nil }))
	err := g.Do(ctx, "fetch", func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, ClassDeadline, ClassOf(err))
}

func TestGateSafetyMarginAppliedToSnapshot(t *testing.T) {
	g := NewGate(GateConfig{Provider: "tiered", CallsPerMinute: 200, SafetyMargin: 0.85}, zerolog.Nop())
	assert.InDelta(t, 170.0, g.Snapshot().EffectiveCPM, 1e-9)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewGate(GateConfig{Provider: "zeta"}, zerolog.Nop()))
	r.Register(NewGate(GateConfig{Provider: "alpha"}, zerolog.Nop()))

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "alpha", snaps[0].Provider)
	assert.Equal(t, "zeta", snaps[1].Provider)
	assert.NotNil(t, r.Get("alpha"))
	assert.Nil(t, r.Get("missing"))
}
