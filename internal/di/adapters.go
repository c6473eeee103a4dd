package di

import (
	"context"
	"time"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/modules/factorstore"
	"github.com/argusquant/argus/internal/modules/recommend"
)

const (
	// maintenanceCron runs the integrity sweep early Sunday morning,
	// outside both trading sessions and the nightly factor window.
	maintenanceCron = "0 30 3 * * SUN"

	backupTimeout = 20 * time.Minute
)

// storeROELookup reads stock ROE back out of the factor store so the
// fund manager computer can score holdings without upstream calls.
type storeROELookup struct {
	store *factorstore.Store
}

func (l storeROELookup) ROEFor(code string) *float64 {
	date, err := l.store.LatestDate(domain.KindStock)
	if err != nil || date.IsZero() {
		return nil
	}
	row, err := l.store.StockFactors(code, date)
	if err != nil || row == nil {
		return nil
	}
	return row.ROE
}

// runAnalysis is the scheduled pre/post-market sweep. It exercises the
// recommendation engine for every strategy and kind so explanations and
// performance records are fresh when the user looks.
func (c *Container) runAnalysis(ctx context.Context, slot string, prefs domain.UserPrefs) error {
	combos := []struct {
		strategy domain.Strategy
		kind     domain.Kind
	}{
		{domain.StrategyShortTerm, domain.KindStock},
		{domain.StrategyShortTerm, domain.KindFund},
		{domain.StrategyLongTerm, domain.KindStock},
		{domain.StrategyLongTerm, domain.KindFund},
	}

	for _, combo := range combos {
		recs, err := c.Engine.Recommend(ctx, recommend.Query{
			Strategy: combo.strategy,
			Kind:     combo.kind,
			TopN:     10,
			Prefs:    &prefs,
		})
		if err != nil {
			c.Log.Error().Err(err).
				Str("slot", slot).
				Str("strategy", string(combo.strategy)).
				Str("kind", string(combo.kind)).
				Msg("scheduled analysis failed")
			continue
		}
		c.Log.Info().
			Str("slot", slot).
			Str("strategy", string(combo.strategy)).
			Str("kind", string(combo.kind)).
			Int("count", len(recs)).
			Msg("scheduled analysis complete")
	}
	return nil
}
