// Package performance grades past recommendations forward. Each pick
// is re-priced 7 and 30 trade days after its recommendation date and
// flagged against its target and stop-loss. Passes are idempotent:
// fully evaluated records never change again.
package performance

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/pkg/formulas"
)

// PriceSource resolves the close (stocks) or unit NAV (funds) of an
// instrument on a session. Nil when the session has no price yet.
type PriceSource interface {
	CloseOn(ctx context.Context, kind domain.Kind, code string, date domain.TradeDate) (*float64, error)
}

// Calendar supplies trade-day arithmetic.
type Calendar interface {
	AddTradeDays(date domain.TradeDate, n int) (domain.TradeDate, error)
	LatestTradeDate(ref domain.TradeDate) (domain.TradeDate, error)
}

// Tracker runs the daily evaluation pass.
type Tracker struct {
	repo     *Repository
	prices   PriceSource
	calendar Calendar
	log      zerolog.Logger
}

// NewTracker builds a tracker.
func NewTracker(repo *Repository, prices PriceSource, calendar Calendar, log zerolog.Logger) *Tracker {
	return &Tracker{
		repo:     repo,
		prices:   prices,
		calendar: calendar,
		log:      log.With().Str("service", "performance").Logger(),
	}
}

// EvaluatePending grades every record that has reached its 7 or 30
// trade-day mark. Returns how many records were advanced.
func (t *Tracker) EvaluatePending(ctx context.Context) (int, error) {
	latest, err := t.calendar.LatestTradeDate(domain.TradeDateOf(time.Now()))
	if err != nil {
		return 0, err
	}

	recs, err := t.repo.Unevaluated()
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return advanced, ctx.Err()
		}
		ok, err := t.evaluate(ctx, rec, latest)
		if err != nil {
			t.log.Warn().Err(err).Str("code", rec.Code).Str("rec_type", string(rec.RecType)).
				Msg("evaluation skipped")
			continue
		}
		if ok {
			advanced++
		}
	}
	if advanced > 0 {
		t.log.Info().Int("advanced", advanced).Int("pending", len(recs)).Msg("performance pass done")
	}
	return advanced, nil
}

func (t *Tracker) evaluate(ctx context.Context, rec *domain.Recommendation, latest domain.TradeDate) (bool, error) {
	kind := rec.RecType.Kind()

	entry := rec.EntryPrice
	if entry == nil {
		p, err := t.prices.CloseOn(ctx, kind, rec.Code, rec.TradeDate)
		if err != nil {
			return false, err
		}
		entry = p
	}
	if entry == nil || *entry <= 0 {
		return false, nil
	}

	status := rec.Status
	moved := false

	if status == domain.RecStatusPending {
		due, err := t.calendar.AddTradeDays(rec.TradeDate, 7)
		if err != nil {
			return false, err
		}
		if latest.Before(due) {
			return false, nil
		}
		p7, err := t.prices.CloseOn(ctx, kind, rec.Code, due)
		if err != nil {
			return false, err
		}
		if p7 == nil {
			return false, nil
		}
		ret := formulas.Round2((*p7 / *entry - 1) * 100)
		hitT := ret >= rec.TargetReturn
		hitS := ret <= rec.StopLoss
		ev := Evaluation{
			Price7D:   p7,
			Return7D:  &ret,
			HitTarget: &hitT,
			HitStop:   &hitS,
			Status:    domain.RecStatusEvaluated7,
		}
		if err := t.repo.ApplyEvaluation(rec.ID, ev); err != nil {
			return false, err
		}
		status = domain.RecStatusEvaluated7
		moved = true
	}

	if status == domain.RecStatusEvaluated7 {
		due, err := t.calendar.AddTradeDays(rec.TradeDate, 30)
		if err != nil {
			return moved, err
		}
		if latest.Before(due) {
			return moved, nil
		}
		p30, err := t.prices.CloseOn(ctx, kind, rec.Code, due)
		if err != nil {
			return moved, err
		}
		if p30 == nil {
			return moved, nil
		}
		ret := formulas.Round2((*p30 / *entry - 1) * 100)
		ev := Evaluation{
			Price30D:  p30,
			Return30D: &ret,
			Final:     &ret,
			Status:    domain.RecStatusEvaluated30,
		}
		// Hit flags only upgrade at the 30-day mark; a target hit at
		// 7 days stands even if the price later retreats.
		if ret >= rec.TargetReturn {
			v := true
			ev.HitTarget = &v
		}
		if ret <= rec.StopLoss {
			v := true
			ev.HitStop = &v
		}
		if err := t.repo.ApplyEvaluation(rec.ID, ev); err != nil {
			return moved, err
		}
		moved = true
	}

	return moved, nil
}

// Stats aggregates graded recommendations.
type Stats struct {
	RecType         domain.RecType `json:"rec_type,omitempty"`
	Count           int            `json:"count"`
	Evaluated       int            `json:"evaluated"`
	HitRateTarget   *float64       `json:"hit_rate_target,omitempty"`
	HitRateStop     *float64       `json:"hit_rate_stop,omitempty"`
	MeanReturn30D   *float64       `json:"mean_return_30d,omitempty"`
	MedianReturn30D *float64       `json:"median_return_30d,omitempty"`
}

// Stats aggregates all records of one type (empty for all) recommended
// inside [start, end]. Rates are over evaluated records only.
func (t *Tracker) Stats(recType domain.RecType, start, end domain.TradeDate) (*Stats, error) {
	recs, err := t.repo.ByTypeAndRange(recType, start, end)
	if err != nil {
		return nil, err
	}

	out := &Stats{RecType: recType, Count: len(recs)}
	var targets, stops int
	var returns []float64
	for _, rec := range recs {
		if rec.HitTarget == nil && rec.HitStop == nil {
			continue
		}
		out.Evaluated++
		if rec.HitTarget != nil && *rec.HitTarget {
			targets++
		}
		if rec.HitStop != nil && *rec.HitStop {
			stops++
		}
		if rec.Return30D != nil {
			returns = append(returns, *rec.Return30D)
		}
	}
	if out.Evaluated > 0 {
		ht := formulas.Round2(float64(targets) / float64(out.Evaluated) * 100)
		hs := formulas.Round2(float64(stops) / float64(out.Evaluated) * 100)
		out.HitRateTarget = &ht
		out.HitRateStop = &hs
	}
	if len(returns) > 0 {
		mean := formulas.Round2(formulas.Mean(returns))
		out.MeanReturn30D = &mean
		med := formulas.Round2(median(returns))
		out.MedianReturn30D = &med
	}
	return out, nil
}

func median(data []float64) float64 {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
