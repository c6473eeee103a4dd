// Package recommend turns stored factor rows into ranked, screened
// recommendations. The engine only reads the factor store: an empty
// store yields an empty result and never triggers an on-demand
// computation, the daily pipeline being the sole writer.
package recommend

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/modules/market"
	"github.com/argusquant/argus/internal/modules/scoring"
	"github.com/argusquant/argus/pkg/formulas"
)

// Quality gate thresholds for long-horizon stock picks.
const (
	gateMinROE       = 10.0
	gateMinOCFRatio  = 0.5
	gateMaxDebtRatio = 80.0
)

// recordLimit caps how many picks per query feed the performance
// tracker.
const recordLimit = 5

// FactorSource is the slice of the factor store the engine reads.
type FactorSource interface {
	TopStocks(date domain.TradeDate, strategy domain.Strategy, minScore float64, n int) ([]*domain.StockFactors, error)
	TopFunds(date domain.TradeDate, strategy domain.Strategy, minScore float64, n int) ([]*domain.FundFactors, error)
	StockFactors(code string, date domain.TradeDate) (*domain.StockFactors, error)
	FundFactors(code string, date domain.TradeDate) (*domain.FundFactors, error)
	LatestDate(kind domain.Kind) (domain.TradeDate, error)
}

// InfoSource resolves instrument metadata for screening and display.
type InfoSource interface {
	Stock(code string) (*market.StockInfo, error)
	Fund(code string) (*market.FundInfo, error)
}

// ValuationSource resolves the latest close and valuation of a stock.
type ValuationSource interface {
	Get(code string) (*market.Snapshot, error)
}

// Recorder persists returned picks for forward grading.
type Recorder interface {
	Record(rec *domain.Recommendation) error
}

// Annotator attaches prose explanations in place, best effort.
type Annotator interface {
	Annotate(ctx context.Context, recs []*domain.Recommendation)
}

// Query selects one recommendation run.
type Query struct {
	Strategy  domain.Strategy
	Kind      domain.Kind
	TopN      int
	MinScore  float64
	TradeDate domain.TradeDate // empty resolves the newest stored date
	Prefs     *domain.UserPrefs
}

// Engine composes the factor store, screening metadata, the annotator
// and the performance recorder into the recommendation query path.
type Engine struct {
	factors   FactorSource
	info      InfoSource
	valuation ValuationSource
	recorder  Recorder
	annotator Annotator
	log       zerolog.Logger
}

// New builds an engine. The annotator may be nil; explanations are then
// left to the rule-based key factors.
func New(factors FactorSource, info InfoSource, valuation ValuationSource, recorder Recorder, annotator Annotator, log zerolog.Logger) *Engine {
	return &Engine{
		factors:   factors,
		info:      info,
		valuation: valuation,
		recorder:  recorder,
		annotator: annotator,
		log:       log.With().Str("service", "recommend").Logger(),
	}
}

// Recommend answers a buy query: over-fetch top rows by score, screen
// them against the user's preferences, boost preferred industries,
// rank, annotate, and record the result.
func (e *Engine) Recommend(ctx context.Context, q Query) ([]*domain.Recommendation, error) {
	if q.TopN < 1 {
		q.TopN = 10
	}

	date := q.TradeDate
	if date.IsZero() {
		latest, err := e.factors.LatestDate(q.Kind)
		if err != nil {
			return nil, err
		}
		if latest.IsZero() {
			return []*domain.Recommendation{}, nil
		}
		date = latest
	}

	var recs []*domain.Recommendation
	var err error
	if q.Kind == domain.KindStock {
		recs, err = e.stockPicks(q, date)
	} else {
		recs, err = e.fundPicks(q, date)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Code < recs[j].Code
	})
	if len(recs) > q.TopN {
		recs = recs[:q.TopN]
	}

	if e.annotator != nil {
		e.annotator.Annotate(ctx, recs)
	}
	e.record(recs)
	return recs, nil
}

// Analysis is the single-instrument re-score of a stored factor row.
type Analysis struct {
	Code            string              `json:"code"`
	Name            string              `json:"name,omitempty"`
	TradeDate       domain.TradeDate    `json:"trade_date"`
	ShortTerm       *float64            `json:"short_term"`
	LongTerm        *float64            `json:"long_term"`
	ShortComponents map[string]float64  `json:"short_components,omitempty"`
	LongComponents  map[string]float64  `json:"long_components,omitempty"`
	Factors         map[string]*float64 `json:"factors"`
}

// Analyze re-scores one stored factor row. Nil when no row exists for
// the date; it never computes factors on demand.
func (e *Engine) Analyze(kind domain.Kind, code string, date domain.TradeDate) (*Analysis, error) {
	if date.IsZero() {
		latest, err := e.factors.LatestDate(kind)
		if err != nil {
			return nil, err
		}
		if latest.IsZero() {
			return nil, nil
		}
		date = latest
	}

	out := &Analysis{Code: code, TradeDate: date}
	if kind == domain.KindStock {
		row, err := e.factors.StockFactors(code, date)
		if err != nil || row == nil {
			return nil, err
		}
		s := scoring.ScoreStock(row)
		out.ShortTerm, out.LongTerm = s.ShortTerm, s.LongTerm
		out.ShortComponents, out.LongComponents = s.ShortComponents, s.LongComponents
		out.Factors = row.AsMap()
		if info, err := e.info.Stock(code); err == nil && info != nil {
			out.Name = info.Name
		}
		return out, nil
	}

	row, err := e.factors.FundFactors(code, date)
	if err != nil || row == nil {
		return nil, err
	}
	s := scoring.ScoreFund(row)
	out.ShortTerm, out.LongTerm = s.ShortTerm, s.LongTerm
	out.ShortComponents, out.LongComponents = s.ShortComponents, s.LongComponents
	out.Factors = row.AsMap()
	if info, err := e.info.Fund(code); err == nil && info != nil {
		out.Name = info.Name
	}
	return out, nil
}

func (e *Engine) stockPicks(q Query, date domain.TradeDate) ([]*domain.Recommendation, error) {
	rows, err := e.factors.TopStocks(date, q.Strategy, q.MinScore, q.TopN*2)
	if err != nil {
		return nil, err
	}

	recType := domain.RecTypeFor(q.Strategy, domain.KindStock)
	target, stop := recType.Targets()
	recs := make([]*domain.Recommendation, 0, len(rows))
	for _, row := range rows {
		scorePtr := row.Score(q.Strategy)
		if scorePtr == nil {
			continue
		}
		if q.Strategy == domain.StrategyLongTerm && !passesQualityGate(row) {
			continue
		}

		info := e.stockInfo(row.Code)
		snap := e.snapshot(row.Code)
		if !passStockPrefs(q.Prefs, row, info, snap) {
			continue
		}

		score := *scorePtr
		if preferred(q.Prefs, info) {
			score = formulas.Clamp(score*domain.PreferredBoost, 0, 100)
		}
		score = formulas.Round2(score)
		if score < q.MinScore {
			continue
		}

		rec := &domain.Recommendation{
			ID:           uuid.NewString(),
			RecType:      recType,
			Code:         row.Code,
			TradeDate:    date,
			Score:        score,
			Confidence:   domain.ConfidenceFor(score),
			KeyFactors:   StockKeyFactors(row, score),
			TargetReturn: target,
			StopLoss:     stop,
			Status:       domain.RecStatusPending,
			CreatedAt:    time.Now().UTC(),
		}
		if info != nil {
			rec.Name = info.Name
		}
		if snap != nil {
			rec.EntryPrice = snap.Close
		}
		sc := scoring.ScoreStock(row)
		if q.Strategy == domain.StrategyShortTerm {
			rec.Components = sc.ShortComponents
		} else {
			rec.Components = sc.LongComponents
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (e *Engine) fundPicks(q Query, date domain.TradeDate) ([]*domain.Recommendation, error) {
	rows, err := e.factors.TopFunds(date, q.Strategy, q.MinScore, q.TopN*2)
	if err != nil {
		return nil, err
	}

	recType := domain.RecTypeFor(q.Strategy, domain.KindFund)
	target, stop := recType.Targets()
	recs := make([]*domain.Recommendation, 0, len(rows))
	for _, row := range rows {
		scorePtr := row.Score(q.Strategy)
		if scorePtr == nil {
			continue
		}
		score := formulas.Round2(*scorePtr)

		rec := &domain.Recommendation{
			ID:           uuid.NewString(),
			RecType:      recType,
			Code:         row.Code,
			TradeDate:    date,
			Score:        score,
			Confidence:   domain.ConfidenceFor(score),
			KeyFactors:   FundKeyFactors(row, score),
			TargetReturn: target,
			StopLoss:     stop,
			Status:       domain.RecStatusPending,
			CreatedAt:    time.Now().UTC(),
		}
		if info, err := e.info.Fund(row.Code); err == nil && info != nil {
			rec.Name = info.Name
		}
		sc := scoring.ScoreFund(row)
		if q.Strategy == domain.StrategyShortTerm {
			rec.Components = sc.ShortComponents
		} else {
			rec.Components = sc.LongComponents
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// passesQualityGate screens long-horizon stock picks on financial
// soundness. A missing ROE fails; the other two only bind when present.
func passesQualityGate(f *domain.StockFactors) bool {
	if f.ROE == nil || *f.ROE < gateMinROE {
		return false
	}
	if f.OCFToProfit != nil && *f.OCFToProfit < gateMinOCFRatio {
		return false
	}
	if f.DebtRatio != nil && *f.DebtRatio > gateMaxDebtRatio {
		return false
	}
	return true
}

func passStockPrefs(p *domain.UserPrefs, row *domain.StockFactors, info *market.StockInfo, snap *market.Snapshot) bool {
	if p == nil {
		return true
	}
	if info != nil {
		if p.ExcludeST && info.IsST {
			return false
		}
		for _, ind := range p.ExcludeIndustries {
			if strings.EqualFold(ind, info.Industry) {
				return false
			}
		}
	}
	// An unknown industry cannot satisfy a require list.
	if len(p.RequiredIndustries) > 0 {
		match := false
		if info != nil {
			for _, ind := range p.RequiredIndustries {
				if strings.EqualFold(ind, info.Industry) {
					match = true
					break
				}
			}
		}
		if !match {
			return false
		}
	}
	if p.MinROE != nil && (row.ROE == nil || *row.ROE < *p.MinROE) {
		return false
	}
	if snap != nil {
		if (p.MaxPE != nil || p.RequireProfitable) && snap.PE != nil && *snap.PE <= 0 {
			return false
		}
		if p.MaxPE != nil && snap.PE != nil && *snap.PE > *p.MaxPE {
			return false
		}
		if p.MinMarketCap != nil && snap.TotalMV != nil && *snap.TotalMV < *p.MinMarketCap {
			return false
		}
		if p.MaxMarketCap != nil && snap.TotalMV != nil && *snap.TotalMV > *p.MaxMarketCap {
			return false
		}
		if p.MinTurnoverRate != nil && snap.TurnoverRate != nil && *snap.TurnoverRate < *p.MinTurnoverRate {
			return false
		}
	}
	return true
}

func preferred(p *domain.UserPrefs, info *market.StockInfo) bool {
	if p == nil || info == nil {
		return false
	}
	for _, ind := range p.PreferredIndustries {
		if strings.EqualFold(ind, info.Industry) {
			return true
		}
	}
	return false
}

func (e *Engine) stockInfo(code string) *market.StockInfo {
	info, err := e.info.Stock(code)
	if err != nil {
		e.log.Debug().Err(err).Str("code", code).Msg("stock info lookup failed")
		return nil
	}
	return info
}

func (e *Engine) snapshot(code string) *market.Snapshot {
	if e.valuation == nil {
		return nil
	}
	snap, err := e.valuation.Get(code)
	if err != nil {
		e.log.Debug().Err(err).Str("code", code).Msg("snapshot lookup failed")
		return nil
	}
	return snap
}

// record hands the first picks to the performance tracker. Recording is
// best effort; a write failure never removes a pick from the response.
func (e *Engine) record(recs []*domain.Recommendation) {
	if e.recorder == nil {
		return
	}
	for i, rec := range recs {
		if i >= recordLimit {
			break
		}
		if err := e.recorder.Record(rec); err != nil {
			e.log.Warn().Err(err).Str("code", rec.Code).Msg("recommendation not recorded")
		}
	}
}
