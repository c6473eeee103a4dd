package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
	"github.com/argusquant/argus/internal/modules/compute"
	"github.com/argusquant/argus/internal/modules/market"
	"github.com/argusquant/argus/internal/modules/performance"
	"github.com/argusquant/argus/internal/modules/recommend"
	"github.com/argusquant/argus/internal/modules/settings"
	"github.com/argusquant/argus/internal/modules/valuation"
)

// Recommender is the query surface of the recommendation engine.
type Recommender interface {
	Recommend(ctx context.Context, q recommend.Query) ([]*domain.Recommendation, error)
	Analyze(kind domain.Kind, code string, date domain.TradeDate) (*recommend.Analysis, error)
}

// FactorReader serves stored factor rows.
type FactorReader interface {
	StockFactors(code string, date domain.TradeDate) (*domain.StockFactors, error)
	FundFactors(code string, date domain.TradeDate) (*domain.FundFactors, error)
	LatestDate(kind domain.Kind) (domain.TradeDate, error)
}

// ComputeController drives the daily pipeline.
type ComputeController interface {
	Start(kind domain.Kind, opts compute.StartOptions) (string, error)
	Cancel() bool
	Progress() compute.Progress
	Subscribe() (<-chan compute.Progress, func())
}

// StatsSource aggregates performance statistics.
type StatsSource interface {
	Stats(recType domain.RecType, start, end domain.TradeDate) (*performance.Stats, error)
}

// RecordSource lists recorded recommendations.
type RecordSource interface {
	ByTypeAndRange(recType domain.RecType, start, end domain.TradeDate) ([]*domain.Recommendation, error)
}

// IntradayEstimator values a fund mid-session.
type IntradayEstimator interface {
	Estimate(ctx context.Context, code, etfHint string) (*valuation.Intraday, error)
}

// IndexBoard serves the cached index quotes.
type IndexBoard interface {
	Board() ([]market.IndexQuote, error)
}

// RunSource lists recent pipeline runs.
type RunSource interface {
	Recent(limit int) ([]compute.RunRecord, error)
}

// API bundles the request handlers for the service endpoints.
type API struct {
	engine    Recommender
	factors   FactorReader
	computer  ComputeController
	runs      RunSource
	stats     StatsSource
	records   RecordSource
	estimator IntradayEstimator
	indices   IndexBoard
	settings  *settings.Service
	log       zerolog.Logger
}

func NewAPI(
	engine Recommender,
	factors FactorReader,
	computer ComputeController,
	runs RunSource,
	stats StatsSource,
	records RecordSource,
	estimator IntradayEstimator,
	indices IndexBoard,
	settingsSvc *settings.Service,
	log zerolog.Logger,
) *API {
	return &API{
		engine:    engine,
		factors:   factors,
		computer:  computer,
		runs:      runs,
		stats:     stats,
		records:   records,
		estimator: estimator,
		indices:   indices,
		settings:  settingsSvc,
		log:       log.With().Str("handler", "api").Logger(),
	}
}

// Recommendations answers GET /api/recommendations. Stored preference
// profile applies unless the caller overrides fields via query params.
func (a *API) Recommendations(w http.ResponseWriter, r *http.Request) {
	q := recommend.Query{
		Strategy: domain.Strategy(r.URL.Query().Get("strategy")),
		Kind:     domain.Kind(r.URL.Query().Get("kind")),
	}
	if q.Strategy == "" {
		q.Strategy = domain.StrategyShortTerm
	}
	if q.Kind == "" {
		q.Kind = domain.KindStock
	}
	if !validStrategy(q.Strategy) {
		badRequest(w, "unknown strategy %q", q.Strategy)
		return
	}
	if !validKind(q.Kind) {
		badRequest(w, "unknown kind %q", q.Kind)
		return
	}
	q.TopN = queryInt(r, "top_n", 10)
	q.MinScore = queryFloat(r, "min_score", 0)
	q.TradeDate = domain.TradeDate(r.URL.Query().Get("date"))

	profile, err := a.settings.Profile()
	if err != nil {
		respondError(w, err)
		return
	}
	q.Prefs = &profile.Prefs

	recs, err := a.engine.Recommend(r.Context(), q)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := map[string]interface{}{
		"strategy":        q.Strategy,
		"kind":            q.Kind,
		"recommendations": recs,
	}
	if len(recs) == 0 {
		resp["hint"] = "no factor snapshot available, run the daily computation first"
	}
	respondJSON(w, http.StatusOK, resp)
}

// Analyze answers GET /api/analyze/{kind}/{code}.
func (a *API) Analyze(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(chi.URLParam(r, "kind"))
	if !validKind(kind) {
		badRequest(w, "unknown kind %q", kind)
		return
	}
	code, err := normalizeCode(kind, chi.URLParam(r, "code"))
	if err != nil {
		badRequest(w, "%s", err)
		return
	}

	analysis, err := a.engine.Analyze(kind, code, domain.TradeDate(r.URL.Query().Get("date")))
	if err != nil {
		respondError(w, err)
		return
	}
	if analysis == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{
			"error": "no stored factors for " + code,
		})
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// Factors answers GET /api/factors/{kind}/{code} with the raw row.
func (a *API) Factors(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(chi.URLParam(r, "kind"))
	if !validKind(kind) {
		badRequest(w, "unknown kind %q", kind)
		return
	}
	code, err := normalizeCode(kind, chi.URLParam(r, "code"))
	if err != nil {
		badRequest(w, "%s", err)
		return
	}

	date := domain.TradeDate(r.URL.Query().Get("date"))
	if date.IsZero() {
		date, err = a.factors.LatestDate(kind)
		if err != nil {
			respondError(w, err)
			return
		}
	}

	var row interface{}
	switch kind {
	case domain.KindStock:
		row, err = a.factors.StockFactors(code, date)
	default:
		row, err = a.factors.FundFactors(code, date)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	if isNilRow(row) {
		respondJSON(w, http.StatusNotFound, map[string]string{
			"error": "no factors stored for " + code + " @" + date.String(),
		})
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// PerformanceStats answers GET /api/performance/stats.
func (a *API) PerformanceStats(w http.ResponseWriter, r *http.Request) {
	recType := domain.RecType(r.URL.Query().Get("rec_type"))
	if recType != "" && !validRecType(recType) {
		badRequest(w, "unknown rec_type %q", recType)
		return
	}
	stats, err := a.stats.Stats(recType,
		domain.TradeDate(r.URL.Query().Get("start")),
		domain.TradeDate(r.URL.Query().Get("end")))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// PerformanceRecords answers GET /api/performance/records.
func (a *API) PerformanceRecords(w http.ResponseWriter, r *http.Request) {
	recType := domain.RecType(r.URL.Query().Get("rec_type"))
	if recType != "" && !validRecType(recType) {
		badRequest(w, "unknown rec_type %q", recType)
		return
	}
	recs, err := a.records.ByTypeAndRange(recType,
		domain.TradeDate(r.URL.Query().Get("start")),
		domain.TradeDate(r.URL.Query().Get("end")))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"records": recs})
}

// IntradayValuation answers GET /api/valuation/{code}.
func (a *API) IntradayValuation(w http.ResponseWriter, r *http.Request) {
	code, err := domain.NormalizeFundCode(chi.URLParam(r, "code"))
	if err != nil {
		badRequest(w, "%s", err)
		return
	}
	est, err := a.estimator.Estimate(r.Context(), code, r.URL.Query().Get("etf_hint"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, est)
}

// Indices answers GET /api/indices.
func (a *API) Indices(w http.ResponseWriter, r *http.Request) {
	board, err := a.indices.Board()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"indices": board})
}

type startComputeRequest struct {
	TradeDate string   `json:"trade_date"`
	Universe  string   `json:"universe"`
	Codes     []string `json:"codes"`
}

// StartCompute answers POST /api/compute/{kind}.
func (a *API) StartCompute(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(chi.URLParam(r, "kind"))
	if !validKind(kind) {
		badRequest(w, "unknown kind %q", kind)
		return
	}

	var req startComputeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body: %s", err)
			return
		}
	}

	runID, err := a.computer.Start(kind, compute.StartOptions{
		TradeDate: domain.TradeDate(req.TradeDate),
		Universe:  req.Universe,
		Codes:     req.Codes,
	})
	if err == compute.ErrAlreadyRunning {
		respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// ComputeProgress answers GET /api/compute/progress.
func (a *API) ComputeProgress(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.computer.Progress())
}

// CancelCompute answers POST /api/compute/cancel.
func (a *API) CancelCompute(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": a.computer.Cancel()})
}

// ComputeRuns answers GET /api/compute/runs.
func (a *API) ComputeRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.runs.Recent(queryInt(r, "limit", 20))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// AllSettings answers GET /api/settings.
func (a *API) AllSettings(w http.ResponseWriter, r *http.Request) {
	all, err := a.settings.All()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"settings": all})
}

// PutSetting answers PUT /api/settings/{key}.
func (a *API) PutSetting(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body: %s", err)
		return
	}
	key := chi.URLParam(r, "key")
	if err := a.settings.Set(key, body.Value); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}

// GetProfile answers GET /api/profile.
func (a *API) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.settings.Profile()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// PutProfile answers PUT /api/profile.
func (a *API) PutProfile(w http.ResponseWriter, r *http.Request) {
	var p settings.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		badRequest(w, "invalid request body: %s", err)
		return
	}
	if err := a.settings.SaveProfile(&p); err != nil {
		badRequest(w, "%s", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// isNilRow unwraps the typed nil a repository returns for a miss.
func isNilRow(v interface{}) bool {
	switch row := v.(type) {
	case *domain.StockFactors:
		return row == nil
	case *domain.FundFactors:
		return row == nil
	}
	return v == nil
}

func validKind(k domain.Kind) bool {
	return k == domain.KindStock || k == domain.KindFund
}

func validStrategy(s domain.Strategy) bool {
	return s == domain.StrategyShortTerm || s == domain.StrategyLongTerm
}

func validRecType(t domain.RecType) bool {
	switch t {
	case domain.RecShortStock, domain.RecLongStock, domain.RecShortFund, domain.RecLongFund:
		return true
	}
	return false
}

func normalizeCode(kind domain.Kind, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if kind == domain.KindStock {
		return domain.NormalizeStockCode(raw)
	}
	return domain.NormalizeFundCode(raw)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
