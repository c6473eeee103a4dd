package performance

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
)

// Repository owns the recommendation_performance table. Records are
// written once by the engine; only the tracker touches the forward
// fields afterwards.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository builds a repository over the performance database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "perf_repository").Logger()}
}

// Record stores one recommendation for forward grading. A duplicate
// (rec_type, code, trade_date) is silently ignored; the first write of
// a session wins.
func (r *Repository) Record(rec *domain.Recommendation) error {
	factors, err := json.Marshal(rec.KeyFactors)
	if err != nil {
		return fmt.Errorf("encode key factors: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.Exec(`INSERT OR IGNORE INTO recommendation_performance
		(id, rec_type, code, name, trade_date, score, confidence, key_factors,
		 entry_price, target_return_pct, stop_loss_pct, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.RecType), rec.Code, rec.Name, rec.TradeDate.String(),
		rec.Score, string(rec.Confidence), string(factors),
		floatArg(rec.EntryPrice), rec.TargetReturn, rec.StopLoss,
		domain.RecStatusPending, now, now)
	if err != nil {
		return fmt.Errorf("record recommendation %s/%s: %w", rec.RecType, rec.Code, err)
	}
	return nil
}

// Unevaluated returns records the tracker still owes an evaluation,
// oldest first.
func (r *Repository) Unevaluated() ([]*domain.Recommendation, error) {
	return r.query(`SELECT `+recColumns+` FROM recommendation_performance
		WHERE status IN (?, ?) ORDER BY trade_date ASC`,
		domain.RecStatusPending, domain.RecStatusEvaluated7)
}

// ByTypeAndRange lists records of one type (empty for all) whose
// recommendation date falls inside [start, end]; zero bounds are open.
func (r *Repository) ByTypeAndRange(recType domain.RecType, start, end domain.TradeDate) ([]*domain.Recommendation, error) {
	q := `SELECT ` + recColumns + ` FROM recommendation_performance WHERE 1=1`
	var args []interface{}
	if recType != "" {
		q += ` AND rec_type = ?`
		args = append(args, string(recType))
	}
	if !start.IsZero() {
		q += ` AND trade_date >= ?`
		args = append(args, start.String())
	}
	if !end.IsZero() {
		q += ` AND trade_date <= ?`
		args = append(args, end.String())
	}
	q += ` ORDER BY trade_date DESC, code ASC`
	return r.query(q, args...)
}

// Evaluation carries one tracker pass over a record.
type Evaluation struct {
	Price7D   *float64
	Return7D  *float64
	Price30D  *float64
	Return30D *float64
	HitTarget *bool
	HitStop   *bool
	Final     *float64
	Status    string
}

// ApplyEvaluation writes forward fields. Nil evaluation fields leave the
// stored value untouched, so the 7d and 30d passes accumulate.
func (r *Repository) ApplyEvaluation(id string, ev Evaluation) error {
	_, err := r.db.Exec(`UPDATE recommendation_performance SET
		price_7d     = COALESCE(?, price_7d),
		return_7d    = COALESCE(?, return_7d),
		price_30d    = COALESCE(?, price_30d),
		return_30d   = COALESCE(?, return_30d),
		hit_target   = COALESCE(?, hit_target),
		hit_stop     = COALESCE(?, hit_stop),
		final_return = COALESCE(?, final_return),
		status       = ?,
		updated_at   = ?
		WHERE id = ?`,
		floatArg(ev.Price7D), floatArg(ev.Return7D),
		floatArg(ev.Price30D), floatArg(ev.Return30D),
		boolArg(ev.HitTarget), boolArg(ev.HitStop),
		floatArg(ev.Final), ev.Status,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("apply evaluation %s: %w", id, err)
	}
	return nil
}

const recColumns = `id, rec_type, code, name, trade_date, score, confidence,
	key_factors, entry_price, target_return_pct, stop_loss_pct,
	price_7d, return_7d, price_30d, return_30d, hit_target, hit_stop,
	final_return, status, created_at, updated_at`

func (r *Repository) query(q string, args ...interface{}) ([]*domain.Recommendation, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Recommendation
	for rows.Next() {
		rec, err := scanRec(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRec(rows *sql.Rows) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	var recType, confidence, tradeDate, created, updated string
	var factors sql.NullString
	var name sql.NullString
	var hitTarget, hitStop sql.NullInt64
	err := rows.Scan(&rec.ID, &recType, &rec.Code, &name, &tradeDate,
		&rec.Score, &confidence, &factors,
		&rec.EntryPrice, &rec.TargetReturn, &rec.StopLoss,
		&rec.Price7D, &rec.Return7D, &rec.Price30D, &rec.Return30D,
		&hitTarget, &hitStop, &rec.FinalReturn, &rec.Status, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("scan recommendation: %w", err)
	}
	rec.RecType = domain.RecType(recType)
	rec.Confidence = domain.Confidence(confidence)
	rec.TradeDate = domain.TradeDate(tradeDate)
	rec.Name = name.String
	if factors.Valid && factors.String != "" {
		_ = json.Unmarshal([]byte(factors.String), &rec.KeyFactors)
	}
	if hitTarget.Valid {
		v := hitTarget.Int64 == 1
		rec.HitTarget = &v
	}
	if hitStop.Valid {
		v := hitStop.Int64 == 1
		rec.HitStop = &v
	}
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		rec.CreatedAt = t
	}
	if rec.Status != domain.RecStatusPending {
		if t, err := time.Parse(time.RFC3339, updated); err == nil {
			rec.EvaluatedAt = &t
		}
	}
	return &rec, nil
}

func floatArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolArg(v *bool) interface{} {
	if v == nil {
		return nil
	}
	if *v {
		return 1
	}
	return 0
}
