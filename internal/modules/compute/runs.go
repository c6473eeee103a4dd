package compute

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/domain"
)

// RunRecord is one row of the job-run audit trail.
type RunRecord struct {
	ID         string           `json:"id"`
	Job        string           `json:"job"`
	Kind       domain.Kind      `json:"kind,omitempty"`
	TradeDate  domain.TradeDate `json:"trade_date,omitempty"`
	Status     Status           `json:"status"`
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// RunLog records pipeline runs in the cache database so past runs
// survive a restart and show up on the status endpoint.
type RunLog struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunLog builds a run log over the cache database.
func NewRunLog(db *sql.DB, log zerolog.Logger) *RunLog {
	return &RunLog{db: db, log: log.With().Str("component", "runlog").Logger()}
}

// Begin opens a new run row and returns its id.
func (l *RunLog) Begin(job string, kind domain.Kind, date domain.TradeDate, total int) (string, error) {
	id := uuid.NewString()
	_, err := l.db.Exec(`INSERT INTO job_runs
		(id, job, kind, trade_date, status, total, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, job, string(kind), date.String(), string(StatusRunning), total,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return id, nil
}

// Finish closes a run row with its outcome.
func (l *RunLog) Finish(id string, status Status, succeeded, failed int, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := l.db.Exec(`UPDATE job_runs
		SET status = ?, succeeded = ?, failed = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(status), succeeded, failed, msg,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// Recent returns the newest runs, most recent first.
func (l *RunLog) Recent(limit int) ([]RunRecord, error) {
	rows, err := l.db.Query(`SELECT id, job, kind, trade_date, status, total,
		succeeded, failed, error, started_at, finished_at
		FROM job_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var kind, date, status, started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.Job, &kind, &date, &status, &r.Total,
			&r.Succeeded, &r.Failed, &r.Error, &started, &finished); err != nil {
			return nil, err
		}
		r.Kind = domain.Kind(kind)
		r.TradeDate = domain.TradeDate(date)
		r.Status = Status(status)
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			r.StartedAt = t
		}
		if finished.Valid {
			if t, err := time.Parse(time.RFC3339, finished.String); err == nil {
				r.FinishedAt = &t
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
