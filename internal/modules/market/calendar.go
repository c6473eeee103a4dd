// Package market maintains the reference data the pipeline runs
// against: the trading calendar, the listed-instrument universe, daily
// valuation snapshots and a small board of index quotes.
package market

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/clients/tushare"
	"github.com/argusquant/argus/internal/database"
	"github.com/argusquant/argus/internal/domain"
)

// CalendarSource provides the exchange calendar. *tushare.Client
// satisfies it.
type CalendarSource interface {
	TradeCalendar(ctx context.Context, start, end domain.TradeDate) ([]tushare.CalendarDay, error)
}

// CalendarService answers trading-day questions from the synced SSE
// calendar. Dates outside the synced range fall back to a five-weekday
// approximation, which misses exchange holidays but never blocks.
type CalendarService struct {
	db   *sql.DB
	data CalendarSource
	log  zerolog.Logger
}

// NewCalendarService builds a calendar service over the market database.
func NewCalendarService(db *sql.DB, data CalendarSource, log zerolog.Logger) *CalendarService {
	return &CalendarService{
		db:   db,
		data: data,
		log:  log.With().Str("service", "calendar").Logger(),
	}
}

// Sync fetches the calendar over [start, end] and upserts it.
func (s *CalendarService) Sync(ctx context.Context, start, end domain.TradeDate) error {
	days, err := s.data.TradeCalendar(ctx, start, end)
	if err != nil {
		return fmt.Errorf("fetch trade calendar: %w", err)
	}

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO trade_calendar (cal_date, is_open) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range days {
			open := 0
			if d.IsOpen {
				open = 1
			}
			if _, err := stmt.Exec(d.Date.String(), open); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store trade calendar: %w", err)
	}

	s.log.Info().
		Str("start", start.String()).
		Str("end", end.String()).
		Int("days", len(days)).
		Msg("trade calendar synced")
	return nil
}

// IsTradingDay reports whether date is an exchange session.
func (s *CalendarService) IsTradingDay(date domain.TradeDate) (bool, error) {
	var open int
	err := s.db.QueryRow(`SELECT is_open FROM trade_calendar WHERE cal_date = ?`, date.String()).Scan(&open)
	switch {
	case err == sql.ErrNoRows:
		return isWeekday(date), nil
	case err != nil:
		return false, fmt.Errorf("query trade calendar: %w", err)
	}
	return open == 1, nil
}

// LatestTradeDate returns the most recent session on or before ref.
func (s *CalendarService) LatestTradeDate(ref domain.TradeDate) (domain.TradeDate, error) {
	var d sql.NullString
	err := s.db.QueryRow(
		`SELECT MAX(cal_date) FROM trade_calendar WHERE is_open = 1 AND cal_date <= ?`,
		ref.String(),
	).Scan(&d)
	if err != nil {
		return "", fmt.Errorf("query latest trade date: %w", err)
	}
	if d.Valid && d.String != "" {
		return domain.TradeDate(d.String), nil
	}
	// No coverage: walk back to the nearest weekday.
	for cur := ref; ; cur = cur.AddCalendarDays(-1) {
		if isWeekday(cur) {
			return cur, nil
		}
	}
}

// AddTradeDays moves n sessions forward (or back, for negative n) from
// date. Used to find the +7 and +30 trade-day evaluation points.
func (s *CalendarService) AddTradeDays(date domain.TradeDate, n int) (domain.TradeDate, error) {
	if n == 0 {
		return date, nil
	}

	query := `SELECT cal_date FROM trade_calendar WHERE is_open = 1 AND cal_date > ? ORDER BY cal_date ASC LIMIT ?`
	if n < 0 {
		query = `SELECT cal_date FROM trade_calendar WHERE is_open = 1 AND cal_date < ? ORDER BY cal_date DESC LIMIT ?`
	}
	want := n
	if want < 0 {
		want = -want
	}

	rows, err := s.db.Query(query, date.String(), want)
	if err != nil {
		return "", fmt.Errorf("query trade calendar: %w", err)
	}
	defer rows.Close()

	var last domain.TradeDate
	got := 0
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return "", fmt.Errorf("scan trade calendar: %w", err)
		}
		last = domain.TradeDate(d)
		got++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if got == want {
		return last, nil
	}

	// Insufficient coverage: approximate with weekdays.
	return addWeekdays(date, n), nil
}

// MaxSyncedDate returns the last date the calendar covers, zero when
// nothing is synced yet.
func (s *CalendarService) MaxSyncedDate() (domain.TradeDate, error) {
	var d sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(cal_date) FROM trade_calendar`).Scan(&d); err != nil {
		return "", fmt.Errorf("query calendar coverage: %w", err)
	}
	if !d.Valid {
		return "", nil
	}
	return domain.TradeDate(d.String), nil
}

func isWeekday(d domain.TradeDate) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func addWeekdays(date domain.TradeDate, n int) domain.TradeDate {
	step := 1
	if n < 0 {
		step, n = -1, -n
	}
	cur := date
	for n > 0 {
		cur = cur.AddCalendarDays(step)
		if isWeekday(cur) {
			n--
		}
	}
	return cur
}
