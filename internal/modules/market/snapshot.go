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

// SnapshotSource provides the market-wide daily valuation snapshot.
// *tushare.Client satisfies it.
type SnapshotSource interface {
	DailyBasicByDate(ctx context.Context, date domain.TradeDate) ([]tushare.SnapshotRow, error)
}

// Snapshot is one stock's latest close and valuation, used for
// preference screening and as the recommendation entry price.
type Snapshot struct {
	Code         string           `json:"code"`
	TradeDate    domain.TradeDate `json:"trade_date"`
	Close        *float64         `json:"close,omitempty"`
	PE           *float64         `json:"pe,omitempty"`
	PB           *float64         `json:"pb,omitempty"`
	TotalMV      *float64         `json:"total_mv,omitempty"` // 亿元
	CircMV       *float64         `json:"circ_mv,omitempty"`  // 亿元
	TurnoverRate *float64         `json:"turnover_rate,omitempty"`
}

// SnapshotService syncs and serves the daily valuation snapshot.
type SnapshotService struct {
	db   *sql.DB
	data SnapshotSource
	log  zerolog.Logger
}

// NewSnapshotService builds a snapshot service over the market database.
func NewSnapshotService(db *sql.DB, data SnapshotSource, log zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		db:   db,
		data: data,
		log:  log.With().Str("service", "snapshot").Logger(),
	}
}

// Sync replaces the snapshot with the given session's market-wide
// valuation. Market caps arrive in 万元 and are stored in 亿元.
func (s *SnapshotService) Sync(ctx context.Context, date domain.TradeDate) error {
	rows, err := s.data.DailyBasicByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("fetch daily snapshot: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO stock_snapshot
			(code, trade_date, close, pe, pb, total_mv, circ_mv, turnover_rate, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			code, err := domain.NormalizeStockCode(r.TSCode)
			if err != nil {
				continue
			}
			if _, err := stmt.Exec(code, r.TradeDate.String(), floatArg(r.Close),
				floatArg(r.PE), floatArg(r.PB),
				floatArg(toYi(r.TotalMV)), floatArg(toYi(r.CircMV)),
				floatArg(r.TurnoverRate), now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store daily snapshot: %w", err)
	}

	s.log.Info().Str("trade_date", date.String()).Int("stocks", len(rows)).Msg("valuation snapshot synced")
	return nil
}

// Get returns one stock's snapshot row, nil when unknown.
func (s *SnapshotService) Get(code string) (*Snapshot, error) {
	row := s.db.QueryRow(`SELECT code, trade_date, close, pe, pb, total_mv, circ_mv, turnover_rate
		FROM stock_snapshot WHERE code = ?`, code)

	var snap Snapshot
	var date string
	err := row.Scan(&snap.Code, &date, &snap.Close, &snap.PE, &snap.PB,
		&snap.TotalMV, &snap.CircMV, &snap.TurnoverRate)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("query snapshot %s: %w", code, err)
	}
	snap.TradeDate = domain.TradeDate(date)
	return &snap, nil
}

// toYi converts a 万元 amount to 亿元.
func toYi(v *float64) *float64 {
	if v == nil {
		return nil
	}
	y := *v / 10000
	return &y
}

func floatArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
