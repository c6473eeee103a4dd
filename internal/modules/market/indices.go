package market

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/argusquant/argus/internal/database"
	"github.com/argusquant/argus/internal/domain"
)

// QuoteProvider fetches one realtime quote. The eastmoney push2 client
// satisfies it; index codes travel through the stock secid path.
type QuoteProvider interface {
	Quote(ctx context.Context, kind domain.Kind, code string) (*domain.Quote, error)
}

// DefaultIndices is the board refreshed every few minutes during the
// session.
var DefaultIndices = []struct {
	Code string
	Name string
}{
	{"000001.SH", "上证指数"},
	{"399001.SZ", "深证成指"},
	{"000300.SH", "沪深300"},
	{"399006.SZ", "创业板指"},
	{"000688.SH", "科创50"},
}

// IndexQuote is one index's latest board entry.
type IndexQuote struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndicesService keeps the index board fresh.
type IndicesService struct {
	db     *sql.DB
	quotes QuoteProvider
	log    zerolog.Logger
}

// NewIndicesService builds the index board service.
func NewIndicesService(db *sql.DB, quotes QuoteProvider, log zerolog.Logger) *IndicesService {
	return &IndicesService{
		db:     db,
		quotes: quotes,
		log:    log.With().Str("service", "indices").Logger(),
	}
}

// Refresh fetches every board index and upserts the quotes. A single
// failing index is logged and skipped; the rest of the board updates.
func (s *IndicesService) Refresh(ctx context.Context) error {
	now := time.Now().UTC()
	updated := 0
	for _, idx := range DefaultIndices {
		q, err := s.quotes.Quote(ctx, domain.KindStock, idx.Code)
		if err != nil {
			s.log.Debug().Err(err).Str("index", idx.Code).Msg("index quote unavailable")
			continue
		}
		err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
			_, err := tx.Exec(`INSERT OR REPLACE INTO index_quotes
				(code, name, price, change_pct, updated_at) VALUES (?, ?, ?, ?, ?)`,
				idx.Code, idx.Name, q.Price, q.ChangePct, now.Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("store index quote %s: %w", idx.Code, err)
		}
		updated++
	}
	if updated == 0 {
		return fmt.Errorf("refresh indices: no quotes available")
	}
	s.log.Debug().Int("updated", updated).Msg("index board refreshed")
	return nil
}

// Board returns the stored index quotes.
func (s *IndicesService) Board() ([]IndexQuote, error) {
	rows, err := s.db.Query(`SELECT code, name, price, change_pct, updated_at FROM index_quotes ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query index board: %w", err)
	}
	defer rows.Close()

	var out []IndexQuote
	for rows.Next() {
		var q IndexQuote
		var at string
		if err := rows.Scan(&q.Code, &q.Name, &q.Price, &q.ChangePct, &at); err != nil {
			return nil, err
		}
		q.UpdatedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, q)
	}
	return out, rows.Err()
}
