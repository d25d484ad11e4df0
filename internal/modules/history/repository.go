// Package history provides read access to historical price series.
// The engine consumes these series as-is; acquisition and deduplication are
// the responsibility of whatever ingestion process fills the store.
package history

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantcockpit/engine/internal/domain"
)

// PriceProvider exposes, per ticker, an ordered sequence of
// (date, adjusted close) observations over a caller-specified date range.
type PriceProvider interface {
	GetPriceSeries(ticker, fromDate, toDate string) ([]domain.PricePoint, error)
	ListTickers() ([]string, error)
}

// Repository is a sqlite-backed PriceProvider.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new price history repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "history").Logger(),
	}
}

// Migrate creates the price history tables if they do not exist.
func (r *Repository) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL UNIQUE,
		sector TEXT
	);
	CREATE TABLE IF NOT EXISTS stock_prices (
		stock_id INTEGER NOT NULL REFERENCES stocks(id),
		date TEXT NOT NULL,
		close REAL NOT NULL,
		PRIMARY KEY (stock_id, date)
	);
	CREATE INDEX IF NOT EXISTS idx_stock_prices_date ON stock_prices(date);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply history schema: %w", err)
	}
	return nil
}

// GetPriceSeries returns the ordered (ascending by date) price series for a
// ticker within [fromDate, toDate]. Empty date bounds mean unbounded.
func (r *Repository) GetPriceSeries(ticker, fromDate, toDate string) ([]domain.PricePoint, error) {
	query := `
		SELECT stock_prices.date, stock_prices.close
		FROM stock_prices
		JOIN stocks ON stock_prices.stock_id = stocks.id
		WHERE stocks.symbol = ?
		  AND (? = '' OR stock_prices.date >= ?)
		  AND (? = '' OR stock_prices.date <= ?)
		ORDER BY stock_prices.date ASC
	`

	rows, err := r.db.Query(query, ticker, fromDate, fromDate, toDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", ticker, err)
	}
	defer rows.Close()

	var series []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price row for %s: %w", ticker, err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows for %s: %w", ticker, err)
	}

	r.log.Debug().
		Str("ticker", ticker).
		Int("observations", len(series)).
		Msg("Fetched price series")

	return series, nil
}

// ListTickers returns all known symbols, alphabetically.
func (r *Repository) ListTickers() ([]string, error) {
	rows, err := r.db.Query(`SELECT symbol FROM stocks ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}

	return tickers, nil
}
