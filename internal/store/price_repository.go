// Package store implements the contracts repository interfaces over
// PostgreSQL. Every write is an upsert keyed by the record's natural
// unique key.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// PriceRepository implements contracts.PriceRepository
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// GetRecent returns the most recent bars for an instrument, oldest first
func (r *PriceRepository) GetRecent(ctx context.Context, instrument string, days int) ([]contracts.PriceRecord, error) {
	query := `
		SELECT instrument_code, trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_prices
		WHERE instrument_code = $1
			AND trade_date >= (
				SELECT COALESCE(MAX(trade_date), CURRENT_DATE) FROM data.daily_prices WHERE instrument_code = $1
			) - $2::int
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, instrument, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPrices(rows)
}

// GetRange returns bars within [from, to], oldest first
func (r *PriceRepository) GetRange(ctx context.Context, instrument string, from, to time.Time) ([]contracts.PriceRecord, error) {
	query := `
		SELECT instrument_code, trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_prices
		WHERE instrument_code = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, instrument, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPrices(rows)
}

// GetClose returns the close price on a date, or ErrNotFound
func (r *PriceRepository) GetClose(ctx context.Context, instrument string, date time.Time) (float64, error) {
	query := `
		SELECT close_price
		FROM data.daily_prices
		WHERE instrument_code = $1 AND trade_date = $2
	`

	var close float64
	err := r.pool.QueryRow(ctx, query, instrument, date).Scan(&close)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, contracts.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return close, nil
}

// Latest returns the most recent bar for an instrument
func (r *PriceRepository) Latest(ctx context.Context, instrument string) (*contracts.PriceRecord, error) {
	query := `
		SELECT instrument_code, trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_prices
		WHERE instrument_code = $1
		ORDER BY trade_date DESC
		LIMIT 1
	`

	var p contracts.PriceRecord
	err := r.pool.QueryRow(ctx, query, instrument).Scan(
		&p.Instrument, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert writes a single bar, replacing any existing bar for the same
// (instrument, date). Late vendor corrections overwrite cleanly.
func (r *PriceRepository) Upsert(ctx context.Context, rec *contracts.PriceRecord) error {
	query := `
		INSERT INTO data.daily_prices (instrument_code, trade_date, open_price, high_price, low_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instrument_code, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`

	_, err := r.pool.Exec(ctx, query,
		rec.Instrument, rec.Date, rec.Open, rec.High, rec.Low, rec.Close, rec.Volume,
	)
	return err
}

// UpsertBatch writes multiple bars
func (r *PriceRepository) UpsertBatch(ctx context.Context, recs []contracts.PriceRecord) error {
	for i := range recs {
		if err := r.Upsert(ctx, &recs[i]); err != nil {
			return err
		}
	}
	return nil
}

func scanPrices(rows pgx.Rows) ([]contracts.PriceRecord, error) {
	var prices []contracts.PriceRecord
	for rows.Next() {
		var p contracts.PriceRecord
		if err := rows.Scan(&p.Instrument, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
