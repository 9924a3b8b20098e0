package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"track-rainfall/internal/rainfall"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createDailyRainfallSQL = `CREATE TABLE IF NOT EXISTS daily_rainfall (
        station_id  TEXT        NOT NULL,
        day         DATE        NOT NULL,
        rainfall_mm NUMERIC     NOT NULL,
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (station_id, day)
    );`

	upsertDailyRainfallSQL = `INSERT INTO daily_rainfall (
        station_id,
        day,
        rainfall_mm
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (station_id, day) DO UPDATE
    SET
        rainfall_mm = EXCLUDED.rainfall_mm,
        updated_at  = now();`

	listDailyRainfallBetweenSQL = `SELECT
        day,
        rainfall_mm::text
    FROM daily_rainfall
    WHERE station_id = $1
      AND day >= $2
      AND day <= $3
    ORDER BY day;`

	countDailyRainfallSQL = `SELECT COUNT(*) FROM daily_rainfall WHERE station_id = $1;`
)

// MirrorStore copies daily totals into a relational table for downstream readers.
type MirrorStore interface {
	EnsureSchema(ctx context.Context) error
	ApplyBatch(ctx context.Context, stationID string, batch rainfall.Series) error
	ListBetween(ctx context.Context, stationID string, w rainfall.Window) (rainfall.Series, error)
	CountDays(ctx context.Context, stationID string) (int64, error)
}

// Store is the PostgreSQL mirror of the daily series.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the mirror table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createDailyRainfallSQL); execErr != nil {
		return fmt.Errorf("ensure daily_rainfall: %w", execErr)
	}
	return nil
}

// ApplyBatch upserts batch in one transaction.
func (s *Store) ApplyBatch(ctx context.Context, stationID string, batch rainfall.Series) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin mirror tx: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, row := range batch {
		b.Queue(upsertDailyRainfallSQL, stationID, row.Date, row.RainfallMM.String())
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("upsert daily rainfall: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mirror tx: %w", err)
	}
	return nil
}

// ListBetween returns mirrored rows inside w ordered by day.
func (s *Store) ListBetween(ctx context.Context, stationID string, w rainfall.Window) (rainfall.Series, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailyRainfallBetweenSQL, stationID, w.Start, w.End)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily rainfall: %w", queryErr)
	}
	defer rows.Close()

	series := make(rainfall.Series, 0)
	for rows.Next() {
		row, scanErr := scanDailyTotal(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		series = append(series, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return series, nil
}

// CountDays counts mirrored days for a station.
func (s *Store) CountDays(ctx context.Context, stationID string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countDailyRainfallSQL, stationID).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count daily rainfall: %w", scanErr)
	}
	return count, nil
}

func scanDailyTotal(rows pgx.Rows) (rainfall.DailyTotal, error) {
	var (
		day   time.Time
		mmStr string
	)
	if err := rows.Scan(&day, &mmStr); err != nil {
		return rainfall.DailyTotal{}, err
	}
	mm, err := decimal.NewFromString(mmStr)
	if err != nil {
		return rainfall.DailyTotal{}, fmt.Errorf("parse rainfall_mm: %w", err)
	}
	return rainfall.DailyTotal{Date: rainfall.Day(day), RainfallMM: mm}, nil
}

var _ MirrorStore = (*Store)(nil)
