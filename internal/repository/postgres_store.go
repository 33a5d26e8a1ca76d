package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/internal/repository/migrations"
	"BarPull/pkg/logger"
	"BarPull/pkg/postgres"
)

// PostgresStore keeps bars, coverage and quality snapshots in Postgres.
// Prices travel as text so NUMERIC columns never lose precision.
type PostgresStore struct {
	pool   *postgres.Pool
	logger *logger.Logger
}

var _ repository.Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *postgres.Pool, log *logger.Logger) *PostgresStore {
	if log == nil {
		log = logger.Nop()
	}
	return &PostgresStore{pool: pool, logger: log}
}

// Init applies pending migrations.
func (s *PostgresStore) Init(ctx context.Context) error {
	applied, err := s.pool.Migrate(ctx, migrations.Postgres, migrations.PostgresDir)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		s.logger.Info("postgres migrations applied", logger.Strings("files", applied))
	}
	return nil
}

func (s *PostgresStore) Health(ctx context.Context) error { return s.pool.Health(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const upsertBarSQL = `
INSERT INTO ohlcv_bars (symbol, timeframe, ts, open, high, low, close, volume, provider, updated_at)
VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7::text::numeric, $8::text::numeric, $9, now())
ON CONFLICT (symbol, timeframe, ts) DO UPDATE SET
    open       = EXCLUDED.open,
    high       = EXCLUDED.high,
    low        = EXCLUDED.low,
    close      = EXCLUDED.close,
    volume     = EXCLUDED.volume,
    provider   = EXCLUDED.provider,
    updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0)`

// UpsertBars writes the chunk in one transaction. xmax is zero only on
// freshly inserted tuples, which separates inserts from updates.
func (s *PostgresStore) UpsertBars(ctx context.Context, symbol string, tf models.Timeframe, bars []models.Bar) (models.UpsertResult, error) {
	var res models.UpsertResult
	if len(bars) == 0 {
		return res, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(upsertBarSQL,
			symbol, string(tf), b.Timestamp.UTC(),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(),
			b.Provider,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range bars {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			_ = br.Close()
			return models.UpsertResult{}, fmt.Errorf("upsert bar: %w", err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	if err := br.Close(); err != nil {
		return models.UpsertResult{}, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.UpsertResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

func (s *PostgresStore) ListBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	const q = `
SELECT ts, open::text, high::text, low::text, close::text, volume::text, provider
FROM ohlcv_bars
WHERE symbol = $1 AND timeframe = $2 AND ts >= $3 AND ts < $4
ORDER BY ts
LIMIT NULLIF($5::bigint, 0)`

	rows, err := s.pool.Query(ctx, q, symbol, string(tf), from.UTC(), to.UTC(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var (
			b             models.Bar
			o, h, l, c, v string
		)
		if err := rows.Scan(&b.Timestamp, &o, &h, &l, &c, &v, &b.Provider); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		if err := parseDecimals([]string{o, h, l, c, v}, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Symbol, b.Timeframe = symbol, tf
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func parseDecimals(raw []string, dst ...*decimal.Decimal) error {
	for i, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", s, err)
		}
		*dst[i] = d
	}
	return nil
}

func (s *PostgresStore) ListTimestamps(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]time.Time, error) {
	const q = `
SELECT ts FROM ohlcv_bars
WHERE symbol = $1 AND timeframe = $2 AND ts >= $3 AND ts < $4
ORDER BY ts`

	rows, err := s.pool.Query(ctx, q, symbol, string(tf), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query timestamps: %w", err)
	}
	ts, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan timestamps: %w", err)
	}
	for i := range ts {
		ts[i] = ts[i].UTC()
	}
	return ts, nil
}

func (s *PostgresStore) CountBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) (int64, error) {
	const q = `
SELECT count(*) FROM ohlcv_bars
WHERE symbol = $1 AND timeframe = $2 AND ts >= $3 AND ts < $4`

	var n int64
	if err := s.pool.QueryRow(ctx, q, symbol, string(tf), from.UTC(), to.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bars: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) LatestTimestamp(ctx context.Context, symbol string, tf models.Timeframe) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT max(ts) FROM ohlcv_bars WHERE symbol = $1 AND timeframe = $2`,
		symbol, string(tf),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest bar: %w", err)
	}
	if ts == nil {
		return time.Time{}, fmt.Errorf("latest bar %s/%s: %w", symbol, tf, repository.ErrNotFound)
	}
	return ts.UTC(), nil
}

func (s *PostgresStore) UpsertCoverage(ctx context.Context, c models.CoverageRange) error {
	const q = `
INSERT INTO coverage_ranges (symbol, timeframe, earliest_covered, latest_covered, total_bar_count, is_complete, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (symbol, timeframe) DO UPDATE SET
    earliest_covered = EXCLUDED.earliest_covered,
    latest_covered   = EXCLUDED.latest_covered,
    total_bar_count  = EXCLUDED.total_bar_count,
    is_complete      = EXCLUDED.is_complete,
    updated_at       = EXCLUDED.updated_at`

	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		c.Symbol, string(c.Timeframe), c.EarliestCovered.UTC(), c.LatestCovered.UTC(),
		c.TotalBarCount, c.IsComplete, updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert coverage: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCoverage(ctx context.Context, symbol string, tf models.Timeframe) (*models.CoverageRange, error) {
	const q = `
SELECT earliest_covered, latest_covered, total_bar_count, is_complete, updated_at
FROM coverage_ranges WHERE symbol = $1 AND timeframe = $2`

	c := models.CoverageRange{Symbol: symbol, Timeframe: tf}
	err := s.pool.QueryRow(ctx, q, symbol, string(tf)).
		Scan(&c.EarliestCovered, &c.LatestCovered, &c.TotalBarCount, &c.IsComplete, &c.UpdatedAt)
	if postgres.IsNotFound(err) {
		return nil, fmt.Errorf("coverage %s/%s: %w", symbol, tf, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get coverage: %w", err)
	}
	c.EarliestCovered = c.EarliestCovered.UTC()
	c.LatestCovered = c.LatestCovered.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap *models.QualitySnapshot) error {
	const q = `
INSERT INTO quality_snapshots (
    symbol, timeframe, window_start, window_end, window_hours,
    expected_count, actual_count, missing_count, completeness_pct, has_gaps,
    latest_bar_at, staleness_seconds
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, q,
		snap.Symbol, string(snap.Timeframe), snap.WindowStart.UTC(), snap.WindowEnd.UTC(), snap.WindowHours,
		snap.ExpectedCount, snap.ActualCount, snap.MissingCount, snap.CompletenessPct, snap.HasGaps,
		snap.LatestBarAt, snap.StalenessSeconds,
	).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	return nil
}

// ListSnapshots returns the newest snapshots first.
func (s *PostgresStore) ListSnapshots(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.QualitySnapshot, error) {
	const q = `
SELECT id, window_start, window_end, window_hours, expected_count, actual_count,
       missing_count, completeness_pct, has_gaps, latest_bar_at, staleness_seconds, created_at
FROM quality_snapshots
WHERE symbol = $1 AND timeframe = $2
ORDER BY created_at DESC, id DESC
LIMIT NULLIF($3::bigint, 0)`

	rows, err := s.pool.Query(ctx, q, symbol, string(tf), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.QualitySnapshot
	for rows.Next() {
		snap := models.QualitySnapshot{Symbol: symbol, Timeframe: tf}
		if err := rows.Scan(
			&snap.ID, &snap.WindowStart, &snap.WindowEnd, &snap.WindowHours,
			&snap.ExpectedCount, &snap.ActualCount, &snap.MissingCount, &snap.CompletenessPct,
			&snap.HasGaps, &snap.LatestBarAt, &snap.StalenessSeconds, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.WindowStart = snap.WindowStart.UTC()
		snap.WindowEnd = snap.WindowEnd.UTC()
		snap.CreatedAt = snap.CreatedAt.UTC()
		if snap.LatestBarAt != nil {
			t := snap.LatestBarAt.UTC()
			snap.LatestBarAt = &t
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
