package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/pkg/clickhouse"
	"BarPull/pkg/logger"
)

// ClickHouseSchema is the DDL InitSchema runs. Rows are versioned so a
// later write of the same key replaces the earlier one; reads use FINAL.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS ohlcv_bars (
		symbol    LowCardinality(String),
		timeframe LowCardinality(String),
		ts        DateTime64(3, 'UTC'),
		open      Decimal(38, 18),
		high      Decimal(38, 18),
		low       Decimal(38, 18),
		close     Decimal(38, 18),
		volume    Decimal(38, 18),
		provider  LowCardinality(String),
		version   UInt64
	) ENGINE = ReplacingMergeTree(version)
	PARTITION BY (timeframe, toYYYYMM(ts))
	ORDER BY (symbol, timeframe, ts)`,
	`CREATE TABLE IF NOT EXISTS coverage_ranges (
		symbol           LowCardinality(String),
		timeframe        LowCardinality(String),
		earliest_covered DateTime64(3, 'UTC'),
		latest_covered   DateTime64(3, 'UTC'),
		total_bar_count  Int64,
		is_complete      Bool,
		updated_at       DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (symbol, timeframe)`,
	`CREATE TABLE IF NOT EXISTS quality_snapshots (
		id                UInt64,
		symbol            LowCardinality(String),
		timeframe         LowCardinality(String),
		window_start      DateTime64(3, 'UTC'),
		window_end        DateTime64(3, 'UTC'),
		window_hours      Int32,
		expected_count    Int64,
		actual_count      Int64,
		missing_count     Int64,
		completeness_pct  Float64,
		has_gaps          Bool,
		latest_bar_at     Nullable(DateTime64(3, 'UTC')),
		staleness_seconds Int64,
		created_at        DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (symbol, timeframe, created_at, id)`,
}

// ClickHouseStore implements repository.Store on ClickHouse.
type ClickHouseStore struct {
	client *clickhouse.Client
	db     *sql.DB
	logger *logger.Logger
	now    func() time.Time
}

var _ repository.Store = (*ClickHouseStore)(nil)

func NewClickHouseStore(client *clickhouse.Client, log *logger.Logger) *ClickHouseStore {
	if log == nil {
		log = logger.Nop()
	}
	return &ClickHouseStore{client: client, db: client.DB(), logger: log, now: time.Now}
}

func (s *ClickHouseStore) Init(ctx context.Context) error {
	if err := s.client.InitSchema(ctx, ClickHouseSchema); err != nil {
		return err
	}
	s.logger.Info("clickhouse schema ready", logger.String("database", s.client.Database()))
	return nil
}

func (s *ClickHouseStore) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *ClickHouseStore) Close() error { return s.client.Close() }

// UpsertBars sends the chunk as one insert block. Inserted and updated
// are told apart by reading the keys already present in the chunk span.
func (s *ClickHouseStore) UpsertBars(ctx context.Context, symbol string, tf models.Timeframe, bars []models.Bar) (models.UpsertResult, error) {
	var res models.UpsertResult
	if len(bars) == 0 {
		return res, nil
	}

	lo, hi := bars[0].Timestamp, bars[0].Timestamp
	for _, b := range bars[1:] {
		if b.Timestamp.Before(lo) {
			lo = b.Timestamp
		}
		if b.Timestamp.After(hi) {
			hi = b.Timestamp
		}
	}
	existing, err := s.ListTimestamps(ctx, symbol, tf, lo, hi.Add(time.Millisecond))
	if err != nil {
		return res, err
	}
	present := make(map[int64]struct{}, len(existing))
	for _, ts := range existing {
		present[ts.UnixMilli()] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ohlcv_bars (symbol, timeframe, ts, open, high, low, close, volume, provider, version)`)
	if err != nil {
		return res, fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	version := uint64(s.now().UnixNano())
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		if _, err := stmt.ExecContext(ctx,
			symbol, string(tf), ts,
			b.Open, b.High, b.Low, b.Close, b.Volume,
			b.Provider, version,
		); err != nil {
			return models.UpsertResult{}, fmt.Errorf("append to batch: %w", err)
		}
		if _, ok := present[ts.UnixMilli()]; ok {
			res.Updated++
		} else {
			res.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return models.UpsertResult{}, fmt.Errorf("send batch: %w", err)
	}
	return res, nil
}

func (s *ClickHouseStore) ListBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	query := `
		SELECT ts, open, high, low, close, volume, provider
		FROM ohlcv_bars FINAL
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC`
	args := []any{symbol, string(tf), from.UTC(), to.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		b := models.Bar{Symbol: symbol, Timeframe: tf}
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Provider); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) ListTimestamps(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts FROM ohlcv_bars FINAL
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC`,
		symbol, string(tf), from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query timestamps: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan timestamp: %w", err)
		}
		out = append(out, ts.UTC())
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) CountBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) (int64, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT count() FROM ohlcv_bars FINAL
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?`,
		symbol, string(tf), from.UTC(), to.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bars: %w", err)
	}
	return int64(n), nil
}

func (s *ClickHouseStore) LatestTimestamp(ctx context.Context, symbol string, tf models.Timeframe) (time.Time, error) {
	var (
		n  uint64
		ts time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT count(), max(ts) FROM ohlcv_bars
		WHERE symbol = ? AND timeframe = ?`,
		symbol, string(tf),
	).Scan(&n, &ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest bar: %w", err)
	}
	if n == 0 {
		return time.Time{}, fmt.Errorf("latest bar %s/%s: %w", symbol, tf, repository.ErrNotFound)
	}
	return ts.UTC(), nil
}

func (s *ClickHouseStore) UpsertCoverage(ctx context.Context, c models.CoverageRange) error {
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coverage_ranges (symbol, timeframe, earliest_covered, latest_covered, total_bar_count, is_complete, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Symbol, string(c.Timeframe), c.EarliestCovered.UTC(), c.LatestCovered.UTC(),
		c.TotalBarCount, c.IsComplete, updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert coverage: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) GetCoverage(ctx context.Context, symbol string, tf models.Timeframe) (*models.CoverageRange, error) {
	c := models.CoverageRange{Symbol: symbol, Timeframe: tf}
	err := s.db.QueryRowContext(ctx, `
		SELECT earliest_covered, latest_covered, total_bar_count, is_complete, updated_at
		FROM coverage_ranges FINAL
		WHERE symbol = ? AND timeframe = ?`,
		symbol, string(tf),
	).Scan(&c.EarliestCovered, &c.LatestCovered, &c.TotalBarCount, &c.IsComplete, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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

// AppendSnapshot ids are wall-clock nanoseconds.
func (s *ClickHouseStore) AppendSnapshot(ctx context.Context, snap *models.QualitySnapshot) error {
	created := snap.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	created = created.UTC().Truncate(time.Millisecond)
	id := s.now().UnixNano()

	var latest any
	if snap.LatestBarAt != nil {
		latest = snap.LatestBarAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quality_snapshots (
			id, symbol, timeframe, window_start, window_end, window_hours,
			expected_count, actual_count, missing_count, completeness_pct, has_gaps,
			latest_bar_at, staleness_seconds, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uint64(id), snap.Symbol, string(snap.Timeframe), snap.WindowStart.UTC(), snap.WindowEnd.UTC(), int32(snap.WindowHours),
		snap.ExpectedCount, snap.ActualCount, snap.MissingCount, snap.CompletenessPct, snap.HasGaps,
		latest, snap.StalenessSeconds, created,
	)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	snap.ID = id
	snap.CreatedAt = created
	return nil
}

// ListSnapshots returns the newest snapshots first.
func (s *ClickHouseStore) ListSnapshots(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.QualitySnapshot, error) {
	query := `
		SELECT id, window_start, window_end, window_hours, expected_count, actual_count,
		       missing_count, completeness_pct, has_gaps, latest_bar_at, staleness_seconds, created_at
		FROM quality_snapshots
		WHERE symbol = ? AND timeframe = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{symbol, string(tf)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.QualitySnapshot
	for rows.Next() {
		var (
			id     uint64
			hours  int32
			latest sql.NullTime
		)
		snap := models.QualitySnapshot{Symbol: symbol, Timeframe: tf}
		if err := rows.Scan(
			&id, &snap.WindowStart, &snap.WindowEnd, &hours,
			&snap.ExpectedCount, &snap.ActualCount, &snap.MissingCount, &snap.CompletenessPct,
			&snap.HasGaps, &latest, &snap.StalenessSeconds, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.ID = int64(id)
		snap.WindowHours = int(hours)
		snap.WindowStart = snap.WindowStart.UTC()
		snap.WindowEnd = snap.WindowEnd.UTC()
		snap.CreatedAt = snap.CreatedAt.UTC()
		if latest.Valid {
			t := latest.Time.UTC()
			snap.LatestBarAt = &t
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
