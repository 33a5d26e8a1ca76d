package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
)

var contractBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func contractBars(from, n int, close string) []models.Bar {
	out := make([]models.Bar, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, models.Bar{
			Timestamp: contractBase.Add(time.Duration(i) * time.Hour),
			Open:      decimal.RequireFromString("42000.123456789"),
			High:      decimal.RequireFromString("42100.5"),
			Low:       decimal.RequireFromString("41900.000000000000000001"),
			Close:     decimal.RequireFromString(close),
			Volume:    decimal.RequireFromString("12.75"),
			Provider:  "binance",
		})
	}
	return out
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, store repository.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("upsert counts inserts and updates", func(t *testing.T) {
		res, err := store.UpsertBars(ctx, "BTC", models.TF1h, contractBars(0, 5, "42050"))
		require.NoError(t, err)
		assert.Equal(t, models.UpsertResult{Inserted: 5}, res)

		res, err = store.UpsertBars(ctx, "BTC", models.TF1h, contractBars(3, 4, "43000"))
		require.NoError(t, err)
		assert.Equal(t, models.UpsertResult{Inserted: 2, Updated: 2}, res)

		n, err := store.CountBars(ctx, "BTC", models.TF1h, contractBase, contractBase.Add(24*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 7, n)
	})

	t.Run("list is ascending half-open and latest write wins", func(t *testing.T) {
		bars, err := store.ListBars(ctx, "BTC", models.TF1h, contractBase.Add(2*time.Hour), contractBase.Add(5*time.Hour), 0)
		require.NoError(t, err)
		require.Len(t, bars, 3)
		assert.True(t, bars[0].Timestamp.Equal(contractBase.Add(2*time.Hour)))
		assert.True(t, bars[2].Timestamp.Equal(contractBase.Add(4*time.Hour)))
		assert.Equal(t, "42050", bars[0].Close.String())
		assert.Equal(t, "43000", bars[1].Close.String())
		assert.True(t, bars[0].Low.Equal(decimal.RequireFromString("41900.000000000000000001")))
		assert.Equal(t, "BTC", bars[0].Symbol)
		assert.Equal(t, models.TF1h, bars[0].Timeframe)

		limited, err := store.ListBars(ctx, "BTC", models.TF1h, contractBase, contractBase.Add(24*time.Hour), 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("timestamps and latest", func(t *testing.T) {
		ts, err := store.ListTimestamps(ctx, "BTC", models.TF1h, contractBase, contractBase.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, ts, 7)
		assert.True(t, ts[6].Equal(contractBase.Add(6*time.Hour)))

		latest, err := store.LatestTimestamp(ctx, "BTC", models.TF1h)
		require.NoError(t, err)
		assert.True(t, latest.Equal(contractBase.Add(6*time.Hour)))

		_, err = store.LatestTimestamp(ctx, "ETH", models.TF1h)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("series are isolated by timeframe", func(t *testing.T) {
		n, err := store.CountBars(ctx, "BTC", models.TF1d, contractBase, contractBase.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("coverage round trip", func(t *testing.T) {
		_, err := store.GetCoverage(ctx, "BTC", models.TF4h)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		c := models.CoverageRange{
			Symbol:          "BTC",
			Timeframe:       models.TF4h,
			EarliestCovered: contractBase,
			LatestCovered:   contractBase.Add(48 * time.Hour),
			TotalBarCount:   12,
			IsComplete:      true,
			UpdatedAt:       contractBase.Add(49 * time.Hour),
		}
		require.NoError(t, store.UpsertCoverage(ctx, c))
		c.TotalBarCount = 18
		c.LatestCovered = contractBase.Add(72 * time.Hour)
		c.UpdatedAt = contractBase.Add(73 * time.Hour)
		require.NoError(t, store.UpsertCoverage(ctx, c))

		got, err := store.GetCoverage(ctx, "BTC", models.TF4h)
		require.NoError(t, err)
		assert.EqualValues(t, 18, got.TotalBarCount)
		assert.True(t, got.EarliestCovered.Equal(contractBase))
		assert.True(t, got.LatestCovered.Equal(contractBase.Add(72*time.Hour)))
		assert.True(t, got.IsComplete)
	})

	t.Run("snapshots newest first", func(t *testing.T) {
		latest := contractBase.Add(6 * time.Hour)
		for i, pct := range []float64{50, 75, 100} {
			snap := &models.QualitySnapshot{
				Symbol:          "BTC",
				Timeframe:       models.TF1h,
				WindowStart:     contractBase,
				WindowEnd:       contractBase.Add(24 * time.Hour),
				WindowHours:     24,
				ExpectedCount:   24,
				ActualCount:     int64(24 * pct / 100),
				MissingCount:    24 - int64(24*pct/100),
				CompletenessPct: pct,
				HasGaps:         pct < 99,
				LatestBarAt:     &latest,
				CreatedAt:       contractBase.Add(time.Duration(i+1) * time.Minute),
			}
			require.NoError(t, store.AppendSnapshot(ctx, snap))
			assert.NotZero(t, snap.ID)
		}

		snaps, err := store.ListSnapshots(ctx, "BTC", models.TF1h, 2)
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.Equal(t, 100.0, snaps[0].CompletenessPct)
		assert.Equal(t, 75.0, snaps[1].CompletenessPct)
		assert.False(t, snaps[0].HasGaps)
		if assert.NotNil(t, snaps[0].LatestBarAt) {
			assert.True(t, snaps[0].LatestBarAt.Equal(latest))
		}
	})
}
